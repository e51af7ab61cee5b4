package vocabulary

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProviderServesCanonicalVocabulary(t *testing.T) {
	vocab, err := NewDefaultProvider().Vocabulary(context.Background())
	require.NoError(t, err)

	assert.True(t, vocab.IsPredicate("treats"))
	assert.True(t, vocab.IsPredicate("CONVERTS_TO"))
	assert.False(t, vocab.IsPredicate("LIKES"))
	assert.True(t, vocab.IsEntityType("DSYN"))
	assert.False(t, vocab.IsEntityType("gene"))
	assert.Len(t, vocab.Predicates(), 29)
	assert.Len(t, vocab.EntityTypes(), 13)
	assert.Equal(t, "ADMINISTERED_TO", vocab.Predicates()[0].Name)
}

func TestParseRejectsEmptyLists(t *testing.T) {
	_, err := Parse([]byte("predicates: []\nentity_types: [{name: dsyn}]\n"))
	require.Error(t, err)
}

func TestProviderLoadsFileAndKeepsPreviousOnBrokenReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("predicates: [{name: treats}]\nentity_types: [{name: PHSU}]\n"), 0o600))

	provider, err := NewProvider(path, nil)
	require.NoError(t, err)
	vocab, _ := provider.Vocabulary(context.Background())
	assert.True(t, vocab.IsPredicate("TREATS"))
	assert.False(t, vocab.IsPredicate("CAUSES"))
	assert.True(t, vocab.IsEntityType("phsu"))

	require.NoError(t, os.WriteFile(path, []byte("predicates: ["), 0o600))
	require.Error(t, provider.Reload())
	vocab, _ = provider.Vocabulary(context.Background())
	assert.True(t, vocab.IsPredicate("TREATS"))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("predicates: [{name: treats}]\nentity_types: [{name: phsu}]\n"), 0o600))
	provider, err := NewProvider(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- provider.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("predicates: [{name: causes}]\nentity_types: [{name: phsu}]\n"), 0o600))
	assert.Eventually(t, func() bool {
		vocab, _ := provider.Vocabulary(context.Background())
		return vocab.IsPredicate("CAUSES")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
