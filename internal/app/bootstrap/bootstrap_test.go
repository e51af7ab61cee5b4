package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FreddieTree/manual-review-sub000/internal/platform/config"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ServiceName:          "review-test",
		HTTPPort:             "0",
		StoreBackend:         config.StoreBackendMemory,
		LeaseTTL:             time.Minute,
		LeaseRenewInterval:   20 * time.Second,
		LeaseReclaimInterval: 10 * time.Millisecond,
		RequiredReviewers:    2,
		FuzzyMatchThreshold:  0.8,
		IdempotencyTTL:       time.Hour,
		ExportDir:            t.TempDir(),
		OutboxBatchSize:      10,
		WorkerPollInterval:   10 * time.Millisecond,
		LogLevel:             "error",
		LogFormat:            "text",
		EnableLeaseReclaimer: true,
		EnableOutboxRelay:    true,
	}
}

func TestBuildRuntimeWiresMemoryBackend(t *testing.T) {
	runtime, err := BuildRuntime(context.Background(), memoryConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	if runtime.Module.Store == nil {
		t.Fatalf("expected memory store to be exposed")
	}
	vocab, err := runtime.Module.Handler.VocabularyHandler(context.Background())
	if err != nil || len(vocab.Predicates) == 0 {
		t.Fatalf("expected built-in vocabulary, got %+v %v", vocab, err)
	}
}

func TestBuildRuntimeRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StoreBackend = "sqlite"
	if _, err := BuildRuntime(context.Background(), cfg, nil, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestWorkerRequiresPostgres(t *testing.T) {
	if _, err := BuildWorkerWithConfig(context.Background(), memoryConfig(t)); err == nil {
		t.Fatalf("expected worker to refuse the memory backend")
	}
}

func TestRunEveryRetriesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- runEvery(ctx, time.Millisecond, func(context.Context) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("transient")
		}, NewLogger(memoryConfig(t), "test"), "test")
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runEvery did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("expected failures to be retried, got %d calls", calls.Load())
	}
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9090": ":9090", ":7070": ":7070"}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}
