package vocabulary

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
)

//go:embed default_vocabulary.yaml
var defaultVocabulary []byte

const reloadDebounce = 250 * time.Millisecond

type fileTerm struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type fileFormat struct {
	Predicates  []fileTerm `yaml:"predicates"`
	EntityTypes []fileTerm `yaml:"entity_types"`
}

// Provider serves the predicate/entity-type whitelist. With a file path it
// loads that YAML file and can hot-reload it; without one it serves the
// built-in vocabulary.
type Provider struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current entities.Vocabulary
}

// NewProvider loads the vocabulary once. An empty path selects the built-in
// vocabulary.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	p := &Provider{path: path, logger: application.ResolveLogger(logger)}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewDefaultProvider serves the built-in vocabulary.
func NewDefaultProvider() *Provider {
	vocab, err := Parse(defaultVocabulary)
	if err != nil {
		panic(fmt.Sprintf("built-in vocabulary is invalid: %v", err))
	}
	return &Provider{logger: slog.Default(), current: vocab}
}

func (p *Provider) Vocabulary(_ context.Context) (entities.Vocabulary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}

// Reload re-reads the vocabulary source. A broken file keeps the previous
// vocabulary in place.
func (p *Provider) Reload() error {
	raw := defaultVocabulary
	if p.path != "" {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("read vocabulary file: %w", err)
		}
		raw = data
	}
	vocab, err := Parse(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = vocab
	p.mu.Unlock()
	p.logger.Info("vocabulary loaded",
		"event", "review_vocabulary_loaded",
		"module", application.ModuleName,
		"layer", "adapter",
		"path", p.path,
		"predicate_count", len(vocab.Predicates()),
		"entity_type_count", len(vocab.EntityTypes()),
	)
	return nil
}

// Parse decodes the YAML vocabulary format.
func Parse(raw []byte) (entities.Vocabulary, error) {
	var file fileFormat
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return entities.Vocabulary{}, fmt.Errorf("decode vocabulary: %w", err)
	}
	if len(file.Predicates) == 0 || len(file.EntityTypes) == 0 {
		return entities.Vocabulary{}, fmt.Errorf("decode vocabulary: predicates and entity_types must be non-empty")
	}
	predicates := make([]entities.VocabularyTerm, 0, len(file.Predicates))
	for _, term := range file.Predicates {
		predicates = append(predicates, entities.VocabularyTerm{Name: term.Name, Description: term.Description})
	}
	entityTypes := make([]entities.VocabularyTerm, 0, len(file.EntityTypes))
	for _, term := range file.EntityTypes {
		entityTypes = append(entityTypes, entities.VocabularyTerm{Name: term.Name, Description: term.Description})
	}
	return entities.NewVocabulary(predicates, entityTypes), nil
}

// Watch reloads the vocabulary file whenever it changes until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are picked up.
func (p *Provider) Watch(ctx context.Context) error {
	if p.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(p.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := p.Reload(); err != nil {
				p.logger.Warn("vocabulary reload failed",
					"event", "review_vocabulary_reload_failed",
					"module", application.ModuleName,
					"layer", "adapter",
					"path", p.path,
					"error", err.Error(),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("vocabulary watcher error",
				"event", "review_vocabulary_watch_error",
				"module", application.ModuleName,
				"layer", "adapter",
				"error", err.Error(),
			)
		}
	}
}
