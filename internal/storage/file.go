package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/edgerules/internal/models"
)

// LoadFile reads a rule file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func LoadFile(path string) (*models.RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes rule file content. ext selects the format (".json" or a
// YAML extension).
func Parse(data []byte, ext string) (*models.RouteConfig, error) {
	cfg := &models.RouteConfig{}

	if strings.EqualFold(ext, ".json") {
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("invalid JSON rule file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON rules: %w", err)
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode YAML rules: %w", err)
	}
	return cfg, nil
}

// FileStore implements Store backed by a rule file
type FileStore struct {
	*MemoryStore

	path     string
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// FileOption configures a FileStore
type FileOption func(*FileStore)

// WithDebounce sets how long to wait after a change before reloading
func WithDebounce(d time.Duration) FileOption {
	return func(f *FileStore) {
		f.debounce = d
	}
}

// WithLogger sets the logger for the store
func WithLogger(logger *zap.Logger) FileOption {
	return func(f *FileStore) {
		f.logger = logger
	}
}

// NewFileStore loads the rule file at path
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f := &FileStore{
		path:     absPath,
		debounce: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.L()
	}

	cfg, err := LoadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", absPath, err)
	}

	f.MemoryStore = &MemoryStore{logger: f.logger, source: absPath}
	f.MemoryStore.Replace(cfg)

	return f, nil
}

// Path returns the absolute path of the rule file
func (f *FileStore) Path() string {
	return f.path
}

// Reload re-reads the rule file. On a read or decode error the current
// snapshot is kept.
func (f *FileStore) Reload() ([]error, error) {
	cfg, err := LoadFile(f.path)
	if err != nil {
		f.logger.Error("failed to reload rules", zap.String("path", f.path), zap.Error(err))
		return nil, err
	}
	return f.Replace(cfg), nil
}

// Watch reloads the rule file whenever it changes, until ctx is done or the
// store is closed
func (f *FileStore) Watch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so editors that replace the file are seen
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return err
	}

	f.watcher = w
	f.stopCh = make(chan struct{})
	f.stoppedCh = make(chan struct{})

	f.logger.Info("watching rule file", zap.String("path", f.path))
	go f.watch(ctx, w, f.stopCh, f.stoppedCh)
	return nil
}

func (f *FileStore) watch(ctx context.Context, w *fsnotify.Watcher, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.logger.Debug("rule file changed", zap.String("op", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(f.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			_, _ = f.Reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Error("rule watcher error", zap.Error(err))
		}
	}
}

// Close stops watching the rule file
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher == nil {
		return nil
	}

	close(f.stopCh)
	<-f.stoppedCh
	err := f.watcher.Close()
	f.watcher = nil
	return err
}
