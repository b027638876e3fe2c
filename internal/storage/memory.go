package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/models"
	"github.com/prasenjit/edgerules/internal/rules"
)

// MemoryStore implements Store with an in-memory snapshot
type MemoryStore struct {
	current   atomic.Pointer[Snapshot]
	version   atomic.Uint64
	logger    *zap.Logger
	source    string
	mu        sync.Mutex
	listeners []func(*Snapshot)

	// replaceMu orders swaps so versions are stored in increasing order
	replaceMu sync.Mutex
}

// NewMemoryStore creates a store holding cfg. A nil cfg starts empty.
func NewMemoryStore(cfg *models.RouteConfig, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.L()
	}
	m := &MemoryStore{logger: logger}
	m.Replace(cfg)
	return m
}

// Snapshot returns the current rules
func (m *MemoryStore) Snapshot() *Snapshot {
	return m.current.Load()
}

// Replace validates cfg and swaps it in. Concurrent calls are serialized;
// listeners see snapshots in version order and must not call Replace.
func (m *MemoryStore) Replace(cfg *models.RouteConfig) []error {
	valid, errs := rules.Validate(cfg)

	m.replaceMu.Lock()
	defer m.replaceMu.Unlock()

	rejected := make([]string, 0, len(errs))
	for _, err := range errs {
		m.logger.Warn("rule rejected", zap.String("source", m.source), zap.Error(err))
		rejected = append(rejected, err.Error())
	}

	snap := &Snapshot{
		Config:   valid,
		Version:  m.version.Add(1),
		LoadedAt: time.Now(),
		Source:   m.source,
		Rejected: rejected,
	}
	m.current.Store(snap)

	counts := valid.Counts()
	m.logger.Info("rules loaded",
		zap.Uint64("version", snap.Version),
		zap.Int("redirects", counts.Redirects),
		zap.Int("rewrites", valid.Rewrites.Len()),
		zap.Int("headers", counts.Headers),
		zap.Int("rejected", len(rejected)),
	)

	m.mu.Lock()
	listeners := append(([]func(*Snapshot))(nil), m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}

	return errs
}

// OnChange registers fn to be called after every swap
func (m *MemoryStore) OnChange(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
