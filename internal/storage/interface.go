// Package storage holds the active rule configuration. Readers get an
// immutable snapshot; updates swap in a new snapshot atomically.
package storage

import (
	"time"

	"github.com/prasenjit/edgerules/internal/models"
)

// Snapshot is an immutable view of the loaded rules. Callers must not
// modify Config.
type Snapshot struct {
	Config   *models.RouteConfig `json:"config"`
	Version  uint64              `json:"version"`
	LoadedAt time.Time           `json:"loadedAt"`
	Source   string              `json:"source,omitempty"`
	Rejected []string            `json:"rejected,omitempty"` // Rules dropped by validation
}

// Store defines the interface for rule storage
type Store interface {
	// Snapshot returns the current rules
	Snapshot() *Snapshot

	// Replace validates cfg and makes it the current snapshot. Invalid rules
	// are dropped and reported.
	Replace(cfg *models.RouteConfig) []error

	// OnChange registers fn to be called after every swap
	OnChange(fn func(*Snapshot))

	// Close releases resources held by the store
	Close() error
}
