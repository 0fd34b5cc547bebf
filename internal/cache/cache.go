// Package cache holds the read-side caches of the HTTP API. Nothing in the
// mutation path reads from them.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Cache defines a generic cache interface
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, data V)
	Delete(key K)
	Size() int
}

// GetOrLoad returns the cached value of key or loads and caches it. A value
// loaded while key was invalidated is returned but not cached.
func GetOrLoad[K comparable, V any](c *LRUCache[K, V], key K, load func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	version := c.Version(key)
	v, err := load()
	if err != nil {
		return v, false, err
	}
	c.SetIfVersion(key, v, version)
	return v, false, nil
}

// Invalidator drops the cached entries of every competency an event touches.
// Register it as an event publisher of the ledger service.
type Invalidator[V any] struct {
	cache Cache[core.Competency, V]
}

var _ ledger.EventPublisher = (*Invalidator[int])(nil)

func NewInvalidator[V any](c Cache[core.Competency, V]) *Invalidator[V] {
	return &Invalidator[V]{cache: c}
}

func (i *Invalidator[V]) Publish(_ context.Context, e ledger.Event) error {
	for _, c := range e.Competencies {
		i.cache.Delete(c)
	}
	return nil
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
	stopOnce    sync.Once
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				slog.Debug("Cleaned expired cache entries", "removed", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// CleanNow runs one cleanup pass over every registered cache.
func (m *Manager) CleanNow() int {
	total := 0
	for _, cache := range m.caches {
		total += cache.CleanExpired()
	}
	return total
}

// Stop gracefully stops the cleanup routine. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		if m.started {
			<-m.cleanupDone
		}
	})
}
