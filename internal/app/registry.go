package app

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type WorkbenchFactory func(userID string) *Workbench

// Registry hands out one Workbench per user and closes workbenches that sat
// idle longer than the configured TTL.
type Registry struct {
	mu      sync.Mutex
	items   *cache.Cache
	factory WorkbenchFactory
	logger  *zap.Logger
}

func NewRegistry(idleTTL time.Duration, factory WorkbenchFactory, logger *zap.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		items:   cache.New(idleTTL, idleTTL/2),
		factory: factory,
		logger:  logger.Named("registry"),
	}
	r.items.OnEvicted(func(userID string, v interface{}) {
		if wb, ok := v.(*Workbench); ok {
			wb.Close()
			r.logger.Info("workbench evicted", zap.String("user_id", userID))
		}
	})
	return r
}

// Get returns the user's workbench, creating it on first use. Every call
// renews the idle deadline.
func (r *Registry) Get(userID string) *Workbench {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, found := r.items.Get(userID); found {
		wb := v.(*Workbench)
		r.items.SetDefault(userID, wb)
		return wb
	}
	// An expired entry reads as missing until the janitor runs; sweep it so
	// OnEvicted closes the old workbench before it is overwritten.
	r.items.DeleteExpired()
	wb := r.factory(userID)
	r.items.SetDefault(userID, wb)
	r.logger.Info("workbench created", zap.String("user_id", userID), zap.String("session_id", wb.SessionID()))
	return wb
}

// Lookup returns the user's live workbench without creating one.
func (r *Registry) Lookup(userID string) (*Workbench, bool) {
	v, found := r.items.Get(userID)
	if !found {
		return nil, false
	}
	return v.(*Workbench), true
}

// Drop closes and forgets the user's workbench.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items.Delete(userID)
}

func (r *Registry) Len() int {
	return r.items.ItemCount()
}

// Close shuts every workbench down.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID := range r.items.Items() {
		r.items.Delete(userID)
	}
}
