// Package stores tracks the store list and each user's selected store.
package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karatlane/karat/pkg/observability"
)

// Lister fetches the store list from the backing data store.
type Lister interface {
	ListStores(ctx context.Context) ([]Store, error)
}

// ContextOption customizes a Context.
type ContextOption func(*Context)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *observability.Logger) ContextOption {
	return func(c *Context) { c.logger = logger }
}

// WithMetrics wires the degraded-mode gauge.
func WithMetrics(metrics *observability.Metrics) ContextOption {
	return func(c *Context) { c.metrics = metrics }
}

// WithFetchTimeout bounds each store list fetch.
func WithFetchTimeout(d time.Duration) ContextOption {
	return func(c *Context) { c.fetchTimeout = d }
}

// Context holds the store list and the selected store for one user. The
// list is fetched once on Load; failures fall back to a built-in
// placeholder set so store-dependent features keep working, with the
// degraded flag raised so the fallback is never mistaken for real data.
type Context struct {
	lister       Lister
	prefs        Preferences
	logger       *observability.Logger
	metrics      *observability.Metrics
	fetchTimeout time.Duration

	mu             sync.RWMutex
	userID         string
	stores         []Store
	currentStoreID int
	degraded       bool
	loaded         bool
	errMsg         string
}

// NewContext builds a store context for one user session.
func NewContext(lister Lister, prefs Preferences, opts ...ContextOption) *Context {
	c := &Context{
		lister:         lister,
		prefs:          prefs,
		logger:         observability.NewDefaultLogger(),
		fetchTimeout:   10 * time.Second,
		currentStoreID: DefaultStoreID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the store list and restores the user's saved selection.
// It never fails: a fetch error engages the placeholder fallback and a
// preference error keeps the default selection, both logged.
func (c *Context) Load(ctx context.Context, userID string) {
	fetched, degraded := c.fetchList(ctx)

	current := DefaultStoreID
	if c.prefs != nil {
		saved, err := c.prefs.CurrentStoreID(ctx, userID)
		if err != nil {
			c.logger.WithError(err).WithField("user_id", userID).
				Warn("failed to restore store selection, using default")
		} else if saved != 0 {
			current = saved
		}
	}

	c.mu.Lock()
	c.userID = userID
	c.stores = fetched
	c.currentStoreID = current
	c.degraded = degraded
	c.loaded = true
	if degraded {
		c.errMsg = "store list unavailable, showing placeholder stores"
	} else {
		c.errMsg = ""
	}
	c.mu.Unlock()

	c.setDegradedGauge(degraded)
}

// Refresh re-runs the store list fetch and swaps the list atomically.
// On failure the last known list is kept and the error is recorded for
// the caller to surface; there is no automatic retry.
func (c *Context) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	fetched, err := c.lister.ListStores(ctx)
	if err != nil {
		c.logger.WithError(err).Error("store list refresh failed")
		c.mu.Lock()
		c.errMsg = "failed to refresh stores"
		c.mu.Unlock()
		return fmt.Errorf("failed to refresh stores: %w", err)
	}

	c.mu.Lock()
	c.stores = fetched
	c.degraded = false
	c.errMsg = ""
	c.mu.Unlock()

	c.setDegradedGauge(false)
	return nil
}

func (c *Context) fetchList(ctx context.Context) (list []Store, degraded bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	fetched, err := c.lister.ListStores(fetchCtx)
	if err != nil {
		// The log line must make degraded mode unmistakable in
		// diagnostics.
		c.logger.WithError(err).
			WithField("fallback", "placeholder_stores").
			Warn("store list fetch failed, serving built-in placeholder stores")
		return append([]Store(nil), placeholderStores...), true
	}

	c.logger.WithField("count", len(fetched)).Debug("store list fetched")
	return fetched, false
}

func (c *Context) setDegradedGauge(degraded bool) {
	if c.metrics == nil {
		return
	}
	if degraded {
		c.metrics.StoreContextDegraded.Set(1)
	} else {
		c.metrics.StoreContextDegraded.Set(0)
	}
}

// Stores returns a copy of the current store list.
func (c *Context) Stores() []Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Store(nil), c.stores...)
}

// CurrentStoreID returns the selected store ID.
func (c *Context) CurrentStoreID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStoreID
}

// CurrentStoreData returns the list entry matching the selection, if any.
func (c *Context) CurrentStoreData() (Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.stores {
		if s.ID == c.currentStoreID {
			return s, true
		}
	}
	return Store{}, false
}

// StoreData returns the list entry with the given ID, if present.
func (c *Context) StoreData(storeID int) (Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.stores {
		if s.ID == storeID {
			return s, true
		}
	}
	return Store{}, false
}

// CurrentStoreIDFor returns the saved selection for the given user. A
// missing or unreadable preference yields the default, logged but never
// surfaced.
func (c *Context) CurrentStoreIDFor(ctx context.Context, userID string) int {
	if c.prefs != nil {
		saved, err := c.prefs.CurrentStoreID(ctx, userID)
		if err != nil {
			c.logger.WithError(err).WithField("user_id", userID).
				Warn("failed to read store selection, using default")
		} else if saved != 0 {
			return saved
		}
	}
	return DefaultStoreID
}

// SetCurrentStoreFor persists the selection for one user. Other users'
// selections are untouched; only the session this context was loaded for
// sees its in-memory selection move.
func (c *Context) SetCurrentStoreFor(ctx context.Context, userID string, storeID int) error {
	c.mu.Lock()
	if userID == c.userID {
		c.currentStoreID = storeID
	}
	c.mu.Unlock()

	if c.prefs == nil {
		return nil
	}
	if err := c.prefs.SetCurrentStoreID(ctx, userID, storeID); err != nil {
		c.logger.WithError(err).WithField("store_id", storeID).
			Warn("failed to persist store selection")
		return fmt.Errorf("failed to persist store selection: %w", err)
	}
	return nil
}

// Degraded reports whether the context is serving placeholder stores.
func (c *Context) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// Err returns the last fetch error message, empty when healthy.
func (c *Context) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

// SetCurrentStore updates the selection and persists it. The in-memory
// update always succeeds; a persistence failure is logged and reported
// but does not roll the selection back.
func (c *Context) SetCurrentStore(ctx context.Context, storeID int) error {
	c.mu.Lock()
	c.currentStoreID = storeID
	userID := c.userID
	c.mu.Unlock()

	if c.prefs == nil {
		return nil
	}
	if err := c.prefs.SetCurrentStoreID(ctx, userID, storeID); err != nil {
		c.logger.WithError(err).WithField("store_id", storeID).
			Warn("failed to persist store selection")
		return fmt.Errorf("failed to persist store selection: %w", err)
	}
	return nil
}
