// Package floors resolves which sales floors a principal may see.
package floors

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/observability"
)

// Floor is one sales floor within a store.
type Floor struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	StoreID      int    `json:"store_id"`
	ManagerEmail string `json:"manager_email,omitempty"`
}

// Phase is the floor context's position in its state machine.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseRoleLoading
	PhaseAdminView
	PhaseManagerView
	PhaseNoAccess
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseRoleLoading:
		return "role_loading"
	case PhaseAdminView:
		return "admin_view"
	case PhaseManagerView:
		return "manager_view"
	case PhaseNoAccess:
		return "no_access"
	default:
		return "unknown"
	}
}

// ErrNoFloorAssigned is the user-visible message when a floor manager has
// no floor record.
const ErrNoFloorAssigned = "No floor assigned"

// Source is the data access the floor context needs.
type Source interface {
	// ListFloors returns every floor across stores.
	ListFloors(ctx context.Context) ([]Floor, error)
	// FloorByManagerEmail returns the floor assigned to the given manager,
	// or (nil, nil) when there is none.
	FloorByManagerEmail(ctx context.Context, email string) (*Floor, error)
	// RoleByEmail looks up a persisted team-member role for principals
	// whose session carries none.
	RoleByEmail(ctx context.Context, email string) (auth.Role, error)
}

// Option customizes a Context.
type Option func(*Context)

// WithLogger sets the diagnostics logger.
func WithLogger(logger *observability.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// WithFetchTimeout bounds each floor fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Context) { c.fetchTimeout = d }
}

// Snapshot is the floor context's observable state.
type Snapshot struct {
	Phase        Phase
	Role         auth.Role
	Floors       []Floor
	CurrentFloor *Floor
	Err          string
}

// Context tracks floor visibility for the current principal. Apply is
// called on every principal change; fetches are keyed to the change that
// started them, so a stale fetch can never overwrite the state of a
// newer principal.
type Context struct {
	source       Source
	logger       *observability.Logger
	fetchTimeout time.Duration
	floorCache   *lru.Cache[string, Floor]

	mu    sync.Mutex
	epoch uint64
	snap  Snapshot
}

// NewContext builds a floor context.
func NewContext(source Source, opts ...Option) *Context {
	cache, _ := lru.New[string, Floor](256)
	c := &Context{
		source:       source,
		logger:       observability.NewDefaultLogger(),
		fetchTimeout: 10 * time.Second,
		floorCache:   cache,
		snap:         Snapshot{Phase: PhaseUninitialized},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Apply folds a principal change into the context. A nil principal
// clears all floor data without error. Fetch failures set the snapshot
// error and leave data empty; they are never propagated as panics and
// never retried automatically.
func (c *Context) Apply(ctx context.Context, principal *auth.Principal) {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch

	if principal == nil {
		c.snap = Snapshot{Phase: PhaseUninitialized}
		c.mu.Unlock()
		return
	}
	c.snap = Snapshot{Phase: PhaseRoleLoading}
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	role := c.resolveRole(fetchCtx, principal)
	next := c.resolve(fetchCtx, role, principal.Email)

	c.commit(epoch, next)
}

// resolveRole prefers the session role and falls back to the persisted
// team-member record. A failed lookup is swallowed: the role stays at
// the safe default and is only logged.
func (c *Context) resolveRole(ctx context.Context, principal *auth.Principal) auth.Role {
	if principal.Role != "" {
		return principal.Role
	}

	role, err := c.source.RoleByEmail(ctx, principal.Email)
	if err != nil {
		c.logger.WithError(err).WithField("email", principal.Email).
			Warn("role fallback lookup failed, keeping no-access default")
		return ""
	}
	return role
}

func (c *Context) resolve(ctx context.Context, role auth.Role, email string) Snapshot {
	switch {
	case auth.Classify(role) == auth.ClassAdmin:
		floors, err := c.source.ListFloors(ctx)
		if err != nil {
			c.logger.WithError(err).Error("floor list fetch failed")
			return Snapshot{Phase: PhaseAdminView, Role: role, Err: "failed to load floors"}
		}
		// An overseer has no single current floor.
		return Snapshot{Phase: PhaseAdminView, Role: role, Floors: floors}

	case auth.Classify(role) == auth.ClassStoreManager:
		floor, err := c.lookupFloor(ctx, email)
		if err != nil {
			c.logger.WithError(err).WithField("email", email).
				Error("assigned floor fetch failed")
			return Snapshot{Phase: PhaseManagerView, Role: role, Err: "failed to load assigned floor"}
		}
		if floor == nil {
			return Snapshot{Phase: PhaseManagerView, Role: role, Err: ErrNoFloorAssigned}
		}
		return Snapshot{
			Phase:        PhaseManagerView,
			Role:         role,
			Floors:       []Floor{*floor},
			CurrentFloor: floor,
		}

	default:
		return Snapshot{Phase: PhaseNoAccess, Role: role}
	}
}

func (c *Context) lookupFloor(ctx context.Context, email string) (*Floor, error) {
	if cached, ok := c.floorCache.Get(email); ok {
		return &cached, nil
	}

	floor, err := c.source.FloorByManagerEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("floor lookup for %s: %w", email, err)
	}
	if floor != nil {
		c.floorCache.Add(email, *floor)
	}
	return floor, nil
}

// commit applies a resolved snapshot unless a newer principal change has
// started since; stale results are discarded.
func (c *Context) commit(epoch uint64, next Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.WithField("phase", next.Phase.String()).
			Debug("discarding floor state for superseded principal")
		return
	}
	c.snap = next
}
