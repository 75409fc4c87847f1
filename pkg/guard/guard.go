// Package guard gates protected routes on authentication state and a
// required-role allowlist. Decisions are declarative values; the host
// performs the navigation they describe.
package guard

import (
	"sync"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/identity"
)

// GateState is the render state a guarded route is in.
type GateState int

const (
	// StateLoading means authentication is not yet hydrated; render a
	// loading indicator and perform no navigation.
	StateLoading GateState = iota
	// StateUnauthenticated means no principal is present once hydrated.
	StateUnauthenticated
	// StateAccessDenied means the principal's role is outside the route's
	// allowlist. The route must show an explicit Access Denied state, not
	// blank content.
	StateAccessDenied
	// StateRender means the route may render its content.
	StateRender
)

func (s GateState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAccessDenied:
		return "access_denied"
	case StateRender:
		return "render"
	default:
		return "unknown"
	}
}

// Redirect describes a navigation the host should perform.
type Redirect struct {
	Target string
}

// Decision is the outcome of evaluating a guarded route against the
// current authentication snapshot.
type Decision struct {
	State GateState
	// Redirect is non-nil when the host should navigate away. A Guard
	// suppresses it on re-evaluation of the same snapshot so repeated
	// renders never stack navigations.
	Redirect *Redirect
}

// Decide evaluates a snapshot against a route's role allowlist. An empty
// allowlist admits any authenticated principal. Decide is pure; it emits
// the redirect every time the state warrants one, deduplication is the
// Guard's job.
func Decide(snap identity.Snapshot, signInURL string, requiredRoles ...auth.Role) Decision {
	if snap.Loading || !snap.Initialized {
		return Decision{State: StateLoading}
	}

	if !snap.Authenticated() {
		return Decision{
			State:    StateUnauthenticated,
			Redirect: &Redirect{Target: signInURL},
		}
	}

	if len(requiredRoles) > 0 && !roleAllowed(snap.Principal.Role, requiredRoles) {
		return Decision{
			State:    StateAccessDenied,
			Redirect: &Redirect{Target: signInURL},
		}
	}

	return Decision{State: StateRender}
}

func roleAllowed(role auth.Role, allowed []auth.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Guard evaluates routes against the live auth state and emits each
// redirect at most once per state change, so re-evaluations caused by
// re-renders or remounts cannot accumulate navigations.
type Guard struct {
	state     *identity.State
	signInURL string

	mu            sync.Mutex
	lastRedirects map[string]uint64
}

// New builds a guard over the given state store.
func New(state *identity.State, signInURL string) *Guard {
	return &Guard{
		state:         state,
		signInURL:     signInURL,
		lastRedirects: make(map[string]uint64),
	}
}

// Evaluate decides the render state for a route. The route name keys
// redirect deduplication; distinct routes redirect independently.
func (g *Guard) Evaluate(route string, requiredRoles ...auth.Role) Decision {
	snap := g.state.Snapshot()
	decision := Decide(snap, g.signInURL, requiredRoles...)

	if decision.Redirect == nil {
		return decision
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastRedirects[route]; ok && last == snap.Epoch {
		decision.Redirect = nil
		return decision
	}
	g.lastRedirects[route] = snap.Epoch
	return decision
}
