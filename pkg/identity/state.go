package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/observability"
)

// Snapshot is an immutable view of the authentication state at one point
// in time. Epoch increases with every applied change, so slow consumers
// can discard results computed against an older snapshot.
type Snapshot struct {
	Principal *auth.Principal
	Session   *auth.Session

	// Loading is true until the first session resolution completes.
	Loading bool
	// Hydrated is true once a session (or its absence) has been confirmed
	// with the provider.
	Hydrated bool
	// Initialized is true once startup finished, successfully or not.
	Initialized bool

	// Err carries the hydration failure when startup exhausted its retries.
	Err error

	Epoch uint64
}

// Authenticated reports whether the snapshot carries a live principal.
func (s Snapshot) Authenticated() bool {
	return s.Principal != nil && s.Session != nil && !s.Session.Expired()
}

// SnapshotHandler receives state snapshots in application order.
type SnapshotHandler func(Snapshot)

// StateOption customizes a State.
type StateOption func(*State)

// WithHydrateRetries sets how many extra attempts initial hydration makes
// after the first failure.
func WithHydrateRetries(n int) StateOption {
	return func(s *State) { s.retries = n }
}

// WithHydrateBackoff sets the fixed delay between hydration attempts.
func WithHydrateBackoff(d time.Duration) StateOption {
	return func(s *State) { s.backoff = d }
}

// WithHydrateTimeout bounds the total time Start spends hydrating.
func WithHydrateTimeout(d time.Duration) StateOption {
	return func(s *State) { s.timeout = d }
}

// WithStateLogger sets the logger used for lifecycle events.
func WithStateLogger(logger *observability.Logger) StateOption {
	return func(s *State) { s.logger = logger }
}

// State tracks the current authentication state of the process. It owns
// the single provider subscription; everything else observes State rather
// than the provider directly. A State is inert until Start and must not be
// reused after Stop.
type State struct {
	provider Provider
	logger   *observability.Logger

	retries int
	backoff time.Duration
	timeout time.Duration

	mu        sync.Mutex
	snap      Snapshot
	subs      map[int]SnapshotHandler
	nextSubID int
	cancelSub func()
	started   bool
}

// NewState builds a state store over the given provider.
func NewState(provider Provider, opts ...StateOption) *State {
	s := &State{
		provider: provider,
		logger:   observability.NewDefaultLogger(),
		retries:  2,
		backoff:  500 * time.Millisecond,
		timeout:  10 * time.Second,
		snap:     Snapshot{Loading: true},
		subs:     make(map[int]SnapshotHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to provider changes and performs the initial session
// hydration. Hydration is attempted a fixed number of times with a fixed
// backoff; on exhaustion the state becomes a terminal unauthenticated one
// carrying the error, and that error is returned. Changes emitted by the
// provider during hydration win over the hydration result.
func (s *State) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("state already started")
	}
	s.started = true
	s.cancelSub = s.provider.OnAuthStateChange(s.apply)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.backoff):
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				if lastErr == nil {
					lastErr = ctxErr
				}
				break
			}
		}

		session, err := s.provider.GetSession(ctx)
		if err == nil {
			s.hydrate(session)
			return nil
		}
		lastErr = err
		s.logger.WithError(err).WithField("attempt", attempt+1).
			Warn("session hydration attempt failed")
	}

	err := fmt.Errorf("session hydration failed: %w", lastErr)
	s.hydrateFailed(err)
	s.logger.WithError(lastErr).Error("session hydration exhausted retries")
	return err
}

// Stop cancels the provider subscription. The last snapshot remains
// readable.
func (s *State) Stop() {
	s.mu.Lock()
	cancel := s.cancelSub
	s.cancelSub = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers a handler invoked after every state change, with
// the snapshot that change produced. The returned cancel function removes
// the subscription.
func (s *State) Subscribe(handler SnapshotHandler) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// apply folds a provider change event into the snapshot. Events are
// applied in arrival order; the latest applied event is authoritative.
func (s *State) apply(event auth.ChangeEvent, session *auth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case auth.EventSignedOut:
		s.snap.Principal = nil
		s.snap.Session = nil
	case auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventUserUpdated:
		if session == nil {
			s.snap.Principal = nil
			s.snap.Session = nil
		} else {
			p := session.Principal
			s.snap.Principal = &p
			s.snap.Session = session
		}
	default:
		return
	}

	s.snap.Loading = false
	s.snap.Hydrated = true
	s.snap.Initialized = true
	s.snap.Err = nil
	s.snap.Epoch++
	s.notifyLocked()
}

// hydrate records the initial session resolution, unless a provider event
// already produced a newer state.
func (s *State) hydrate(session *auth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Hydrated {
		return
	}
	if session != nil {
		p := session.Principal
		s.snap.Principal = &p
		s.snap.Session = session
	}
	s.snap.Loading = false
	s.snap.Hydrated = true
	s.snap.Initialized = true
	s.snap.Err = nil
	s.snap.Epoch++
	s.notifyLocked()
}

// hydrateFailed records terminal hydration failure, unless a provider
// event already produced a usable state.
func (s *State) hydrateFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Hydrated {
		return
	}
	s.snap.Principal = nil
	s.snap.Session = nil
	s.snap.Loading = false
	s.snap.Initialized = true
	s.snap.Err = err
	s.snap.Epoch++
	s.notifyLocked()
}

func (s *State) notifyLocked() {
	snap := s.snap
	for _, h := range s.subs {
		h(snap)
	}
}
