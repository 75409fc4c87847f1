package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/karatlane/karat/pkg/auth"
)

// ProviderType represents the identity provider type
type ProviderType string

const (
	ProviderTypeOIDC ProviderType = "oidc"
	ProviderTypeSAML ProviderType = "saml"
)

// ChangeHandler receives identity change events in the order the provider
// emits them. A nil session accompanies SIGNED_OUT.
type ChangeHandler func(event auth.ChangeEvent, session *auth.Session)

// Provider is the contract the hosted identity service must satisfy. The
// rest of the codebase only ever talks to this interface; the concrete
// adapters live in this package.
type Provider interface {
	// GetSession returns the current session, refreshing it with the
	// provider if needed. A nil session with a nil error means "signed out".
	GetSession(ctx context.Context) (*auth.Session, error)

	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)

	// SignUp registers a new account carrying role/store metadata.
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*auth.Session, error)

	// SignOut terminates the current session.
	SignOut(ctx context.Context) error

	// OnAuthStateChange subscribes to identity changes. The returned cancel
	// function removes the subscription; calling it twice is harmless.
	OnAuthStateChange(handler ChangeHandler) (cancel func())
}

// ProviderConfig selects and configures a concrete provider.
type ProviderConfig struct {
	Type ProviderType
	OIDC *OIDCConfig
	SAML *SAMLConfig

	// Claims maps provider claim/attribute names onto principal fields.
	Claims ClaimMap
}

// ClaimMap defines which claims carry the principal's identity and
// assignment. Zero values fall back to the conventional names.
type ClaimMap struct {
	UserID  string // default "sub"
	Email   string // default "email"
	Role    string // default "role"
	StoreID string // default "store_id"
	Floor   string // default "floor"
}

func (c ClaimMap) withDefaults() ClaimMap {
	if c.UserID == "" {
		c.UserID = "sub"
	}
	if c.Email == "" {
		c.Email = "email"
	}
	if c.Role == "" {
		c.Role = "role"
	}
	if c.StoreID == "" {
		c.StoreID = "store_id"
	}
	if c.Floor == "" {
		c.Floor = "floor"
	}
	return c
}

// NewProvider creates a provider from configuration.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderTypeOIDC:
		if cfg.OIDC == nil {
			return nil, fmt.Errorf("OIDC config is required for OIDC provider")
		}
		return NewOIDCProvider(ctx, cfg)
	case ProviderTypeSAML:
		if cfg.SAML == nil {
			return nil, fmt.Errorf("SAML config is required for SAML provider")
		}
		return NewSAMLProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}

// notifier implements the OnAuthStateChange fan-out shared by the concrete
// adapters. Events are delivered under the lock so subscribers observe them
// in emission order.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]ChangeHandler
}

func (n *notifier) OnAuthStateChange(handler ChangeHandler) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]ChangeHandler)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = handler

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) emit(event auth.ChangeEvent, session *auth.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, h := range n.subs {
		h(event, session)
	}
}

// principalFromClaims builds a Principal from a flat claim set.
func principalFromClaims(claims map[string]any, m ClaimMap) auth.Principal {
	m = m.withDefaults()
	return auth.Principal{
		ID:      claimString(claims, m.UserID),
		Email:   claimString(claims, m.Email),
		Role:    auth.Role(claimString(claims, m.Role)),
		StoreID: claimString(claims, m.StoreID),
		Floor:   claimString(claims, m.Floor),
	}
}

func claimString(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
