// Package identity adapts hosted identity providers and tracks the
// process-wide authentication state.
//
// # Overview
//
// Concrete adapters (OIDC, SAML) implement the Provider interface; the
// rest of the codebase never talks to a provider SDK directly. State
// owns the single provider subscription and folds change events into an
// observable Snapshot.
//
// # Usage
//
// Create a provider and state store:
//
//	provider, err := identity.NewProvider(ctx, identity.ProviderConfig{
//		Type: identity.ProviderTypeOIDC,
//		OIDC: &identity.OIDCConfig{IssuerURL: issuer, ClientID: id, ClientSecret: secret},
//	})
//	state := identity.NewState(provider)
//	if err := state.Start(ctx); err != nil {
//		// terminal unauthenticated state, snapshot carries the error
//	}
//	defer state.Stop()
//
// Observe changes:
//
//	cancel := state.Subscribe(func(snap identity.Snapshot) {
//		// react to sign-in, sign-out, refresh
//	})
//	defer cancel()
//
// # Related Packages
//
//   - pkg/auth: principal, session and role classification types
//   - pkg/guard: route decisions built from State snapshots
package identity
