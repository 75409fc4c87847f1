package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/karatlane/karat/pkg/auth"
)

// SAMLConfig configures the SAML 2.0 adapter.
type SAMLConfig struct {
	// SSOURL is the IdP single sign-on endpoint.
	SSOURL string
	// EntityID is the IdP issuer.
	EntityID string
	// Certificate is the IdP signing certificate, PEM encoded.
	Certificate string
	// PrivateKey signs AuthnRequests when SignRequests is set. PEM encoded,
	// PKCS1 or PKCS8.
	PrivateKey string
	// BaseURL is this service's externally visible base URL. The assertion
	// consumer endpoint is derived from it.
	BaseURL string
	// NameIDFormat overrides the requested NameID format.
	NameIDFormat string
	SignRequests bool
	// SessionTTL bounds sessions minted from assertions that carry no
	// SessionNotOnOrAfter. Defaults to 8 hours.
	SessionTTL time.Duration
}

// SAMLProvider implements Provider on top of SAML 2.0. SAML has no
// password grant, so SignIn and SignUp report not-supported; sessions are
// established by the HTTP callback handler feeding ConsumeAssertion.
type SAMLProvider struct {
	notifier

	cfg    SAMLConfig
	claims ClaimMap
	sp     *saml2.SAMLServiceProvider

	mu      sync.Mutex
	session *auth.Session
}

// NewSAMLProvider builds the adapter from configuration.
func NewSAMLProvider(cfg ProviderConfig) (*SAMLProvider, error) {
	sc := *cfg.SAML

	certBlock, _ := pem.Decode([]byte(sc.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	var keyStore dsig.X509KeyStore
	if sc.PrivateKey != "" {
		keyBlock, _ := pem.Decode([]byte(sc.PrivateKey))
		if keyBlock == nil {
			return nil, fmt.Errorf("failed to decode private key PEM")
		}
		privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			var ok bool
			privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("private key is not RSA")
			}
		}
		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{[]byte(sc.Certificate)},
		}
	}

	if sc.SessionTTL == 0 {
		sc.SessionTTL = 8 * time.Hour
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      sc.SSOURL,
		IdentityProviderIssuer:      sc.EntityID,
		ServiceProviderIssuer:       sc.BaseURL + "/auth/saml/metadata",
		AssertionConsumerServiceURL: sc.BaseURL + "/auth/saml/callback",
		SignAuthnRequests:           sc.SignRequests,
		AudienceURI:                 sc.BaseURL,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}
	if sc.NameIDFormat != "" {
		sp.NameIdFormat = sc.NameIDFormat
	}

	return &SAMLProvider{
		cfg:    sc,
		claims: cfg.Claims.withDefaults(),
		sp:     sp,
	}, nil
}

// LoginURL builds the IdP redirect URL carrying relayState.
func (p *SAMLProvider) LoginURL(relayState string) (string, error) {
	authURL, err := p.sp.BuildAuthURL(relayState)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// ConsumeAssertion validates a base64-encoded SAMLResponse, mints a
// session from its attributes and emits SIGNED_IN.
func (p *SAMLProvider) ConsumeAssertion(samlResponse string) (*auth.Session, error) {
	assertionBytes, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	info, err := p.sp.RetrieveAssertionInfo(string(assertionBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	claims := make(map[string]any)
	for _, attr := range info.Values {
		if len(attr.Values) > 0 {
			claims[attr.Name] = attr.Values[0].Value
		}
	}

	principal := principalFromClaims(claims, p.claims)
	if principal.ID == "" {
		principal.ID = info.NameID
	}
	if principal.ID == "" {
		return nil, fmt.Errorf("missing user ID in SAML assertion")
	}
	if principal.Email == "" {
		return nil, fmt.Errorf("missing email in SAML assertion")
	}

	expiry := time.Now().Add(p.cfg.SessionTTL)
	if info.SessionNotOnOrAfter != nil {
		expiry = *info.SessionNotOnOrAfter
	}

	session := &auth.Session{
		AccessToken: info.SessionIndex,
		ExpiresAt:   expiry,
		Principal:   principal,
	}

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	p.emit(auth.EventSignedIn, session)
	return session, nil
}

// GetSession returns the session minted by the last assertion, or nil
// once it has expired.
func (p *SAMLProvider) GetSession(ctx context.Context) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil || p.session.Expired() {
		p.session = nil
		return nil, nil
	}
	return p.session, nil
}

// SignIn is not supported; SAML authentication is redirect based.
func (p *SAMLProvider) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	return nil, fmt.Errorf("password sign-in is not supported by the SAML provider")
}

// SignUp is not supported; accounts are provisioned at the IdP.
func (p *SAMLProvider) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*auth.Session, error) {
	return nil, fmt.Errorf("sign-up is not supported by the SAML provider")
}

// SignOut clears the local session and emits SIGNED_OUT.
func (p *SAMLProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	p.emit(auth.EventSignedOut, nil)
	return nil
}
