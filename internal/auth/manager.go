package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/jiwoolab/mailvault/internal/credential"
)

// CredentialStore is the durable slot the manager persists its token
// record through.
type CredentialStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Options configures a Manager. Endpoint defaults to Google's when zero;
// tests point it at a local server.
type Options struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
}

// Manager owns the OAuth2 client configuration and the single in-memory
// token record. All token writes (exchange, refresh) serialize on one
// mutex so a stale token can never clobber a freshly refreshed one.
type Manager struct {
	cfg   oauth2.Config
	creds CredentialStore
	log   zerolog.Logger

	mu     sync.Mutex
	token  *oauth2.Token
	scope  string
	state  string
	loaded bool
}

// NewManager creates a token manager for the Gmail readonly scope.
func NewManager(opts Options, creds CredentialStore, log zerolog.Logger) *Manager {
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &Manager{
		cfg: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		},
		creds: creds,
		log:   log,
	}
}

// tokenRecord is the persisted shape of the single token slot.
type tokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// RedirectURI derives the loopback redirect URI for a listener port.
// Port 0 yields the bare loopback address used before a listener exists.
// The consent URL and the later exchange must both be built from the
// same port: the provider validates the URI byte-for-byte.
func RedirectURI(port int) string {
	if port == 0 {
		return "http://127.0.0.1"
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Load reads any previously persisted token from the credential store.
// It is idempotent: calls after the first are no-ops.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return nil
	}

	raw, err := m.creds.Get(credential.TokenKey)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			m.loaded = true
			m.log.Info().Msg("no existing token found")
			return nil
		}
		return fmt.Errorf("loading token: %w", err)
	}

	var rec tokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("parsing stored token: %w", err)
	}

	m.token = &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		Expiry:       rec.Expiry,
	}
	m.scope = rec.Scope
	m.loaded = true
	m.log.Info().Msg("loaded existing token from store")
	return nil
}

// BuildConsentURL constructs the provider consent URL for the given
// listener port, requesting offline access with forced re-consent so a
// refresh token is issued. It returns the URL together with the state
// parameter embedded in it; the flow owner checks the state echoed back
// on the redirect.
func (m *Manager) BuildConsentURL(port int) (url, state string) {
	state = uuid.NewString()

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	url = m.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("redirect_uri", RedirectURI(port)),
	)
	return url, state
}

// ExchangeCode trades an authorization code for a token using the
// redirect URI derived from port, then persists the token both in
// memory and in the credential store.
func (m *Manager) ExchangeCode(ctx context.Context, code string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.cfg.Exchange(ctx, code,
		oauth2.SetAuthURLParam("redirect_uri", RedirectURI(port)),
	)
	if err != nil {
		return classifyExchangeErr(err)
	}

	m.setTokenLocked(tok)
	m.log.Info().Time("expiry", tok.Expiry).Msg("token exchange successful")
	return nil
}

// classifyExchangeErr maps an oauth2 exchange failure onto the exchange
// error taxonomy.
func classifyExchangeErr(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &ExchangeError{Kind: ExchangeNetwork, Err: err}
	}
	if re.ErrorCode == "redirect_uri_mismatch" || strings.Contains(string(re.Body), "redirect_uri_mismatch") {
		return &ExchangeError{Kind: ExchangeRedirectMismatch, Err: err}
	}
	return &ExchangeError{Kind: ExchangeInvalidCode, Err: err}
}

// setTokenLocked installs a new token, preserving the refresh token from
// the previous record when the provider omits one. The provider only
// issues a refresh token on first consent.
func (m *Manager) setTokenLocked(tok *oauth2.Token) {
	if tok.RefreshToken == "" && m.token != nil {
		tok.RefreshToken = m.token.RefreshToken
	}
	m.token = tok
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		m.scope = s
	}
	m.persistLocked()
}

// persistLocked writes the current token record to the credential store.
// Persistence failure is logged, not fatal: the in-memory token remains
// usable for this process lifetime.
func (m *Manager) persistLocked() {
	rec := tokenRecord{
		AccessToken:  m.token.AccessToken,
		RefreshToken: m.token.RefreshToken,
		TokenType:    m.token.TokenType,
		Expiry:       m.token.Expiry,
		Scope:        m.scope,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		m.log.Error().Err(err).Msg("marshaling token record")
		return
	}
	if err := m.creds.Set(credential.TokenKey, string(raw)); err != nil {
		m.log.Error().Err(err).Msg("persisting token record")
		return
	}
	m.log.Debug().Msg("token saved to store")
}

// VerifyState checks the state parameter echoed back on the redirect
// against the pending consent request.
func (m *Manager) VerifyState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != "" && m.state == state
}

// Authenticated reports whether a token record exists.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != nil
}

// TokenSource returns a source bound to the current token record, or
// ErrNotAuthenticated when no token exists. Expiry is not checked here;
// the source refreshes on first use.
func (m *Manager) TokenSource() (oauth2.TokenSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, ErrNotAuthenticated
	}
	return m, nil
}

// Token implements oauth2.TokenSource. Expired tokens are refreshed
// under the manager's write lock and the refreshed record persisted.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return nil, ErrNotAuthenticated
	}
	if m.token.Valid() {
		return m.token, nil
	}

	fresh, err := m.cfg.TokenSource(context.Background(), m.token).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	m.setTokenLocked(fresh)
	m.log.Debug().Time("expiry", fresh.Expiry).Msg("token refreshed")
	return m.token, nil
}

// Clear drops the in-memory token. The credential slot is deleted by
// the caller; clearing is the explicit sign-out path, never something
// the core does on its own.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	m.scope = ""
	m.state = ""
}

// Invalidate marks the in-memory token expired so the next Token call
// refreshes it. Used after the provider rejects a request as
// unauthorized despite a locally unexpired token.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil {
		m.token.Expiry = time.Now().Add(-time.Minute)
	}
}
