// Package app wires the token manager, callback listener, sync engine,
// and local store into the operations the UI shell consumes.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jiwoolab/mailvault/internal/auth"
	"github.com/jiwoolab/mailvault/internal/callback"
	"github.com/jiwoolab/mailvault/internal/credential"
	"github.com/jiwoolab/mailvault/internal/model"
	"github.com/jiwoolab/mailvault/internal/store"
	appsync "github.com/jiwoolab/mailvault/internal/sync"
)

// Credentials is the slice of the credential store the service needs
// for explicit sign-out.
type Credentials interface {
	Delete(key string) error
}

// Service is the long-lived core constructed once at process start.
// It owns the single pending authorization flow: the port captured at
// consent-URL time is the port used for the later code exchange.
type Service struct {
	cfg      *model.AppConfig
	manager  *auth.Manager
	listener *callback.Listener
	engine   *appsync.Engine
	store    *store.EmailStore
	creds    Credentials
	events   *Hub
	log      zerolog.Logger

	mu          sync.Mutex
	pendingPort int
}

// NewService assembles the core service.
func NewService(
	cfg *model.AppConfig,
	manager *auth.Manager,
	listener *callback.Listener,
	engine *appsync.Engine,
	st *store.EmailStore,
	creds Credentials,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		manager:  manager,
		listener: listener,
		engine:   engine,
		store:    st,
		creds:    creds,
		events:   NewHub(),
		log:      log,
	}
}

// Events exposes the notification hub for UI subscriptions.
func (s *Service) Events() *Hub {
	return s.events
}

// GetAuthURL opens the loopback listener and returns the consent URL
// bound to its port. Fails while a previous flow is still pending.
// A background waiter pushes the captured code to the UI when the
// redirect arrives.
func (s *Service) GetAuthURL(_ context.Context) (string, error) {
	port, err := s.listener.Start()
	if err != nil {
		return "", err
	}

	url, _ := s.manager.BuildConsentURL(port)

	s.mu.Lock()
	s.pendingPort = port
	s.mu.Unlock()

	go s.awaitRedirect()

	s.log.Info().Int("port", port).Msg("auth flow started")
	return url, nil
}

// awaitRedirect blocks on the pending flow and publishes its outcome.
// The listener enforces the bounded wait, so no extra timeout is
// layered here.
func (s *Service) awaitRedirect() {
	res, err := s.listener.WaitForCode(context.Background())
	if err != nil {
		s.log.Warn().Err(err).Msg("auth flow ended without a code")
		s.events.Publish(Event{Type: EventAuthTimeout})
		return
	}

	if res.State != "" && !s.manager.VerifyState(res.State) {
		s.log.Warn().Msg("redirect state mismatch, discarding code")
		return
	}

	s.events.Publish(Event{Type: EventAuthCodeReceived, Code: res.Code})
}

// SubmitAuthCode exchanges the captured authorization code using the
// pending flow's port and persists the resulting token.
func (s *Service) SubmitAuthCode(ctx context.Context, code string) error {
	s.mu.Lock()
	port := s.pendingPort
	s.mu.Unlock()

	if err := s.manager.ExchangeCode(ctx, code, port); err != nil {
		return err
	}

	s.mu.Lock()
	s.pendingPort = 0
	s.mu.Unlock()
	return nil
}

// RunSync performs one fetch-and-persist pass. maxResults <= 0 uses the
// configured default.
func (s *Service) RunSync(ctx context.Context, maxResults int64) (*model.SyncResult, error) {
	if maxResults <= 0 {
		maxResults = int64(s.cfg.Sync.MaxResults)
	}
	return s.engine.Sync(ctx, maxResults)
}

// ListCached returns cached email summaries, most recent first.
func (s *Service) ListCached(ctx context.Context, limit, offset int) ([]model.Email, error) {
	return s.store.List(ctx, limit, offset)
}

// GetCached returns one cached email with its body.
func (s *Service) GetCached(ctx context.Context, id string) (*model.Email, error) {
	return s.store.GetByID(ctx, id)
}

// CheckStoreHealth reports cache diagnostics for the UI shell.
func (s *Service) CheckStoreHealth(ctx context.Context) (*model.StoreHealth, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	health := &model.StoreHealth{Count: count}
	if count > 0 {
		sample, err := s.store.Sample(ctx)
		if err != nil {
			return nil, err
		}
		if sample != nil {
			health.HasSample = true
			health.Sample = &model.SampleEmail{
				ID:      sample.ID,
				Subject: sample.Subject,
				Sender:  sample.Sender,
			}
		}
	}
	return health, nil
}

// SignOut deletes the stored token record and drops the in-memory one.
// This is the explicit user action; no core operation ever deletes the
// token on its own.
func (s *Service) SignOut(_ context.Context) error {
	if err := s.creds.Delete(credential.TokenKey); err != nil {
		return err
	}
	s.manager.Clear()
	s.log.Info().Msg("signed out")
	return nil
}
