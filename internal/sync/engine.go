// Package sync implements the fetch-and-persist engine that mirrors the
// remote mailbox into the local store.
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jiwoolab/mailvault/internal/model"
	"github.com/jiwoolab/mailvault/internal/provider"
)

// Store is the persistence surface the engine writes batches through.
type Store interface {
	UpsertEmails(ctx context.Context, emails []model.Email) (int, error)
}

// ClientFactory yields a provider client bound to the current token.
// It fails with auth.ErrNotAuthenticated when no token exists; the
// engine propagates that unchanged.
type ClientFactory func(ctx context.Context) (provider.Client, error)

// Engine drives one synchronization pass: list identifiers, fetch each
// payload with bounded concurrency, normalize, and persist the whole
// batch in one transaction. Any single fetch or normalization failure
// fails the entire pass with nothing persisted.
type Engine struct {
	clients     ClientFactory
	store       Store
	concurrency int
	log         zerolog.Logger
}

// NewEngine creates a sync engine. concurrency caps the parallel
// message fetches within one pass.
func NewEngine(clients ClientFactory, store Store, concurrency int, log zerolog.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Engine{
		clients:     clients,
		store:       store,
		concurrency: concurrency,
		log:         log,
	}
}

// Sync fetches up to maxResults messages and persists them. An empty
// mailbox is success with a zero count.
func (e *Engine) Sync(ctx context.Context, maxResults int64) (*model.SyncResult, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	client, err := e.clients(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := client.ListMessageIDs(ctx, maxResults)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	e.log.Info().Int("count", len(ids)).Msg("listed remote messages")

	if len(ids) == 0 {
		return &model.SyncResult{Emails: []model.Email{}}, nil
	}

	emails := make([]model.Email, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := client.GetMessage(gctx, id)
			if err != nil {
				return &ProviderError{Err: err}
			}
			email, err := Normalize(msg)
			if err != nil {
				return &NormalizationError{ID: id, Err: err}
			}
			emails[i] = email
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	count, err := e.store.UpsertEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("persisting email batch: %w", err)
	}

	e.log.Info().Int("count", count).Msg("sync complete")
	return &model.SyncResult{Count: count, Emails: emails}, nil
}
