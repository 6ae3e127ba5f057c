package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jiwoolab/mailvault/internal/auth"
	"github.com/jiwoolab/mailvault/internal/provider"
	"github.com/jiwoolab/mailvault/internal/store"
)

type fakeClient struct {
	ids      []string
	messages map[string]provider.Message
	getErr   map[string]error
}

func (c *fakeClient) ListMessageIDs(_ context.Context, max int64) ([]string, error) {
	if int64(len(c.ids)) > max {
		return c.ids[:max], nil
	}
	return c.ids, nil
}

func (c *fakeClient) GetMessage(_ context.Context, id string) (provider.Message, error) {
	if err := c.getErr[id]; err != nil {
		return provider.Message{}, err
	}
	msg, ok := c.messages[id]
	if !ok {
		return provider.Message{}, fmt.Errorf("no such message %q", id)
	}
	return msg, nil
}

func factoryFor(c provider.Client) ClientFactory {
	return func(context.Context) (provider.Client, error) { return c, nil }
}

func newTestStore(t *testing.T) *store.EmailStore {
	t.Helper()
	st, err := store.NewEmailStore(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testMessage(id string, internalDate int64) provider.Message {
	return provider.Message{
		ID:           id,
		ThreadID:     "thread-" + id,
		Snippet:      "snippet " + id,
		InternalDate: internalDate,
		LabelIDs:     []string{"INBOX"},
		Payload: provider.Payload{
			Headers: []provider.Header{
				{Name: "Subject", Value: "subject " + id},
				{Name: "From", Value: "from@example.com"},
				{Name: "To", Value: "to@example.com"},
			},
			Body: b64("body " + id),
		},
	}
}

func TestSyncFetchesAndPersists(t *testing.T) {
	client := &fakeClient{
		ids: []string{"a", "b", "c"},
		messages: map[string]provider.Message{
			"a": testMessage("a", 300),
			"b": testMessage("b", 100),
			"c": testMessage("c", 200),
		},
	}
	st := newTestStore(t)
	engine := NewEngine(factoryFor(client), st, 2, zerolog.Nop())

	result, err := engine.Sync(context.Background(), 100)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Count != 3 {
		t.Fatalf("count = %d, want 3", result.Count)
	}
	if len(result.Emails) != 3 {
		t.Fatalf("emails = %d, want 3", len(result.Emails))
	}
	// Batch preserves the provider's listing order.
	for i, id := range []string{"a", "b", "c"} {
		if result.Emails[i].ID != id {
			t.Fatalf("emails[%d].ID = %q, want %q", i, result.Emails[i].ID, id)
		}
	}

	n, err := st.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("store count = %d, want 3", n)
	}
}

func TestSyncHonorsMaxResults(t *testing.T) {
	client := &fakeClient{
		ids: []string{"a", "b", "c"},
		messages: map[string]provider.Message{
			"a": testMessage("a", 1),
			"b": testMessage("b", 2),
		},
	}
	st := newTestStore(t)
	engine := NewEngine(factoryFor(client), st, 2, zerolog.Nop())

	result, err := engine.Sync(context.Background(), 2)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Count != 2 {
		t.Fatalf("count = %d, want 2", result.Count)
	}
}

func TestSyncEmptyMailbox(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(factoryFor(&fakeClient{}), st, 2, zerolog.Nop())

	result, err := engine.Sync(context.Background(), 100)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Count != 0 {
		t.Fatalf("count = %d, want 0", result.Count)
	}
	if result.Emails == nil {
		t.Fatal("emails must be an empty slice, not nil")
	}
}

func TestSyncAllOrNothingOnFetchFailure(t *testing.T) {
	client := &fakeClient{
		ids: []string{"a", "b", "c"},
		messages: map[string]provider.Message{
			"a": testMessage("a", 1),
			"c": testMessage("c", 3),
		},
		getErr: map[string]error{"b": errors.New("backend unavailable")},
	}
	st := newTestStore(t)
	engine := NewEngine(factoryFor(client), st, 1, zerolog.Nop())

	_, err := engine.Sync(context.Background(), 100)
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}

	n, err := st.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("store count = %d after failed sync, want 0", n)
	}
}

func TestSyncAllOrNothingOnNormalizationFailure(t *testing.T) {
	bad := testMessage("b", 2)
	bad.Payload.Body = "!!not-base64!!"

	client := &fakeClient{
		ids: []string{"a", "b"},
		messages: map[string]provider.Message{
			"a": testMessage("a", 1),
			"b": bad,
		},
	}
	st := newTestStore(t)
	engine := NewEngine(factoryFor(client), st, 1, zerolog.Nop())

	_, err := engine.Sync(context.Background(), 100)
	var normErr *NormalizationError
	if !errors.As(err, &normErr) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
	if normErr.ID != "b" {
		t.Fatalf("failing message id = %q, want %q", normErr.ID, "b")
	}

	n, err := st.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("store count = %d after failed sync, want 0", n)
	}
}

func TestSyncPropagatesFactoryError(t *testing.T) {
	factory := func(context.Context) (provider.Client, error) {
		return nil, auth.ErrNotAuthenticated
	}
	engine := NewEngine(factory, newTestStore(t), 2, zerolog.Nop())

	_, err := engine.Sync(context.Background(), 100)
	if !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSyncWrapsListError(t *testing.T) {
	client := &listFailClient{err: errors.New("quota exceeded")}
	engine := NewEngine(factoryFor(client), newTestStore(t), 2, zerolog.Nop())

	_, err := engine.Sync(context.Background(), 100)
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

type listFailClient struct{ err error }

func (c *listFailClient) ListMessageIDs(context.Context, int64) ([]string, error) {
	return nil, c.err
}

func (c *listFailClient) GetMessage(context.Context, string) (provider.Message, error) {
	return provider.Message{}, errors.New("unreachable")
}
