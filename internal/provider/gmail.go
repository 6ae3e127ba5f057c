package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenInvalidator marks the current access token expired so the next
// use refreshes it.
type TokenInvalidator interface {
	Invalidate()
}

// GmailClient adapts the Gmail REST API to the Client interface.
type GmailClient struct {
	svc         *gmail.Service
	invalidator TokenInvalidator
}

// NewGmail builds a Gmail client over the given token source. The
// invalidator is poked when the provider rejects a request as
// unauthorized, so the retry runs with a freshly refreshed token.
func NewGmail(ctx context.Context, ts oauth2.TokenSource, inv TokenInvalidator) (*GmailClient, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailClient{svc: svc, invalidator: inv}, nil
}

// ListMessageIDs returns up to max message identifiers for the account.
func (g *GmailClient) ListMessageIDs(ctx context.Context, max int64) ([]string, error) {
	var ids []string
	err := g.withAuthRetry(func() error {
		res, err := g.svc.Users.Messages.List("me").MaxResults(max).Context(ctx).Do()
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return ids, nil
}

// GetMessage fetches the full payload for one message.
func (g *GmailClient) GetMessage(ctx context.Context, id string) (Message, error) {
	var msg *gmail.Message
	err := g.withAuthRetry(func() error {
		var err error
		msg, err = g.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return Message{}, fmt.Errorf("getting message %s: %w", id, err)
	}
	return fromGmailMessage(msg), nil
}

// withAuthRetry runs fn, and on an unauthorized rejection invalidates
// the token and retries exactly once.
func (g *GmailClient) withAuthRetry(fn func() error) error {
	err := fn()
	if !isUnauthorized(err) {
		return err
	}
	g.invalidator.Invalidate()
	return fn()
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// fromGmailMessage converts the API shape to the provider-neutral one.
// Only top-level parts are carried: body selection never descends into
// nested multiparts.
func fromGmailMessage(msg *gmail.Message) Message {
	out := Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
	}
	if msg.Payload == nil {
		return out
	}
	out.Payload.MIMEType = msg.Payload.MimeType
	for _, h := range msg.Payload.Headers {
		out.Payload.Headers = append(out.Payload.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if msg.Payload.Body != nil {
		out.Payload.Body = msg.Payload.Body.Data
	}
	for _, p := range msg.Payload.Parts {
		part := Part{MIMEType: p.MimeType}
		if p.Body != nil {
			part.Data = p.Body.Data
		}
		out.Payload.Parts = append(out.Payload.Parts, part)
	}
	return out
}

var _ Client = (*GmailClient)(nil)
