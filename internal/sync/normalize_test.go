package sync

import (
	"encoding/base64"
	"testing"

	"github.com/jiwoolab/mailvault/internal/model"
	"github.com/jiwoolab/mailvault/internal/provider"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestNormalizeHeaders(t *testing.T) {
	msg := provider.Message{
		ID:           "m1",
		ThreadID:     "t1",
		Snippet:      "preview",
		InternalDate: 1700000000000,
		Payload: provider.Payload{
			Headers: []provider.Header{
				{Name: "Subject", Value: "hello"},
				{Name: "From", Value: "alice@example.com"},
				{Name: "To", Value: "bob@example.com"},
				{Name: "Date", Value: "Mon, 2 Jun 2025 10:00:00 +0900"},
			},
			Body: b64("body text"),
		},
		LabelIDs: []string{"INBOX", "UNREAD", "INBOX"},
	}

	email, err := Normalize(msg)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if email.ID != "m1" || email.ThreadID != "t1" {
		t.Fatalf("identity fields: %+v", email)
	}
	if email.Subject != "hello" {
		t.Fatalf("subject = %q", email.Subject)
	}
	if email.Sender != "alice@example.com" || email.Recipient != "bob@example.com" {
		t.Fatalf("addresses: %+v", email)
	}
	if email.Date != "Mon, 2 Jun 2025 10:00:00 +0900" {
		t.Fatalf("date = %q", email.Date)
	}
	if email.Body != "body text" {
		t.Fatalf("body = %q", email.Body)
	}
	if email.InternalDate != 1700000000000 {
		t.Fatalf("internal date = %d", email.InternalDate)
	}
	if len(email.Labels) != 2 || email.Labels[0] != "INBOX" || email.Labels[1] != "UNREAD" {
		t.Fatalf("labels not deduplicated: %v", email.Labels)
	}
}

func TestNormalizeMissingHeaders(t *testing.T) {
	email, err := Normalize(provider.Message{ID: "m1"})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if email.Subject != model.NoSubject {
		t.Fatalf("expected no-subject placeholder, got %q", email.Subject)
	}
	if email.Sender != "" || email.Recipient != "" || email.Date != "" {
		t.Fatalf("missing headers must be empty: %+v", email)
	}
	if email.Body != "" {
		t.Fatalf("missing body must be empty, got %q", email.Body)
	}
}

func TestNormalizeHeaderMatchIsCaseSensitive(t *testing.T) {
	msg := provider.Message{
		ID: "m1",
		Payload: provider.Payload{
			Headers: []provider.Header{
				{Name: "subject", Value: "lowercase"},
			},
		},
	}

	email, err := Normalize(msg)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if email.Subject != model.NoSubject {
		t.Fatalf("lowercase header must not match, got %q", email.Subject)
	}
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	p := provider.Payload{
		Parts: []provider.Part{
			{MIMEType: "text/html", Data: b64("<p>html</p>")},
			{MIMEType: "text/plain", Data: b64("plain")},
		},
	}

	body, err := extractBody(p)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if body != "plain" {
		t.Fatalf("expected plain part, got %q", body)
	}
}

func TestExtractBodyFallsBackToHTML(t *testing.T) {
	p := provider.Payload{
		Parts: []provider.Part{
			{MIMEType: "application/pdf", Data: b64("binary")},
			{MIMEType: "text/html", Data: b64("<p>html</p>")},
		},
	}

	body, err := extractBody(p)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if body != "<p>html</p>" {
		t.Fatalf("expected html fallback, got %q", body)
	}
}

func TestExtractBodyNoDecodablePart(t *testing.T) {
	p := provider.Payload{
		Parts: []provider.Part{
			{MIMEType: "application/pdf", Data: b64("binary")},
		},
	}

	body, err := extractBody(p)
	if err != nil {
		t.Fatalf("a body-less payload is not an error: %v", err)
	}
	if body != "" {
		t.Fatalf("expected empty body, got %q", body)
	}
}

func TestExtractBodySinglePart(t *testing.T) {
	body, err := extractBody(provider.Payload{Body: b64("single part")})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if body != "single part" {
		t.Fatalf("got %q", body)
	}
}

func TestExtractBodyAcceptsPaddedEncoding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("padded!"))

	body, err := extractBody(provider.Payload{Body: padded})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if body != "padded!" {
		t.Fatalf("got %q", body)
	}
}

func TestNormalizeRejectsUndecodableBody(t *testing.T) {
	msg := provider.Message{
		ID:      "m1",
		Payload: provider.Payload{Body: "!!not-base64!!"},
	}

	if _, err := Normalize(msg); err == nil {
		t.Fatal("expected a decode error")
	}
}
