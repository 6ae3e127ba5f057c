// Package provider defines the narrow mail-provider surface the sync
// engine consumes, and its Gmail implementation.
package provider

import "context"

// Header is one raw message header.
type Header struct {
	Name  string
	Value string
}

// Part is one body-bearing MIME part of a multipart payload. Data is
// base64url-encoded as delivered by the provider.
type Part struct {
	MIMEType string
	Data     string
}

// Payload carries the headers and body content of one message.
// Single-part messages populate Body; multipart messages populate Parts.
type Payload struct {
	MIMEType string
	Headers  []Header
	Body     string
	Parts    []Part
}

// Message is the raw remote payload for one message.
type Message struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	InternalDate int64
	Payload      Payload
}

// Client is the mail-provider surface required by the sync engine.
type Client interface {
	// ListMessageIDs returns up to max message identifiers. An empty
	// mailbox yields an empty slice, not an error.
	ListMessageIDs(ctx context.Context, max int64) ([]string, error)

	// GetMessage fetches the full payload for one message.
	GetMessage(ctx context.Context, id string) (Message, error)
}
