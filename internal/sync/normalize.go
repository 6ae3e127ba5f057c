package sync

import (
	"encoding/base64"
	"fmt"

	"github.com/jiwoolab/mailvault/internal/model"
	"github.com/jiwoolab/mailvault/internal/provider"
)

// Normalize turns a raw provider payload into the local record shape.
func Normalize(msg provider.Message) (model.Email, error) {
	subject := findHeader(msg.Payload.Headers, "Subject")
	if subject == "" {
		subject = model.NoSubject
	}

	body, err := extractBody(msg.Payload)
	if err != nil {
		return model.Email{}, err
	}

	return model.Email{
		ID:           msg.ID,
		ThreadID:     msg.ThreadID,
		Subject:      subject,
		Sender:       findHeader(msg.Payload.Headers, "From"),
		Recipient:    findHeader(msg.Payload.Headers, "To"),
		Date:         findHeader(msg.Payload.Headers, "Date"),
		Body:         body,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		Labels:       dedupe(msg.LabelIDs),
	}, nil
}

// findHeader returns the value of the first header whose name matches
// exactly (case-sensitive), or "".
func findHeader(headers []provider.Header, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// extractBody selects and decodes the message body. Multipart payloads
// use the first text/plain part, falling back to the first text/html
// part. A payload with no body-bearing part yields an empty string,
// not an error.
func extractBody(p provider.Payload) (string, error) {
	if len(p.Parts) > 0 {
		part := findPart(p.Parts, "text/plain")
		if part == nil {
			part = findPart(p.Parts, "text/html")
		}
		if part == nil || part.Data == "" {
			return "", nil
		}
		return decodeBody(part.Data)
	}
	if p.Body != "" {
		return decodeBody(p.Body)
	}
	return "", nil
}

func findPart(parts []provider.Part, mimeType string) *provider.Part {
	for i := range parts {
		if parts[i].MIMEType == mimeType {
			return &parts[i]
		}
	}
	return nil
}

// decodeBody decodes base64url content, accepting both padded and
// unpadded forms.
func decodeBody(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	if err != nil {
		return "", fmt.Errorf("decoding body content: %w", err)
	}
	return string(b), nil
}

// dedupe removes duplicate labels, preserving first-seen order.
func dedupe(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
