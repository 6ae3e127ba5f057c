package model

// Email is the normalized local representation of one remote Gmail message.
// Instances are transient until persisted by the store, which owns them
// keyed by the provider-assigned ID.
type Email struct {
	// ID is the provider-assigned message identifier (immutable, primary key).
	ID string `json:"id" db:"id"`

	// ThreadID groups messages belonging to the same conversation.
	ThreadID string `json:"thread_id" db:"thread_id"`

	// Subject is the Subject header value, or the no-subject placeholder
	// when the header is absent.
	Subject string `json:"subject" db:"subject"`

	// Sender is the raw From header value.
	Sender string `json:"sender" db:"sender"`

	// Recipient is the raw To header value.
	Recipient string `json:"recipient" db:"recipient"`

	// Date is the Date header string in the provider-supplied format.
	Date string `json:"date" db:"date"`

	// Body is the decoded text of the first plain-text part, falling back
	// to the first HTML part. Empty when no decodable body exists.
	Body string `json:"body" db:"body"`

	// Snippet is the provider-generated preview text.
	Snippet string `json:"snippet" db:"snippet"`

	// InternalDate is the provider timestamp in epoch milliseconds,
	// used as the ordering key for listings.
	InternalDate int64 `json:"internal_date" db:"internal_date"`

	// Labels is the deduplicated set of provider label IDs attached to
	// this message. Re-ingesting a message replaces the set wholesale.
	Labels []string `json:"labels"`
}

// NoSubject is the placeholder stored when a message carries no
// Subject header.
const NoSubject = "(no subject)"

// SyncResult summarizes one completed synchronization run.
type SyncResult struct {
	// Count is the number of messages fetched and persisted.
	Count int `json:"count"`

	// Emails holds the normalized messages from this run.
	Emails []Email `json:"emails"`
}

// StoreHealth reports lightweight cache diagnostics for the UI shell.
type StoreHealth struct {
	// Count is the total number of cached messages.
	Count int `json:"count"`

	// HasSample indicates whether at least one row could be read back.
	HasSample bool `json:"has_sample"`

	// Sample holds a trimmed example row when HasSample is true.
	Sample *SampleEmail `json:"sample,omitempty"`
}

// SampleEmail is the trimmed projection returned by health checks.
type SampleEmail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}
