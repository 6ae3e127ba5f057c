package sync

import "fmt"

// ProviderError reports a transport or API failure while talking to the
// mail provider.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("mail provider unavailable: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NormalizationError reports a message payload the engine could not
// turn into a local record. One such failure aborts the whole batch.
type NormalizationError struct {
	ID  string
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing message %s: %v", e.ID, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}
