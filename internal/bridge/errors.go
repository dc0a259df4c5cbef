// SPDX-License-Identifier: MIT

package bridge

import "fmt"

// DecodeError marks a single malformed or undecodable wire message. The
// consumer acknowledges and skips such messages rather than blocking the
// loop on them.
type DecodeError struct {
	Subject string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode message on %s: %v", e.Subject, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PublishError reports an event whose publish attempts were exhausted. It is
// recorded in the dead-letter store and surfaced as a warning, never as an
// error to the publishing caller.
type PublishError struct {
	EventID  string
	Subject  string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish event %s to %s failed after %d attempts: %v", e.EventID, e.Subject, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
