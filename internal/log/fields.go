// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldEventID       = "event_id"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldSource        = "source_system"

	// Broker fields
	FieldSubject  = "subject"
	FieldStream   = "stream"
	FieldDurable  = "durable"
	FieldBatch    = "batch"
	FieldAttempt  = "attempt"
	FieldDelivery = "delivery"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
