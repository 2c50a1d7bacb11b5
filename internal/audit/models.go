package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; do not block call handling on audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the category of the audit record.
	Type EventType `json:"type" db:"type"`

	// CallID is empty when the event cannot be tied to a call
	// (e.g. an unparseable webhook).
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Actor is "system" for automated decisions, otherwise the operator user id.
	Actor string `json:"actor,omitempty" db:"actor"`

	// IPAddress is the resolved client IP when the event came over HTTP.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeActionOutcome   EventType = "action_outcome"
	EventTypeVerdictReplaced EventType = "verdict_replaced"
	EventTypeWebhookRejected EventType = "webhook_signature_rejected"
)

const ActorSystem = "system"
