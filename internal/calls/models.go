package calls

import (
	"errors"
	"time"
)

// CallRecord is the durable view of one screened phone call.
//
// Fields arrive incrementally from webhooks, screening requests and action
// results, so everything except CallID is optional. Empty strings and nil
// timestamps mean "not known yet".
//
// Invariants:
// - CallID is the primary key; at most one record exists per call.
// - CreatedAt is set once and never changes afterwards.
// - A recorded ScreeningVerdict is only replaced by a later explicit verdict.
// - UpdatedAt moves forward on every write.
type CallRecord struct {
	CallID     string `json:"call_id"`
	FromNumber string `json:"from_number,omitempty"`
	ToNumber   string `json:"to_number,omitempty"`

	Status CallStatus `json:"status,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ScreenedAt *time.Time `json:"screened_at,omitempty"`

	ScreeningVerdict Verdict `json:"screening_verdict,omitempty"`
	ScreeningSummary string  `json:"screening_summary,omitempty"`
	Transcript       string  `json:"transcript,omitempty"`

	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	TransferInitiated   bool       `json:"transfer_initiated"`
	TransferTarget      string     `json:"transfer_target,omitempty"`
	TransferInitiatedAt *time.Time `json:"transfer_initiated_at,omitempty"`
	TransferredTo       string     `json:"transferred_to,omitempty"`
	TransferredAt       *time.Time `json:"transferred_at,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type CallStatus string

const (
	CallStatusActive     CallStatus = "ACTIVE"
	CallStatusEnded      CallStatus = "ENDED"
	CallStatusTerminated CallStatus = "TERMINATED"
)

// Terminal reports whether no further progress is expected on the call.
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusTerminated
}

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusActive, CallStatusEnded, CallStatusTerminated:
		return true
	}
	return false
}

type Verdict string

const (
	VerdictScam Verdict = "SCAM"
	VerdictSafe Verdict = "SAFE"
)

func (v Verdict) Valid() bool {
	return v == VerdictScam || v == VerdictSafe
}

// Update is a partial record. A nil field means "this signal says nothing
// about the field" and must leave the existing value alone.
type Update struct {
	CallID string

	// At is when the signal was observed. Zero means "use the reconciler clock".
	At time.Time

	FromNumber *string
	ToNumber   *string

	Status    *CallStatus
	StartedAt *time.Time
	EndedAt   *time.Time

	ScreeningVerdict *Verdict
	ScreeningSummary *string
	ScreenedAt       *time.Time
	Transcript       *string

	TerminatedAt *time.Time

	TransferInitiated   *bool
	TransferTarget      *string
	TransferInitiatedAt *time.Time
	TransferredTo       *string
	TransferredAt       *time.Time
}

// SetsVerdict reports whether the update carries an explicit screening result.
func (u Update) SetsVerdict() bool {
	return u.ScreeningVerdict != nil || u.ScreeningSummary != nil || u.ScreenedAt != nil
}

// ListFilter narrows List queries. Zero values mean "no filter".
type ListFilter struct {
	Status  CallStatus
	Verdict Verdict
	Limit   int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (f ListFilter) normalized() ListFilter {
	out := f
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	if out.Limit > MaxListLimit {
		out.Limit = MaxListLimit
	}
	return out
}

var (
	ErrNotFound      = errors.New("calls: not found")
	ErrPersistence   = errors.New("calls: persistence failed")
	ErrMissingCallID = errors.New("calls: call_id is required")
)

func ptr[T any](v T) *T { return &v }

// StringPtr and friends build Update fields inline.
func StringPtr(s string) *string { return ptr(s) }

func StatusPtr(s CallStatus) *CallStatus { return ptr(s) }

func VerdictPtr(v Verdict) *Verdict { return ptr(v) }

func BoolPtr(b bool) *bool { return ptr(b) }

// TimePtr normalizes to UTC.
func TimePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
