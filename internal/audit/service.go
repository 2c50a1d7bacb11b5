package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information.
//
// IMPORTANT:
// - Audit is internal-only and not exposed over the public API.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Actor == "" {
		e.Actor = ActorSystem
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// ActionOutcome describes one terminate/transfer result.
type ActionOutcome struct {
	CallID   string
	Actor    string
	Action   string
	Outcome  string
	Attempts int
	Target   string
	Reason   string
}

// LogActionOutcome records the result of an outbound call action. Failed
// actions produce no call state change, so this is where operators find them.
func (s *Service) LogActionOutcome(ctx context.Context, o ActionOutcome) error {
	if o.CallID == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:    EventTypeActionOutcome,
		CallID:  o.CallID,
		Actor:   o.Actor,
		Message: o.Action + " " + o.Outcome,
		Metadata: metadata(map[string]any{
			"action":   o.Action,
			"outcome":  o.Outcome,
			"attempts": o.Attempts,
			"target":   o.Target,
			"reason":   o.Reason,
		}),
	})
}

// LogVerdictReplaced keeps the prior screening result when a re-screen
// overwrites it.
func (s *Service) LogVerdictReplaced(ctx context.Context, callID, prevVerdict, prevSummary, newVerdict string) error {
	if callID == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:    EventTypeVerdictReplaced,
		CallID:  callID,
		Message: "screening verdict replaced",
		Metadata: metadata(map[string]any{
			"previous_verdict": prevVerdict,
			"previous_summary": prevSummary,
			"new_verdict":      newVerdict,
		}),
	})
}

// LogWebhookRejected records a webhook delivery that failed signature checks.
func (s *Service) LogWebhookRejected(ctx context.Context, callID, ip, reason string, enforced bool) error {
	return s.Append(ctx, Event{
		Type:      EventTypeWebhookRejected,
		CallID:    callID,
		IPAddress: ip,
		Message:   reason,
		Metadata:  metadata(map[string]any{"enforced": enforced}),
	})
}

func metadata(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
