package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"call-screening/internal/actions"
	"call-screening/internal/audit"
	"call-screening/internal/calls"
	"call-screening/internal/metrics"
	"call-screening/internal/screening"
	"call-screening/internal/telephony"
	"call-screening/pkg/logger"
)

// DefaultWhisper is played to the receiving party on a manual transfer.
const DefaultWhisper = "Press any key to bridge."

// ActionRunner performs outbound call control. *actions.Executor satisfies it.
type ActionRunner interface {
	Terminate(ctx context.Context, callID string) actions.Result
	Transfer(ctx context.Context, callID, target, whisper string) actions.Result
}

// Auditor records decisions operators need to reconstruct later.
// *audit.Service satisfies it.
type Auditor interface {
	LogActionOutcome(ctx context.Context, o audit.ActionOutcome) error
	LogVerdictReplaced(ctx context.Context, callID, prevVerdict, prevSummary, newVerdict string) error
}

type Options struct {
	// TransferTarget is the human line SAFE calls are bridged to.
	TransferTarget string
	SummaryWords   int
}

// Dispatcher turns webhook events, screening requests and action results
// into partial updates for the reconciler, and triggers the action a
// verdict calls for.
type Dispatcher struct {
	rec        *calls.Reconciler
	classifier screening.Classifier
	runner     ActionRunner
	audit      Auditor
	opts       Options
	clock      func() time.Time
}

func New(rec *calls.Reconciler, classifier screening.Classifier, runner ActionRunner, auditor Auditor, opts Options) *Dispatcher {
	if opts.SummaryWords <= 0 {
		opts.SummaryWords = screening.DefaultSummaryWords
	}
	return &Dispatcher{
		rec:        rec,
		classifier: classifier,
		runner:     runner,
		audit:      auditor,
		opts:       opts,
		clock:      time.Now,
	}
}

// WithClock replaces the dispatcher clock. Intended for tests.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// Reconciler exposes the reconciler for read paths.
func (d *Dispatcher) Reconciler() *calls.Reconciler { return d.rec }

// HandleWebhook applies one telephony event. handled is false for event
// types this service does not track; those are acknowledged and dropped.
// An error wrapping calls.ErrPersistence still carries the merged record.
func (d *Dispatcher) HandleWebhook(ctx context.Context, ev telephony.WebhookEvent) (rec calls.CallRecord, handled bool, err error) {
	u, ok := webhookUpdate(ev, time.Time{})
	if !ok {
		metrics.WebhookEvents.WithLabelValues("other", "ignored").Inc()
		logger.From(ctx).Debug("webhook event ignored", "event", ev.Event, "call_id", ev.Call.CallID)
		return calls.CallRecord{}, false, nil
	}
	if u.CallID == "" {
		metrics.WebhookEvents.WithLabelValues(ev.Event, "invalid").Inc()
		return calls.CallRecord{}, true, fmt.Errorf("%w: call.call_id is required", ErrInvalidRequest)
	}

	_, _, rec, err = d.rec.Exchange(ctx, u.CallID, func(now time.Time) calls.Update {
		u, _ := webhookUpdate(ev, now.UTC())
		return u
	})
	switch {
	case err == nil:
		metrics.WebhookEvents.WithLabelValues(ev.Event, "applied").Inc()
	case errors.Is(err, calls.ErrPersistence):
		metrics.WebhookEvents.WithLabelValues(ev.Event, "not_persisted").Inc()
	default:
		metrics.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
		return calls.CallRecord{}, true, err
	}

	logger.From(ctx).Info("webhook event applied",
		"event", ev.Event,
		"call_id", u.CallID,
		"status", string(rec.Status),
	)
	return rec, true, err
}

func webhookUpdate(ev telephony.WebhookEvent, now time.Time) (calls.Update, bool) {
	c := ev.Call
	u := calls.Update{CallID: c.CallID, At: now}
	switch ev.Event {
	case telephony.EventCallStarted:
		u.FromNumber = optional(c.FromNumber)
		u.ToNumber = optional(c.ToNumber)
		u.StartedAt = calls.TimePtr(now)
		u.Status = calls.StatusPtr(calls.CallStatusActive)
	case telephony.EventCallEnded:
		u.Status = calls.StatusPtr(calls.CallStatusEnded)
		u.EndedAt = calls.TimePtr(now)
	case telephony.EventCallTransferred:
		u.TransferredTo = optional(c.TransferPhoneNumber)
		u.TransferredAt = calls.TimePtr(now)
	default:
		return calls.Update{}, false
	}
	return u, true
}

// Screening is the result of one screening request. Only the verdict,
// summary and call id go back to the caller.
type Screening struct {
	Verdict calls.Verdict `json:"verdict"`
	Summary string        `json:"summary"`
	CallID  string        `json:"call_id"`

	Record calls.CallRecord `json:"-"`
	Action actions.Result   `json:"-"`
}

// Screen classifies the transcript, merges the verdict, then runs the
// matching action once. It always returns a verdict: classifier,
// persistence and action failures are logged, not returned.
//
// Everything after classification runs on a context detached from ctx: a
// caller hanging up cannot drop the verdict merge or abort a terminate or
// transfer halfway through its retries.
func (d *Dispatcher) Screen(ctx context.Context, req ScreeningRequest) Screening {
	log := logger.From(ctx).With("call_id", req.CallID)
	if len(req.Metadata) > 0 {
		log.Debug("screening request metadata", "metadata", req.Metadata)
	}
	result := d.classify(ctx, req.Transcript)
	log.Info("screening verdict", "verdict", string(result.Verdict), "summary", result.Summary)

	actx := context.WithoutCancel(ctx)
	prior, known, rec, err := d.rec.Exchange(actx, req.CallID, func(now time.Time) calls.Update {
		now = now.UTC()
		return calls.Update{
			At:               now,
			Transcript:       calls.StringPtr(req.Transcript),
			ScreeningVerdict: calls.VerdictPtr(result.Verdict),
			ScreeningSummary: calls.StringPtr(result.Summary),
			ScreenedAt:       calls.TimePtr(now),
		}
	})
	if err != nil && !errors.Is(err, calls.ErrPersistence) {
		log.Error("screening result not merged", "err", err)
	}

	if known && verdictChanged(prior, result) {
		d.auditVerdictReplaced(actx, prior, result.Verdict)
	}

	var res actions.Result
	switch result.Verdict {
	case calls.VerdictScam:
		res = d.runner.Terminate(actx, req.CallID)
	default:
		res = d.transfer(actx, req.CallID, d.opts.TransferTarget, Whisper(result.Summary))
	}
	if after, applied, _ := d.ApplyActionResult(actx, res, audit.ActorSystem); applied {
		rec = after
	}

	return Screening{
		Verdict: result.Verdict,
		Summary: result.Summary,
		CallID:  req.CallID,
		Record:  rec,
		Action:  res,
	}
}

// verdictChanged reports whether a new screening result replaces an earlier
// verdict with a different verdict or summary.
func verdictChanged(prior calls.CallRecord, next screening.Result) bool {
	if prior.ScreeningVerdict == "" {
		return false
	}
	return prior.ScreeningVerdict != next.Verdict || prior.ScreeningSummary != next.Summary
}

func (d *Dispatcher) classify(ctx context.Context, transcript string) screening.Result {
	words := d.opts.SummaryWords
	res, err := d.classifier.Classify(ctx, transcript)
	if err != nil || !res.Verdict.Valid() {
		if err != nil {
			logger.From(ctx).Warn("classifier unavailable; defaulting to SAFE", "err", err)
		}
		metrics.Verdicts.WithLabelValues(string(calls.VerdictSafe), "fallback").Inc()
		return screening.Result{
			Verdict: calls.VerdictSafe,
			Summary: screening.NormalizeSummary(screening.FallbackSummary, words),
		}
	}
	res.Summary = screening.NormalizeSummary(res.Summary, words)
	metrics.Verdicts.WithLabelValues(string(res.Verdict), "classifier").Inc()
	return res
}

// Whisper is the message played to the receiving party of a SAFE call.
func Whisper(summary string) string {
	summary = strings.TrimSuffix(strings.TrimSpace(summary), ".")
	if summary == "" {
		return DefaultWhisper
	}
	return fmt.Sprintf("Verified: %s. %s", summary, DefaultWhisper)
}

func (d *Dispatcher) transfer(ctx context.Context, callID, target, whisper string) actions.Result {
	if target == "" {
		logger.From(ctx).Error("no transfer target configured", "call_id", callID)
		return actions.Result{
			Action:  actions.ActionTransfer,
			CallID:  callID,
			Outcome: actions.OutcomeFailed,
			Whisper: whisper,
			Reason:  "no transfer target configured",
			At:      d.clock().UTC(),
		}
	}
	return d.runner.Transfer(ctx, callID, target, whisper)
}

// ApplyActionResult records an action outcome and merges the update it
// implies. applied is false for outcomes that leave call state alone.
func (d *Dispatcher) ApplyActionResult(ctx context.Context, res actions.Result, actor string) (rec calls.CallRecord, applied bool, err error) {
	if d.audit != nil {
		if aerr := d.audit.LogActionOutcome(ctx, audit.ActionOutcome{
			CallID:   res.CallID,
			Actor:    actor,
			Action:   string(res.Action),
			Outcome:  string(res.Outcome),
			Attempts: res.Attempts,
			Target:   res.Target,
			Reason:   res.Reason,
		}); aerr != nil {
			logger.From(ctx).Warn("audit append failed", "call_id", res.CallID, "err", aerr)
		}
	}

	u, ok := res.Update()
	if !ok {
		return calls.CallRecord{}, false, nil
	}
	rec, err = d.rec.Apply(ctx, u)
	if err != nil && !errors.Is(err, calls.ErrPersistence) {
		logger.From(ctx).Error("action result not merged", "call_id", res.CallID, "action", string(res.Action), "err", err)
		return calls.CallRecord{}, false, err
	}
	return rec, true, err
}

func (d *Dispatcher) auditVerdictReplaced(ctx context.Context, prior calls.CallRecord, next calls.Verdict) {
	if d.audit == nil {
		return
	}
	if err := d.audit.LogVerdictReplaced(ctx, prior.CallID, string(prior.ScreeningVerdict), prior.ScreeningSummary, string(next)); err != nil {
		logger.From(ctx).Warn("audit append failed", "call_id", prior.CallID, "err", err)
	}
}

// Transfer is the result of a manual transfer request.
type Transfer struct {
	Result  actions.Result
	Target  string
	Whisper string
	// Record is the current call state after the attempt; Known is false
	// when this service has never seen the call.
	Record calls.CallRecord
	Known  bool
}

// TransferCall bridges a call on operator request. It fails with
// ErrInvalidRequest only when no target is available; remote failures are
// reported in the result.
func (d *Dispatcher) TransferCall(ctx context.Context, req TransferRequest, actor string) (Transfer, error) {
	target := req.TargetNumber
	if target == "" {
		target = d.opts.TransferTarget
	}
	if target == "" {
		return Transfer{}, fmt.Errorf("%w: target_number is required", ErrInvalidRequest)
	}
	whisper := req.WhisperMessage
	if whisper == "" {
		whisper = DefaultWhisper
	}

	actx := context.WithoutCancel(ctx)
	res := d.runner.Transfer(actx, req.CallID, target, whisper)
	if _, _, err := d.ApplyActionResult(actx, res, actor); err != nil && !errors.Is(err, calls.ErrPersistence) {
		return Transfer{}, err
	}

	out := Transfer{Result: res, Target: target, Whisper: whisper}
	rec, known, err := d.rec.Current(ctx, req.CallID)
	if err != nil {
		logger.From(ctx).Warn("call state unavailable after transfer", "call_id", req.CallID, "err", err)
	}
	out.Record, out.Known = rec, known
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return calls.StringPtr(s)
}
