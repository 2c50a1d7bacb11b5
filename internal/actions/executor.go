package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"call-screening/internal/calls"
	"call-screening/internal/metrics"
	"call-screening/internal/telephony"
	"call-screening/pkg/logger"
)

type Action string

const (
	ActionTerminate Action = "terminate"
	ActionTransfer  Action = "transfer"
)

type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeAlreadyGone Outcome = "already_gone"
	OutcomeFailed      Outcome = "failed"
)

const DefaultEndCallMessage = "This call has been blocked. Please remove this number from your call list. Goodbye."

// Result is the structured outcome of one action. The executor never
// returns an error; everything the caller needs is here.
type Result struct {
	Action   Action  `json:"action"`
	CallID   string  `json:"call_id"`
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts"`

	// Target and Whisper are set for transfers.
	Target  string `json:"target,omitempty"`
	Whisper string `json:"whisper_message,omitempty"`

	// Reason explains a failure in operator terms.
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`

	At time.Time `json:"at"`
}

// Succeeded applies the per-action reading of AlreadyGone: nothing left to
// terminate is fine, nothing left to transfer into is not.
func (r Result) Succeeded() bool {
	switch r.Outcome {
	case OutcomeSuccess:
		return true
	case OutcomeAlreadyGone:
		return r.Action == ActionTerminate
	}
	return false
}

// Update returns the partial record the result implies. ok is false when the
// result must not change call state.
func (r Result) Update() (u calls.Update, ok bool) {
	if !r.Succeeded() {
		return calls.Update{}, false
	}
	switch r.Action {
	case ActionTerminate:
		return calls.Update{
			CallID:       r.CallID,
			At:           r.At,
			Status:       calls.StatusPtr(calls.CallStatusTerminated),
			TerminatedAt: calls.TimePtr(r.At),
		}, true
	case ActionTransfer:
		return calls.Update{
			CallID:              r.CallID,
			At:                  r.At,
			TransferInitiated:   calls.BoolPtr(true),
			TransferTarget:      calls.StringPtr(r.Target),
			TransferInitiatedAt: calls.TimePtr(r.At),
		}, true
	}
	return calls.Update{}, false
}

// StatusLookup reads the merged current record for a call.
type StatusLookup interface {
	Current(ctx context.Context, callID string) (calls.CallRecord, bool, error)
}

// Executor performs terminate/transfer against the provider with retry.
type Executor struct {
	ctrl           telephony.CallController
	lookup         StatusLookup
	policy         Policy
	endCallMessage string
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewExecutor(ctrl telephony.CallController, lookup StatusLookup, policy Policy, endCallMessage string) *Executor {
	if endCallMessage == "" {
		endCallMessage = DefaultEndCallMessage
	}
	return &Executor{
		ctrl:           ctrl,
		lookup:         lookup,
		policy:         policy,
		endCallMessage: endCallMessage,
		clock:          time.Now,
	}
}

func (e *Executor) Terminate(ctx context.Context, callID string) Result {
	res := e.run(ctx, ActionTerminate, callID, func(ctx context.Context) error {
		return e.ctrl.EndCall(ctx, callID, e.endCallMessage)
	})
	e.report(ctx, res)
	return res
}

// Transfer skips the remote call when the call is already known to be over.
// An unknown status does not block: the provider may still have the call.
func (e *Executor) Transfer(ctx context.Context, callID, target, whisper string) Result {
	if e.lookup != nil {
		rec, found, err := e.lookup.Current(ctx, callID)
		if err != nil {
			logger.From(ctx).Warn("transfer precondition lookup failed", "call_id", callID, "err", err)
		}
		if found && rec.Status.Terminal() {
			res := Result{
				Action:  ActionTransfer,
				CallID:  callID,
				Outcome: OutcomeFailed,
				Target:  target,
				Whisper: whisper,
				Reason:  fmt.Sprintf("call already %s", rec.Status),
				At:      e.clock().UTC(),
			}
			e.report(ctx, res)
			return res
		}
	}

	res := e.run(ctx, ActionTransfer, callID, func(ctx context.Context) error {
		return e.ctrl.TransferCall(ctx, callID, telephony.TransferRequest{TargetNumber: target, WhisperMessage: whisper})
	})
	res.Target = target
	res.Whisper = whisper
	if res.Outcome == OutcomeAlreadyGone {
		res.Reason = "call no longer exists at provider"
	}
	e.report(ctx, res)
	return res
}

func (e *Executor) run(ctx context.Context, action Action, callID string, fn func(ctx context.Context) error) Result {
	log := logger.From(ctx).With("call_id", callID, "action", string(action))

	p := e.policy
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("call action attempt failed; retrying", "attempt", attempt, "delay", delay.String(), "err", err)
	}

	attempts, err := p.Do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		metrics.ActionAttempts.WithLabelValues(string(action), attemptLabel(err)).Inc()
		return err
	})

	res := Result{Action: action, CallID: callID, Attempts: attempts, Err: err, At: e.clock().UTC()}
	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
	case errors.Is(err, telephony.ErrCallNotFound):
		res.Outcome = OutcomeAlreadyGone
	default:
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
	}
	return res
}

func (e *Executor) report(ctx context.Context, res Result) {
	metrics.ActionOutcomes.WithLabelValues(string(res.Action), string(res.Outcome)).Inc()

	attrs := []any{
		"call_id", res.CallID,
		"action", string(res.Action),
		"outcome", string(res.Outcome),
		"attempts", res.Attempts,
	}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.Succeeded() {
		logger.From(ctx).Info("call action completed", attrs...)
		return
	}
	logger.From(ctx).Error("call action failed", attrs...)
}

func attemptLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, telephony.ErrCallNotFound):
		return "not_found"
	case telephony.Permanent(err):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
