package calls

import (
	"strings"
	"time"
)

// Overlay combines the durable record and the live registry entry for one
// call into the current view, without applying any new signal.
//
// The store record is the base. Live fields that are set win over the base;
// unset live fields never erase anything.
func Overlay(callID string, store, live *CallRecord) CallRecord {
	out := CallRecord{CallID: callID}
	if store != nil {
		out = cloneRecord(*store)
		out.CallID = callID
	}
	if live == nil {
		return out
	}

	setString(&out.FromNumber, live.FromNumber)
	setString(&out.ToNumber, live.ToNumber)
	out.Status = nextStatus(out.Status, live.Status)
	setTime(&out.StartedAt, live.StartedAt)
	setTime(&out.EndedAt, live.EndedAt)

	if live.ScreeningVerdict.Valid() {
		out.ScreeningVerdict = live.ScreeningVerdict
	}
	setString(&out.ScreeningSummary, live.ScreeningSummary)
	setTime(&out.ScreenedAt, live.ScreenedAt)
	out.Transcript = nextTranscript(out.Transcript, live.Transcript)

	setTime(&out.TerminatedAt, live.TerminatedAt)

	if live.TransferInitiated {
		out.TransferInitiated = true
	}
	setString(&out.TransferTarget, live.TransferTarget)
	setTime(&out.TransferInitiatedAt, live.TransferInitiatedAt)
	setString(&out.TransferredTo, live.TransferredTo)
	setTime(&out.TransferredAt, live.TransferredAt)

	out.CreatedAt = earliest(out.CreatedAt, live.CreatedAt)
	out.UpdatedAt = latest(out.UpdatedAt, live.UpdatedAt)
	return out
}

// Merge produces the record to persist for u.CallID from the durable record,
// the live registry entry and the incoming partial update. It is the only
// place records are combined; every write path goes through it.
//
// Rules:
//   - The update is applied last, so any field it sets wins.
//   - Fields the update leaves nil keep their current value. This covers the
//     screening verdict, summary and screened_at: only an update that carries
//     them replaces them.
//   - A terminal status is not moved back to ACTIVE.
//   - The transcript never shrinks to a prefix of what is already stored.
//   - created_at is the earliest known value, or now for a new record.
//   - updated_at is now, unless a previous write is already later.
//   - ENDED implies ended_at and TERMINATED implies terminated_at.
func Merge(store, live *CallRecord, u Update, now time.Time) CallRecord {
	now = now.UTC()
	out := Overlay(u.CallID, store, live)

	if u.FromNumber != nil {
		out.FromNumber = *u.FromNumber
	}
	if u.ToNumber != nil {
		out.ToNumber = *u.ToNumber
	}
	if u.Status != nil {
		out.Status = nextStatus(out.Status, *u.Status)
	}
	setTime(&out.StartedAt, u.StartedAt)
	setTime(&out.EndedAt, u.EndedAt)

	if u.ScreeningVerdict != nil && u.ScreeningVerdict.Valid() {
		out.ScreeningVerdict = *u.ScreeningVerdict
	}
	if u.ScreeningSummary != nil {
		out.ScreeningSummary = *u.ScreeningSummary
	}
	setTime(&out.ScreenedAt, u.ScreenedAt)
	if u.Transcript != nil {
		out.Transcript = nextTranscript(out.Transcript, *u.Transcript)
	}

	setTime(&out.TerminatedAt, u.TerminatedAt)

	if u.TransferInitiated != nil {
		out.TransferInitiated = *u.TransferInitiated
	}
	if u.TransferTarget != nil {
		out.TransferTarget = *u.TransferTarget
	}
	setTime(&out.TransferInitiatedAt, u.TransferInitiatedAt)
	if u.TransferredTo != nil {
		out.TransferredTo = *u.TransferredTo
	}
	setTime(&out.TransferredAt, u.TransferredAt)

	switch out.Status {
	case CallStatusEnded:
		if out.EndedAt == nil {
			out.EndedAt = TimePtr(now)
		}
	case CallStatusTerminated:
		if out.TerminatedAt == nil {
			out.TerminatedAt = TimePtr(now)
		}
	}
	if out.TransferInitiated && out.TransferInitiatedAt == nil {
		out.TransferInitiatedAt = TimePtr(now)
	}

	if out.CreatedAt == nil {
		out.CreatedAt = TimePtr(now)
	}
	out.UpdatedAt = latest(out.UpdatedAt, TimePtr(now))
	return out
}

func nextStatus(cur, next CallStatus) CallStatus {
	if !next.Valid() {
		return cur
	}
	if next == CallStatusActive && cur.Terminal() {
		return cur
	}
	return next
}

func nextTranscript(cur, next string) string {
	if next == "" {
		return cur
	}
	if len(next) < len(cur) && strings.HasPrefix(cur, next) {
		return cur
	}
	return next
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setTime(dst **time.Time, v *time.Time) {
	if v != nil {
		*dst = TimePtr(*v)
	}
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return TimePtr(*b)
	case b == nil:
		return TimePtr(*a)
	case b.Before(*a):
		return TimePtr(*b)
	default:
		return TimePtr(*a)
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return TimePtr(*b)
	case b == nil:
		return TimePtr(*a)
	case b.After(*a):
		return TimePtr(*b)
	default:
		return TimePtr(*a)
	}
}

// cloneRecord deep-copies timestamp pointers so callers can never alias
// registry or store state.
func cloneRecord(r CallRecord) CallRecord {
	out := r
	for _, p := range []**time.Time{
		&out.StartedAt, &out.EndedAt, &out.ScreenedAt, &out.TerminatedAt,
		&out.TransferInitiatedAt, &out.TransferredAt, &out.CreatedAt, &out.UpdatedAt,
	} {
		if *p != nil {
			*p = TimePtr(**p)
		}
	}
	return out
}
