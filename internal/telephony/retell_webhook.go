package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Retell webhook event types.
const (
	EventCallStarted     = "call_started"
	EventCallEnded       = "call_ended"
	EventCallTransferred = "call_transferred"
)

// SignatureHeader carries "v=<timestamp>,d=<hex hmac>".
const SignatureHeader = "X-Retell-Signature"

// WebhookEvent is the subset of a Retell webhook delivery we act on.
type WebhookEvent struct {
	Event string      `json:"event"`
	Call  WebhookCall `json:"call"`
}

type WebhookCall struct {
	CallID              string `json:"call_id"`
	FromNumber          string `json:"from_number"`
	ToNumber            string `json:"to_number"`
	TransferPhoneNumber string `json:"transfer_phone_number"`
}

var (
	ErrInvalidPayload   = errors.New("telephony: invalid webhook payload")
	ErrMissingSignature = errors.New("telephony: missing webhook signature")
	ErrInvalidSignature = errors.New("telephony: invalid webhook signature")
)

// ParseWebhookEvent decodes a webhook body. Unknown event types are returned
// as-is; deciding to ignore them is the dispatcher's job.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	ev.Event = strings.TrimSpace(ev.Event)
	ev.Call.CallID = strings.TrimSpace(ev.Call.CallID)
	ev.Call.FromNumber = normalizePhone(ev.Call.FromNumber)
	ev.Call.ToNumber = normalizePhone(ev.Call.ToNumber)
	ev.Call.TransferPhoneNumber = normalizePhone(ev.Call.TransferPhoneNumber)
	return ev, nil
}

func normalizePhone(s string) string {
	// Providers sometimes send "anonymous"; keep as-is.
	return strings.TrimSpace(s)
}

// SignatureDigest extracts the d= value from a signature header. A header
// without any k=v pair is taken as the bare digest.
func SignatureDigest(header string) string {
	header = strings.TrimSpace(header)
	if !strings.Contains(header, "=") {
		return header
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.TrimSpace(k) == "d" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against body in constant time.
func VerifySignature(secret string, body []byte, header string) error {
	digest := SignatureDigest(header)
	if digest == "" {
		return ErrMissingSignature
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(strings.ToLower(digest)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
