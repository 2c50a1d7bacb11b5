package telephony

import (
	"errors"
	"testing"
)

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{"event":"call_started","call":{"call_id":" call_1 ","from_number":"+15550001","to_number":"+15550002"}}`)
	ev, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.Event != EventCallStarted || ev.Call.CallID != "call_1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Call.FromNumber != "+15550001" || ev.Call.ToNumber != "+15550002" {
		t.Fatalf("unexpected numbers: %+v", ev.Call)
	}
}

func TestParseWebhookEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseWebhookEvent([]byte(`{`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestSignatureDigest(t *testing.T) {
	cases := map[string]string{
		"v=1700000000,d=abc123": "abc123",
		"d=abc123, v=1":         "abc123",
		"abc123":                "abc123",
		"v=1700000000":          "",
		"":                      "",
	}
	for in, want := range cases {
		if got := SignatureDigest(in); got != want {
			t.Fatalf("SignatureDigest(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"call_ended","call":{"call_id":"c1"}}`)
	sig := Sign("shh", body)

	if err := VerifySignature("shh", body, "v=1,d="+sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := VerifySignature("other", body, "v=1,d="+sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err := VerifySignature("shh", []byte(`{}`), "v=1,d="+sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
	if err := VerifySignature("shh", body, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}
