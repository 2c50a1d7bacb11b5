package telephony

import (
	"context"
	"errors"
	"fmt"
)

// CallController is the provider-agnostic control surface used by the action
// executor.
//
// Rules:
//   - No provider HTTP calls outside telephony adapters.
//   - Errors are classified with the sentinels below so callers can decide on
//     retries without knowing provider status codes.
type CallController interface {
	Name() string

	// EndCall hangs up the call after speaking message (if non-empty).
	EndCall(ctx context.Context, callID, message string) error

	// TransferCall warm-transfers the call, whispering req.WhisperMessage to
	// the receiving party first.
	TransferCall(ctx context.Context, callID string, req TransferRequest) error
}

type TransferRequest struct {
	TargetNumber   string `json:"transfer_phone_number"`
	WhisperMessage string `json:"whisper_message,omitempty"`
}

var (
	// ErrCallNotFound means the provider no longer knows the call.
	ErrCallNotFound = errors.New("telephony: call not found")
	// ErrUnauthorized means the provider rejected our credentials.
	ErrUnauthorized = errors.New("telephony: unauthorized")
	// ErrBadRequest means the provider rejected the request shape.
	ErrBadRequest = errors.New("telephony: bad request")
)

// RemoteError is any other non-success provider response. It is transient
// from the caller's point of view.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("telephony: provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("telephony: provider returned %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying err cannot help.
func Permanent(err error) bool {
	return errors.Is(err, ErrCallNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBadRequest)
}
