package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedRequest means the body is not a JSON object.
	ErrMalformedRequest = errors.New("dispatch: malformed request body")
	// ErrInvalidRequest means a required field is missing. No state is touched.
	ErrInvalidRequest = errors.New("dispatch: invalid request")
)

// ScreeningRequest is the normalized screening input.
type ScreeningRequest struct {
	CallID     string         `json:"call_id" validate:"required"`
	Transcript string         `json:"transcript" validate:"required"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TransferRequest is a manual warm transfer. Empty TargetNumber and
// WhisperMessage take the dispatcher defaults.
type TransferRequest struct {
	CallID         string `json:"call_id" validate:"required"`
	TargetNumber   string `json:"target_number,omitempty"`
	WhisperMessage string `json:"whisper_message,omitempty"`
}

// screeningWire accepts both the flat shape and the tool-call shape, where
// the same fields sit under "args".
type screeningWire struct {
	CallID     string         `json:"call_id"`
	Transcript string         `json:"transcript"`
	Metadata   map[string]any `json:"metadata"`
	Args       *screeningWire `json:"args"`
}

type transferWire struct {
	CallID         string        `json:"call_id"`
	TargetNumber   string        `json:"target_number"`
	WhisperMessage string        `json:"whisper_message"`
	Args           *transferWire `json:"args"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors read "call_id is required".
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseScreeningRequest normalizes either wire shape and validates it.
// When "args" is present its call_id and transcript are used; metadata
// prefers the top level.
func ParseScreeningRequest(body []byte) (ScreeningRequest, error) {
	var w screeningWire
	if err := json.Unmarshal(body, &w); err != nil {
		return ScreeningRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	req := ScreeningRequest{CallID: w.CallID, Transcript: w.Transcript, Metadata: w.Metadata}
	if w.Args != nil {
		req.CallID = w.Args.CallID
		req.Transcript = w.Args.Transcript
		if req.Metadata == nil {
			req.Metadata = w.Args.Metadata
		}
	}
	req.CallID = strings.TrimSpace(req.CallID)
	if strings.TrimSpace(req.Transcript) == "" {
		req.Transcript = ""
	}

	if err := validateStruct(req); err != nil {
		return ScreeningRequest{}, err
	}
	return req, nil
}

// ParseTransferRequest reads each field from the body, then from "args",
// then from query. A body that is not JSON is treated as empty.
func ParseTransferRequest(body []byte, query func(string) string) (TransferRequest, error) {
	var w transferWire
	if len(body) > 0 {
		_ = json.Unmarshal(body, &w)
	}
	var args transferWire
	if w.Args != nil {
		args = *w.Args
	}
	if query == nil {
		query = func(string) string { return "" }
	}

	req := TransferRequest{
		CallID:         firstNonEmpty(w.CallID, args.CallID, query("call_id")),
		TargetNumber:   firstNonEmpty(w.TargetNumber, args.TargetNumber, query("target_number")),
		WhisperMessage: firstNonEmpty(w.WhisperMessage, args.WhisperMessage, query("whisper_message")),
	}
	if err := validateStruct(req); err != nil {
		return TransferRequest{}, err
	}
	return req, nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
