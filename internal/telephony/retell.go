package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultRetellBaseURL = "https://api.retellai.com"

// RetellClient drives live calls through the Retell update-call API.
type RetellClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewRetellClient builds a client. The per-attempt deadline comes from the
// caller's context; timeout here is only a backstop for callers without one.
func NewRetellClient(baseURL, apiKey string, timeout time.Duration) *RetellClient {
	if baseURL == "" {
		baseURL = DefaultRetellBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RetellClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *RetellClient) Name() string { return "retell" }

type retellEndCallReq struct {
	EndCall        bool   `json:"end_call"`
	EndCallMessage string `json:"end_call_message,omitempty"`
}

type retellTransferReq struct {
	TransferPhoneNumber      string `json:"transfer_phone_number"`
	WhisperMessage           string `json:"whisper_message,omitempty"`
	EnableVoicemailDetection bool   `json:"enable_voicemail_detection"`
}

func (c *RetellClient) EndCall(ctx context.Context, callID, message string) error {
	return c.updateCall(ctx, callID, retellEndCallReq{EndCall: true, EndCallMessage: message})
}

func (c *RetellClient) TransferCall(ctx context.Context, callID string, req TransferRequest) error {
	if req.TargetNumber == "" {
		return fmt.Errorf("%w: transfer target is required", ErrBadRequest)
	}
	return c.updateCall(ctx, callID, retellTransferReq{
		TransferPhoneNumber:      req.TargetNumber,
		WhisperMessage:           req.WhisperMessage,
		EnableVoicemailDetection: false,
	})
}

func (c *RetellClient) updateCall(ctx context.Context, callID string, body any) error {
	if callID == "" {
		return fmt.Errorf("%w: call_id is required", ErrBadRequest)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	endpoint := c.BaseURL + "/update-call/" + url.PathEscape(callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return classifyStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusNotFound:
		return ErrCallNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (%d)", ErrUnauthorized, status)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrBadRequest, body)
	}
	return &RemoteError{StatusCode: status, Body: body}
}
