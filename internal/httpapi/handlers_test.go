package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"call-screening/internal/actions"
	"call-screening/internal/audit"
	"call-screening/internal/calls"
	"call-screening/internal/dispatch"
	"call-screening/internal/screening"
	"call-screening/internal/telephony"
	"call-screening/pkg/logger"

	"github.com/gin-gonic/gin"
)

type staticClassifier struct {
	res screening.Result
}

func (s staticClassifier) Classify(ctx context.Context, transcript string) (screening.Result, error) {
	return s.res, nil
}

type stubRunner struct {
	outcome actions.Outcome
}

func (s stubRunner) result(action actions.Action, callID string) actions.Result {
	outcome := s.outcome
	if outcome == "" {
		outcome = actions.OutcomeSuccess
	}
	return actions.Result{Action: action, CallID: callID, Outcome: outcome, Attempts: 1, Reason: "remote error", At: time.Now().UTC()}
}

func (s stubRunner) Terminate(ctx context.Context, callID string) actions.Result {
	return s.result(actions.ActionTerminate, callID)
}

func (s stubRunner) Transfer(ctx context.Context, callID, target, whisper string) actions.Result {
	res := s.result(actions.ActionTransfer, callID)
	res.Target, res.Whisper = target, whisper
	return res
}

type testServer struct {
	store *calls.MemoryStore
	audit *audit.MemoryRepo
	h     *Handlers
	r     *gin.Engine
}

func newTestServer(t *testing.T, runner stubRunner) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calls.NewMemoryStore()
	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo)
	rec := calls.NewReconciler(store, nil, nil)
	classifier := staticClassifier{res: screening.Result{Verdict: calls.VerdictScam, Summary: "caller requests gift card payment"}}
	d := dispatch.New(rec, classifier, runner, auditSvc, dispatch.Options{TransferTarget: "+15550100"})

	ts := &testServer{store: store, audit: auditRepo}
	ts.h = &Handlers{Dispatcher: d, Calls: store, Audit: auditSvc}

	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { ts.h.Health(c) })
	r.POST("/webhooks/retell", func(c *gin.Context) { ts.h.RetellWebhook(c) })
	r.POST("/screen", func(c *gin.Context) { ts.h.Screen(c) })
	r.GET("/v1/calls", func(c *gin.Context) { ts.h.ListCalls(c) })
	r.GET("/v1/calls/active", func(c *gin.Context) { ts.h.ActiveCalls(c) })
	r.GET("/v1/calls/:call_id", func(c *gin.Context) { ts.h.GetCall(c) })
	r.POST("/v1/transfer-call", func(c *gin.Context) { ts.h.TransferCall(c) })
	ts.r = r
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ts.r.ServeHTTP(w, req)
	return w
}

const startedBody = `{"event":"call_started","call":{"call_id":"c1","from_number":"+15551111","to_number":"+15552222"}}`

func TestRetellWebhook_Started(t *testing.T) {
	ts := newTestServer(t, stubRunner{})

	w := ts.do(http.MethodPost, "/webhooks/retell", startedBody, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rec, err := ts.store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected stored call: %v", err)
	}
	if rec.Status != calls.CallStatusActive || rec.FromNumber != "+15551111" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestRetellWebhook_UnknownEventAcknowledged(t *testing.T) {
	ts := newTestServer(t, stubRunner{})

	w := ts.do(http.MethodPost, "/webhooks/retell", `{"event":"call_analyzed","call":{"call_id":"c1"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ts.store.Upserts() != 0 {
		t.Fatalf("unknown events must not write")
	}
}

func TestRetellWebhook_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, stubRunner{})
	if w := ts.do(http.MethodPost, "/webhooks/retell", `{`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRetellWebhook_SignatureChecks(t *testing.T) {
	ts := newTestServer(t, stubRunner{})
	ts.h.WebhookSecret = "whsec"

	good := map[string]string{telephony.SignatureHeader: "v=1700000000,d=" + telephony.Sign("whsec", []byte(startedBody))}
	if w := ts.do(http.MethodPost, "/webhooks/retell", startedBody, good); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid signature, got %d", w.Code)
	}
	if n := len(ts.audit.ByType(audit.EventTypeWebhookRejected)); n != 0 {
		t.Fatalf("expected no rejection events, got %d", n)
	}

	bad := map[string]string{telephony.SignatureHeader: "v=1700000000,d=deadbeef"}
	if w := ts.do(http.MethodPost, "/webhooks/retell", startedBody, bad); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when not enforcing, got %d", w.Code)
	}
	if n := len(ts.audit.ByType(audit.EventTypeWebhookRejected)); n != 1 {
		t.Fatalf("expected 1 rejection event, got %d", n)
	}

	ts.h.RejectBadSignatures = true
	before := ts.store.Upserts()
	if w := ts.do(http.MethodPost, "/webhooks/retell", startedBody, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when enforcing, got %d", w.Code)
	}
	if ts.store.Upserts() != before {
		t.Fatalf("rejected webhook must not write")
	}
}

type failingAuditRepo struct{}

func (failingAuditRepo) Append(ctx context.Context, e audit.Event) error {
	return errors.New("audit table unavailable")
}

func TestRetellWebhook_RejectionAuditFailureLogged(t *testing.T) {
	ts := newTestServer(t, stubRunner{})
	ts.h.WebhookSecret = "whsec"
	ts.h.Audit = audit.NewService(failingAuditRepo{})

	var logs bytes.Buffer
	r := gin.New()
	r.Use(logger.Middleware(slog.New(slog.NewJSONHandler(&logs, nil))))
	r.POST("/webhooks/retell", func(c *gin.Context) { ts.h.RetellWebhook(c) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/retell", bytes.NewBufferString(startedBody))
	req.Header.Set(telephony.SignatureHeader, "v=1700000000,d=deadbeef")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when not enforcing, got %d: %s", w.Code, w.Body.String())
	}
	out := logs.String()
	if !strings.Contains(out, `"msg":"audit append failed"`) || !strings.Contains(out, "audit table unavailable") {
		t.Fatalf("expected audit failure warning, got logs: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Fatalf("expected WARN level, got logs: %s", out)
	}
}

func TestScreen_ResponseShape(t *testing.T) {
	ts := newTestServer(t, stubRunner{})

	w := ts.do(http.MethodPost, "/screen", `{"args":{"call_id":"c1","transcript":"buy gift cards"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 3 || body["verdict"] != "SCAM" || body["call_id"] != "c1" || body["summary"] != "caller requests gift card payment" {
		t.Fatalf("unexpected body %v", body)
	}

	rec, err := ts.store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != calls.CallStatusTerminated || rec.ScreeningVerdict != calls.VerdictScam {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestScreen_ClientErrors(t *testing.T) {
	ts := newTestServer(t, stubRunner{})

	if w := ts.do(http.MethodPost, "/screen", `{"call_id":"c1"}`, nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if w := ts.do(http.MethodPost, "/screen", `nope`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if ts.store.Upserts() != 0 {
		t.Fatalf("client errors must not write")
	}
}

func TestCalls_ReadEndpoints(t *testing.T) {
	ts := newTestServer(t, stubRunner{})
	ts.do(http.MethodPost, "/webhooks/retell", startedBody, nil)

	if w := ts.do(http.MethodGet, "/v1/calls/missing", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/v1/calls/c1", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w := ts.do(http.MethodGet, "/v1/calls/active", "", nil)
	var list struct {
		Calls []calls.CallRecord `json:"calls"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || list.Calls[0].CallID != "c1" {
		t.Fatalf("unexpected active list %+v", list)
	}

	if w := ts.do(http.MethodGet, "/v1/calls?status=RINGING", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/v1/calls?limit=x", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/v1/calls?status=ACTIVE&limit=10", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestTransferCall(t *testing.T) {
	ts := newTestServer(t, stubRunner{})
	ts.do(http.MethodPost, "/webhooks/retell", startedBody, nil)

	w := ts.do(http.MethodPost, "/v1/transfer-call?call_id=c1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp transferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.TargetNumber != "+15550100" || resp.WhisperMessage != dispatch.DefaultWhisper {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.CallInfo == nil || !resp.CallInfo.TransferInitiated {
		t.Fatalf("expected call_info with transfer state, got %+v", resp.CallInfo)
	}

	if w := ts.do(http.MethodPost, "/v1/transfer-call", `{}`, nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestTransferCall_RemoteFailure(t *testing.T) {
	ts := newTestServer(t, stubRunner{outcome: actions.OutcomeFailed})

	w := ts.do(http.MethodPost, "/v1/transfer-call", `{"args":{"call_id":"c9","target_number":"+15559999"}}`, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var resp transferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.CallInfo != nil || resp.TargetNumber != "+15559999" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, stubRunner{})
	if w := ts.do(http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ts.h.Ping = func(ctx context.Context) error { return errors.New("db down") }
	if w := ts.do(http.MethodGet, "/healthz", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
