package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"call-screening/internal/audit"
	"call-screening/internal/auth"
	"call-screening/internal/calls"
	"call-screening/internal/dispatch"
	"call-screening/internal/telephony"
	"call-screening/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Pinger reports backing store health.
type Pinger func(ctx context.Context) error

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dispatcher *dispatch.Dispatcher
	// Calls serves read endpoints. Reads always come from the durable store.
	Calls calls.Store
	Audit *audit.Service
	Ping  Pinger

	// WebhookSecret enables signature checks on webhook deliveries.
	WebhookSecret string
	// RejectBadSignatures turns a failed check into a 401. Production only.
	RejectBadSignatures bool
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			logger.FromGin(c).Error("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Webhooks ---

// RetellWebhook accepts call lifecycle events. Unknown events are
// acknowledged so the provider does not retry them.
func (h Handlers) RetellWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, parseErr := telephony.ParseWebhookEvent(body)

	if h.WebhookSecret != "" {
		if err := telephony.VerifySignature(h.WebhookSecret, body, c.GetHeader(telephony.SignatureHeader)); err != nil {
			logger.FromGin(c).Warn("webhook signature check failed",
				"err", err,
				"call_id", ev.Call.CallID,
				"enforced", h.RejectBadSignatures,
			)
			if h.Audit != nil {
				if aerr := h.Audit.LogWebhookRejected(c.Request.Context(), ev.Call.CallID, c.ClientIP(), err.Error(), h.RejectBadSignatures); aerr != nil {
					logger.FromGin(c).Warn("audit append failed", "call_id", ev.Call.CallID, "err", aerr)
				}
			}
			if h.RejectBadSignatures {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
				return
			}
		}
	}

	if parseErr != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json payload"})
		return
	}

	_, _, err = h.Dispatcher.HandleWebhook(c.Request.Context(), ev)
	switch {
	case err == nil, errors.Is(err, calls.ErrPersistence):
		c.JSON(http.StatusOK, gin.H{"status": "ok", "event": ev.Event, "call_id": ev.Call.CallID})
	case errors.Is(err, dispatch.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("webhook processing failed", "event", ev.Event, "call_id", ev.Call.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
	}
}

// --- Screening ---

func (h Handlers) Screen(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	req, err := dispatch.ParseScreeningRequest(body)
	switch {
	case errors.Is(err, dispatch.ErrMalformedRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	out := h.Dispatcher.Screen(c.Request.Context(), req)
	c.JSON(http.StatusOK, out)
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.ListFilter{
		Status:  calls.CallStatus(c.Query("status")),
		Verdict: calls.Verdict(c.Query("verdict")),
	}
	if f.Status != "" && !f.Status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be one of ACTIVE, ENDED, TERMINATED"})
		return
	}
	if f.Verdict != "" && !f.Verdict.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "verdict must be one of SCAM, SAFE"})
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	f.Limit = limit

	out, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "err_kind", "persistence", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list calls failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out, "count": len(out)})
}

func (h Handlers) ActiveCalls(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.Calls.ListActive(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("list active calls failed", "err_kind", "persistence", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list active calls failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out, "count": len(out)})
}

func (h Handlers) GetCall(c *gin.Context) {
	callID := c.Param("call_id")
	rec, err := h.Calls.Get(c.Request.Context(), callID)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		logger.FromGin(c).Debug("call not found", "call_id", callID)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("get call failed", "call_id", callID, "err_kind", "persistence", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "get call failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Manual transfer ---

type transferResponse struct {
	Success        bool              `json:"success"`
	CallID         string            `json:"call_id"`
	TargetNumber   string            `json:"target_number"`
	WhisperMessage string            `json:"whisper_message"`
	Outcome        string            `json:"outcome"`
	Attempts       int               `json:"attempts"`
	CallInfo       *calls.CallRecord `json:"call_info"`
	Message        string            `json:"message"`
}

func (h Handlers) TransferCall(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	req, err := dispatch.ParseTransferRequest(body, c.Query)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	actor := auth.Actor(c.Request.Context(), audit.ActorSystem)
	out, err := h.Dispatcher.TransferCall(c.Request.Context(), req, actor)
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.FromGin(c).Error("manual transfer failed", "call_id", req.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transfer failed"})
		return
	}

	resp := transferResponse{
		Success:        out.Result.Succeeded(),
		CallID:         req.CallID,
		TargetNumber:   out.Target,
		WhisperMessage: out.Whisper,
		Outcome:        string(out.Result.Outcome),
		Attempts:       out.Result.Attempts,
		Message:        "Transfer initiated successfully",
	}
	if out.Known {
		rec := out.Record
		resp.CallInfo = &rec
	}
	if !resp.Success {
		resp.Message = "Transfer failed: " + out.Result.Reason
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
