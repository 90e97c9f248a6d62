package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suman7063/ifindLife-sub000/internal/auth"
	"github.com/suman7063/ifindLife-sub000/internal/orchestrator"
	"github.com/suman7063/ifindLife-sub000/internal/pricing"
	"github.com/suman7063/ifindLife-sub000/internal/rbac"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
	"github.com/suman7063/ifindLife-sub000/pkg/logger"
)

// Sessions is the orchestrator surface the API drives.
type Sessions interface {
	CreateSession(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.View, error)
	Get(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	Accept(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	Decline(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	Cancel(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	End(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	Extend(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Sessions Sessions
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || !rbac.Valid(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

type createSessionRequest struct {
	CalleeID       string           `json:"callee_id"`
	CallType       session.CallType `json:"call_type"`
	ScheduledStart *time.Time       `json:"scheduled_start,omitempty"`
}

// CreateSession reserves funds and rings the expert.
// RBAC: user.
func (h Handlers) CreateSession(c *gin.Context) {
	userID, ok := h.identity(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CalleeID == "" || !req.CallType.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callee_id and call_type (audio|video) required"})
		return
	}

	v, err := h.Sessions.CreateSession(c.Request.Context(), orchestrator.CreateRequest{
		CallerID:       userID,
		CalleeID:       req.CalleeID,
		CallType:       req.CallType,
		ScheduledStart: req.ScheduledStart,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h Handlers) GetSession(c *gin.Context) {
	h.act(c, h.Sessions.Get)
}

// AcceptSession answers the pending request. RBAC: expert.
func (h Handlers) AcceptSession(c *gin.Context) {
	h.act(c, h.Sessions.Accept)
}

// DeclineSession refuses the pending request. RBAC: expert.
func (h Handlers) DeclineSession(c *gin.Context) {
	h.act(c, h.Sessions.Decline)
}

func (h Handlers) CancelSession(c *gin.Context) {
	h.act(c, h.Sessions.Cancel)
}

func (h Handlers) EndSession(c *gin.Context) {
	h.act(c, h.Sessions.End)
}

func (h Handlers) ExtendSession(c *gin.Context) {
	h.act(c, h.Sessions.Extend)
}

func (h Handlers) act(c *gin.Context, fn func(context.Context, string, string) (orchestrator.View, error)) {
	userID, ok := h.identity(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session id required"})
		return
	}
	v, err := fn(c.Request.Context(), id, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h Handlers) identity(c *gin.Context) (string, bool) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return "", false
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return userID, true
}

// fail maps domain errors to responses. Internal errors are logged and
// hidden behind a generic message.
func (h Handlers) fail(c *gin.Context, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// StatusFor returns the HTTP status and public message for err.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient wallet balance; top up and retry"
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, pricing.ErrInvalidPricingReq):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, pricing.ErrPricingNotFound):
		return http.StatusNotFound, "expert is not available for consultations"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrNotParticipant):
		return http.StatusForbidden, "not allowed for this session"
	case errors.Is(err, session.ErrCallerBusy):
		return http.StatusConflict, "another session is already in progress"
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, signaling.ErrConflict):
		return http.StatusConflict, "session is not in a state that allows this"
	case errors.Is(err, orchestrator.ErrExtensionInFlight):
		return http.StatusConflict, "an extension is already being processed"
	case errors.Is(err, wallet.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, "wallet temporarily unavailable; retry shortly"
	case errors.Is(err, orchestrator.ErrSignalingUnavailable), errors.Is(err, orchestrator.ErrShuttingDown):
		return http.StatusServiceUnavailable, "calling temporarily unavailable; retry shortly"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
