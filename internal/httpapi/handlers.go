package httpapi

import (
	"errors"
	"net/http"
	"time"

	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth  *auth.Manager
	Orch  *orchestrator.Orchestrator
	Store calls.Store
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
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	if req.Role != auth.RoleOperator && req.Role != auth.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "role must be operator or admin"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	CampaignID string `json:"campaign_id"`
	ContactID  string `json:"contact_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// StartCall places an outbound call. Either contact_id or phone must be set.
func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CampaignID == "" || (req.ContactID == "" && req.Phone == "") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "campaign_id and contact_id or phone required"})
		return
	}

	call, err := h.Orch.StartCall(c.Request.Context(), req.CampaignID, req.ContactID, req.Phone)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, call)
	case errors.Is(err, orchestrator.ErrCampaignBusy):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "campaign concurrency limit reached"})
	case errors.Is(err, orchestrator.ErrInvalidArgument), errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign or contact not found"})
	default:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call placement failed"})
	}
}

// GetCall returns the durable record of one call, transcript included.
func (h Handlers) GetCall(c *gin.Context) {
	id := c.Param("call_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	call, err := h.Store.GetCall(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	msgs, err := h.Store.ListCallMessages(c.Request.Context(), call.CallID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": call, "messages": msgs})
}

// ListActiveSessions reports live in-memory sessions. Admin-only; operators
// see only durable records.
func (h Handlers) ListActiveSessions(c *gin.Context) {
	sessions := h.Orch.Registry().ListActive()
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"carrier_call_id":  s.CarrierCallID,
			"campaign_id":      s.CampaignID,
			"phone":            s.Phone,
			"phase":            s.Phase,
			"turns":            len(s.History) / 2,
			"started_at":       s.StartedAt,
			"last_activity_at": s.LastActivityAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "sessions": out})
}
