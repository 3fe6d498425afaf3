package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
	"github.com/MunnymanCommunications/gemdesign/internal/service"
)

type Handler struct {
	entitlements *service.EntitlementService
	admin        *service.AdminService
}

func NewHandler(entitlements *service.EntitlementService, admin *service.AdminService) *Handler {
	return &Handler{
		entitlements: entitlements,
		admin:        admin,
	}
}

// entitlementResponse builds the consumer-facing shape. A non-nil record
// with an error means the last-known-good value is being served while a
// collaborator is down; informational reads surface it rather than go
// blank.
func (h *Handler) entitlementResponse(record *models.EntitlementRecord, err error) *models.EntitlementResponse {
	resp := &models.EntitlementResponse{
		Tier:         record.Tier,
		Status:       record.Status,
		IsActive:     record.IsActive,
		MaxDocuments: record.MaxDocuments,
		Source:       record.Source,
		ComputedAt:   record.ComputedAt,
		Stale:        h.entitlements.IsStale(record),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// ==================== User API Handlers ====================

// GetMyEntitlement returns the current user's effective entitlement.
func (h *Handler) GetMyEntitlement(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	record, err := h.entitlements.GetEntitlement(c.Request.Context(), userID.(string))
	if record == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.entitlementResponse(record, err))
}

// RefreshMyEntitlement forces a reconcile-and-recompute for the current
// user, e.g. right after returning from checkout.
func (h *Handler) RefreshMyEntitlement(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	record, err := h.entitlements.Refresh(c.Request.Context(), userID.(string))
	if record == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.entitlementResponse(record, err))
}

// GetMyNotices returns persistent notices, currently the past-due payment
// warning.
func (h *Handler) GetMyNotices(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	notices, err := h.entitlements.Notices(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if notices == nil {
		notices = []models.Notice{}
	}

	c.JSON(http.StatusOK, models.NoticesResponse{Notices: notices})
}

// GetMyUsage returns document usage against the resolved quota.
func (h *Handler) GetMyUsage(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	resp, err := h.entitlements.Usage(c.Request.Context(), userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListMySecurityReports lists the user's satellite security reports.
func (h *Handler) ListMySecurityReports(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	reports, err := h.entitlements.ListSecurityReports(c.Request.Context(), userID.(string), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []*models.Document{}
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// ==================== Public API Handlers ====================

// GetPlans returns the public tier/quota/price table.
func (h *Handler) GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, h.entitlements.Plans(c.Request.Context()))
}

// ==================== Admin API Handlers ====================

// SetGrant sets an operator tier override for a user.
func (h *Handler) SetGrant(c *gin.Context) {
	targetUserID := c.Param("user_id")
	if targetUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	var req models.SetGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GrantedTier != nil && *req.GrantedTier != "" && !models.IsKnownTier(*req.GrantedTier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}

	actor := c.GetString("userID")
	grant, err := h.admin.SetGrant(c.Request.Context(), targetUserID, actor, &req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, grant)
}

// RemoveGrant deletes a user's operator override.
func (h *Handler) RemoveGrant(c *gin.Context) {
	targetUserID := c.Param("user_id")
	if targetUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	actor := c.GetString("userID")
	if err := h.admin.RemoveGrant(c.Request.Context(), targetUserID, actor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListGrants lists current operator overrides.
func (h *Handler) ListGrants(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	grants, err := h.admin.ListGrants(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if grants == nil {
		grants = []*models.AdminGrant{}
	}

	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

// GetSettings returns processor price configuration.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.admin.GetSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings replaces processor price configuration.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := c.GetString("userID")
	settings, err := h.admin.UpdateSettings(c.Request.Context(), actor, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// GetProcessorStatus reports payment processor configuration health.
func (h *Handler) GetProcessorStatus(c *gin.Context) {
	status, err := h.admin.ProcessorStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// ==================== Internal API Handlers ====================

// UpsertSubscription applies a subscription update pushed by
// billing-service after a processor webhook.
func (h *Handler) UpsertSubscription(c *gin.Context) {
	var req models.UpsertSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Tier == "" && req.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either tier or price_id is required"})
		return
	}
	if req.Tier != "" && !models.IsKnownTier(req.Tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}

	sub, err := h.entitlements.UpsertFromBilling(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GetUserEntitlement returns a user's effective entitlement (internal,
// called by user-portal and peer services).
func (h *Handler) GetUserEntitlement(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	record, err := h.entitlements.GetEntitlement(c.Request.Context(), userID)
	if record == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.entitlementResponse(record, err))
}

// CheckUserAccess evaluates a route-guard predicate for gateway services:
// GET /api/internal/users/:user_id/access?tier=pro
func (h *Handler) CheckUserAccess(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	tier := c.Query("tier")
	if tier != "" && !models.IsKnownTier(tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}

	c.JSON(http.StatusOK, h.entitlements.CheckAccess(c.Request.Context(), userID, tier))
}

// statusForError maps validation and configuration failures to 4xx;
// everything else is a 500.
func statusForError(err error) int {
	var cfgErr *models.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusUnprocessableEntity
	}
	if models.IsCollaboratorUnavailable(err) {
		return http.StatusServiceUnavailable
	}
	var inconsistent *models.InconsistentStateError
	if errors.As(err, &inconsistent) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
