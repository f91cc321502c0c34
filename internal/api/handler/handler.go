// Package handler exposes the operations API: admin authentication,
// aggregate stats, the moderation queue and a live engine event feed.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ghostchat/backend/internal/config"
	"ghostchat/backend/internal/moderation"
	"ghostchat/backend/internal/storage"
)

// Handler carries the dependencies of the ops API.
type Handler struct {
	Storage    *storage.Service
	Moderation *moderation.Service
	Cfg        *config.Config
}

func NewHandler(s *storage.Service, mod *moderation.Service, cfg *config.Config) *Handler {
	return &Handler{Storage: s, Moderation: mod, Cfg: cfg}
}

// RegisterRoutes wires the ops endpoints onto the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth", h.Authenticate)

	ops := r.Group("/", h.RequireToken())
	{
		ops.GET("/stats", h.GetStats)
		ops.GET("/users/active", h.GetActiveUsers)
		ops.GET("/reports/next", h.GetNextReport)
		ops.POST("/reports/:id/dismiss", h.DismissReport)
		ops.POST("/reports/:id/resolve", h.ResolveReport)
		ops.POST("/moderation/ban", h.BanUser)
		ops.POST("/moderation/unban", h.UnbanUser)
		ops.POST("/moderation/tempban", h.TempBanUser)
		ops.POST("/moderation/mute", h.MuteUser)
		ops.POST("/moderation/unmute", h.UnmuteUser)
		ops.GET("/ws", h.ServeEventFeed)
	}
}

// GetStats returns the aggregate service snapshot.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Storage.Stats(time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetActiveUsers lists every user currently searching or chatting.
func (h *Handler) GetActiveUsers(c *gin.Context) {
	ids, err := h.Storage.ActiveUserIDs(time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load active users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(ids), "user_ids": ids})
}

// GetNextReport returns the oldest unresolved report, 204 when the queue
// is empty.
func (h *Handler) GetNextReport(c *gin.Context) {
	report, err := h.Moderation.NextOpenReport()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load reports"})
		return
	}
	if report == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) DismissReport(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report id"})
		return
	}
	if err := h.Moderation.DismissReport(uint(id), apiActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dismiss report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "dismissed"})
}

func (h *Handler) ResolveReport(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report id"})
		return
	}
	var req struct {
		BanHours int `json:"ban_hours" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ban_hours must be a positive integer"})
		return
	}
	duration := time.Duration(req.BanHours) * time.Hour
	if err := h.Moderation.ResolveReportWithTempBan(uint(id), apiActorID, duration); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (h *Handler) BanUser(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.Moderation.Ban(req.UserID, apiActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ban user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "banned"})
}

func (h *Handler) UnbanUser(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.Moderation.Unban(req.UserID, apiActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unban user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unbanned"})
}

func (h *Handler) TempBanUser(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
		Hours  int   `json:"hours" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and positive hours are required"})
		return
	}
	duration := time.Duration(req.Hours) * time.Hour
	if err := h.Moderation.TempBan(req.UserID, duration, apiActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to temp-ban user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "temp_banned"})
}

func (h *Handler) MuteUser(c *gin.Context) {
	var req struct {
		UserID  int64 `json:"user_id" binding:"required"`
		Minutes int   `json:"minutes" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and positive minutes are required"})
		return
	}
	duration := time.Duration(req.Minutes) * time.Minute
	if err := h.Moderation.Mute(req.UserID, duration, apiActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mute user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "muted"})
}

func (h *Handler) UnmuteUser(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.Moderation.Unmute(req.UserID, apiActorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unmute user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unmuted"})
}
