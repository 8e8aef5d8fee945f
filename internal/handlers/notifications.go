package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tallerco/shopcore/internal/middleware"
	"github.com/tallerco/shopcore/internal/services"
	"github.com/tallerco/shopcore/pkg/errors"
	"github.com/tallerco/shopcore/pkg/response"
)

// NotificationHandler exposes the pull-style notification endpoints clients
// use to catch up after reconnecting.
type NotificationHandler struct {
	service   *services.NotificationService
	scheduler *services.Scheduler
}

// NewNotificationHandler constructs a notification handler. The scheduler may
// be nil when future delivery is disabled.
func NewNotificationHandler(service *services.NotificationService, scheduler *services.Scheduler) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_INIT", "notification service is required", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service, scheduler: scheduler}, nil
}

// List returns notifications for the current user, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	input := services.ListNotificationsInput{
		UserID: userID,
		Limit:  parseIntQuery(c, "limit", 25),
		Offset: parseIntQuery(c, "offset", 0),
	}.Normalized()

	items, err := h.service.ListForUser(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
}

// UnreadCount returns the number of unread notifications for the current user.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	dto, err := h.service.SetRead(requestContext(c), userID, id, read)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead marks every unread notification for the current user as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Create lets internal systems persist (and live-dispatch) a notification.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload struct {
		UserID string         `json:"user_id" validate:"required"`
		Type   string         `json:"type" validate:"required,max=64"`
		Data   map[string]any `json:"data"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	var issuerID *string
	if id := c.GetString(middleware.CtxUserIDKey); id != "" && id != payload.UserID {
		issuerID = &id
	}

	dto, err := h.service.Create(requestContext(c), services.CreateNotificationInput{
		UserID:   payload.UserID,
		Type:     payload.Type,
		Data:     payload.Data,
		IssuerID: issuerID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// Schedule persists a notification for future delivery by the sweep.
func (h *NotificationHandler) Schedule(c *gin.Context) {
	if h.scheduler == nil {
		response.Error(c, errors.New("SCHEDULER_DISABLED", "scheduled delivery is disabled", http.StatusServiceUnavailable))
		return
	}

	var payload struct {
		UserID       string         `json:"user_id" validate:"required"`
		Type         string         `json:"type" validate:"required,max=64"`
		Data         map[string]any `json:"data"`
		ScheduledFor time.Time      `json:"scheduled_for" validate:"required"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	row, err := h.scheduler.Schedule(requestContext(c), payload.UserID, payload.Type, payload.Data, payload.ScheduledFor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"id":            row.ID,
		"user_id":       row.UserID,
		"type":          row.Type,
		"scheduled_for": row.ScheduledFor,
	})
}

// Broadcast fans a notification out to every active user, or to all accepted
// members of a tenant when tenant_id is supplied.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var payload struct {
		Type     string         `json:"type" validate:"required,max=64"`
		Data     map[string]any `json:"data"`
		TenantID string         `json:"tenant_id"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	var issuerID *string
	if id := c.GetString(middleware.CtxUserIDKey); id != "" {
		issuerID = &id
	}

	created, err := h.service.Broadcast(requestContext(c), services.BroadcastInput{
		Type:     payload.Type,
		Data:     payload.Data,
		TenantID: payload.TenantID,
		IssuerID: issuerID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"broadcast_to": created})
}
