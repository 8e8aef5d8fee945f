package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tallerco/shopcore/internal/middleware"
	"github.com/tallerco/shopcore/internal/services"
	"github.com/tallerco/shopcore/pkg/errors"
	"github.com/tallerco/shopcore/pkg/response"
)

// PreferenceHandler exposes notification delivery toggles.
type PreferenceHandler struct {
	service *services.PreferenceService
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(service *services.PreferenceService) (*PreferenceHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_INIT", "preference service is required", http.StatusInternalServerError)
	}
	return &PreferenceHandler{service: service}, nil
}

// List returns every explicit preference the current user has stored.
func (h *PreferenceHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	items, err := h.service.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Set upserts the toggle for one (type, channel) pair.
func (h *PreferenceHandler) Set(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		NotificationType string `json:"notification_type" validate:"required,max=64"`
		Channel          string `json:"channel" validate:"required,oneof=email push in_app"`
		Enabled          *bool  `json:"enabled" validate:"required"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Set(requestContext(c), services.SetPreferenceInput{
		UserID:           userID,
		NotificationType: payload.NotificationType,
		Channel:          payload.Channel,
		Enabled:          *payload.Enabled,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}
