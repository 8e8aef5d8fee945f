package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/tallerco/shopcore/internal/auth"
	"github.com/tallerco/shopcore/internal/middleware"
	"github.com/tallerco/shopcore/internal/realtime"
	"github.com/tallerco/shopcore/internal/services"
	"github.com/tallerco/shopcore/pkg/errors"
	"github.com/tallerco/shopcore/pkg/logger"
	"github.com/tallerco/shopcore/pkg/response"
)

// WSHandler owns the websocket entry points. Authentication and tenant access
// checks happen here, before the HTTP connection is upgraded, so rejected
// clients get a plain HTTP error instead of a post-upgrade close frame.
type WSHandler struct {
	hub     *realtime.Hub
	jwt     *iauth.JWTService
	tenants *services.TenantService
	log     *zap.Logger
}

// NewWSHandler constructs a websocket handler.
func NewWSHandler(hub *realtime.Hub, jwt *iauth.JWTService, tenants *services.TenantService) (*WSHandler, error) {
	if hub == nil || jwt == nil || tenants == nil {
		return nil, errors.New("HANDLER_INIT", "websocket handler dependencies are required", http.StatusInternalServerError)
	}
	return &WSHandler{
		hub:     hub,
		jwt:     jwt,
		tenants: tenants,
		log:     logger.WithModule("handlers.ws"),
	}, nil
}

func (h *WSHandler) authenticate(c *gin.Context) (string, bool) {
	token := middleware.BearerToken(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}

	return claims.UserID, true
}

// Notifications serves the personal notification stream. Every session joins
// the user's own group and receives a hello frame once registered.
func (h *WSHandler) Notifications(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	h.hub.Serve(c.Writer, c.Request, userID, []string{realtime.UserGroup(userID)}, realtime.Envelope{
		Type:    realtime.TypeConnectionEstablished,
		Message: "Connected to notification service",
	})
}

// Tenant serves the tenant room stream. Only accepted members may join; the
// session also stays subscribed to the user's personal group so direct
// notifications keep flowing while the room is open.
func (h *WSHandler) Tenant(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if tenantID == "" {
		response.Error(c, errors.NewBadRequest("tenant id is required"))
		return
	}

	member, err := h.tenants.HasAcceptedMembership(requestContext(c), userID, tenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !member {
		h.log.Warn("tenant room refused",
			zap.String("user_id", userID),
			zap.String("tenant_id", tenantID))
		response.Error(c, errors.ErrTenantAccessDenied)
		return
	}

	groups := []string{realtime.TenantGroup(tenantID), realtime.UserGroup(userID)}
	h.hub.Serve(c.Writer, c.Request, userID, groups, realtime.Envelope{
		Type:     realtime.TypeConnectionEstablished,
		TenantID: tenantID,
		Message:  "Connected to tenant room",
	})
}
