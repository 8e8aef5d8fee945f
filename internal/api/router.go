package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/tallerco/shopcore/internal/auth"
	"github.com/tallerco/shopcore/internal/handlers"
	"github.com/tallerco/shopcore/internal/middleware"
	"github.com/tallerco/shopcore/internal/realtime"
	"github.com/tallerco/shopcore/internal/services"
)

// Dependencies bundles everything the router needs to wire handlers.
type Dependencies struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Hub           *realtime.Hub
	Notifications *services.NotificationService
	Preferences   *services.PreferenceService
	Tenants       *services.TenantService
	Scheduler     *services.Scheduler
}

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications, deps.Scheduler)
	if err != nil {
		return nil, err
	}
	preferenceHandler, err := handlers.NewPreferenceHandler(deps.Preferences)
	if err != nil {
		return nil, err
	}
	wsHandler, err := handlers.NewWSHandler(deps.Hub, deps.JWT, deps.Tenants)
	if err != nil {
		return nil, err
	}
	healthHandler := handlers.NewHealthHandler(deps.DB)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	{
		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread_count", notificationHandler.UnreadCount)
			notifications.POST("", notificationHandler.Create)
			notifications.POST("/broadcast", notificationHandler.Broadcast)
			notifications.POST("/schedule", notificationHandler.Schedule)
			notifications.POST("/mark_all_read", notificationHandler.MarkAllRead)
			notifications.PATCH("/:id/read", notificationHandler.MarkRead)
			notifications.PATCH("/:id/unread", notificationHandler.MarkUnread)
			notifications.DELETE("/:id", notificationHandler.Delete)
		}

		preferences := api.Group("/preferences")
		{
			preferences.GET("", preferenceHandler.List)
			preferences.PUT("", preferenceHandler.Set)
		}
	}

	// Websocket endpoints authenticate inside the handler so refusals are
	// plain HTTP errors issued before the upgrade.
	ws := router.Group("/ws")
	{
		ws.GET("/notifications", wsHandler.Notifications)
		ws.GET("/tenant/:tenant_id", wsHandler.Tenant)
	}

	return router, nil
}
