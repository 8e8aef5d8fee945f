package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/api"
	"github.com/tallerco/shopcore/internal/app"
	iauth "github.com/tallerco/shopcore/internal/auth"
	"github.com/tallerco/shopcore/internal/database"
	"github.com/tallerco/shopcore/internal/realtime"
	"github.com/tallerco/shopcore/internal/services"
	"github.com/tallerco/shopcore/pkg/logger"
	"github.com/tallerco/shopcore/pkg/mail"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Bus       realtime.Bus
	Scheduler *services.Scheduler
	Router    *gin.Engine
}

// bootstrapRuntime initialises storage, the fan-out bus, services, the sweep
// scheduler, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Bus, err = initialiseBus(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.Issuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	prefSvc, err := services.NewPreferenceService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise preference service: %w", err)
	}

	tenantSvc, err := services.NewTenantService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise tenant service: %w", err)
	}

	var notifyOpts []services.NotificationOption
	if cfg.Email.Enabled {
		notifyOpts = append(notifyOpts, services.WithMailer(mail.NewSMTPMailer(mail.SMTPSettings{
			Enabled:  true,
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			UseTLS:   cfg.Email.UseTLS,
			Timeout:  cfg.Email.Timeout,
		})))
	}

	notificationSvc, err := services.NewNotificationService(stack.DB, stack.Bus, prefSvc, tenantSvc, notifyOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	stack.Scheduler, err = services.NewScheduler(stack.DB, notificationSvc,
		services.WithSweepSchedule(cfg.Notify.SweepSchedule))
	if err != nil {
		return nil, fmt.Errorf("initialise scheduler: %w", err)
	}
	if cfg.Notify.SweepEnabled {
		if err := stack.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("start scheduler: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:            stack.DB,
		JWT:           jwtSvc,
		Hub:           realtime.NewHub(stack.Bus),
		Notifications: notificationSvc,
		Preferences:   prefSvc,
		Tenants:       tenantSvc,
		Scheduler:     stack.Scheduler,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown releases resources in reverse order of acquisition.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s.Scheduler != nil {
		<-s.Scheduler.Stop().Done()
	}

	if bus, ok := s.Bus.(*realtime.RedisBus); ok && bus != nil {
		if err := bus.Close(); err != nil {
			log.Warn("redis bus close failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Options:  cfg.Database.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.MigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))
	return db, nil
}

func initialiseBus(ctx context.Context, cfg *app.Config, log *zap.Logger) (realtime.Bus, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Realtime.Driver)) {
	case "", "memory":
		return realtime.NewMemoryBus(), nil
	case "redis":
		bus, err := realtime.NewRedisBus(ctx, realtime.RedisBusConfig{
			URL:     cfg.Realtime.RedisURL,
			Timeout: cfg.Realtime.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis bus: %w", err)
		}
		log.Info("redis bus connected")
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported realtime driver %q", cfg.Realtime.Driver)
	}
}
