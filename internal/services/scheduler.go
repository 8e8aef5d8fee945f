package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/models"
	apperrors "github.com/tallerco/shopcore/pkg/errors"
	"github.com/tallerco/shopcore/pkg/logger"
	"github.com/tallerco/shopcore/pkg/metrics"
)

const defaultSweepSchedule = "*/5 * * * *"

// Scheduler runs the periodic scheduled-notification sweep: due rows are
// delivered through the notification service and flipped to sent one by one,
// so a partial sweep failure never re-delivers rows already marked.
type Scheduler struct {
	db            *gorm.DB
	notifications *NotificationService
	cron          *cron.Cron
	schedule      string
	now           func() time.Time
	log           *zap.Logger

	mu sync.Mutex // one sweep at a time
}

// SchedulerOption customises the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSweepSchedule overrides the cron specification for the sweep.
func WithSweepSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for due-row selection.
func WithNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler constructs a Scheduler with the default five-minute cadence.
func NewScheduler(db *gorm.DB, notifications *NotificationService, opts ...SchedulerOption) (*Scheduler, error) {
	if db == nil {
		return nil, errors.New("scheduler: db is required")
	}
	if notifications == nil {
		return nil, errors.New("scheduler: notification service is required")
	}

	s := &Scheduler{
		db:            db,
		notifications: notifications,
		schedule:      defaultSweepSchedule,
		now:           time.Now,
		log:           logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s, nil
}

// Start registers the sweep with the cron scheduler and launches it.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunSweep(context.Background()); err != nil {
			s.log.Warn("sweep finished with errors", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduler: register sweep: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to complete.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunSweep delivers every due, unsent scheduled notification exactly once and
// returns the number delivered. Rows are processed oldest first. A row is
// flipped to sent only after its notification was durably created, so failed
// rows are retried on the next sweep while sent rows never re-deliver.
func (s *Scheduler) RunSweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var due []models.ScheduledNotification
	if err := s.db.WithContext(ctx).
		Where("scheduled_for <= ? AND sent = ?", now, false).
		Order("scheduled_for ASC").
		Find(&due).Error; err != nil {
		return 0, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	var errs error
	delivered := 0
	for _, row := range due {
		if _, err := s.notifications.Create(ctx, CreateNotificationInput{
			UserID: row.UserID,
			Type:   row.Type,
			Data:   decodeJSON(row.Data),
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deliver scheduled %s: %w", row.ID, err))
			continue
		}

		sentAt := now
		if err := s.db.WithContext(ctx).
			Model(&models.ScheduledNotification{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{"sent": true, "sent_at": sentAt}).Error; err != nil {
			// The notification exists but the row stayed unsent; the next sweep
			// re-delivers. At-least-once is the accepted trade-off here.
			errs = multierr.Append(errs, fmt.Errorf("mark scheduled %s sent: %w", row.ID, err))
			continue
		}

		metrics.SweepDelivered.Inc()
		delivered++
	}

	if delivered > 0 || errs != nil {
		s.log.Info("sweep complete",
			zap.Int("due", len(due)),
			zap.Int("delivered", delivered),
		)
	}
	return delivered, errs
}

// Schedule persists a notification for future delivery by the sweep.
func (s *Scheduler) Schedule(ctx context.Context, userID, notificationType string, data map[string]any, at time.Time) (*models.ScheduledNotification, error) {
	ctx = ensureContext(ctx)

	if userID == "" || notificationType == "" {
		return nil, errors.New("scheduler: user id and type are required")
	}

	payload, err := encodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("scheduler: marshal data: %w", err)
	}

	row := models.ScheduledNotification{
		UserID:       userID,
		Type:         notificationType,
		Data:         payload,
		ScheduledFor: at.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}
	return &row, nil
}
