package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/models"
	"github.com/tallerco/shopcore/internal/realtime"
	apperrors "github.com/tallerco/shopcore/pkg/errors"
	"github.com/tallerco/shopcore/pkg/logger"
	"github.com/tallerco/shopcore/pkg/mail"
	"github.com/tallerco/shopcore/pkg/metrics"
)

// NotificationDTO is the API-facing notification payload. IsRead mirrors the
// ReadAt column so clients never interpret timestamps themselves.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	IssuerID  *string        `json:"issuer_id,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID   string
	Type     string
	Data     map[string]any
	IssuerID *string
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID string
	Limit  int
	Offset int
}

// Normalized clamps paging to the supported window so callers and responses
// agree on the effective values.
func (in ListNotificationsInput) Normalized() ListNotificationsInput {
	if in.Limit <= 0 || in.Limit > 100 {
		in.Limit = 25
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	return in
}

// BroadcastInput targets either every active user (TenantID empty) or all
// active, accepted members of one tenant.
type BroadcastInput struct {
	Type     string
	Data     map[string]any
	TenantID string
	IssuerID *string
}

// NotificationService is both the notification store and the event dispatcher:
// Create persists the row and then, explicitly, publishes the live envelope.
// The store commit always happens before the publish, so a client that pulls
// immediately after connecting sees at least what was pushed.
type NotificationService struct {
	db      *gorm.DB
	bus     realtime.Bus
	prefs   *PreferenceService
	tenants *TenantService
	mailer  mail.Mailer
	log     *zap.Logger
}

// NotificationOption customises the NotificationService.
type NotificationOption func(*NotificationService)

// WithMailer enables the preference-gated email channel.
func WithMailer(m mail.Mailer) NotificationOption {
	return func(s *NotificationService) {
		s.mailer = m
	}
}

// NewNotificationService constructs a NotificationService. The bus may be nil
// for pull-only deployments; live dispatch is skipped in that case.
func NewNotificationService(db *gorm.DB, bus realtime.Bus, prefs *PreferenceService, tenants *TenantService, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}

	svc := &NotificationService{
		db:      db,
		bus:     bus,
		prefs:   prefs,
		tenants: tenants,
		log:     logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create persists a notification and dispatches the live envelope to the
// owner's group. Publish failures are logged and swallowed: the row is already
// durable and the client reconciles via pull on reconnect.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}
	if len(notificationType) > 64 {
		return nil, fmt.Errorf("notification service: type exceeds 64 characters")
	}

	data, err := encodeJSON(input.Data)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal data: %w", err)
	}

	notification := models.Notification{
		UserID:   userID,
		Type:     notificationType,
		Data:     data,
		IssuerID: input.IssuerID,
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	dto := mapNotification(notification)
	s.dispatch(ctx, dto)
	s.sendEmail(ctx, dto)

	return &dto, nil
}

// SetRead toggles the read flag. Requesting the state already held is a no-op
// and never refreshes the read timestamp.
func (s *NotificationService) SetRead(ctx context.Context, userID, notificationID string, read bool) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	if notification.SetRead(read) {
		if err := s.db.WithContext(ctx).
			Model(&notification).
			Update("read_at", notification.ReadAt).Error; err != nil {
			return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
		}
	}

	dto := mapNotification(notification)
	return &dto, nil
}

// MarkAllRead stamps every unread notification for the user in one statement
// and returns how many rows changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", now)
	if result.Error != nil {
		return 0, apperrors.ErrStorageUnavailable.WithInternal(result.Error)
	}

	return result.RowsAffected, nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	input = input.Normalized()

	var rows []models.Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(input.Limit).
		Offset(input.Offset).
		Find(&rows).Error; err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items, nil
}

// UnreadCount returns the number of unread notifications for the user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return 0, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	return count, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return apperrors.ErrStorageUnavailable.WithInternal(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Broadcast creates one independent notification per target user. Each row is
// created and dispatched on its own; a failure for one user does not roll back
// the others. When a tenant is targeted, a tenant_update envelope additionally
// goes to the tenant room so connected members see the announcement live.
func (s *NotificationService) Broadcast(ctx context.Context, input BroadcastInput) (int, error) {
	ctx = ensureContext(ctx)

	if s.tenants == nil {
		return 0, errors.New("notification service: tenant service is required for broadcast")
	}

	var (
		userIDs []string
		err     error
	)
	if input.TenantID != "" {
		userIDs, err = s.tenants.AcceptedMemberIDs(ctx, input.TenantID)
	} else {
		userIDs, err = s.tenants.ActiveUserIDs(ctx)
	}
	if err != nil {
		return 0, err
	}

	var errs error
	created := 0
	for _, userID := range userIDs {
		if _, err := s.Create(ctx, CreateNotificationInput{
			UserID:   userID,
			Type:     input.Type,
			Data:     input.Data,
			IssuerID: input.IssuerID,
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("broadcast to %s: %w", userID, err))
			continue
		}
		created++
	}

	if input.TenantID != "" && s.bus != nil && created > 0 {
		env := realtime.Envelope{
			Type:     realtime.TypeTenantUpdate,
			Data:     input.Data,
			TenantID: input.TenantID,
		}
		if err := s.bus.Publish(ctx, realtime.TenantGroup(input.TenantID), env); err != nil {
			s.log.Warn("tenant room publish failed", zap.String("tenant_id", input.TenantID), zap.Error(err))
		}
	}

	s.log.Info("broadcast complete",
		zap.String("type", input.Type),
		zap.String("tenant_id", input.TenantID),
		zap.Int("created", created),
		zap.Int("targets", len(userIDs)),
	)
	return created, errs
}

// dispatch publishes the live envelope for a freshly created notification.
func (s *NotificationService) dispatch(ctx context.Context, dto NotificationDTO) {
	if s.bus == nil {
		return
	}

	env := realtime.Envelope{
		Type: envelopeTypeFor(dto.Type),
		Data: map[string]any{
			"id":         dto.ID,
			"type":       dto.Type,
			"data":       dto.Data,
			"is_read":    dto.IsRead,
			"created_at": dto.CreatedAt,
		},
	}

	if err := s.bus.Publish(ctx, realtime.UserGroup(dto.UserID), env); err != nil {
		// Best-effort: the row is durable, the client catches up via pull.
		s.log.Warn("live publish failed",
			zap.String("notification_id", dto.ID),
			zap.String("user_id", dto.UserID),
			zap.Error(err),
		)
	}
}

// sendEmail delivers the email channel copy when a mailer is configured and
// the user has not disabled the (user, type, email) preference. Live in-app
// delivery deliberately skips the preference registry, matching the pull API.
func (s *NotificationService) sendEmail(ctx context.Context, dto NotificationDTO) {
	if s.mailer == nil || s.prefs == nil {
		return
	}

	enabled, err := s.prefs.IsEnabled(ctx, dto.UserID, dto.Type, models.ChannelEmail)
	if err != nil {
		s.log.Warn("preference lookup failed, defaulting to enabled", zap.Error(err))
	}
	if !enabled {
		return
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("email").First(&user, "id = ?", dto.UserID).Error; err != nil {
		s.log.Warn("email lookup failed", zap.String("user_id", dto.UserID), zap.Error(err))
		return
	}

	msg := mail.Message{
		To:      []string{user.Email},
		Subject: fmt.Sprintf("Notification: %s", dto.Type),
		Body:    fmt.Sprintf("You have a new %s notification.", dto.Type),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("email send failed", zap.String("user_id", dto.UserID), zap.Error(err))
	}
}

// envelopeTypeFor maps a notification type tag to the wire discriminator the
// client-side routers key on. Domain-tagged types keep their own envelopes.
func envelopeTypeFor(notificationType string) string {
	switch {
	case strings.HasPrefix(notificationType, "order."):
		return realtime.TypeOrderUpdate
	case strings.HasPrefix(notificationType, "payment."):
		return realtime.TypePaymentUpdate
	case strings.HasPrefix(notificationType, "tenant."):
		return realtime.TypeTenantUpdate
	default:
		return realtime.TypeNotification
	}
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Data:      decodeJSON(row.Data),
		IsRead:    row.IsRead(),
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
		IssuerID:  row.IssuerID,
	}
}
