package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/models"
	apperrors "github.com/tallerco/shopcore/pkg/errors"
)

// PreferenceDTO is the API-facing view of one delivery toggle.
type PreferenceDTO struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	NotificationType string `json:"notification_type"`
	Channel          string `json:"channel"`
	Enabled          bool   `json:"enabled"`
}

// SetPreferenceInput identifies the unique (user, type, channel) triple and the
// desired state.
type SetPreferenceInput struct {
	UserID           string
	NotificationType string
	Channel          string
	Enabled          bool
}

// PreferenceService is the preference registry: per-user, per-type, per-channel
// delivery toggles. A missing row means the channel is enabled; that default
// matches the reference platform where preferences only ever opt users out.
type PreferenceService struct {
	db *gorm.DB
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB) (*PreferenceService, error) {
	if db == nil {
		return nil, errors.New("preference service: db is required")
	}
	return &PreferenceService{db: db}, nil
}

// IsEnabled reports whether the channel is enabled for the user and type.
// Missing rows default to enabled.
func (s *PreferenceService) IsEnabled(ctx context.Context, userID, notificationType, channel string) (bool, error) {
	ctx = ensureContext(ctx)

	var pref models.NotificationPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND notification_type = ? AND channel = ?", userID, notificationType, channel).
		First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return true, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	return pref.Enabled, nil
}

// Set upserts the toggle for the unique (user, type, channel) triple.
func (s *PreferenceService) Set(ctx context.Context, input SetPreferenceInput) (*PreferenceDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	notificationType := strings.TrimSpace(input.NotificationType)
	if userID == "" || notificationType == "" {
		return nil, errors.New("preference service: user id and notification type are required")
	}
	if !models.KnownChannel(input.Channel) {
		return nil, fmt.Errorf("preference service: unknown channel %q", input.Channel)
	}

	pref := models.NotificationPreference{
		UserID:           userID,
		NotificationType: notificationType,
		Channel:          input.Channel,
	}

	err := s.db.WithContext(ctx).
		Where(models.NotificationPreference{
			UserID:           userID,
			NotificationType: notificationType,
			Channel:          input.Channel,
		}).
		FirstOrCreate(&pref).Error
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	if pref.Enabled != input.Enabled {
		if err := s.db.WithContext(ctx).
			Model(&pref).
			Update("enabled", input.Enabled).Error; err != nil {
			return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
		}
		pref.Enabled = input.Enabled
	}

	dto := mapPreference(pref)
	return &dto, nil
}

// ListForUser returns every explicit toggle the user has stored.
func (s *PreferenceService) ListForUser(ctx context.Context, userID string) ([]PreferenceDTO, error) {
	ctx = ensureContext(ctx)

	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("notification_type, channel").
		Find(&rows).Error; err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	items := make([]PreferenceDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapPreference(row))
	}
	return items, nil
}

func mapPreference(row models.NotificationPreference) PreferenceDTO {
	return PreferenceDTO{
		ID:               row.ID,
		UserID:           row.UserID,
		NotificationType: row.NotificationType,
		Channel:          row.Channel,
		Enabled:          row.Enabled,
	}
}
