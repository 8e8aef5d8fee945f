package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/models"
	apperrors "github.com/tallerco/shopcore/pkg/errors"
)

// TenantService answers tenant membership questions for connection access
// checks and broadcast target resolution. Membership CRUD itself lives in the
// admin surface upstream.
type TenantService struct {
	db *gorm.DB
}

// NewTenantService constructs a TenantService.
func NewTenantService(db *gorm.DB) (*TenantService, error) {
	if db == nil {
		return nil, errors.New("tenant service: db is required")
	}
	return &TenantService{db: db}, nil
}

// HasAcceptedMembership reports whether the user holds an accepted membership
// in the tenant. Used as the access check for tenant-scoped connections.
func (s *TenantService) HasAcceptedMembership(ctx context.Context, userID, tenantID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TenantMembership{}).
		Where("user_id = ? AND tenant_id = ? AND is_accepted = ?", userID, tenantID, true).
		Count(&count).Error
	if err != nil {
		return false, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	return count > 0, nil
}

// AcceptedMemberIDs returns the user ids of all active, accepted members of a
// tenant. These are the per-user broadcast targets for tenant announcements.
func (s *TenantService) AcceptedMemberIDs(ctx context.Context, tenantID string) ([]string, error) {
	ctx = ensureContext(ctx)

	var userIDs []string
	err := s.db.WithContext(ctx).
		Model(&models.TenantMembership{}).
		Where("tenant_id = ? AND is_accepted = ? AND is_active = ?", tenantID, true, true).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	return userIDs, nil
}

// ActiveUserIDs returns every active platform user, the target set for
// platform-wide broadcasts.
func (s *TenantService) ActiveUserIDs(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)

	var userIDs []string
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_active = ?", true).
		Pluck("id", &userIDs).Error
	if err != nil {
		return nil, apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	return userIDs, nil
}
