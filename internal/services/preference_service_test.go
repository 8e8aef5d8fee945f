package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tallerco/shopcore/internal/database/testutil"
	"github.com/tallerco/shopcore/internal/models"
)

func TestPreferenceServiceDefaultsToEnabled(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "prefs-default")

	enabled, err := svc.IsEnabled(context.Background(), user.ID, "order.shipped", models.ChannelEmail)
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestPreferenceServiceSetAndToggle(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "prefs-toggle")
	ctx := context.Background()

	dto, err := svc.Set(ctx, SetPreferenceInput{
		UserID:           user.ID,
		NotificationType: "order.shipped",
		Channel:          models.ChannelEmail,
		Enabled:          false,
	})
	require.NoError(t, err)
	require.False(t, dto.Enabled)

	enabled, err := svc.IsEnabled(ctx, user.ID, "order.shipped", models.ChannelEmail)
	require.NoError(t, err)
	require.False(t, enabled)

	// Other channels for the same type are untouched.
	enabled, err = svc.IsEnabled(ctx, user.ID, "order.shipped", models.ChannelPush)
	require.NoError(t, err)
	require.True(t, enabled)

	// Upsert flips the same row instead of creating another.
	again, err := svc.Set(ctx, SetPreferenceInput{
		UserID:           user.ID,
		NotificationType: "order.shipped",
		Channel:          models.ChannelEmail,
		Enabled:          true,
	})
	require.NoError(t, err)
	require.Equal(t, dto.ID, again.ID)
	require.True(t, again.Enabled)

	var count int64
	require.NoError(t, db.Model(&models.NotificationPreference{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestPreferenceServiceRejectsUnknownChannel(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	_, err = svc.Set(context.Background(), SetPreferenceInput{
		UserID:           "user-1",
		NotificationType: "order.shipped",
		Channel:          "sms",
		Enabled:          false,
	})
	require.Error(t, err)
}

func TestPreferenceServiceListForUser(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPreferenceService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "prefs-list")
	ctx := context.Background()

	for _, channel := range []string{models.ChannelEmail, models.ChannelPush} {
		_, err := svc.Set(ctx, SetPreferenceInput{
			UserID:           user.ID,
			NotificationType: "order.shipped",
			Channel:          channel,
			Enabled:          false,
		})
		require.NoError(t, err)
	}

	items, err := svc.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, models.ChannelEmail, items[0].Channel)
	require.Equal(t, models.ChannelPush, items[1].Channel)
}
