package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallerco/shopcore/internal/models"
)

func TestSchedulerRunSweepDeliversDueOnce(t *testing.T) {
	db, notifications, _ := newNotificationTestStack(t)
	user := createTestUser(t, db, "sweep-user")

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	scheduler, err := NewScheduler(db, notifications, WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = scheduler.Schedule(ctx, user.ID, "order.reminder", map[string]any{"order_id": "ord-9"}, now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = scheduler.Schedule(ctx, user.ID, "generic", nil, now)
	require.NoError(t, err)
	_, err = scheduler.Schedule(ctx, user.ID, "future", nil, now.Add(time.Hour))
	require.NoError(t, err)

	delivered, err := scheduler.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, delivered)

	count, err := notifications.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// A second sweep at the same instant must not re-deliver.
	delivered, err = scheduler.RunSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, delivered)

	count, err = notifications.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	var sentRows []models.ScheduledNotification
	require.NoError(t, db.Where("sent = ?", true).Find(&sentRows).Error)
	require.Len(t, sentRows, 2)
	for _, row := range sentRows {
		require.NotNil(t, row.SentAt)
	}
}

func TestSchedulerRunSweepOrdersOldestFirst(t *testing.T) {
	db, notifications, bus := newNotificationTestStack(t)
	user := createTestUser(t, db, "sweep-order")

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	scheduler, err := NewScheduler(db, notifications, WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = scheduler.Schedule(ctx, user.ID, "second", nil, now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = scheduler.Schedule(ctx, user.ID, "first", nil, now.Add(-time.Hour))
	require.NoError(t, err)

	delivered, err := scheduler.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, delivered)

	published := bus.records()
	require.Len(t, published, 2)
	firstData, ok := published[0].Envelope.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "first", firstData["type"])
}

func TestSchedulerScheduleValidation(t *testing.T) {
	db, notifications, _ := newNotificationTestStack(t)

	scheduler, err := NewScheduler(db, notifications)
	require.NoError(t, err)

	_, err = scheduler.Schedule(context.Background(), "", "generic", nil, time.Now())
	require.Error(t, err)
	_, err = scheduler.Schedule(context.Background(), "user-1", "", nil, time.Now())
	require.Error(t, err)
}

func TestSchedulerStartRejectsBadSchedule(t *testing.T) {
	db, notifications, _ := newNotificationTestStack(t)

	scheduler, err := NewScheduler(db, notifications, WithSweepSchedule("not a cron spec"))
	require.NoError(t, err)

	require.Error(t, scheduler.Start())
}
