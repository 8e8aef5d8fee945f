package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/database/testutil"
	"github.com/tallerco/shopcore/internal/models"
	"github.com/tallerco/shopcore/internal/realtime"
	apperrors "github.com/tallerco/shopcore/pkg/errors"
)

type publishRecord struct {
	Group    string
	Envelope realtime.Envelope
}

// captureBus records publishes so tests can assert on live dispatch without
// real websocket sessions.
type captureBus struct {
	mu        sync.Mutex
	published []publishRecord
}

func (b *captureBus) GroupAdd(string, *realtime.Session)     {}
func (b *captureBus) GroupDiscard(string, *realtime.Session) {}

func (b *captureBus) Publish(_ context.Context, group string, env realtime.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishRecord{Group: group, Envelope: env})
	return nil
}

func (b *captureBus) records() []publishRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishRecord, len(b.published))
	copy(out, b.published)
	return out
}

func newNotificationTestStack(t *testing.T) (*gorm.DB, *NotificationService, *captureBus) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	bus := &captureBus{}

	prefs, err := NewPreferenceService(db)
	require.NoError(t, err)
	tenants, err := NewTenantService(db)
	require.NoError(t, err)
	svc, err := NewNotificationService(db, bus, prefs, tenants)
	require.NoError(t, err)

	return db, svc, bus
}

func createTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()

	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed-password",
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestNotificationServiceCreateAndList(t *testing.T) {
	db, svc, bus := newNotificationTestStack(t)
	user := createTestUser(t, db, "alice")

	ctx := context.Background()
	dto, err := svc.Create(ctx, CreateNotificationInput{
		UserID: user.ID,
		Type:   "order.shipped",
		Data:   map[string]any{"order_id": "ord-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)
	require.False(t, dto.IsRead)
	require.Equal(t, "ord-1", dto.Data["order_id"])

	items, err := svc.ListForUser(ctx, ListNotificationsInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, dto.ID, items[0].ID)

	// Live dispatch goes to the owner's group with the domain discriminator.
	published := bus.records()
	require.Len(t, published, 1)
	require.Equal(t, realtime.UserGroup(user.ID), published[0].Group)
	require.Equal(t, realtime.TypeOrderUpdate, published[0].Envelope.Type)
}

func TestNotificationServiceCreateValidation(t *testing.T) {
	db, svc, _ := newNotificationTestStack(t)
	user := createTestUser(t, db, "bob")

	ctx := context.Background()

	_, err := svc.Create(ctx, CreateNotificationInput{UserID: "", Type: "x"})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: ""})
	require.Error(t, err)

	longType := make([]byte, 65)
	for i := range longType {
		longType[i] = 'a'
	}
	_, err = svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: string(longType)})
	require.Error(t, err)
}

func TestNotificationServiceSetReadIdempotent(t *testing.T) {
	db, svc, _ := newNotificationTestStack(t)
	user := createTestUser(t, db, "carol")

	ctx := context.Background()
	created, err := svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "generic"})
	require.NoError(t, err)

	read, err := svc.SetRead(ctx, user.ID, created.ID, true)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)
	firstReadAt := *read.ReadAt

	// Marking read twice keeps the original timestamp.
	again, err := svc.SetRead(ctx, user.ID, created.ID, true)
	require.NoError(t, err)
	require.True(t, again.IsRead)
	require.WithinDuration(t, firstReadAt, *again.ReadAt, time.Millisecond)

	unread, err := svc.SetRead(ctx, user.ID, created.ID, false)
	require.NoError(t, err)
	require.False(t, unread.IsRead)
	require.Nil(t, unread.ReadAt)
}

func TestNotificationServiceSetReadScopedToOwner(t *testing.T) {
	db, svc, _ := newNotificationTestStack(t)
	owner := createTestUser(t, db, "owner")
	other := createTestUser(t, db, "other")

	ctx := context.Background()
	created, err := svc.Create(ctx, CreateNotificationInput{UserID: owner.ID, Type: "generic"})
	require.NoError(t, err)

	_, err = svc.SetRead(ctx, other.ID, created.ID, true)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	db, svc, _ := newNotificationTestStack(t)
	user := createTestUser(t, db, "dave")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "generic"})
		require.NoError(t, err)
	}

	updated, err := svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), updated)

	count, err := svc.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	// Nothing left to update.
	updated, err = svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, updated)
}

func TestNotificationServiceDelete(t *testing.T) {
	db, svc, _ := newNotificationTestStack(t)
	user := createTestUser(t, db, "erin")

	ctx := context.Background()
	created, err := svc.Create(ctx, CreateNotificationInput{UserID: user.ID, Type: "generic"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, user.ID, created.ID), apperrors.ErrNotFound)
}

func TestNotificationServiceBroadcastToTenant(t *testing.T) {
	db, svc, bus := newNotificationTestStack(t)

	tenant := models.Tenant{Name: "Acme", Slug: "acme"}
	require.NoError(t, db.Create(&tenant).Error)

	members := make([]models.User, 0, 3)
	for _, name := range []string{"m1", "m2", "m3"} {
		user := createTestUser(t, db, name)
		require.NoError(t, db.Create(&models.TenantMembership{
			TenantID:   tenant.ID,
			UserID:     user.ID,
			Role:       models.TenantRoleMember,
			IsAccepted: true,
			IsActive:   true,
		}).Error)
		members = append(members, user)
	}

	// Pending invitee must not receive the broadcast.
	pending := createTestUser(t, db, "pending")
	require.NoError(t, db.Create(&models.TenantMembership{
		TenantID:   tenant.ID,
		UserID:     pending.ID,
		Role:       models.TenantRoleMember,
		IsAccepted: false,
		IsActive:   true,
	}).Error)

	ctx := context.Background()
	created, err := svc.Broadcast(ctx, BroadcastInput{
		Type:     "tenant.announcement",
		Data:     map[string]any{"title": "Maintenance window"},
		TenantID: tenant.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 3, created)

	for _, member := range members {
		count, err := svc.UnreadCount(ctx, member.ID)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	}

	pendingCount, err := svc.UnreadCount(ctx, pending.ID)
	require.NoError(t, err)
	require.Zero(t, pendingCount)

	// Three per-user publishes plus one tenant room envelope.
	published := bus.records()
	require.Len(t, published, 4)
	last := published[len(published)-1]
	require.Equal(t, realtime.TenantGroup(tenant.ID), last.Group)
	require.Equal(t, realtime.TypeTenantUpdate, last.Envelope.Type)
}

func TestNotificationServiceBroadcastPlatformWide(t *testing.T) {
	db, svc, _ := newNotificationTestStack(t)

	active := createTestUser(t, db, "active")
	inactive := models.User{
		Username: "inactive",
		Email:    "inactive@example.com",
		Password: "hashed-password",
		IsActive: false,
	}
	require.NoError(t, db.Create(&inactive).Error)
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)

	ctx := context.Background()
	created, err := svc.Broadcast(ctx, BroadcastInput{Type: "generic"})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	count, err := svc.UnreadCount(ctx, active.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestListNotificationsInputNormalized(t *testing.T) {
	in := ListNotificationsInput{Limit: 0, Offset: -5}.Normalized()
	require.Equal(t, 25, in.Limit)
	require.Zero(t, in.Offset)

	in = ListNotificationsInput{Limit: 500, Offset: 10}.Normalized()
	require.Equal(t, 25, in.Limit)
	require.Equal(t, 10, in.Offset)

	in = ListNotificationsInput{Limit: 50, Offset: 10}.Normalized()
	require.Equal(t, 50, in.Limit)
	require.Equal(t, 10, in.Offset)
}

func TestEnvelopeTypeFor(t *testing.T) {
	require.Equal(t, realtime.TypeOrderUpdate, envelopeTypeFor("order.shipped"))
	require.Equal(t, realtime.TypePaymentUpdate, envelopeTypeFor("payment.failed"))
	require.Equal(t, realtime.TypeTenantUpdate, envelopeTypeFor("tenant.announcement"))
	require.Equal(t, realtime.TypeNotification, envelopeTypeFor("generic"))
}
