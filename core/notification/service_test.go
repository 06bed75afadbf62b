package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core/notification"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/tests"
)

func TestService(t *testing.T) {
	db := testutil.PrepareDB(t)
	svc := notification.NewService(sqlxrepos.NewStore(db))
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice Admin", "alice@test.cd", user.RoleAdmin, "", true)
	bob := testutil.CreateUser(t, db, "Bob Teacher", "bob@test.cd", user.RoleTeacher, "", true)

	first, err := svc.Create(ctx, notification.NewNotification{UserID: alice.ID, Title: "Welcome", Message: "Hello Alice"})
	require.NoError(t, err)
	assert.False(t, first.Read)
	time.Sleep(time.Millisecond)
	second, err := svc.Create(ctx, notification.NewNotification{UserID: alice.ID, Title: "Reminder", Message: "Mark attendance"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, notification.NewNotification{UserID: bob.ID, Title: "Welcome", Message: "Hello Bob"})
	require.NoError(t, err)

	notifs, err := svc.QueryForUser(ctx, alice.ID, false)
	require.NoError(t, err)
	require.Len(t, notifs, 2)
	assert.Equal(t, second.ID, notifs[0].ID) // latest first

	t.Run("mark as read", func(t *testing.T) {
		read, err := svc.MarkAsRead(ctx, alice.ID, first.ID)
		require.NoError(t, err)
		assert.True(t, read.Read)

		// someone else's notification
		_, err = svc.MarkAsRead(ctx, bob.ID, second.ID)
		assert.Equal(t, notification.ErrNotFound, err)

		unread, err := svc.QueryForUser(ctx, alice.ID, true)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, second.ID, unread[0].ID)

		count, err := svc.CountUnread(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("mark all as read", func(t *testing.T) {
		require.NoError(t, svc.MarkAllAsRead(ctx, alice.ID))
		count, err := svc.CountUnread(ctx, alice.ID)
		require.NoError(t, err)
		assert.Zero(t, count)

		// others are untouched
		count, err = svc.CountUnread(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, bob.ID, first.ID)) // not bob's: no-op
		require.NoError(t, svc.Delete(ctx, alice.ID, first.ID))
		notifs, err := svc.QueryForUser(ctx, alice.ID, false)
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, second.ID, notifs[0].ID)
	})
}
