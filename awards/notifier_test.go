package awards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Dalmocabral/crewcenter/apperr"
	"github.com/Dalmocabral/crewcenter/models"
)

func TestNotifyDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	n := NewNotifier(NewGormStore(db), zaptest.NewLogger(t))
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")

	created, err := n.Notify(ctx, pilot, ReviewMessage("TAP", "101", true))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = n.Notify(ctx, pilot, ReviewMessage("TAP", "101", true))
	require.NoError(t, err)
	assert.False(t, created)

	other := createUser(t, db, "other")
	created, err = n.Notify(ctx, other, ReviewMessage("TAP", "101", true))
	require.NoError(t, err)
	assert.True(t, created, "same message for another recipient is distinct")

	assert.EqualValues(t, 1, countNotifications(t, db, pilot, "flight TAP101 was approved"))
}

func TestNotifyRejectsEmptyInput(t *testing.T) {
	n := NewNotifier(NewGormStore(setupTestDB(t)), nil)

	_, err := n.Notify(context.Background(), 0, "hello")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = n.Notify(context.Background(), 1, "   ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestListUnreadNewestFirstAndMarkRead(t *testing.T) {
	db := setupTestDB(t)
	n := NewNotifier(NewGormStore(db), nil)
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	other := createUser(t, db, "other")

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, msg := range []string{"first", "second", "third"} {
		require.NoError(t, db.Create(&models.Notification{UserID: pilot, Message: msg, CreatedAt: base.Add(time.Duration(i) * time.Hour)}).Error)
	}
	require.NoError(t, db.Create(&models.Notification{UserID: other, Message: "not yours"}).Error)

	items, err := n.ListUnread(ctx, pilot)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{items[0].Message, items[1].Message, items[2].Message})

	require.NoError(t, n.MarkRead(ctx, pilot, items[0].ID))
	require.NoError(t, n.MarkRead(ctx, pilot, items[0].ID), "marking twice is a no-op")

	items, err = n.ListUnread(ctx, pilot)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	var foreign models.Notification
	require.NoError(t, db.Where("user_id = ?", other).First(&foreign).Error)
	err = n.MarkRead(ctx, pilot, foreign.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = n.MarkRead(ctx, pilot, 9999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMessageTemplates(t *testing.T) {
	assert.Equal(t, "flight BAW15 was rejected", ReviewMessage("BAW", "15", false))
	assert.Equal(t, "a new tour 'Tour A' was created", AwardCreatedMessage("Tour A"))
	assert.Contains(t, CompletionMessage("Tour A"), "'Tour A'")
}
