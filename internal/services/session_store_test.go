package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(time.Hour, func() time.Time { return now })

	t.Run("Missing Session", func(t *testing.T) {
		session, err := store.Get(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("Save And Get Copy", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &models.Session{UserID: 1, State: models.StateAwaitingDestination}))

		session, err := store.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, models.StateAwaitingDestination, session.State)

		session.State = models.StateAwaitingQuantity
		again, _ := store.Get(ctx, 1)
		assert.Equal(t, models.StateAwaitingDestination, again.State)
	})

	t.Run("Expires After TTL", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &models.Session{UserID: 2}))
		now = now.Add(61 * time.Minute)

		session, err := store.Get(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &models.Session{UserID: 3}))
		require.NoError(t, store.Delete(ctx, 3))

		session, err := store.Get(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, session)
	})
}

func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisSessionStore(client, time.Minute)
	userID := time.Now().UnixNano()

	bookingID := int64(10)
	require.NoError(t, store.Save(ctx, &models.Session{
		UserID:    userID,
		State:     models.StateAwaitingConfirmation,
		Draft:     models.BookingDraft{Departure: "Berlin", Quantity: 2},
		BookingID: &bookingID,
	}))

	session, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "Berlin", session.Draft.Departure)
	assert.Equal(t, int64(10), *session.BookingID)

	require.NoError(t, store.Delete(ctx, userID))
	session, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, session)
}
