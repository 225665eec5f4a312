package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestUpsertUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		username := "alice"
		now := time.Now()
		user := &models.User{ID: 42, Username: &username}

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(int64(42), "alice", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		err := repo.Upsert(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, now, user.CreatedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		user := &models.User{ID: 42}

		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Upsert(ctx, user)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert user")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "created_at", "updated_at"}).
				AddRow(int64(42), "alice", "Alice Smith", now, now))

		user, err := repo.GetByID(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "@alice (42)", user.Handle())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		user, err := repo.GetByID(ctx, 7)
		assert.NoError(t, err)
		assert.Nil(t, user)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
