package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driveschool-api/internal/models"
)

func TestSessionRepositoryNextSessionID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("INSERT INTO counters").
		WithArgs("physical_training").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	id, err := repo.NextSessionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PT0007", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "session_date", "session_time", "location", "vehicle_id", "instructor_id", "max_count", "current_count", "status", "qualification", "created_at", "updated_at"}).
		AddRow("PT0001", now, "09:00", "North Lot", "v1", "i1", 5, 2, models.SessionStatusPending, "B", now, now)
	mock.ExpectQuery("SELECT (.+) FROM training_sessions WHERE id =").
		WithArgs("PT0001").
		WillReturnRows(rows)

	session, err := repo.FindByID(context.Background(), "PT0001")
	require.NoError(t, err)
	assert.Equal(t, 2, session.CurrentCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("UPDATE training_sessions SET status").
		WithArgs("PT9999", models.SessionStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "PT9999", models.SessionStatusCompleted)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteIfEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM training_sessions").
		WithArgs("PT0001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, found, err := repo.DeleteIfEmpty(context.Background(), "PT0001")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.True(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteIfEmptyBlockedByEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM training_sessions").
		WithArgs("PT0001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM training_sessions").
		WithArgs("PT0001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	deleted, found, err := repo.DeleteIfEmpty(context.Background(), "PT0001")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteIfEmptyMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM training_sessions").
		WithArgs("PT9999").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM training_sessions").
		WithArgs("PT9999").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	deleted, found, err := repo.DeleteIfEmpty(context.Background(), "PT9999")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}
