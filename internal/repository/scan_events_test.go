package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"attendsync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupScanEventsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ScanEventsRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewScanEventsRepo(db, zap.NewNop())
}

func TestInsertEvent_AssignsIDAndInserts(t *testing.T) {
	db, mock, repo := setupScanEventsRepo(t)
	defer db.Close()

	staffID := "staff-9"
	event := &models.RawScanEvent{
		DeviceID:  "terminal-1",
		EnrollID:  "12",
		StaffID:   &staffID,
		ScannedAt: time.Date(2025, 3, 10, 8, 31, 2, 0, time.UTC),
		Date:      "2025-03-10",
		Time:      "08:31",
		Type:      models.EventCheckIn,
		Raw:       `{"enrollId":"12"}`,
	}

	mock.ExpectExec(`INSERT INTO raw_scan_events`).
		WithArgs(sqlmock.AnyArg(), "terminal-1", "12", &staffID,
			event.ScannedAt, "2025-03-10", "08:31", models.EventCheckIn, event.Raw).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertEvent(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvent_ConflictIsSilent(t *testing.T) {
	db, mock, repo := setupScanEventsRepo(t)
	defer db.Close()

	// ON CONFLICT DO NOTHING：同一行重放影响 0 行，不报错
	mock.ExpectExec(`INSERT INTO raw_scan_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	event := &models.RawScanEvent{
		DeviceID:  "terminal-1",
		EnrollID:  "12",
		ScannedAt: time.Now(),
		Type:      models.EventUnknownEnroll,
	}
	assert.NoError(t, repo.InsertEvent(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRecentEventOfType(t *testing.T) {
	db, mock, repo := setupScanEventsRepo(t)
	defer db.Close()

	since := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	until := since.Add(time.Minute)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("staff-9", "2025-03-10", models.EventCheckIn, since, until).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := repo.HasRecentEventOfType(context.Background(),
		"staff-9", "2025-03-10", models.EventCheckIn, since, until)
	require.NoError(t, err)
	assert.True(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents(t *testing.T) {
	db, mock, repo := setupScanEventsRepo(t)
	defer db.Close()

	staffID := "staff-9"
	rows := sqlmock.NewRows([]string{
		"id", "device_id", "enroll_id", "staff_id", "scanned_at", "scan_date", "scan_time", "event_type", "raw",
	}).
		AddRow("e-2", "terminal-1", "12", staffID, time.Now(), "2025-03-10", "17:02", models.EventCheckOut, "{}").
		AddRow("e-1", "terminal-1", "12", staffID, time.Now(), "2025-03-10", "08:31", models.EventCheckIn, "{}")

	mock.ExpectQuery(`FROM raw_scan_events`).
		WithArgs("terminal-1", 100).
		WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background(), "terminal-1", 100)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventCheckOut, events[0].Type)

	assert.NoError(t, mock.ExpectationsWereMet())
}
