package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAttendanceRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AttendanceRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewAttendanceRepo(db, zap.NewNop())
}

func attendanceColumns() []string {
	return []string{"id", "staff_id", "date", "shift_id", "clock_in", "clock_out", "status"}
}

func TestFindForDate_PrefersShiftMatch(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	shiftID := "shift-day"
	rows := sqlmock.NewRows(attendanceColumns()).
		AddRow("a-1", "staff-9", "2025-03-10", shiftID, "08:31", nil, "present")

	mock.ExpectQuery(`shift_id = \$3`).
		WithArgs("staff-9", "2025-03-10", shiftID).
		WillReturnRows(rows)

	rec, err := repo.FindForDate(context.Background(), "staff-9", "2025-03-10", &shiftID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "a-1", rec.ID)
	require.NotNil(t, rec.ClockIn)
	assert.Equal(t, "08:31", *rec.ClockIn)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindForDate_FallsBackToAnyRecord(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	shiftID := "shift-night"

	// 班次匹配落空
	mock.ExpectQuery(`shift_id = \$3`).
		WithArgs("staff-9", "2025-03-10", shiftID).
		WillReturnError(sql.ErrNoRows)

	// 回退到当日任意记录
	rows := sqlmock.NewRows(attendanceColumns()).
		AddRow("a-2", "staff-9", "2025-03-10", "shift-day", "08:31", nil, "present")
	mock.ExpectQuery(`WHERE staff_id = \$1 AND date = \$2`).
		WithArgs("staff-9", "2025-03-10").
		WillReturnRows(rows)

	rec, err := repo.FindForDate(context.Background(), "staff-9", "2025-03-10", &shiftID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "a-2", rec.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindForDate_NoRecordReturnsNil(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE staff_id = \$1 AND date = \$2`).
		WithArgs("staff-9", "2025-03-10").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.FindForDate(context.Background(), "staff-9", "2025-03-10", nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetStaffShiftID(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT shift_id FROM staff`).
		WithArgs("staff-9").
		WillReturnRows(sqlmock.NewRows([]string{"shift_id"}).AddRow("shift-day"))

	shiftID, err := repo.GetStaffShiftID(context.Background(), "staff-9")
	require.NoError(t, err)
	require.NotNil(t, shiftID)
	assert.Equal(t, "shift-day", *shiftID)
}

func TestGetStaffShiftID_NullShift(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT shift_id FROM staff`).
		WithArgs("staff-9").
		WillReturnRows(sqlmock.NewRows([]string{"shift_id"}).AddRow(nil))

	shiftID, err := repo.GetStaffShiftID(context.Background(), "staff-9")
	require.NoError(t, err)
	assert.Nil(t, shiftID)
}

func TestInsertWithClockIn(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	shiftID := "shift-day"
	mock.ExpectExec(`INSERT INTO attendance_records`).
		WithArgs(sqlmock.AnyArg(), "staff-9", "2025-03-10", &shiftID, "08:31").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertWithClockIn(context.Background(), "staff-9", "2025-03-10", &shiftID, "08:31")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetClockOut_ConditionalOnNull(t *testing.T) {
	db, mock, repo := setupAttendanceRepo(t)
	defer db.Close()

	mock.ExpectExec(`SET clock_out = \$2 WHERE id = \$1 AND clock_out IS NULL`).
		WithArgs("a-1", "17:02").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetClockOut(context.Background(), "a-1", "17:02"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
