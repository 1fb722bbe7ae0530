package repository

import (
	"context"
	"database/sql"
	"fmt"

	"attendsync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttendanceRepo 人事模块考勤记录的窄接入层
// 只做打卡流水需要的条件写入；排班分配、状态字典归人事模块管。
type AttendanceRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAttendanceRepo(db *sql.DB, logger *zap.Logger) *AttendanceRepo {
	return &AttendanceRepo{db: db, logger: logger}
}

// GetStaffShiftID 员工当前配置的班次；未配置返回 (nil, nil)
func (r *AttendanceRepo) GetStaffShiftID(ctx context.Context, staffID string) (*string, error) {
	query := `SELECT shift_id FROM staff WHERE id = $1`

	var shiftID sql.NullString
	err := r.db.QueryRowContext(ctx, query, staffID).Scan(&shiftID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query staff shift: %w", err)
	}
	if !shiftID.Valid {
		return nil, nil
	}
	return &shiftID.String, nil
}

// FindForDate 查员工某日的考勤记录
// 优先匹配指定班次；没有匹配时回退到该员工当日的任意记录，避免排班信息
// 过期/缺失把同一天打散成多条按班次分键的记录。
func (r *AttendanceRepo) FindForDate(ctx context.Context, staffID, date string, shiftID *string) (*models.AttendanceRecord, error) {
	if shiftID != nil {
		query := `
			SELECT id, staff_id, date, shift_id, clock_in, clock_out, status
			FROM attendance_records
			WHERE staff_id = $1 AND date = $2 AND shift_id = $3
			LIMIT 1`
		record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, staffID, date, *shiftID))
		if err != nil {
			return nil, err
		}
		if record != nil {
			return record, nil
		}
	}

	query := `
		SELECT id, staff_id, date, shift_id, clock_in, clock_out, status
		FROM attendance_records
		WHERE staff_id = $1 AND date = $2
		ORDER BY created_at ASC
		LIMIT 1`
	return r.scanRecord(r.db.QueryRowContext(ctx, query, staffID, date))
}

func (r *AttendanceRepo) scanRecord(row *sql.Row) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := row.Scan(&rec.ID, &rec.StaffID, &rec.Date, &rec.ShiftID,
		&rec.ClockIn, &rec.ClockOut, &rec.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance record: %w", err)
	}
	return &rec, nil
}

// InsertWithClockIn 当日还没有记录时新建一条带签到时间的考勤记录
func (r *AttendanceRepo) InsertWithClockIn(ctx context.Context, staffID, date string, shiftID *string, clockIn string) error {
	query := `
		INSERT INTO attendance_records (id, staff_id, date, shift_id, clock_in, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'present', NOW())`

	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), staffID, date, shiftID, clockIn); err != nil {
		return fmt.Errorf("failed to insert attendance record: %w", err)
	}
	return nil
}

// SetClockIn 条件写入签到时间（仅当 clock_in 为空）
func (r *AttendanceRepo) SetClockIn(ctx context.Context, recordID, clockIn string) error {
	query := `UPDATE attendance_records SET clock_in = $2 WHERE id = $1 AND clock_in IS NULL`

	if _, err := r.db.ExecContext(ctx, query, recordID, clockIn); err != nil {
		return fmt.Errorf("failed to set clock_in: %w", err)
	}
	return nil
}

// SetClockOut 条件写入签退时间（仅当 clock_out 为空）
func (r *AttendanceRepo) SetClockOut(ctx context.Context, recordID, clockOut string) error {
	query := `UPDATE attendance_records SET clock_out = $2 WHERE id = $1 AND clock_out IS NULL`

	if _, err := r.db.ExecContext(ctx, query, recordID, clockOut); err != nil {
		return fmt.Errorf("failed to set clock_out: %w", err)
	}
	return nil
}
