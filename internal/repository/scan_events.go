package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"attendsync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScanEventsRepo 原始打卡事件（append-only，审计 + 去重窗口查询）
type ScanEventsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewScanEventsRepo(db *sql.DB, logger *zap.Logger) *ScanEventsRepo {
	return &ScanEventsRepo{db: db, logger: logger}
}

// InsertEvent 写入一条打卡事件
// (device_id, enroll_id, scanned_at) 唯一，重放同一设备行时 ON CONFLICT DO NOTHING，
// 不会产生第二条记录。
func (r *ScanEventsRepo) InsertEvent(ctx context.Context, event *models.RawScanEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO raw_scan_events
			(id, device_id, enroll_id, staff_id, scanned_at, scan_date, scan_time, event_type, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_id, enroll_id, scanned_at) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.DeviceID, event.EnrollID, event.StaffID,
		event.ScannedAt, event.Date, event.Time, event.Type, event.Raw)
	if err != nil {
		return fmt.Errorf("failed to insert scan event: %w", err)
	}
	return nil
}

// HasRecentEventOfType 员工当日在 [since, until] 内是否已有同类型事件
// 用于同类型重复打卡抑制窗口；窗口刻意限定类型，签退紧跟签到不会被误判为重复。
func (r *ScanEventsRepo) HasRecentEventOfType(ctx context.Context, staffID, date, eventType string, since, until time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM raw_scan_events
			WHERE staff_id = $1 AND scan_date = $2 AND event_type = $3
			  AND scanned_at >= $4 AND scanned_at <= $5
		)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, staffID, date, eventType, since, until).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query recent events: %w", err)
	}
	return exists, nil
}

// ListEvents 按时间倒序列出某设备的打卡事件（管理端导出用）
func (r *ScanEventsRepo) ListEvents(ctx context.Context, deviceID string, limit int) ([]models.RawScanEvent, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, device_id, enroll_id, staff_id, scanned_at, scan_date, scan_time, event_type, raw
		FROM raw_scan_events
		WHERE device_id = $1
		ORDER BY scanned_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan events: %w", err)
	}
	defer rows.Close()

	var events []models.RawScanEvent
	for rows.Next() {
		var e models.RawScanEvent
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.EnrollID, &e.StaffID,
			&e.ScannedAt, &e.Date, &e.Time, &e.Type, &e.Raw); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scan events: %w", err)
	}
	return events, nil
}
