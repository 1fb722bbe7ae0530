package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"attendsync/internal/models"

	"go.uber.org/zap"
)

// CursorsRepo 每台设备的同步游标（本服务是唯一写入方）
type CursorsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCursorsRepo(db *sql.DB, logger *zap.Logger) *CursorsRepo {
	return &CursorsRepo{db: db, logger: logger}
}

// GetCursor 读取设备游标；没有记录返回 (nil, nil)
func (r *CursorsRepo) GetCursor(ctx context.Context, deviceID string) (*models.SyncCursor, error) {
	query := `
		SELECT device_id, last_timestamp, last_success_at, last_error_at, last_error
		FROM sync_cursors
		WHERE device_id = $1`

	var c models.SyncCursor
	err := r.db.QueryRowContext(ctx, query, deviceID).
		Scan(&c.DeviceID, &c.LastTimestamp, &c.LastSuccessAt, &c.LastErrorAt, &c.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync cursor: %w", err)
	}
	return &c, nil
}

// SaveSuccess 同步成功后落盘游标
// lastTimestamp 由调用方保证单调（取本轮最大值与旧游标的较大者）；
// 传 nil 表示时钟偏移保护后的主动清空。
func (r *CursorsRepo) SaveSuccess(ctx context.Context, deviceID string, lastTimestamp *time.Time) error {
	query := `
		INSERT INTO sync_cursors (device_id, last_timestamp, last_success_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			last_timestamp  = EXCLUDED.last_timestamp,
			last_success_at = EXCLUDED.last_success_at`

	if _, err := r.db.ExecContext(ctx, query, deviceID, lastTimestamp); err != nil {
		return fmt.Errorf("failed to save cursor success: %w", err)
	}
	return nil
}

// SaveFailure 同步失败后只更新错误遥测，不动 last_timestamp
func (r *CursorsRepo) SaveFailure(ctx context.Context, deviceID string, lastError string) error {
	query := `
		INSERT INTO sync_cursors (device_id, last_error_at, last_error)
		VALUES ($1, NOW(), $2)
		ON CONFLICT (device_id) DO UPDATE SET
			last_error_at = EXCLUDED.last_error_at,
			last_error    = EXCLUDED.last_error`

	if _, err := r.db.ExecContext(ctx, query, deviceID, lastError); err != nil {
		return fmt.Errorf("failed to save cursor failure: %w", err)
	}
	return nil
}
