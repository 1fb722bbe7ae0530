package repository

import (
	"context"
	"database/sql"
	"fmt"

	"attendsync/internal/models"

	"go.uber.org/zap"
)

// MappingsRepo 设备登记号映射（本服务只读，管理端负责增删改）
type MappingsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewMappingsRepo(db *sql.DB, logger *zap.Logger) *MappingsRepo {
	return &MappingsRepo{db: db, logger: logger}
}

// GetActiveMapping 查询 (device_id, enroll_id) 当前生效的映射
// 没有映射返回 (nil, nil)——未映射不是错误，由处理器记 unknown_enroll。
func (r *MappingsRepo) GetActiveMapping(ctx context.Context, deviceID, enrollID string) (*models.DeviceMapping, error) {
	query := `
		SELECT id, device_id, enroll_id, staff_id, active
		FROM device_mappings
		WHERE device_id = $1 AND enroll_id = $2 AND active = TRUE
		LIMIT 1`

	var m models.DeviceMapping
	err := r.db.QueryRowContext(ctx, query, deviceID, enrollID).
		Scan(&m.ID, &m.DeviceID, &m.EnrollID, &m.StaffID, &m.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active mapping: %w", err)
	}
	return &m, nil
}
