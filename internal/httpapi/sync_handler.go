package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"attendsync/internal/device"
	"attendsync/internal/models"
	"attendsync/internal/poller"

	"go.uber.org/zap"
)

// SyncTrigger 手动同步入口（由轮询器实现，必须复用同一条同步流程）
type SyncTrigger interface {
	TriggerSync(ctx context.Context) poller.SyncResult
	GetStatus() poller.Status
}

// ScanEventLister 打卡事件查询（导出用）
type ScanEventLister interface {
	ListEvents(ctx context.Context, deviceID string, limit int) ([]models.RawScanEvent, error)
}

// SyncHandler 设备同步管理接口
type SyncHandler struct {
	deviceID          string
	trigger           SyncTrigger
	client            device.SessionClient
	scanEvents        ScanEventLister
	settleDelay       time.Duration
	disconnectTimeout time.Duration
	logger            *zap.Logger
}

func NewSyncHandler(deviceID string, trigger SyncTrigger, client device.SessionClient,
	scanEvents ScanEventLister, settleDelay, disconnectTimeout time.Duration,
	logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		deviceID:          deviceID,
		trigger:           trigger,
		client:            client,
		scanEvents:        scanEvents,
		settleDelay:       settleDelay,
		disconnectTimeout: disconnectTimeout,
		logger:            logger,
	}
}

// TriggerSync POST /attendance/api/v1/device/sync
// 复用轮询器的同步流程，结果原样返回（ok / tookMs / error）。
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("sync is disabled"))
		return
	}

	result := h.trigger.TriggerSync(r.Context())
	if !result.OK {
		h.logger.Warn("Manual sync failed", zap.String("error", result.Error))
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// GetStatus GET /attendance/api/v1/device/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("sync is disabled"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.trigger.GetStatus()))
}

// ListDeviceUsers GET /attendance/api/v1/device/users
// 现场开会话读终端用户表；设备不可达返回 503，便于前端区分"设备掉线"和其它故障。
func (h *SyncHandler) ListDeviceUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.DeviceUser

	err := device.WithSession(r.Context(), h.client, h.settleDelay, h.disconnectTimeout, h.logger,
		func(ctx context.Context, session *device.Session) error {
			payload, err := h.client.FetchUsers(ctx, session)
			if err != nil {
				return err
			}
			for _, row := range device.NormalizeRows(payload) {
				if row.EnrollID == "" {
					continue
				}
				users = append(users, models.DeviceUser{EnrollID: row.EnrollID, Name: row.Name})
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, device.ErrDeviceUnreachable) {
			writeJSON(w, http.StatusServiceUnavailable, Fail("device unreachable: "+err.Error()))
			return
		}
		h.logger.Error("ListDeviceUsers failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	// 登记号按数值排序（设备上就是数字编号），解析不了的排在后面按字典序
	sort.SliceStable(users, func(i, j int) bool {
		a, errA := strconv.Atoi(users[i].EnrollID)
		b, errB := strconv.Atoi(users[j].EnrollID)
		if errA == nil && errB == nil {
			return a < b
		}
		if errA == nil {
			return true
		}
		if errB == nil {
			return false
		}
		return users[i].EnrollID < users[j].EnrollID
	})

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"deviceId": h.deviceID,
		"users":    users,
		"total":    len(users),
	}))
}

// ExportScanEvents GET /attendance/api/v1/scan-events/export
// 打卡事件审计导出（xlsx），管理端排查未映射登记号/重复打卡用。
func (h *SyncHandler) ExportScanEvents(w http.ResponseWriter, r *http.Request) {
	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.scanEvents.ListEvents(r.Context(), h.deviceID, limit)
	if err != nil {
		h.logger.Error("ExportScanEvents failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	data, err := GenerateScanEventExport(events)
	if err != nil {
		h.logger.Error("Failed to generate scan event export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="scan_events.xlsx"`)
	_, _ = w.Write(data)
}
