package processor

import (
	"context"
	"time"

	"attendsync/internal/events"
	"attendsync/internal/models"

	"go.uber.org/zap"
)

// Outcome 单条打卡的处理结论
type Outcome string

const (
	OutcomeInvalidPayload Outcome = "invalid_payload"
	OutcomeUnmapped       Outcome = "unmapped"
	OutcomeDuplicate      Outcome = "ignored_duplicate"
	OutcomeCheckIn        Outcome = "check_in"
	OutcomeCheckOut       Outcome = "check_out"
)

// Scan 一条已归一化、且已确认比设备游标新的打卡
type Scan struct {
	DeviceID  string
	EnrollID  string
	Timestamp time.Time
	Raw       string // 设备原始行 JSON
}

// MappingStore 映射查询（只读）
type MappingStore interface {
	GetActiveMapping(ctx context.Context, deviceID, enrollID string) (*models.DeviceMapping, error)
}

// EventStore 打卡事件存储
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.RawScanEvent) error
	HasRecentEventOfType(ctx context.Context, staffID, date, eventType string, since, until time.Time) (bool, error)
}

// AttendanceStore 考勤记录的条件写入
type AttendanceStore interface {
	GetStaffShiftID(ctx context.Context, staffID string) (*string, error)
	FindForDate(ctx context.Context, staffID, date string, shiftID *string) (*models.AttendanceRecord, error)
	InsertWithClockIn(ctx context.Context, staffID, date string, shiftID *string, clockIn string) error
	SetClockIn(ctx context.Context, recordID, clockIn string) error
	SetClockOut(ctx context.Context, recordID, clockOut string) error
}

// Processor 打卡事件处理器
// 对每条打卡：解析映射 → 基于当日考勤记录的状态机定事件类型 →
// 同类型重复抑制窗口 → 落考勤 + 落事件（两个写互相独立、尽力而为）。
type Processor struct {
	mappings   MappingStore
	eventStore EventStore
	attendance AttendanceStore
	publisher  events.Publisher // 可为 nil（未配置输出流）
	dupWindow  time.Duration    // 0 = 关闭重复抑制
	logger     *zap.Logger
	now        func() time.Time
}

func NewProcessor(mappings MappingStore, eventStore EventStore, attendance AttendanceStore,
	publisher events.Publisher, dupWindow time.Duration, logger *zap.Logger) *Processor {
	return &Processor{
		mappings:   mappings,
		eventStore: eventStore,
		attendance: attendance,
		publisher:  publisher,
		dupWindow:  dupWindow,
		logger:     logger,
		now:        time.Now,
	}
}

// SetNow 替换时间源（测试用）
func (p *Processor) SetNow(now func() time.Time) {
	p.now = now
}

// ProcessScan 处理一条打卡
// 返回的 error 仅表示基础设施故障（映射/考勤查询失败、考勤写入失败），调用方
// 中止本轮且不推进游标，等下轮重放；事件行只是审计，写失败记日志不重试。
func (p *Processor) ProcessScan(ctx context.Context, scan Scan) (Outcome, error) {
	if scan.DeviceID == "" || scan.EnrollID == "" || scan.Timestamp.IsZero() {
		return OutcomeInvalidPayload, nil
	}

	localTime := scan.Timestamp.Local()
	date := localTime.Format("2006-01-02")
	timeOfDay := localTime.Format("15:04")

	// 映射解析：没有映射不是错误，记 unknown_enroll 供管理端后续认领
	mapping, err := p.mappings.GetActiveMapping(ctx, scan.DeviceID, scan.EnrollID)
	if err != nil {
		return "", err
	}
	if mapping == nil {
		p.persistEvent(ctx, scan, date, timeOfDay, nil, models.EventUnknownEnroll)
		p.logger.Info("Scan from unmapped enroll id",
			zap.String("device_id", scan.DeviceID),
			zap.String("enroll_id", scan.EnrollID))
		return OutcomeUnmapped, nil
	}
	staffID := mapping.StaffID

	// 考勤定位：优先员工当前班次，落空回退当日任意记录
	shiftID, err := p.attendance.GetStaffShiftID(ctx, staffID)
	if err != nil {
		return "", err
	}
	record, err := p.attendance.FindForDate(ctx, staffID, date, shiftID)
	if err != nil {
		return "", err
	}

	// 状态机：无签到 → check_in；已签到未签退 → check_out；都有 → 重复
	var eventType string
	switch {
	case record == nil || record.ClockIn == nil:
		eventType = models.EventCheckIn
	case record.ClockOut == nil:
		eventType = models.EventCheckOut
	default:
		p.persistEvent(ctx, scan, date, timeOfDay, &staffID, models.EventIgnoredDuplicate)
		return OutcomeDuplicate, nil
	}

	// 同类型重复抑制窗口。窗口限定"同一派生类型"：
	// 紧跟签到的签退不会被当成签到的重复。
	if p.dupWindow > 0 {
		now := p.now()
		recent, err := p.eventStore.HasRecentEventOfType(ctx, staffID, date, eventType,
			now.Add(-p.dupWindow), now)
		if err != nil {
			p.logger.Error("Duplicate window lookup failed, recording scan anyway",
				zap.String("staff_id", staffID), zap.Error(err))
		} else if recent {
			p.persistEvent(ctx, scan, date, timeOfDay, &staffID, models.EventIgnoredDuplicate)
			return OutcomeDuplicate, nil
		}
	}

	// 考勤写入（主状态），失败则整条打卡按读故障处理
	switch eventType {
	case models.EventCheckIn:
		if record == nil {
			err = p.attendance.InsertWithClockIn(ctx, staffID, date, shiftID, timeOfDay)
		} else {
			err = p.attendance.SetClockIn(ctx, record.ID, timeOfDay)
		}
	case models.EventCheckOut:
		err = p.attendance.SetClockOut(ctx, record.ID, timeOfDay)
	}
	if err != nil {
		return "", err
	}

	p.persistEvent(ctx, scan, date, timeOfDay, &staffID, eventType)

	if eventType == models.EventCheckIn {
		return OutcomeCheckIn, nil
	}
	return OutcomeCheckOut, nil
}

// persistEvent 落审计事件并发布到输出流，两者都是尽力而为
func (p *Processor) persistEvent(ctx context.Context, scan Scan, date, timeOfDay string, staffID *string, eventType string) {
	event := &models.RawScanEvent{
		DeviceID:  scan.DeviceID,
		EnrollID:  scan.EnrollID,
		StaffID:   staffID,
		ScannedAt: scan.Timestamp,
		Date:      date,
		Time:      timeOfDay,
		Type:      eventType,
		Raw:       scan.Raw,
	}

	if err := p.eventStore.InsertEvent(ctx, event); err != nil {
		// 考勤写入才是状态记录，事件行是审计，失败不重试
		p.logger.Error("Failed to persist scan event",
			zap.String("device_id", scan.DeviceID),
			zap.String("enroll_id", scan.EnrollID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}

	if p.publisher != nil && eventType != models.EventIgnoredDuplicate {
		if err := p.publisher.PublishScanEvent(ctx, event); err != nil {
			p.logger.Warn("Failed to publish scan event to stream", zap.Error(err))
		}
	}
}
