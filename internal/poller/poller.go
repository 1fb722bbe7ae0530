package poller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"attendsync/internal/device"
	"attendsync/internal/models"
	"attendsync/internal/processor"

	"go.uber.org/zap"
)

const (
	maxBackoff       = 5 * time.Minute
	failureCountCap  = 10 // 退避指数封顶，防止溢出
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
	clockSkewLimit   = 5 * time.Minute
)

// CursorStore 游标存储
type CursorStore interface {
	GetCursor(ctx context.Context, deviceID string) (*models.SyncCursor, error)
	SaveSuccess(ctx context.Context, deviceID string, lastTimestamp *time.Time) error
	SaveFailure(ctx context.Context, deviceID string, lastError string) error
}

// ScanProcessor 单条打卡处理入口
type ScanProcessor interface {
	ProcessScan(ctx context.Context, scan processor.Scan) (processor.Outcome, error)
}

// Metrics 同步统计（线程安全）
type Metrics struct {
	mu sync.RWMutex

	Passes        int64 // 执行的同步轮数
	PassFailures  int64 // 失败的同步轮数
	RowsFetched   int64 // 设备返回的行数（归一化后）
	RowsProcessed int64 // 真正送入处理器的行数

	CheckIns   int64
	CheckOuts  int64
	Duplicates int64
	Unmapped   int64
	Invalid    int64
}

// GetSnapshot 获取指标快照
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		Passes:        m.Passes,
		PassFailures:  m.PassFailures,
		RowsFetched:   m.RowsFetched,
		RowsProcessed: m.RowsProcessed,
		CheckIns:      m.CheckIns,
		CheckOuts:     m.CheckOuts,
		Duplicates:    m.Duplicates,
		Unmapped:      m.Unmapped,
		Invalid:       m.Invalid,
	}
}

func (m *Metrics) recordOutcome(outcome processor.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RowsProcessed++
	switch outcome {
	case processor.OutcomeCheckIn:
		m.CheckIns++
	case processor.OutcomeCheckOut:
		m.CheckOuts++
	case processor.OutcomeDuplicate:
		m.Duplicates++
	case processor.OutcomeUnmapped:
		m.Unmapped++
	case processor.OutcomeInvalidPayload:
		m.Invalid++
	}
}

// SyncResult 手动触发同步的返回
type SyncResult struct {
	OK     bool   `json:"ok"`
	TookMs int64  `json:"tookMs"`
	Error  string `json:"error,omitempty"`
}

// Status 轮询器状态快照
type Status struct {
	Running       bool       `json:"running"`
	FailureCount  int        `json:"failureCount"`
	PausedUntil   *time.Time `json:"pausedUntil,omitempty"`
	NextAllowedAt time.Time  `json:"nextAllowedAt"`
	Metrics       Metrics    `json:"metrics"`
}

// Poller 同步编排器
// 定时 tick 和手动触发共用同一条同步流程，经同一个重入保护串行化——
// 终端只接受一个活动会话。失败走指数退避，连续失败触发熔断暂停。
type Poller struct {
	deviceID          string
	client            device.SessionClient
	cursors           CursorStore
	processor         ScanProcessor
	logger            *zap.Logger
	pollInterval      time.Duration
	settleDelay       time.Duration
	disconnectTimeout time.Duration

	mu            sync.Mutex
	running       bool
	failureCount  int
	nextAllowedAt time.Time
	pausedUntil   time.Time
	lastLogKey    string // 限流日志键：错误消息+失败计数

	now     func() time.Time
	metrics *Metrics
}

func NewPoller(deviceID string, client device.SessionClient, cursors CursorStore,
	scanProcessor ScanProcessor, pollInterval, settleDelay, disconnectTimeout time.Duration,
	logger *zap.Logger) *Poller {
	return &Poller{
		deviceID:          deviceID,
		client:            client,
		cursors:           cursors,
		processor:         scanProcessor,
		logger:            logger,
		pollInterval:      pollInterval,
		settleDelay:       settleDelay,
		disconnectTimeout: disconnectTimeout,
		now:               time.Now,
		metrics:           &Metrics{},
	}
}

// SetNow 替换时间源（测试用）
func (p *Poller) SetNow(now func() time.Time) {
	p.now = now
}

// GetStatus 当前状态快照
func (p *Poller) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := Status{
		Running:       p.running,
		FailureCount:  p.failureCount,
		NextAllowedAt: p.nextAllowedAt,
		Metrics:       p.metrics.GetSnapshot(),
	}
	if !p.pausedUntil.IsZero() {
		paused := p.pausedUntil
		status.PausedUntil = &paused
	}
	return status
}

// Run 定时轮询循环；ctx 取消后返回
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Starting attendance sync poller",
		zap.String("device_id", p.deviceID),
		zap.Duration("poll_interval", p.pollInterval))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Attendance sync poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick 一次定时触发
// 熔断暂停期内无条件跳过；退避期内跳过；已在运行中是 no-op。
func (p *Poller) Tick(ctx context.Context) {
	now := p.now()

	p.mu.Lock()
	if !p.pausedUntil.IsZero() {
		if now.Before(p.pausedUntil) {
			p.mu.Unlock()
			return
		}
		// 冷却结束：清零连续失败计数后恢复
		p.pausedUntil = time.Time{}
		p.failureCount = 0
		p.nextAllowedAt = time.Time{}
		p.logger.Info("Circuit breaker cooldown expired, resuming sync",
			zap.String("device_id", p.deviceID))
	}
	if now.Before(p.nextAllowedAt) {
		p.mu.Unlock()
		return
	}
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	err := p.runPass(ctx)
	p.finish(err)
}

// TriggerSync 手动触发（与定时 tick 共用同步流程和重入保护）
// 管理员主动触发不受退避和熔断限制，但同一时间仍只允许一轮同步。
func (p *Poller) TriggerSync(ctx context.Context) SyncResult {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return SyncResult{OK: false, Error: "sync already in progress"}
	}
	p.running = true
	p.mu.Unlock()

	start := p.now()
	err := p.runPass(ctx)
	p.finish(err)
	took := p.now().Sub(start).Milliseconds()

	if err != nil {
		return SyncResult{OK: false, TookMs: took, Error: err.Error()}
	}
	return SyncResult{OK: true, TookMs: took}
}

// finish 一轮结束后的状态机收尾：成功清零，失败推进退避/熔断
func (p *Poller) finish(err error) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false

	if err == nil {
		p.failureCount = 0
		p.nextAllowedAt = now
		p.lastLogKey = ""
		return
	}

	p.failureCount++
	capped := p.failureCount
	if capped > failureCountCap {
		capped = failureCountCap
	}
	p.nextAllowedAt = now.Add(backoffDelay(p.pollInterval, capped))

	// 同一错误在同一失败档位只记一次，长时间断连时不刷屏
	logKey := fmt.Sprintf("%s|%d", err.Error(), p.failureCount)
	if logKey != p.lastLogKey {
		p.lastLogKey = logKey
		p.logger.Error("Attendance sync failed",
			zap.String("device_id", p.deviceID),
			zap.Int("failure_count", p.failureCount),
			zap.Time("next_allowed_at", p.nextAllowedAt),
			zap.Error(err))
	}

	if p.failureCount >= breakerThreshold && p.pausedUntil.IsZero() {
		p.pausedUntil = now.Add(breakerCooldown)
		p.logger.Warn("Circuit breaker tripped, pausing sync",
			zap.String("device_id", p.deviceID),
			zap.Int("failure_count", p.failureCount),
			zap.Time("paused_until", p.pausedUntil))
	}
}

// backoffDelay 指数退避：base × 2^failures，封顶 5 分钟
func backoffDelay(base time.Duration, failures int) time.Duration {
	delay := base
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// runPass 一轮完整同步
// 读游标（带时钟偏移保护）→ 会话内拉取打卡 → 归一化 → 升序排序 → 丢弃不新于
// 游标的行 → 逐条送处理器（必须按时间序：乱序会让旧的签退盖在新的签到之后）→
// 推进游标。任何失败都会落 last_error 遥测。
func (p *Poller) runPass(ctx context.Context) error {
	p.metrics.mu.Lock()
	p.metrics.Passes++
	p.metrics.mu.Unlock()

	err := p.syncPass(ctx)
	if err != nil {
		p.metrics.mu.Lock()
		p.metrics.PassFailures++
		p.metrics.mu.Unlock()
		if saveErr := p.cursors.SaveFailure(ctx, p.deviceID, err.Error()); saveErr != nil {
			p.logger.Error("Failed to persist sync failure", zap.Error(saveErr))
		}
	}
	return err
}

func (p *Poller) syncPass(ctx context.Context) error {
	cursor, err := p.cursors.GetCursor(ctx, p.deviceID)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	var cursorTS *time.Time
	if cursor != nil {
		cursorTS = cursor.LastTimestamp
	}

	// 时钟偏移保护：游标超前当前时间 5 分钟以上说明设备时钟曾被拨回，
	// 不清掉的话之后所有真实打卡都会被静默跳过
	now := p.now()
	if cursorTS != nil && cursorTS.After(now.Add(clockSkewLimit)) {
		p.logger.Warn("Cursor timestamp is ahead of wall clock, resetting",
			zap.String("device_id", p.deviceID),
			zap.Time("cursor", *cursorTS))
		cursorTS = nil
	}

	var rows []device.Row
	err = device.WithSession(ctx, p.client, p.settleDelay, p.disconnectTimeout, p.logger,
		func(ctx context.Context, session *device.Session) error {
			payload, err := p.client.FetchAttendances(ctx, session)
			if err != nil {
				return err
			}
			rows = device.NormalizeRows(payload)
			return nil
		})
	if err != nil {
		return fmt.Errorf("fetch attendances: %w", err)
	}

	p.metrics.mu.Lock()
	p.metrics.RowsFetched += int64(len(rows))
	p.metrics.mu.Unlock()

	// 缺登记号或时间的行静默丢弃：对部分损坏负载的刻意容忍，不是告警项
	valid := rows[:0]
	for _, row := range rows {
		if row.EnrollID == "" || !row.HasTimestamp() {
			continue
		}
		if cursorTS != nil && !row.Timestamp.After(*cursorTS) {
			continue
		}
		valid = append(valid, row)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})

	maxTS := cursorTS
	for _, row := range valid {
		outcome, err := p.processor.ProcessScan(ctx, processor.Scan{
			DeviceID:  p.deviceID,
			EnrollID:  row.EnrollID,
			Timestamp: row.Timestamp,
			Raw:       row.RawJSON(),
		})
		if err != nil {
			// 基础设施故障：中止本轮，游标不前移；
			// 事件唯一键 + 条件写保证下轮重放安全
			return fmt.Errorf("process scan enroll=%s: %w", row.EnrollID, err)
		}
		p.metrics.recordOutcome(outcome)

		if maxTS == nil || row.Timestamp.After(*maxTS) {
			ts := row.Timestamp
			maxTS = &ts
		}
	}

	if err := p.cursors.SaveSuccess(ctx, p.deviceID, maxTS); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}

	if len(valid) > 0 {
		p.logger.Info("Attendance sync pass completed",
			zap.String("device_id", p.deviceID),
			zap.Int("rows", len(valid)))
	}
	return nil
}
