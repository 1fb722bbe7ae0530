package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"attendsync/internal/config"
	"attendsync/internal/database"
	"attendsync/internal/device"
	"attendsync/internal/events"
	"attendsync/internal/httpapi"
	"attendsync/internal/poller"
	"attendsync/internal/processor"
	"attendsync/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AttendanceService 考勤同步服务
// 组装存储、终端客户端、处理器、轮询器和 HTTP 管理接口。
type AttendanceService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	poller      *poller.Poller
	httpServer  *http.Server
}

// NewAttendanceService 创建考勤同步服务
func NewAttendanceService(cfg *config.Config, logger *zap.Logger) (*AttendanceService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Redis 仅用于事件输出流，连不上不阻止启动（发布是尽力而为）
	var publisher events.Publisher
	redisClient := events.NewRedisClient(&cfg.Redis)
	if cfg.Events.Stream != "" {
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unavailable, scan event stream disabled", zap.Error(err))
		} else {
			publisher = events.NewRedisPublisher(redisClient, cfg.Events.Stream, logger)
		}
	}

	mappingsRepo := repository.NewMappingsRepo(db, logger)
	scanEventsRepo := repository.NewScanEventsRepo(db, logger)
	cursorsRepo := repository.NewCursorsRepo(db, logger)
	attendanceRepo := repository.NewAttendanceRepo(db, logger)

	deviceClient := device.NewClient(
		cfg.Device.IP,
		cfg.Device.Port,
		time.Duration(cfg.Device.TimeoutMs)*time.Millisecond,
		cfg.Device.CommPassword,
		logger,
	)

	scanProcessor := processor.NewProcessor(
		mappingsRepo, scanEventsRepo, attendanceRepo, publisher,
		time.Duration(cfg.Sync.DuplicateWindowSec)*time.Second,
		logger,
	)

	settleDelay := time.Duration(cfg.Sync.SettleDelayMs) * time.Millisecond
	disconnectTimeout := time.Duration(cfg.Sync.DisconnectTimeoutMs) * time.Millisecond

	// 未启用或未配置设备 IP 时不创建轮询器（配置错误不重试，见启动日志）
	var syncPoller *poller.Poller
	if cfg.Sync.Enabled && cfg.Device.IP != "" {
		syncPoller = poller.NewPoller(
			cfg.Device.DeviceID, deviceClient, cursorsRepo, scanProcessor,
			time.Duration(cfg.Sync.PollIntervalMs)*time.Millisecond,
			settleDelay, disconnectTimeout, logger,
		)
	} else {
		logger.Warn("Attendance sync poller disabled",
			zap.Bool("sync_enabled", cfg.Sync.Enabled),
			zap.Bool("device_ip_configured", cfg.Device.IP != ""))
	}

	router := httpapi.NewRouter(logger)
	var trigger httpapi.SyncTrigger
	if syncPoller != nil {
		trigger = syncPoller
	}
	syncHandler := httpapi.NewSyncHandler(
		cfg.Device.DeviceID, trigger, deviceClient, scanEventsRepo,
		settleDelay, disconnectTimeout, logger,
	)
	router.RegisterSyncRoutes(syncHandler)

	return &AttendanceService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		poller:      syncPoller,
		httpServer: &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: router,
		},
	}, nil
}

// Start 启动服务（轮询循环 + HTTP 服务）
func (s *AttendanceService) Start(ctx context.Context) error {
	if s.poller != nil {
		go s.poller.Run(ctx)
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.config.HTTP.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop 优雅关闭
func (s *AttendanceService) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	return database.Close(s.db)
}
