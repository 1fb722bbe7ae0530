package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendsync/internal/config"
	"attendsync/internal/logger"
	"attendsync/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "attendsync")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting attendsync service",
		zap.String("version", "1.2.0"),
		zap.String("device_ip", cfg.Device.IP),
		zap.String("device_id", cfg.Device.DeviceID),
		zap.Int("poll_interval_ms", cfg.Sync.PollIntervalMs),
		zap.Bool("sync_enabled", cfg.Sync.Enabled),
	)

	// 创建服务
	attendanceService, err := service.NewAttendanceService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create attendance service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := attendanceService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start attendance service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := attendanceService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
