package events

import (
	"context"
	"encoding/json"
	"time"

	"attendsync/internal/config"
	"attendsync/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedisClient 创建Redis客户端
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Publisher 打卡事件发布接口（轮询器/处理器只依赖这个，测试用假实现）
type Publisher interface {
	PublishScanEvent(ctx context.Context, event *models.RawScanEvent) error
}

// RedisPublisher 把已落库的打卡事件发布到 Redis Stream
// 下游（通知、报表）消费流即可，不用轮询 postgres。发布是尽力而为：
// 失败只记日志，打卡处理本身不回滚。
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewRedisPublisher(client *redis.Client, stream string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, logger: logger}
}

// PublishScanEvent 发布一条打卡事件（XADD，JSON 负载）
func (p *RedisPublisher) PublishScanEvent(ctx context.Context, event *models.RawScanEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
}
