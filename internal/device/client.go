package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrDeviceUnreachable 设备不可达（连接被拒、超时、协议错误）
// HTTP 层据此返回 503 而不是笼统的 500。
var ErrDeviceUnreachable = errors.New("device unreachable")

// Session 终端会话句柄
type Session struct {
	ID string
}

// SessionClient 终端会话客户端的窄接口
// 把厂商协议隔离在实现里，轮询器和 HTTP 层只依赖这四个操作，测试用假实现替换。
type SessionClient interface {
	Connect(ctx context.Context) (*Session, error)
	FetchUsers(ctx context.Context, session *Session) (any, error)
	FetchAttendances(ctx context.Context, session *Session) (any, error)
	Disconnect(ctx context.Context, session *Session) error
}

// Client 考勤终端会话客户端（终端中间件的 HTTP 会话协议）
type Client struct {
	httpClient   *resty.Client
	commPassword int
	logger       *zap.Logger
}

// NewClient 创建终端客户端
func NewClient(ip string, port int, timeout time.Duration, commPassword int, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d", ip, port)).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient:   httpClient,
		commPassword: commPassword,
		logger:       logger,
	}
}

type connectResponse struct {
	SessionID string `json:"sessionId"`
	Msg       string `json:"msg"`
}

// Connect 打开终端会话
// 配置了非零通讯密码但首次连接失败时，用密码 0 重试一次再放弃——
// 覆盖"终端通讯密码还是出厂默认值、应用配置却填了密码"的常见错配；
// 重试也失败时返回首次的错误。
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	session, err := c.connectWithPassword(ctx, c.commPassword)
	if err == nil {
		return session, nil
	}

	if c.commPassword != 0 {
		c.logger.Warn("Device connect failed, retrying with factory comm password",
			zap.Error(err))
		if session, retryErr := c.connectWithPassword(ctx, 0); retryErr == nil {
			return session, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
}

func (c *Client) connectWithPassword(ctx context.Context, password int) (*Session, error) {
	var result connectResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"commKey": password}).
		SetResult(&result).
		Post("/api/v1/session/open")
	if err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}
	if resp.IsError() {
		// 错误响应不会进 SetResult，拒绝原因要从响应体里捞
		var errResp connectResponse
		_ = json.Unmarshal(resp.Body(), &errResp)
		return nil, fmt.Errorf("connect rejected: status=%d msg=%s", resp.StatusCode(), errResp.Msg)
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("connect returned empty session id")
	}
	return &Session{ID: result.SessionID}, nil
}

// FetchUsers 读取终端上登记的用户表（USERINFO）
func (c *Client) FetchUsers(ctx context.Context, session *Session) (any, error) {
	return c.query(ctx, session, "USERINFO")
}

// FetchAttendances 读取终端缓存的打卡记录表（ATTLOG）
func (c *Client) FetchAttendances(ctx context.Context, session *Session) (any, error) {
	return c.query(ctx, session, "ATTLOG")
}

// query 表查询；响应形状不做任何假设，原样交给归一化器
func (c *Client) query(ctx context.Context, session *Session, table string) (any, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"table": table}).
		Post("/api/v1/session/" + session.ID + "/query")
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", table, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("query %s rejected: status=%d", table, resp.StatusCode())
	}

	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("query %s returned invalid json: %w", table, err)
	}
	return payload, nil
}

// Disconnect 关闭终端会话（调用方负责限时，见 WithSession）
func (c *Client) Disconnect(ctx context.Context, session *Session) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Post("/api/v1/session/" + session.ID + "/close")
	if err != nil {
		return fmt.Errorf("disconnect failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("disconnect rejected: status=%d", resp.StatusCode())
	}
	return nil
}

// WithSession 作用域内使用终端会话
// 所有返回路径都会尝试断开（限时 disconnectTimeout，挂死的断开不能拖垮整个同步）；
// 断开后等待 settleDelay，终端固件释放单连接槽需要时间，省掉这个等待会导致
// 下一次连接假性失败。
func WithSession(ctx context.Context, client SessionClient, settleDelay, disconnectTimeout time.Duration,
	logger *zap.Logger, fn func(ctx context.Context, session *Session) error) error {

	session, err := client.Connect(ctx)
	if err != nil {
		return err
	}

	fnErr := fn(ctx, session)

	// 断开用独立的限时上下文，外层 ctx 取消也要尽力释放会话
	dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := client.Disconnect(dctx, session); err != nil {
		logger.Warn("Device disconnect failed", zap.Error(err))
	}

	if settleDelay > 0 {
		time.Sleep(settleDelay)
	}

	return fnErr
}
