package gateway

import (
	"context"
	"errors"
	"time"

	"livecast/server/internal/model"
	"livecast/server/internal/room"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer 发送缓冲已满，连接会被关闭
	ErrSlowConsumer = errors.New("send buffer full")
)

// RoomService 网关需要的房间操作（由 room.Manager 实现）
type RoomService interface {
	Subscribe(ctx context.Context, roomID string, s room.Subscriber) error
	Unsubscribe(ctx context.Context, roomID, subscriberID string)
	Submit(ctx context.Context, roomID string, evt model.Event) error
}

// Config 连接参数
type Config struct {
	// SendBuffer 每个连接的发送缓冲（消息条数），满了视为慢连接
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ReadTimeout 多久收不到 pong 就断开，应大于 PingInterval
	ReadTimeout time.Duration
	ReadLimit   int64
	// AllowedOrigins 为空时允许所有来源
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= c.PingInterval {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 * 1024
	}
	return c
}
