// Package history 记录已经结束的演出，供大厅列表查询。
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livecast/server/internal/config"
)

// ErrInvalidMode 未知的存储模式
var ErrInvalidMode = errors.New("invalid history mode")

const defaultListLimit = 20

// Run 一场结束的演出
type Run struct {
	ID         string    `json:"run_id"`
	RoomID     string    `json:"room_id"`
	Topic      string    `json:"topic"`
	Performer  string    `json:"performer"`
	Language   string    `json:"language"`
	State      string    `json:"state"`
	Steps      int       `json:"steps"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store 演出历史存储
type Store interface {
	// Record 写入一条记录；相同 ID 重复写入视为成功
	Record(ctx context.Context, run Run) error
	// List 按结束时间倒序返回最近 limit 条
	List(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// New 按配置创建存储，返回实际使用的模式名
func New(cfg config.HistoryConfig) (Store, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "memory":
		return NewMemoryStore(), "memory", nil
	case "sqlite", "local":
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		return s, "sqlite", nil
	case "postgres":
		s, err := NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidMode, cfg.Mode)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}
