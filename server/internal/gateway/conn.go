// Package gateway 把 websocket 客户端接入直播间：下行推送房间广播，上行接收弹幕。
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livecast/server/internal/model"
	"livecast/server/internal/room"
)

var _ room.Subscriber = (*Conn)(nil)

// Conn 一个客户端连接，同时是房间的订阅者。
//
// 职责与契约：
// - Send 只把编码好的消息放进缓冲，不做网络 I/O；缓冲满时关闭连接并返回错误。
// - writePump 独占写连接（含 ping）；readPump 独占读连接。
// - 任何一端退出都会关闭连接并退订。
type Conn struct {
	id     string
	roomID string
	ws     *websocket.Conn
	rooms  RoomService
	cfg    Config
	logger *log.Logger

	send      chan []byte
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeChan chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewConn 创建连接；ws 可以为 nil（只用于测试 Send 的缓冲行为）。
func NewConn(roomID string, ws *websocket.Conn, rooms RoomService, cfg Config, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()
	return &Conn{
		id:        uuid.NewString(),
		roomID:    roomID,
		ws:        ws,
		rooms:     rooms,
		cfg:       cfg,
		logger:    logger,
		send:      make(chan []byte, cfg.SendBuffer),
		closeChan: make(chan struct{}),
	}
}

// ID 订阅者 ID
func (c *Conn) ID() string { return c.id }

// Send 编码并排队一条服务端消息
func (c *Conn) Send(msg model.ServerMessage) error {
	data, err := model.EncodeMessage(msg, time.Now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
		c.sent.Add(1)
		return nil
	default:
		c.mu.Unlock()
	}

	c.dropped.Add(1)
	c.logger.Printf("[Gateway] ⚠️ send buffer full, closing %s", c.id)
	c.Close()
	return ErrSlowConsumer
}

// Serve 订阅房间并阻塞处理读循环，直到连接断开或 ctx 取消。
func (c *Conn) Serve(ctx context.Context) error {
	go c.writePump()

	if err := c.rooms.Subscribe(ctx, c.roomID, c); err != nil {
		c.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		c.rooms.Unsubscribe(context.WithoutCancel(ctx), c.roomID, c.id)
		c.Close()
		c.logger.Printf("[Gateway] %s left %s: sent=%d dropped=%d", c.id, c.roomID, c.sent.Load(), c.dropped.Load())
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closeChan:
		}
	}()

	c.readPump(ctx)
	return nil
}

func (c *Conn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(c.cfg.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Printf("[Gateway] read error on %s: %v", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.handleClientMessage(ctx, data); err != nil {
			// 错误回给客户端，但不断开连接
			c.Send(model.ErrorMessage{Content: err.Error()})
		}
	}
}

// handleClientMessage 处理客户端上行消息，目前只有弹幕提交。
func (c *Conn) handleClientMessage(ctx context.Context, data []byte) error {
	var msg model.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	switch msg.Type {
	case model.ClientKindEvent, "":
	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}

	return c.rooms.Submit(ctx, c.roomID, model.Event{
		Text:   msg.Text,
		User:   msg.User,
		Gift:   msg.Gift,
		Amount: msg.Amount,
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		if c.ws != nil {
			c.ws.Close()
		}
	}()
	if c.ws == nil {
		<-c.closeChan
		return
	}

	for {
		select {
		case <-c.closeChan:
			c.ws.SetWriteDeadline(time.Now().Add(time.Second))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Printf("[Gateway] write error on %s: %v", c.id, err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close 关闭连接；可重复调用。
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closeChan)
	})
}

// Handler 把 HTTP 请求升级为 websocket 并接入房间
type Handler struct {
	rooms    RoomService
	cfg      Config
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler 创建升级处理器
func NewHandler(rooms RoomService, cfg Config, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()
	h := &Handler{rooms: rooms, cfg: cfg, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeRoom 升级连接并阻塞到连接结束
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[Gateway] upgrade error: %v", err)
		return
	}
	c := NewConn(roomID, ws, h.rooms, h.cfg, h.logger)
	h.logger.Printf("[Gateway] %s connected to %s", c.id, roomID)
	if err := c.Serve(r.Context()); err != nil {
		h.logger.Printf("[Gateway] %s: %v", c.id, err)
	}
}
