// Package room 管理直播间：创建、房主鉴权、开演与停止、弹幕提交、订阅者广播。
// 每个直播间的演出由一个独立 goroutine 驱动，房间之间不共享可变状态。
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"livecast/server/internal/actor"
	"livecast/server/internal/config"
	"livecast/server/internal/history"
	"livecast/server/internal/language"
	"livecast/server/internal/model"
	"livecast/server/internal/script"
	"livecast/server/internal/telemetry"
	"livecast/server/internal/timeline"
	"livecast/server/internal/tts"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidCredential = errors.New("invalid owner credential")
	ErrAlreadyRunning    = errors.New("room already running")
	ErrNotRunning        = errors.New("room not running")
	ErrQueueFull         = errors.New("room event queue full")
	ErrInvalidRequest    = errors.New("invalid request")
)

// StartRequest 开演参数
type StartRequest struct {
	OwnerToken string
	Name       string
	Persona    string
	Background string
	Topic      string
	SeedEvents []string
	// Language BCP 47 选择器；空或 "auto" 时从话题推断
	Language string
}

// Deps Manager 的依赖
type Deps struct {
	Room     config.RoomConfig
	Director config.DirectorConfig

	Store    Store
	Scripts  script.Generator
	Replier  actor.Replier
	Synth    tts.Synthesizer
	Timeline timeline.Store
	History  history.Store
	Tracer   trace.Tracer

	Logger *log.Logger
	Debug  bool
	Now    func() time.Time
	// HashCost 房主凭证的 bcrypt cost，0 为默认值
	HashCost int
}

// Manager 直播间管理器
type Manager struct {
	deps Deps

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager 创建管理器。Scripts 与 Replier 必填。
func NewManager(deps Deps) *Manager {
	if deps.Store == nil {
		deps.Store = NewInMemoryStore()
	}
	if deps.Timeline == nil {
		deps.Timeline = timeline.NewInMemoryStore()
	}
	if deps.History == nil {
		deps.History = history.NewMemoryStore()
	}
	if deps.Synth == nil {
		deps.Synth = tts.Noop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Room.QueueSize <= 0 {
		deps.Room.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{deps: deps, baseCtx: ctx, cancelAll: cancel}
}

// Create 创建直播间，返回房间 ID 与房主凭证（明文只出现这一次）。
func (m *Manager) Create(ctx context.Context) (roomID, ownerToken string, err error) {
	token, hash, err := newOwnerToken(m.deps.HashCost)
	if err != nil {
		return "", "", fmt.Errorf("issue owner token: %w", err)
	}
	r := newRoom(uuid.NewString(), hash, m.deps.Logger)
	if err := m.deps.Store.Save(ctx, r); err != nil {
		return "", "", fmt.Errorf("save room: %w", err)
	}
	m.deps.Logger.Printf("[Room] created %s", r.id)
	return r.id, token, nil
}

func (m *Manager) room(ctx context.Context, roomID string) (*Room, error) {
	r, err := m.deps.Store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Start 校验房主凭证后异步开演。
func (m *Manager) Start(ctx context.Context, roomID string, req StartRequest) error {
	r, err := m.room(ctx, roomID)
	if err != nil {
		return err
	}
	if err := verifyOwnerToken(r.ownerHash, req.OwnerToken); err != nil {
		return err
	}
	req.Topic = strings.TrimSpace(req.Topic)
	req.Name = strings.TrimSpace(req.Name)
	if req.Topic == "" || req.Name == "" {
		return fmt.Errorf("%w: name and topic are required", ErrInvalidRequest)
	}

	r.mu.Lock()
	if running(r.state) {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(m.baseCtx)
	done := make(chan struct{})
	lang := m.resolveLanguage(req)
	r.state = model.StreamInitializing
	r.lang = lang
	r.info = language.For(lang).Status.Preparing
	r.errMsg = ""
	r.stage = ""
	r.currentStep = 0
	r.totalSteps = 0
	r.cursor = nil
	r.pending = nil
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		defer cancel()
		m.run(runCtx, r, req)
	}()
	return nil
}

// resolveLanguage 演出语言：显式选择器优先，否则从话题和人设推断
func (m *Manager) resolveLanguage(req StartRequest) language.Code {
	return language.Resolve(req.Language, req.Topic+" "+req.Persona, language.Code(m.deps.Room.DefaultLanguage))
}

// Stop 取消正在进行的演出，并等待演出 goroutine 退出。
func (m *Manager) Stop(ctx context.Context, roomID, ownerToken string) error {
	r, err := m.room(ctx, roomID)
	if err != nil {
		return err
	}
	if err := verifyOwnerToken(r.ownerHash, ownerToken); err != nil {
		return err
	}

	r.mu.RLock()
	active := running(r.state)
	cancel, done := r.cancel, r.done
	r.mu.RUnlock()
	if !active || cancel == nil {
		return ErrNotRunning
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit 提交一条弹幕，回显给房间后排入下一个 step。
// 文本里的打赏标记会被解析；显式传入的打赏字段优先。
func (m *Manager) Submit(ctx context.Context, roomID string, evt model.Event) error {
	r, err := m.room(ctx, roomID)
	if err != nil {
		return err
	}
	evt.Text = strings.TrimSpace(evt.Text)
	evt.User = strings.TrimSpace(evt.User)
	if evt.Text == "" || evt.User == "" {
		return fmt.Errorf("%w: text and user are required", ErrInvalidRequest)
	}

	parsed := model.ParseEvent(evt.Text, evt.User)
	if !evt.Gift && evt.Amount == 0 {
		evt.Gift, evt.Amount = parsed.Gift, parsed.Amount
	} else if evt.Amount > 0 {
		evt.Gift = true
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.ReceivedAt = m.deps.Now()

	if err := r.submit(evt, m.deps.Room.QueueSize); err != nil {
		return err
	}
	r.broadcast(model.EventMessage{Text: evt.Text, User: evt.User})
	return nil
}

// Status 房间状态快照
func (m *Manager) Status(ctx context.Context, roomID string) (model.RoomStatus, error) {
	r, err := m.room(ctx, roomID)
	if err != nil {
		return model.RoomStatus{}, err
	}
	return r.Status(), nil
}

// Steps 当前（或最近一轮）演出的 step 记录
func (m *Manager) Steps(ctx context.Context, roomID string) ([]model.StepRecord, error) {
	if _, err := m.room(ctx, roomID); err != nil {
		return nil, err
	}
	return m.deps.Timeline.List(ctx, roomID)
}

// History 最近结束的演出
func (m *Manager) History(ctx context.Context, limit int) ([]history.Run, error) {
	return m.deps.History.List(ctx, limit)
}

// Subscribe 加入房间的广播，先单独发送连接确认，再向全房间广播在线人数。
func (m *Manager) Subscribe(ctx context.Context, roomID string, s Subscriber) error {
	r, err := m.room(ctx, roomID)
	if err != nil {
		return err
	}
	count := r.addSubscriber(s)
	if err := s.Send(model.ConnectedMessage{RoomID: roomID}); err != nil {
		r.removeSubscriber(s.ID())
		return fmt.Errorf("send connected: %w", err)
	}
	m.deps.Logger.Printf("[Room] subscriber %s joined %s (online=%d)", s.ID(), roomID, count)
	r.broadcast(model.ViewerCountMessage{Count: count})
	return nil
}

// Unsubscribe 移除订阅者；已经被移除时什么也不做。
func (m *Manager) Unsubscribe(ctx context.Context, roomID, subscriberID string) {
	r, err := m.room(ctx, roomID)
	if err != nil {
		return
	}
	count, ok := r.removeSubscriber(subscriberID)
	if !ok {
		return
	}
	m.deps.Logger.Printf("[Room] subscriber %s left %s (online=%d)", subscriberID, roomID, count)
	r.broadcast(model.ViewerCountMessage{Count: count})
}

// Rooms 所有房间的状态快照，按房间 ID 排序。
func (m *Manager) Rooms(ctx context.Context) ([]model.RoomStatus, error) {
	rooms, err := m.deps.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]model.RoomStatus, len(rooms))
	for i, r := range rooms {
		out[i] = r.Status()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

// Close 取消所有演出并等待退出。
func (m *Manager) Close() {
	if rooms, err := m.Rooms(context.Background()); err == nil {
		active := 0
		for _, st := range rooms {
			if st.Running {
				active++
			}
		}
		m.deps.Logger.Printf("[Room] closing: rooms=%d active=%d", len(rooms), active)
	}
	m.cancelAll()
	m.wg.Wait()
}
