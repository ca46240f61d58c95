package room

import (
	"context"
	"errors"
	"log"
	"sync"

	"livecast/server/internal/language"
	"livecast/server/internal/model"
	"livecast/server/internal/orchestrator"
)

// Subscriber 房间的一个订阅者。Send 不得阻塞：慢连接应自行丢弃或返回错误。
type Subscriber interface {
	ID() string
	Send(msg model.ServerMessage) error
}

// Room 一个直播间。
//
// 并发约定：
// - 叙事状态只由运行中的那个 goroutine 修改（见 run）。
// - mu 保护状态字段、订阅者列表和开演前的弹幕缓冲；持锁期间不做任何网络 I/O。
type Room struct {
	id        string
	ownerHash []byte
	logger    *log.Logger

	mu          sync.RWMutex
	state       model.StreamState
	lang        language.Code
	info        string
	errMsg      string
	stage       model.Stage
	currentStep int
	totalSteps  int
	cursor      *orchestrator.Cursor
	pending     []model.Event
	subscribers map[string]Subscriber

	cancel context.CancelFunc
	done   chan struct{}
}

// texts 当前演出语言的提示文案
func (r *Room) texts() language.StatusTexts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return language.For(r.lang).Status
}

func newRoom(id string, ownerHash []byte, logger *log.Logger) *Room {
	return &Room{
		id:          id,
		ownerHash:   ownerHash,
		logger:      logger,
		state:       model.StreamIdle,
		subscribers: make(map[string]Subscriber),
	}
}

// ID 房间 ID
func (r *Room) ID() string { return r.id }

func running(state model.StreamState) bool {
	switch state {
	case model.StreamInitializing, model.StreamGeneratingScript, model.StreamPerforming:
		return true
	}
	return false
}

// Status 读取一致的状态快照
func (r *Room) Status() model.RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.RoomStatus{
		RoomID:       r.id,
		Running:      running(r.state),
		StreamState:  r.state,
		CurrentStep:  r.currentStep,
		TotalSteps:   r.totalSteps,
		CurrentStage: string(r.stage),
		InfoMessage:  r.info,
		ErrorMessage: r.errMsg,
		ViewerCount:  len(r.subscribers),
	}
}

func (r *Room) setState(state model.StreamState, info string) {
	r.mu.Lock()
	r.state = state
	if info != "" {
		r.info = info
	}
	r.mu.Unlock()
}

// attach 挂上新的游标，并把开演前缓存的弹幕转入游标队列。
func (r *Room) attach(c *orchestrator.Cursor, total int) {
	r.mu.Lock()
	r.cursor = c
	r.totalSteps = total
	r.currentStep = 0
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, evt := range pending {
		if err := c.Enqueue(evt); err != nil {
			r.logger.Printf("[Room] ⚠️ dropping buffered event in %s: %v", r.id, err)
		}
	}
}

// submit 把弹幕交给游标；游标还没就绪时先缓存。
func (r *Room) submit(evt model.Event, capacity int) error {
	r.mu.Lock()
	if !running(r.state) {
		r.mu.Unlock()
		return ErrNotRunning
	}
	c := r.cursor
	if c == nil {
		defer r.mu.Unlock()
		if len(r.pending) >= capacity {
			return ErrQueueFull
		}
		r.pending = append(r.pending, evt)
		return nil
	}
	r.mu.Unlock()

	if err := c.Enqueue(evt); err != nil {
		if errors.Is(err, orchestrator.ErrQueueFull) {
			return ErrQueueFull
		}
		return err
	}
	return nil
}

func (r *Room) addSubscriber(s Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[s.ID()] = s
	return len(r.subscribers)
}

func (r *Room) removeSubscriber(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subscribers[id]
	delete(r.subscribers, id)
	return len(r.subscribers), ok
}

// broadcast 对订阅者快照逐个发送，发送失败的订阅者被移除。
func (r *Room) broadcast(msg model.ServerMessage) {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	var failed []string
	for _, s := range subs {
		if err := s.Send(msg); err != nil {
			r.logger.Printf("[Room] pruning subscriber %s in %s: %v", s.ID(), r.id, err)
			failed = append(failed, s.ID())
		}
	}
	if len(failed) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range failed {
		delete(r.subscribers, id)
	}
	count := len(r.subscribers)
	r.mu.Unlock()
	r.broadcast(model.ViewerCountMessage{Count: count})
}
