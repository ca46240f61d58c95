package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"livecast/server/internal/actor"
	"livecast/server/internal/config"
	"livecast/server/internal/model"
	"livecast/server/internal/script"
)

type fakeScripts struct {
	lines []model.ScriptLine
	err   error
	// gate 非空时等它关闭才返回，模拟慢速生成
	gate chan struct{}
}

func (f *fakeScripts) Generate(ctx context.Context, _ script.Request) ([]model.ScriptLine, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.lines, nil
}

type fakeSubscriber struct {
	id   string
	fail bool

	mu   sync.Mutex
	msgs []model.ServerMessage
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Send(msg model.ServerMessage) error {
	if s.fail {
		return errors.New("connection closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *fakeSubscriber) kinds() []model.MessageKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MessageKind, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Kind()
	}
	return out
}

func (s *fakeSubscriber) count(kind model.MessageKind) int {
	n := 0
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func threeLines() []model.ScriptLine {
	return []model.ScriptLine{
		{Stage: model.StageHook, Text: "大家好", InterruptionCost: 0.9, KeyInfo: []string{"开场"}},
		{Stage: model.StageBuildUp, Text: "今天讲猫", InterruptionCost: 0.9, KeyInfo: []string{"主题"}},
		{Stage: model.StageResolution, Text: "就这样", InterruptionCost: 0.9, KeyInfo: []string{"结尾"}},
	}
}

func newManager(t *testing.T, gen script.Generator, roomCfg config.RoomConfig) *Manager {
	t.Helper()
	if roomCfg.QueueSize == 0 {
		roomCfg.QueueSize = 8
	}
	m := NewManager(Deps{
		Room:     roomCfg,
		Director: config.DirectorConfig{Seed: 7},
		Scripts:  gen,
		Replier:  actor.TemplateReplier{},
		Logger:   log.New(io.Discard, "", 0),
		HashCost: bcrypt.MinCost,
	})
	t.Cleanup(m.Close)
	return m
}

func startRequest(token string) StartRequest {
	return StartRequest{OwnerToken: token, Name: "小雪", Topic: "猫", Language: "zh"}
}

func waitState(t *testing.T, m *Manager, roomID string, want model.StreamState) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := m.Status(context.Background(), roomID)
		return err == nil && st.StreamState == want
	}, 3*time.Second, 5*time.Millisecond, "room never reached %s", want)
}

// TestStartValidatesRequest 未知房间、错误凭证、缺少字段都被拒绝且不改变状态
func TestStartValidatesRequest(t *testing.T) {
	m := newManager(t, &fakeScripts{lines: threeLines()}, config.RoomConfig{})
	ctx := context.Background()

	id, token, err := m.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.ErrorIs(t, m.Start(ctx, "missing", startRequest(token)), ErrRoomNotFound)
	assert.ErrorIs(t, m.Start(ctx, id, startRequest("wrong")), ErrInvalidCredential)
	assert.ErrorIs(t, m.Start(ctx, id, startRequest("")), ErrInvalidCredential)
	assert.ErrorIs(t, m.Start(ctx, id, StartRequest{OwnerToken: token, Name: "小雪"}), ErrInvalidRequest)

	st, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StreamIdle, st.StreamState)
	assert.False(t, st.Running)
}

// TestRunPerformsScriptAndRecordsHistory 完整演出：广播顺序、状态、时间线与历史
func TestRunPerformsScriptAndRecordsHistory(t *testing.T) {
	m := newManager(t, &fakeScripts{lines: threeLines()}, config.RoomConfig{})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)

	sub := &fakeSubscriber{id: "s1"}
	require.NoError(t, m.Subscribe(ctx, id, sub))
	require.NoError(t, m.Start(ctx, id, startRequest(token)))

	require.Eventually(t, func() bool {
		runs, err := m.History(ctx, 10)
		return err == nil && len(runs) == 1
	}, 3*time.Second, 5*time.Millisecond)

	st, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StreamFinished, st.StreamState)
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.CurrentStep)
	assert.Equal(t, 3, st.TotalSteps)
	assert.Equal(t, 1, st.ViewerCount)

	kinds := sub.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, model.KindConnected, kinds[0])
	assert.Equal(t, 1, sub.count(model.KindScriptReady))
	assert.Equal(t, 4, sub.count(model.KindStep))
	assert.Equal(t, 5, sub.count(model.KindMemory))
	assert.Equal(t, 1, sub.count(model.KindFinished))
	assert.Equal(t, model.KindFinished, kinds[len(kinds)-1])

	steps, err := m.Steps(ctx, id)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, model.ActionEnd, steps[3].Action)

	runs, _ := m.History(ctx, 10)
	assert.Equal(t, id, runs[0].RoomID)
	assert.Equal(t, "猫", runs[0].Topic)
	assert.Equal(t, "小雪", runs[0].Performer)
	assert.Equal(t, 4, runs[0].Steps)
}

// TestStartWhileRunningAndStop 运行中再次开演被拒绝；房主可以停止，停止后不再运行
func TestStartWhileRunningAndStop(t *testing.T) {
	gen := &fakeScripts{lines: threeLines(), gate: make(chan struct{})}
	m := newManager(t, gen, config.RoomConfig{})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx, id, startRequest(token)))
	waitState(t, m, id, model.StreamGeneratingScript)
	assert.ErrorIs(t, m.Start(ctx, id, startRequest(token)), ErrAlreadyRunning)

	assert.ErrorIs(t, m.Stop(ctx, id, "wrong"), ErrInvalidCredential)
	require.NoError(t, m.Stop(ctx, id, token))

	st, _ := m.Status(ctx, id)
	assert.Equal(t, model.StreamStopped, st.StreamState)
	assert.ErrorIs(t, m.Stop(ctx, id, token), ErrNotRunning)

	runs, _ := m.History(ctx, 10)
	assert.Empty(t, runs)
}

// TestSubmitBeforeScriptIsReadyIsBuffered 剧本生成期间提交的弹幕在第一个 step 被看到
func TestSubmitBeforeScriptIsReadyIsBuffered(t *testing.T) {
	gen := &fakeScripts{lines: threeLines(), gate: make(chan struct{})}
	m := newManager(t, gen, config.RoomConfig{QueueSize: 1})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Submit(ctx, id, model.Event{Text: "来了", User: "alice"}), ErrNotRunning)
	assert.ErrorIs(t, m.Submit(ctx, "missing", model.Event{Text: "来了", User: "alice"}), ErrRoomNotFound)

	sub := &fakeSubscriber{id: "s1"}
	require.NoError(t, m.Subscribe(ctx, id, sub))
	require.NoError(t, m.Start(ctx, id, startRequest(token)))
	waitState(t, m, id, model.StreamGeneratingScript)

	assert.ErrorIs(t, m.Submit(ctx, id, model.Event{Text: "  ", User: "alice"}), ErrInvalidRequest)
	require.NoError(t, m.Submit(ctx, id, model.Event{Text: "SC ¥100 来了", User: "alice"}))
	assert.ErrorIs(t, m.Submit(ctx, id, model.Event{Text: "又来了", User: "bob"}), ErrQueueFull)
	assert.Equal(t, 1, sub.count(model.KindEvent))

	close(gen.gate)
	waitState(t, m, id, model.StreamFinished)

	steps, err := m.Steps(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, 1, steps[0].Received)
}

// TestScriptFailureSetsError 剧本生成失败：进入 error 并广播错误
func TestScriptFailureSetsError(t *testing.T) {
	m := newManager(t, &fakeScripts{err: fmt.Errorf("llm down")}, config.RoomConfig{})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)
	sub := &fakeSubscriber{id: "s1"}
	require.NoError(t, m.Subscribe(ctx, id, sub))

	require.NoError(t, m.Start(ctx, id, startRequest(token)))
	waitState(t, m, id, model.StreamError)

	st, _ := m.Status(ctx, id)
	assert.Contains(t, st.ErrorMessage, "llm down")
	assert.False(t, st.Running)
	require.Eventually(t, func() bool { return sub.count(model.KindError) == 1 }, time.Second, 5*time.Millisecond)

	// error 之后可以重新开演
	require.NoError(t, m.Start(ctx, id, startRequest(token)))
}

// TestMaxStepsEndsRunEarly max_steps 限制演出步数
func TestMaxStepsEndsRunEarly(t *testing.T) {
	m := newManager(t, &fakeScripts{lines: threeLines()}, config.RoomConfig{MaxSteps: 2})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx, id, startRequest(token)))
	waitState(t, m, id, model.StreamFinished)

	steps, _ := m.Steps(ctx, id)
	assert.Len(t, steps, 2)
}

// TestBroadcastPrunesFailedSubscribers 发送失败的订阅者被移除，其余订阅者收到新的在线人数
func TestBroadcastPrunesFailedSubscribers(t *testing.T) {
	r := newRoom("r1", nil, log.New(io.Discard, "", 0))
	good := &fakeSubscriber{id: "good"}
	bad := &fakeSubscriber{id: "bad", fail: true}
	r.addSubscriber(good)
	r.addSubscriber(bad)

	r.broadcast(model.InfoMessage{Content: "hi"})

	assert.Equal(t, 1, r.Status().ViewerCount)
	require.Len(t, good.msgs, 2)
	assert.Equal(t, model.InfoMessage{Content: "hi"}, good.msgs[0])
	assert.Equal(t, model.ViewerCountMessage{Count: 1}, good.msgs[1])
}

// TestUnsubscribe 离开房间后广播在线人数
func TestUnsubscribe(t *testing.T) {
	m := newManager(t, &fakeScripts{lines: threeLines()}, config.RoomConfig{})
	ctx := context.Background()
	id, _, err := m.Create(ctx)
	require.NoError(t, err)

	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	require.NoError(t, m.Subscribe(ctx, id, a))
	require.NoError(t, m.Subscribe(ctx, id, b))
	m.Unsubscribe(ctx, id, "b")
	m.Unsubscribe(ctx, id, "b")

	st, _ := m.Status(ctx, id)
	assert.Equal(t, 1, st.ViewerCount)
	assert.Equal(t, 3, a.count(model.KindViewerCount))
}

func (s *fakeSubscriber) lastMemory() (model.MemorySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if m, ok := s.msgs[i].(model.MemoryMessage); ok {
			return m.Memory, true
		}
	}
	return model.MemorySnapshot{}, false
}

// TestRoomsRunInIsolation 两个房间同时演出：弹幕、记忆、订阅者互不串台
func TestRoomsRunInIsolation(t *testing.T) {
	gen := &fakeScripts{lines: threeLines(), gate: make(chan struct{})}
	m := newManager(t, gen, config.RoomConfig{})
	ctx := context.Background()

	idA, tokenA, err := m.Create(ctx)
	require.NoError(t, err)
	idB, tokenB, err := m.Create(ctx)
	require.NoError(t, err)

	subA := &fakeSubscriber{id: "a"}
	subB := &fakeSubscriber{id: "b"}
	extraB := &fakeSubscriber{id: "b2"}
	require.NoError(t, m.Subscribe(ctx, idA, subA))
	require.NoError(t, m.Subscribe(ctx, idB, subB))
	require.NoError(t, m.Subscribe(ctx, idB, extraB))

	require.NoError(t, m.Start(ctx, idA, startRequest(tokenA)))
	require.NoError(t, m.Start(ctx, idB, startRequest(tokenB)))
	waitState(t, m, idA, model.StreamGeneratingScript)
	waitState(t, m, idB, model.StreamGeneratingScript)

	require.NoError(t, m.Submit(ctx, idA, model.Event{Text: "只给A", User: "alice"}))
	close(gen.gate)
	waitState(t, m, idA, model.StreamFinished)
	waitState(t, m, idB, model.StreamFinished)

	stepsA, err := m.Steps(ctx, idA)
	require.NoError(t, err)
	stepsB, err := m.Steps(ctx, idB)
	require.NoError(t, err)
	require.Len(t, stepsA, 4)
	require.Len(t, stepsB, 4)
	assert.Equal(t, 1, stepsA[0].Received)
	for _, rec := range stepsB {
		assert.Zero(t, rec.Received)
	}

	assert.Equal(t, 1, subA.count(model.KindEvent))
	assert.Zero(t, subB.count(model.KindEvent))

	memA, ok := subA.lastMemory()
	require.True(t, ok)
	assert.Equal(t, []string{"只给A"}, memA.Received)
	require.Len(t, memA.Viewers, 1)
	assert.Equal(t, "alice", memA.Viewers[0].User)

	memB, ok := subB.lastMemory()
	require.True(t, ok)
	assert.Empty(t, memB.Received)
	assert.Empty(t, memB.Viewers)

	stA, _ := m.Status(ctx, idA)
	stB, _ := m.Status(ctx, idB)
	assert.Equal(t, 1, stA.ViewerCount)
	assert.Equal(t, 2, stB.ViewerCount)

	runs, err := m.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// TestRoomsListsStatuses 房间列表按 ID 排序并反映各自状态
func TestRoomsListsStatuses(t *testing.T) {
	gen := &fakeScripts{lines: threeLines(), gate: make(chan struct{})}
	m := newManager(t, gen, config.RoomConfig{})
	ctx := context.Background()

	idA, tokenA, err := m.Create(ctx)
	require.NoError(t, err)
	idB, _, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx, idA, startRequest(tokenA)))
	waitState(t, m, idA, model.StreamGeneratingScript)

	rooms, err := m.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.True(t, rooms[0].RoomID < rooms[1].RoomID)

	byID := map[string]model.RoomStatus{rooms[0].RoomID: rooms[0], rooms[1].RoomID: rooms[1]}
	assert.True(t, byID[idA].Running)
	assert.False(t, byID[idB].Running)
	assert.Equal(t, model.StreamIdle, byID[idB].StreamState)
}

// TestRunMessagesFollowLanguage 阶段提示与结束通知使用演出语言
func TestRunMessagesFollowLanguage(t *testing.T) {
	m := newManager(t, &fakeScripts{lines: threeLines()}, config.RoomConfig{})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)

	sub := &fakeSubscriber{id: "s1"}
	require.NoError(t, m.Subscribe(ctx, id, sub))
	req := startRequest(token)
	req.Language = "en-US"
	require.NoError(t, m.Start(ctx, id, req))
	waitState(t, m, id, model.StreamFinished)

	st, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Stream finished", st.InfoMessage)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	var infos []string
	var finished model.FinishedMessage
	for _, msg := range sub.msgs {
		switch v := msg.(type) {
		case model.InfoMessage:
			infos = append(infos, v.Content)
		case model.FinishedMessage:
			finished = v
		}
	}
	assert.Equal(t, []string{"Getting the stream ready...", "Writing the script..."}, infos)
	assert.Equal(t, "Stream finished", finished.Content)
	assert.Equal(t, 4, finished.Steps)
}

// TestStopMessageFollowsLanguage 停止提示使用演出语言
func TestStopMessageFollowsLanguage(t *testing.T) {
	gen := &fakeScripts{lines: threeLines(), gate: make(chan struct{})}
	m := newManager(t, gen, config.RoomConfig{})
	ctx := context.Background()
	id, token, err := m.Create(ctx)
	require.NoError(t, err)

	req := startRequest(token)
	req.Language = "ja"
	require.NoError(t, m.Start(ctx, id, req))
	waitState(t, m, id, model.StreamGeneratingScript)

	st, _ := m.Status(ctx, id)
	assert.Equal(t, "台本を作成中...", st.InfoMessage)

	require.NoError(t, m.Stop(ctx, id, token))
	st, _ = m.Status(ctx, id)
	assert.Equal(t, "配信を停止しました", st.InfoMessage)
}
