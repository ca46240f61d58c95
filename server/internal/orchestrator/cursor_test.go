package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/server/internal/actor"
	"livecast/server/internal/cue"
	"livecast/server/internal/director"
	"livecast/server/internal/language"
	"livecast/server/internal/memory"
	"livecast/server/internal/model"
	"livecast/server/internal/timeline"
)

// fixedRand 耗尽后一直返回 0.99，不触发任何随机加成。
type fixedRand struct {
	values []float64
	pos    int
}

func (r *fixedRand) Float64() float64 {
	if r.pos >= len(r.values) {
		return 0.99
	}
	v := r.values[r.pos]
	r.pos++
	return v
}

type fakeReplier struct {
	mu    sync.Mutex
	reply actor.Reply
	err   error
	// hook 在返回前调用，测试里用来模拟等待期间被取消
	hook func()
	reqs []actor.ReplyRequest
}

func (f *fakeReplier) Reply(_ context.Context, req actor.ReplyRequest) (actor.Reply, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	return f.reply, f.err
}

type fakeSynth struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeSynth) Synthesize(context.Context, string, float64, language.Code) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

type fixture struct {
	cursor   *Cursor
	pick     *fixedRand
	memory   *memory.Memory
	replier  *fakeReplier
	synth    *fakeSynth
	timeline *timeline.InMemoryStore
}

func newFixture(t *testing.T, script []model.ScriptLine) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	rng := &fixedRand{}
	f := &fixture{
		pick:     &fixedRand{},
		memory:   memory.New(memory.Config{}, clock),
		replier:  &fakeReplier{reply: actor.Reply{Text: "收到", Action: model.ReplyContinue}},
		synth:    &fakeSynth{},
		timeline: timeline.NewInMemoryStore(),
	}
	c, err := NewCursor(Deps{
		RoomID:      "room-1",
		Script:      script,
		Performance: Performance{Performer: "小雪", Topic: "猫", Lang: language.Chinese},
		Memory:      f.memory,
		Evaluator:   director.NewEvaluator(director.DefaultConfig(), rng),
		Scheduler:   director.NewScheduler(director.DefaultConfig(), rng),
		Replier:     f.replier,
		Synth:       f.synth,
		Cues:        cue.Deriver{},
		Timeline:    f.timeline,
		Rand:        f.pick,
		Now:         clock,
	})
	require.NoError(t, err)
	f.cursor = c
	return f
}

func line(text string, cost float64, keyInfo ...string) model.ScriptLine {
	return model.ScriptLine{Stage: model.StageBuildUp, Text: text, InterruptionCost: cost, KeyInfo: keyInfo}
}

func step(t *testing.T, c *Cursor, events ...model.Event) *model.StepRecord {
	t.Helper()
	rec, err := c.Step(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

// TestReduceAdvancesOneLine 每个 step 只前进一格，结束 step 进入 finished
func TestReduceAdvancesOneLine(t *testing.T) {
	state := &State{Script: make([]model.ScriptLine, 3), Phase: PhaseIdle}

	Reduce(state, &model.StepRecord{Step: 0, LineIndex: 0, Action: model.ActionJump})
	assert.Equal(t, 1, state.Index)
	assert.Equal(t, 1, state.Step)
	assert.Equal(t, PhaseRunning, state.Phase)

	Reduce(state, &model.StepRecord{Step: 1, LineIndex: 0})
	assert.Equal(t, 1, state.Index, "index never moves backwards")

	Reduce(state, &model.StepRecord{Step: 2, Action: model.ActionEnd})
	assert.Equal(t, 3, state.Index)
	assert.Equal(t, PhaseFinished, state.Phase)
	assert.True(t, state.Done())
}

// TestNewCursorRejectsEmptyScript 空剧本不能开演
func TestNewCursorRejectsEmptyScript(t *testing.T) {
	_, err := NewCursor(Deps{})
	assert.ErrorIs(t, err, ErrEmptyScript)
}

// TestStepWithoutEventsPerformsScriptThenEnds 没有弹幕时逐行表演，演完后重复返回结束语
func TestStepWithoutEventsPerformsScriptThenEnds(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{
		line("大家好", 0.5, "开场"),
		line("今天讲猫", 0.5, "主题 是猫"),
	})

	rec := step(t, f.cursor)
	assert.Equal(t, "大家好", rec.Speech)
	assert.Equal(t, model.ActionContinue, rec.Action)
	assert.Zero(t, rec.Priority)
	assert.Zero(t, rec.Cost)
	assert.NotNil(t, rec.Cue)
	assert.Equal(t, PhaseRunning, f.cursor.Phase())

	rec = step(t, f.cursor)
	assert.Equal(t, 1, rec.LineIndex)
	assert.Equal(t, 2, f.cursor.Progress().Index)

	end := step(t, f.cursor)
	assert.Equal(t, model.ActionEnd, end.Action)
	assert.Equal(t, "好啦，今天关于猫就聊到这里，谢谢大家！", end.Speech)
	assert.Equal(t, PhaseFinished, f.cursor.Phase())

	again := step(t, f.cursor)
	assert.Equal(t, end.Step, again.Step)
	assert.Equal(t, end.Speech, again.Speech)
	assert.Equal(t, 2, f.cursor.Progress().Index)

	mentioned, upcoming := f.memory.Facts()
	assert.Equal(t, []string{"开场", "主题 是猫"}, mentioned)
	assert.Empty(t, upcoming)

	recs, err := f.timeline.List(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	snap := f.memory.Snapshot()
	assert.Equal(t, 2, snap.Progress.CurrentLine)
	assert.Contains(t, snap.Progress.CompletedStages, model.StageBuildUp)
}

// TestImproviseWhenNoAnswerInScript 单行剧本、无匹配关键信息时即兴回应，口播只有回应
func TestImproviseWhenNoAnswerInScript(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("大家好", 0.5, "开场")})
	f.replier.reply = actor.Reply{Text: "这个嘛，我也不知道", Action: model.ReplyContinue}

	rec := step(t, f.cursor, model.Event{Text: "这是什么？", User: "alice"})

	assert.Equal(t, model.ActionImprovise, rec.Action)
	assert.Equal(t, "这个嘛，我也不知道", rec.Speech)
	assert.Equal(t, "这是什么？", rec.Responded)
	assert.Equal(t, "alice", rec.RespondedTo)
	assert.InDelta(t, 0.5, rec.Priority, 1e-9)
	assert.Equal(t, 0.5, rec.Cost)
	assert.Equal(t, 1, rec.Received)
	assert.Equal(t, 1, f.cursor.Progress().Index)
}

// TestJumpSurfacesAnswerEarly 高优先级提问的答案就在前方，提前说出答案行
func TestJumpSurfacesAnswerEarly(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{
		line("大家好", 0.5, "开场 白"),
		line("它叫小白", 0.5, "猫咪 名字 小白"),
	})
	f.replier.reply = actor.Reply{Text: "问得好！", Action: model.ReplyContinue}

	rec := step(t, f.cursor, model.Event{Text: "猫咪 名字？", User: "alice"})

	assert.Equal(t, model.ActionJump, rec.Action)
	assert.InDelta(t, 0.9, rec.Priority, 1e-9)
	assert.Equal(t, "问得好！它叫小白", rec.Speech)
	require.Len(t, f.replier.reqs, 1)
	assert.Equal(t, "它叫小白", f.replier.reqs[0].NextLine)
	assert.Equal(t, model.ActionJump, f.replier.reqs[0].Action)
	assert.Equal(t, 1, f.cursor.Progress().Index, "jump still advances one line")

	mentioned, _ := f.memory.Facts()
	assert.Contains(t, mentioned, "猫咪 名字 小白")
}

// TestTeaseCreatesPromiseFulfilledLater 答案太远时先卖关子，表演到答案行时兑现承诺
func TestTeaseCreatesPromiseFulfilledLater(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{
		line("大家好", 0.5, "开场"),
		line("第二句", 0.5, "第二"),
		line("第三句", 0.5, "第三"),
		line("第四句", 0.5, "第四"),
		line("它叫小白", 0.5, "猫咪 名字 小白"),
	})
	f.replier.reply = actor.Reply{Text: "等会儿告诉你", Action: model.ReplyContinue}

	rec := step(t, f.cursor, model.Event{Text: "猫咪 名字？", User: "alice"})
	assert.Equal(t, model.ActionTease, rec.Action)
	assert.Equal(t, "等会儿告诉你大家好", rec.Speech)

	pending := f.memory.PendingPromises()
	require.Len(t, pending, 1)
	assert.Equal(t, 4, pending[0].AnswerAtLine)
	assert.Equal(t, 0, pending[0].MadeAtStep)

	for i := 1; i <= 3; i++ {
		step(t, f.cursor)
	}
	assert.Len(t, f.memory.PendingPromises(), 1)

	step(t, f.cursor)
	assert.Empty(t, f.memory.PendingPromises())
	snap := f.memory.Snapshot()
	require.Len(t, snap.Promises, 1)
	assert.True(t, snap.Promises[0].Fulfilled)
}

// TestHighestPriorityWins 两条都过阈值时只回应最高的，另一条记为忽略
func TestHighestPriorityWins(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("大家好", 0.5, "开场")})

	low := model.ParseEvent("SC ¥60 路过", "bob")
	high := model.ParseEvent("SC ¥200 这是啥？", "carl")
	rec := step(t, f.cursor, low, high)

	assert.Equal(t, high.Text, rec.Responded)
	assert.Equal(t, 2, rec.Received)

	snap := f.memory.Snapshot()
	assert.Equal(t, []string{low.Text, high.Text}, snap.Received)
	assert.Equal(t, []string{high.Text}, snap.Responded)
	assert.Equal(t, []string{low.Text}, snap.Ignored)
	assert.Len(t, snap.Viewers, 2)
}

// TestReplyFailureFallsBackToTemplate 回应生成失败不影响 step，改用模板
func TestReplyFailureFallsBackToTemplate(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("大家好", 0.5, "开场")})
	f.replier.err = errors.New("upstream 500")

	rec := step(t, f.cursor, model.Event{Text: "这是什么？", User: "alice"})

	assert.Equal(t, model.ActionImprovise, rec.Action)
	assert.Equal(t, "好嘞，听我慢慢说", rec.Speech)
	assert.Equal(t, PhaseRunning, f.cursor.Phase())
}

// TestContinueReplyActions 普通回应：adapt 用生成的下文，digress 用过渡语接回当前台词
func TestContinueReplyActions(t *testing.T) {
	script := []model.ScriptLine{line("我们继续", 0.3, "小白 是只猫"), line("后来呢", 0.3)}
	evt := model.Event{Text: "小白 好可爱", User: "dan"}

	f := newFixture(t, script)
	f.pick.values = []float64{0}
	f.replier.reply = actor.Reply{Text: "是吧", Action: model.ReplyDigress}
	rec := step(t, f.cursor, evt)
	assert.Equal(t, model.ActionContinue, rec.Action)
	assert.InDelta(t, 0.45, rec.Priority, 1e-9)
	assert.Equal(t, model.ReplyDigress, rec.ReplyAction)
	assert.Equal(t, "是吧好，那刚才说到，我们继续", rec.Speech)

	f = newFixture(t, script)
	f.replier.reply = actor.Reply{Text: "是吧", Action: model.ReplyAdapt, NextContent: "小白真的很可爱"}
	rec = step(t, f.cursor, evt)
	assert.Equal(t, "是吧小白真的很可爱", rec.Speech)

	f = newFixture(t, script)
	rec = step(t, f.cursor, evt)
	assert.Equal(t, "收到我们继续", rec.Speech)
}

// TestQueuedEventsWaitForNextStep 入队的弹幕只在下一个 step 被考虑
func TestQueuedEventsWaitForNextStep(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("一", 0.9, "开场"), line("二", 0.9, "第二"), line("三", 0.9)})

	require.NoError(t, f.cursor.Enqueue(model.Event{Text: "路过", User: "eve"}))
	rec := step(t, f.cursor)
	assert.Equal(t, 1, rec.Received)

	rec = step(t, f.cursor)
	assert.Equal(t, 0, rec.Received)

	p, ok := f.memory.Profile("eve")
	require.True(t, ok)
	assert.Equal(t, 1, p.InteractionCount)
}

// TestEventsArrivingMidStepWaitForNextStep 等待回应期间到达的弹幕不影响当前 step 的裁决和记忆
func TestEventsArrivingMidStepWaitForNextStep(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("一", 0.1, "开场"), line("二", 0.9), line("三", 0.9)})
	f.replier.hook = func() {
		f.replier.hook = nil
		require.NoError(t, f.cursor.Enqueue(model.Event{Text: "我也来了", User: "late"}))
	}

	rec := step(t, f.cursor, model.Event{Text: "这是什么？", User: "alice"})
	assert.Equal(t, 1, rec.Received)
	assert.Equal(t, "alice", rec.RespondedTo)
	_, seen := f.memory.Profile("late")
	assert.False(t, seen)
	assert.Equal(t, []string{"这是什么？"}, f.memory.Snapshot().Received)
	assert.Empty(t, f.memory.Snapshot().Ignored)

	rec = step(t, f.cursor)
	assert.Equal(t, 1, rec.Received)
	p, seen := f.memory.Profile("late")
	require.True(t, seen)
	assert.Equal(t, 1, p.InteractionCount)
	assert.Equal(t, []string{"这是什么？", "我也来了"}, f.memory.Snapshot().Received)
}

// TestEndingStepObservesLateEvents 最后一行之后到达的弹幕在结束 step 里计入档案并记为忽略
func TestEndingStepObservesLateEvents(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("大家好", 0.9, "开场")})
	step(t, f.cursor)

	require.NoError(t, f.cursor.Enqueue(model.Event{Text: "还有吗", User: "late"}))
	end := step(t, f.cursor, model.Event{Text: "再见", User: "injected"})
	assert.Equal(t, model.ActionEnd, end.Action)
	assert.Equal(t, 2, end.Received)
	assert.Empty(t, end.Responded)

	for _, user := range []string{"late", "injected"} {
		p, ok := f.memory.Profile(user)
		require.True(t, ok, user)
		assert.Equal(t, 1, p.InteractionCount)
	}
	snap := f.memory.Snapshot()
	assert.Equal(t, []string{"还有吗", "再见"}, snap.Received)
	assert.Equal(t, []string{"还有吗", "再见"}, snap.Ignored)

	f.cursor.mu.RLock()
	assert.Empty(t, f.cursor.queue)
	f.cursor.mu.RUnlock()

	again := step(t, f.cursor)
	assert.Equal(t, 2, again.Received)
}

// TestEnqueueRespectsCapacity 队列满时拒绝
func TestEnqueueRespectsCapacity(t *testing.T) {
	c, err := NewCursor(Deps{
		Script:    []model.ScriptLine{line("一", 0.5)},
		Memory:    memory.New(memory.Config{}, nil),
		Evaluator: director.NewEvaluator(director.DefaultConfig(), &fixedRand{}),
		Scheduler: director.NewScheduler(director.DefaultConfig(), &fixedRand{}),
		Replier:   actor.TemplateReplier{},
		QueueSize: 1,
	})
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(model.Event{Text: "a", User: "u"}))
	assert.ErrorIs(t, c.Enqueue(model.Event{Text: "b", User: "u"}), ErrQueueFull)
}

// TestSeedEventsArriveEveryOtherStep 预置弹幕在第 0、2、4… 个 step 出现
func TestSeedEventsArriveEveryOtherStep(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("一", 0.9), line("二", 0.9), line("三", 0.9), line("四", 0.9)})
	f.cursor.ScheduleSeeds([]string{"第一条", "", "第二条"})

	assert.Equal(t, 1, step(t, f.cursor).Received)
	assert.Equal(t, 0, step(t, f.cursor).Received)
	assert.Equal(t, 1, step(t, f.cursor).Received)

	_, ok := f.memory.Profile("用户_0")
	assert.True(t, ok)
	_, ok = f.memory.Profile("用户_1")
	assert.True(t, ok)
}

// TestCancelledStepDoesNotCommit 等待回应时被取消，本 step 不生效
func TestCancelledStepDoesNotCommit(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("大家好", 0.5, "开场"), line("二", 0.5)})
	ctx, cancel := context.WithCancel(context.Background())
	f.replier.hook = cancel
	f.replier.err = context.Canceled

	_, err := f.cursor.Step(ctx, []model.Event{{Text: "这是什么？", User: "alice"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.cursor.Progress().Index)

	_, err = f.cursor.Step(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	recs, _ := f.timeline.List(context.Background(), "room-1")
	assert.Empty(t, recs)
}

// TestSynthesisFailureIsNotFatal 语音失败只丢音频
func TestSynthesisFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("一", 0.5), line("二", 0.5)})
	f.synth.err = errors.New("tts down")

	rec := step(t, f.cursor)
	assert.Nil(t, rec.Audio)
	assert.Equal(t, "一", rec.Speech)

	f.synth.err = nil
	f.synth.audio = []byte("mp3")
	rec = step(t, f.cursor)
	assert.Equal(t, []byte("mp3"), rec.Audio)
	assert.Equal(t, 2, f.synth.calls)
}

// TestEmotionBreakIsTracked 带情绪断点的台词进入情绪轨迹
func TestEmotionBreakIsTracked(t *testing.T) {
	l := line("我真的好难过", 0.8)
	l.Stage = model.StageClimax
	l.EmotionBreak = &model.EmotionBreak{Level: 2, Trigger: "回忆"}
	f := newFixture(t, []model.ScriptLine{l})

	rec := step(t, f.cursor)
	require.NotNil(t, rec.EmotionBreak)

	track := f.memory.Snapshot().EmotionTrack
	require.Len(t, track, 1)
	assert.Equal(t, 2, track[0].Level)
	assert.Equal(t, model.StageClimax, track[0].Stage)
}

// TestFailedCursorStopsProducingSteps error 阶段之后不再产出
func TestFailedCursorStopsProducingSteps(t *testing.T) {
	f := newFixture(t, []model.ScriptLine{line("一", 0.5)})
	f.cursor.Fail()

	_, err := f.cursor.Step(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCursorFailed)
	assert.Equal(t, PhaseError, f.cursor.Progress().Phase)
}
