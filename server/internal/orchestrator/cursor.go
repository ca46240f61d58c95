// Package orchestrator 驱动一场演出逐行推进：汇总弹幕、裁决打断、拼出口播，并把结果提交到记忆与时间线。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"livecast/server/internal/actor"
	"livecast/server/internal/cue"
	"livecast/server/internal/director"
	"livecast/server/internal/language"
	"livecast/server/internal/memory"
	"livecast/server/internal/model"
	scriptpkg "livecast/server/internal/script"
	"livecast/server/internal/timeline"
	"livecast/server/internal/tts"
)

var (
	// ErrCursorFailed 游标已进入 error 阶段，不再产出 step
	ErrCursorFailed = errors.New("narrative cursor failed")
	// ErrQueueFull 待处理弹幕已满
	ErrQueueFull = errors.New("event queue full")
	// ErrEmptyScript 没有台词可演
	ErrEmptyScript = errors.New("empty script")
)

const (
	defaultQueueSize = 64
	activeViewers    = 3
)

// Performance 一场演出的人设与话题
type Performance struct {
	Performer  string
	Persona    string
	Background string
	Topic      string
	Lang       language.Code
}

// CueDeriver 推导表演标注
type CueDeriver interface {
	Derive(line model.ScriptLine, speech string, action model.Action) *model.Cue
}

// Deps Cursor 的依赖。Memory/Evaluator/Scheduler/Replier 必填，其余可为零值。
type Deps struct {
	RoomID      string
	Script      []model.ScriptLine
	Performance Performance

	Memory    *memory.Memory
	Evaluator *director.Evaluator
	Scheduler *director.Scheduler
	Replier   actor.Replier
	Synth     tts.Synthesizer
	Cues      CueDeriver
	Timeline  timeline.Store

	// Rand 只用来挑过渡语，和裁决用的随机源分开
	Rand      director.RandSource
	QueueSize int
	Logger    *log.Logger
	// Debug 为 true 时逐条打印弹幕评分
	Debug bool
	Now   func() time.Time
}

// Progress 状态查询用的一致快照
type Progress struct {
	Phase Phase
	Step  int
	Index int
	Total int
	Stage model.Stage
}

// Cursor 叙事游标。Step 只能由一个 goroutine 调用；Enqueue 与 Progress 可并发调用。
type Cursor struct {
	deps Deps
	tpl  language.Templates

	mu     sync.RWMutex
	state  State
	queue  []model.Event
	seeds  map[int][]model.Event
	ending *model.StepRecord
}

// NewCursor 创建游标，剧本在此之后只读。
func NewCursor(deps Deps) (*Cursor, error) {
	if len(deps.Script) == 0 {
		return nil, ErrEmptyScript
	}
	if deps.Memory == nil || deps.Evaluator == nil || deps.Scheduler == nil || deps.Replier == nil {
		return nil, fmt.Errorf("cursor: missing collaborator")
	}
	if deps.Synth == nil {
		deps.Synth = tts.Noop{}
	}
	if deps.Rand == nil {
		deps.Rand = director.NewRand(0)
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = defaultQueueSize
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	script := make([]model.ScriptLine, len(deps.Script))
	copy(script, deps.Script)
	for i := range script {
		script[i].Index = i
	}
	deps.Script = script

	deps.Memory.SetUpcoming(scriptpkg.KeyFacts(script))
	deps.Memory.SetProgress(0, len(script), script[0].Stage)

	return &Cursor{
		deps:  deps,
		tpl:   language.For(deps.Performance.Lang),
		state: State{Script: script, Phase: PhaseIdle},
		seeds: make(map[int][]model.Event),
	}, nil
}

// ScheduleSeeds 预置弹幕：第 i 条在第 2·i 个 step 出现，作者按语言编号。
func (c *Cursor) ScheduleSeeds(texts []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, text := range texts {
		if text == "" {
			continue
		}
		evt := model.ParseEvent(text, c.tpl.SeedUserName(n))
		c.seeds[2*n] = append(c.seeds[2*n], evt)
		n++
	}
}

// Enqueue 把一条弹幕放进队列，下一个 step 开始时才会被看到。
func (c *Cursor) Enqueue(evt model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) >= c.deps.QueueSize {
		return ErrQueueFull
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = c.deps.Now()
	}
	c.queue = append(c.queue, evt)
	return nil
}

// Progress 返回当前进度快照
func (c *Cursor) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progressLocked()
}

func (c *Cursor) progressLocked() Progress {
	p := Progress{
		Phase: c.state.Phase,
		Step:  c.state.Step,
		Index: c.state.Index,
		Total: len(c.state.Script),
	}
	i := c.state.Index - 1
	if i < 0 {
		i = 0
	}
	if i >= len(c.state.Script) {
		i = len(c.state.Script) - 1
	}
	p.Stage = c.state.Script[i].Stage
	return p
}

// Phase 当前阶段
func (c *Cursor) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Phase
}

// Fail 把游标置为 error，之后的 Step 都返回 ErrCursorFailed。
func (c *Cursor) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Phase = PhaseError
}

// drain 取出本 step 可见的全部弹幕：预置弹幕、队列、以及调用时注入的弹幕。
func (c *Cursor) drain(step int, injected []model.Event) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := append([]model.Event{}, c.seeds[step]...)
	delete(c.seeds, step)
	events = append(events, c.queue...)
	c.queue = nil
	events = append(events, injected...)

	now := c.deps.Now()
	for i := range events {
		if events[i].ReceivedAt.IsZero() {
			events[i].ReceivedAt = now
		}
	}
	return events
}

// Step 推进一个 step。
//
// 副作用说明：
// - 每条弹幕都计入观众档案，无论是否被选中。
// - 语音与表演标注是尽力而为的，失败只记日志。
// - 提交顺序：先写时间线（append-first），再更新记忆、归约状态；提交前取消则本 step 不生效。
// 剧本演完后的下一次调用产出结束语并进入 finished；之后再调用会重复返回同一条结束 step。
func (c *Cursor) Step(ctx context.Context, injected []model.Event) (*model.StepRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	phase := c.state.Phase
	index := c.state.Index
	step := c.state.Step
	done := c.state.Done()
	ending := c.ending
	c.mu.RUnlock()

	switch phase {
	case PhaseError:
		return nil, ErrCursorFailed
	case PhaseFinished:
		rec := *ending
		return &rec, nil
	}

	if done {
		return c.finish(ctx, step, injected)
	}

	script := c.deps.Script
	line := script[index]
	events := c.drain(step, injected)

	for _, evt := range events {
		c.deps.Memory.Observe(evt)
	}

	mentioned, upcoming := c.deps.Memory.Facts()
	story := director.StoryContext{Topic: c.deps.Performance.Topic, Mentioned: mentioned, Upcoming: upcoming}
	scored := make([]*model.Event, len(events))
	for i := range events {
		scored[i] = c.deps.Evaluator.Evaluate(&events[i], story)
		if c.deps.Debug {
			c.deps.Logger.Printf("[Cursor] step=%d event=%q user=%s relevance=%.2f priority=%.2f",
				step, events[i].Text, events[i].User, events[i].Relevance, events[i].Priority)
		}
	}
	decision := c.deps.Scheduler.Decide(scored, script, index)

	rec := &model.StepRecord{
		Step:         step,
		LineIndex:    index,
		Stage:        line.Stage,
		Speech:       line.Text,
		Action:       decision.Action,
		Received:     len(events),
		Disfluencies: line.Disfluencies,
		EmotionBreak: line.EmotionBreak,
		At:           c.deps.Now(),
	}

	if decision.Interrupted() {
		reply, err := c.reply(ctx, decision, line, index)
		if err != nil {
			return nil, err
		}
		rec.Speech = c.compose(decision, reply, line)
		rec.ReplyAction = reply.Action
		rec.Responded = decision.Winner.Text
		rec.RespondedTo = decision.Winner.User
		rec.Priority = decision.Priority
		rec.Cost = decision.Cost
		rec.Relevance = decision.Relevance
		c.deps.Logger.Printf("[Cursor] step=%d %s -> %s (priority=%.2f cost=%.2f)",
			step, decision.Winner.User, decision.Action, decision.Priority, decision.Cost)
	}

	c.decorate(ctx, rec, line)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.commit(ctx, rec, decision, events, line); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Cursor) reply(ctx context.Context, d director.Decision, line model.ScriptLine, index int) (actor.Reply, error) {
	mem := c.deps.Memory
	viewer, _ := mem.Profile(d.Winner.User)
	perf := c.deps.Performance

	next := ""
	if d.Action == model.ActionJump {
		next = c.deps.Script[d.Answer.LineIndex].Text
	} else if index+1 < len(c.deps.Script) {
		next = c.deps.Script[index+1].Text
	}

	req := actor.ReplyRequest{
		Performer:     perf.Performer,
		Persona:       perf.Persona,
		Background:    perf.Background,
		Topic:         perf.Topic,
		Lang:          perf.Lang,
		Event:         *d.Winner,
		Viewer:        viewer,
		ActiveViewers: mem.ActiveViewersContext(activeViewers),
		Memory:        mem.Context(),
		Stage:         line.Stage,
		CurrentLine:   line.Text,
		NextLine:      next,
		Action:        d.Action,
		AnswerHint:    d.Answer.Hint,
	}

	reply, err := c.deps.Replier.Reply(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return actor.Reply{}, ctxErr
		}
		c.deps.Logger.Printf("[Cursor] ⚠️ reply failed, using template: %v", err)
		return actor.Fallback(req), nil
	}
	if reply.Text == "" {
		return actor.Fallback(req), nil
	}
	return reply, nil
}

// compose 把回应和剧本拼成这一 step 的口播。
func (c *Cursor) compose(d director.Decision, reply actor.Reply, line model.ScriptLine) string {
	switch d.Action {
	case model.ActionImprovise:
		return reply.Text
	case model.ActionJump:
		return c.tpl.Join(reply.Text, orElse(reply.NextContent, c.deps.Script[d.Answer.LineIndex].Text))
	case model.ActionTease:
		return c.tpl.Join(reply.Text, orElse(reply.NextContent, line.Text))
	}

	switch reply.Action {
	case model.ReplyAdapt:
		return c.tpl.Join(reply.Text, orElse(reply.NextContent, line.Text))
	case model.ReplyDigress:
		if reply.NextContent != "" {
			return c.tpl.Join(reply.Text, reply.NextContent)
		}
		return c.tpl.Join(reply.Text, c.tpl.Transition(c.deps.Rand.Float64())+line.Text)
	default:
		return c.tpl.Join(reply.Text, line.Text)
	}
}

func orElse(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

// commit 写时间线、更新记忆、归约状态。
func (c *Cursor) commit(ctx context.Context, rec *model.StepRecord, d director.Decision, events []model.Event, line model.ScriptLine) error {
	if c.deps.Timeline != nil {
		if _, err := c.deps.Timeline.Append(ctx, c.deps.RoomID, rec); err != nil {
			c.Fail()
			return fmt.Errorf("append step %d: %w", rec.Step, err)
		}
	}

	mem := c.deps.Memory
	var ignored []string
	for i, evt := range events {
		if d.Interrupted() && i == d.WinnerIndex {
			mem.RecordResponded(evt.Text)
			continue
		}
		ignored = append(ignored, evt.Text)
	}
	if len(ignored) > 0 {
		mem.RecordIgnored(ignored...)
	}
	if d.Action == model.ActionTease && d.Answer.Found {
		mem.AddPromise(d.Winner.Text, rec.Step, d.Answer.LineIndex)
	}

	mem.MarkMentioned(line.KeyInfo)
	if d.Action == model.ActionJump && d.Answer.Found {
		mem.MarkMentioned([]string{d.Answer.Hint})
	}
	mem.FulfillPromises(rec.LineIndex)
	mem.SetProgress(rec.LineIndex+1, len(c.deps.Script), line.Stage)
	if line.EmotionBreak != nil {
		mem.AddEmotion(model.EmotionMark{
			Step:      rec.Step,
			LineIndex: rec.LineIndex,
			Level:     line.EmotionBreak.Level,
			Trigger:   line.EmotionBreak.Trigger,
			Stage:     line.Stage,
		})
	}

	c.mu.Lock()
	Reduce(&c.state, rec)
	c.mu.Unlock()
	return nil
}

// decorate 补上表演标注和语音，失败时字段留空。
func (c *Cursor) decorate(ctx context.Context, rec *model.StepRecord, line model.ScriptLine) {
	if c.deps.Cues != nil {
		rec.Cue = c.deps.Cues.Derive(line, rec.Speech, rec.Action)
	}

	level := 0
	if rec.EmotionBreak != nil {
		level = rec.EmotionBreak.Level
	}
	emotion := cue.SpeechEmotion(rec.Stage, level, rec.Action)
	audio, err := c.deps.Synth.Synthesize(ctx, rec.Speech, emotion, c.deps.Performance.Lang)
	if err != nil {
		c.deps.Logger.Printf("[Cursor] ⚠️ speech synthesis failed at step %d: %v", rec.Step, err)
		return
	}
	rec.Audio = audio
}

// finish 产出结束语 step，游标进入 finished。
// 最后一行之后到达的弹幕照样计入观众档案，但不再回应。
func (c *Cursor) finish(ctx context.Context, step int, injected []model.Event) (*model.StepRecord, error) {
	script := c.deps.Script
	last := script[len(script)-1]
	farewell := c.tpl.FarewellLine(c.deps.Performance.Topic)

	events := c.drain(step, injected)
	for _, evt := range events {
		c.deps.Memory.Observe(evt)
	}

	rec := &model.StepRecord{
		Step:      step,
		LineIndex: len(script),
		Stage:     last.Stage,
		Speech:    farewell,
		Action:    model.ActionEnd,
		Received:  len(events),
		At:        c.deps.Now(),
	}
	c.decorate(ctx, rec, model.ScriptLine{Index: len(script), Stage: last.Stage, Text: farewell})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.deps.Timeline != nil {
		if _, err := c.deps.Timeline.Append(ctx, c.deps.RoomID, rec); err != nil {
			c.Fail()
			return nil, fmt.Errorf("append ending: %w", err)
		}
	}
	if len(events) > 0 {
		ignored := make([]string, len(events))
		for i, evt := range events {
			ignored[i] = evt.Text
		}
		c.deps.Memory.RecordIgnored(ignored...)
	}
	c.deps.Memory.CompleteAll()

	c.mu.Lock()
	Reduce(&c.state, rec)
	ending := *rec
	c.ending = &ending
	c.mu.Unlock()
	return rec, nil
}
