package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"livecast/server/internal/cue"
	"livecast/server/internal/director"
	"livecast/server/internal/history"
	"livecast/server/internal/language"
	"livecast/server/internal/memory"
	"livecast/server/internal/model"
	"livecast/server/internal/orchestrator"
	"livecast/server/internal/script"
)

const previewLines = 3

// run 驱动一场演出直到结束、出错或被取消。只在 Start 启动的 goroutine 中执行。
func (m *Manager) run(ctx context.Context, r *Room, req StartRequest) {
	logger := m.deps.Logger
	startedAt := m.deps.Now()
	lang := m.resolveLanguage(req)
	texts := language.For(lang).Status
	r.broadcast(model.InfoMessage{Content: texts.Preparing})

	perf := orchestrator.Performance{
		Performer:  req.Name,
		Persona:    req.Persona,
		Background: req.Background,
		Topic:      req.Topic,
		Lang:       lang,
	}
	logger.Printf("[Room] %s starting: performer=%s topic=%q lang=%s", r.id, req.Name, req.Topic, lang)

	r.setState(model.StreamGeneratingScript, texts.Generating)
	r.broadcast(model.InfoMessage{Content: texts.Generating})
	lines, err := m.deps.Scripts.Generate(ctx, script.Request{
		Performer:  req.Name,
		Persona:    req.Persona,
		Background: req.Background,
		Topic:      req.Topic,
		Lang:       lang,
		MinLines:   m.deps.Room.MinLines,
		MaxLines:   m.deps.Room.MaxLines,
	})
	if err != nil {
		m.end(ctx, r, fmt.Errorf("generate script: %w", err))
		return
	}

	if err := m.deps.Timeline.Reset(ctx, r.id); err != nil {
		logger.Printf("[Room] ⚠️ reset timeline for %s: %v", r.id, err)
	}

	seed := m.deps.Director.Seed
	rng := director.NewRand(seed)
	dcfg := director.Config{
		SpontaneousChance: m.deps.Director.SpontaneousChance,
		SpontaneousBonus:  m.deps.Director.SpontaneousBonus,
		WhimChance:        m.deps.Director.WhimChance,
		CostFactor:        m.deps.Director.CostFactor,
	}
	pick := director.NewRand(0)
	if seed != 0 {
		pick = director.NewRand(seed + 1)
	}

	mem := memory.New(memory.Config{}, m.deps.Now)
	cursor, err := orchestrator.NewCursor(orchestrator.Deps{
		RoomID:      r.id,
		Script:      lines,
		Performance: perf,
		Memory:      mem,
		Evaluator:   director.NewEvaluator(dcfg, rng),
		Scheduler:   director.NewScheduler(dcfg, rng),
		Replier:     m.deps.Replier,
		Synth:       m.deps.Synth,
		Cues:        cue.Deriver{},
		Timeline:    m.deps.Timeline,
		Rand:        pick,
		QueueSize:   m.deps.Room.QueueSize,
		Logger:      logger,
		Debug:       m.deps.Debug,
		Now:         m.deps.Now,
	})
	if err != nil {
		m.end(ctx, r, fmt.Errorf("create cursor: %w", err))
		return
	}
	if m.deps.Room.SeedEvents {
		cursor.ScheduleSeeds(req.SeedEvents)
	}
	r.attach(cursor, len(lines))

	r.broadcast(model.ScriptReadyMessage{TotalSteps: len(lines), Preview: script.Preview(lines, previewLines)})
	r.setState(model.StreamPerforming, language.For(lang).ScriptReadyInfo(len(lines)))
	logger.Printf("[Room] %s script ready: %d lines", r.id, len(lines))

	steps := 0
	for {
		rec, err := m.step(ctx, r, cursor)
		if err != nil {
			m.end(ctx, r, err)
			return
		}
		steps++

		progress := cursor.Progress()
		r.mu.Lock()
		r.currentStep = progress.Index
		r.stage = rec.Stage
		r.mu.Unlock()

		r.broadcast(model.StepMessage{Record: *rec})
		r.broadcast(model.MemoryMessage{Memory: mem.Snapshot()})

		if rec.Action == model.ActionEnd {
			break
		}
		if limit := m.deps.Room.MaxSteps; limit > 0 && steps >= limit {
			logger.Printf("[Room] %s reached max steps (%d)", r.id, limit)
			break
		}

		select {
		case <-ctx.Done():
			m.end(ctx, r, ctx.Err())
			return
		case <-time.After(m.deps.Room.StepDelay):
		}
	}

	mem.CompleteAll()
	r.setState(model.StreamFinished, texts.Finished)
	r.broadcast(model.MemoryMessage{Memory: mem.Snapshot()})
	r.broadcast(model.FinishedMessage{Content: texts.Finished, Steps: steps})
	logger.Printf("[Room] %s finished after %d steps", r.id, steps)

	run := history.Run{
		ID:         uuid.NewString(),
		RoomID:     r.id,
		Topic:      req.Topic,
		Performer:  req.Name,
		Language:   string(lang),
		State:      string(model.StreamFinished),
		Steps:      steps,
		StartedAt:  startedAt,
		FinishedAt: m.deps.Now(),
	}
	if err := m.deps.History.Record(context.WithoutCancel(ctx), run); err != nil {
		logger.Printf("[Room] ⚠️ record history for %s: %v", r.id, err)
	}
}

// step 在一个 span 内推进一步。
func (m *Manager) step(ctx context.Context, r *Room, c *orchestrator.Cursor) (*model.StepRecord, error) {
	progress := c.Progress()
	ctx, span := m.deps.Tracer.Start(ctx, "room.step", trace.WithAttributes(
		attribute.String("room.id", r.id),
		attribute.Int("room.step", progress.Step),
		attribute.Int("script.index", progress.Index),
	))
	defer span.End()

	rec, err := c.Step(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("step.action", string(rec.Action)),
		attribute.Int("step.received", rec.Received),
		attribute.Float64("step.priority", rec.Priority),
	)
	return rec, nil
}

// end 以 stopped（被取消）或 error 结束演出。
func (m *Manager) end(ctx context.Context, r *Room, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		stopped := r.texts().Stopped
		r.setState(model.StreamStopped, stopped)
		r.broadcast(model.InfoMessage{Content: stopped})
		m.deps.Logger.Printf("[Room] %s stopped", r.id)
		return
	}

	r.mu.Lock()
	r.state = model.StreamError
	r.errMsg = err.Error()
	c := r.cursor
	r.mu.Unlock()
	if c != nil {
		c.Fail()
	}

	m.deps.Logger.Printf("[Room] ❌ %s failed: %v", r.id, err)
	r.broadcast(model.ErrorMessage{Content: err.Error()})
}
