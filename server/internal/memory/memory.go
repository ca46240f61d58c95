// Package memory 保存一场表演的记忆：观众档案、弹幕记录、承诺、剧情事实与情绪轨迹。
//
// Memory 由驱动表演的那个 goroutine 写入；读锁保护状态查询时的快照读取。
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"livecast/server/internal/model"
)

const (
	defaultMaxEvents  = 50
	defaultMaxMoments = 10
)

// Config 记忆容量。
type Config struct {
	// MaxEvents received/responded/ignored 各自保留的最近条数。
	MaxEvents int
	// MaxMoments 每个观众保留的特殊时刻条数。
	MaxMoments int
}

// Memory 一场表演的记忆。
type Memory struct {
	mu  sync.RWMutex
	cfg Config
	now func() time.Time

	viewers map[string]*model.ViewerProfile

	received  []string
	responded []string
	ignored   []string

	promises []model.Promise

	mentioned []string
	upcoming  []string

	progress     model.ScriptProgress
	emotionTrack []model.EmotionMark
}

// New 创建空记忆。now 为 nil 时使用 time.Now。
func New(cfg Config, now func() time.Time) *Memory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	if cfg.MaxMoments <= 0 {
		cfg.MaxMoments = defaultMaxMoments
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{
		cfg:      cfg,
		now:      now,
		viewers:  make(map[string]*model.ViewerProfile),
		progress: model.ScriptProgress{CurrentStage: model.StageHook, CompletedStages: []model.Stage{}},
	}
}

// Observe 记录一条收到的弹幕并更新作者档案，返回更新后的档案副本。
func (m *Memory) Observe(evt model.Event) model.ViewerProfile {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.received = appendBounded(m.received, evt.Text, m.cfg.MaxEvents)

	now := m.now()
	p, ok := m.viewers[evt.User]
	if !ok {
		p = &model.ViewerProfile{User: evt.User, FirstSeen: now}
		m.viewers[evt.User] = p
	}
	p.InteractionCount++
	p.LastSeen = now
	if tier := tierFor(p.InteractionCount); tier > p.Tier {
		p.Tier = tier
	}
	if evt.Gift && evt.Amount > 0 {
		p.GiftTotal += evt.Amount
		p.Moments = appendBounded(p.Moments, fmt.Sprintf("gift ¥%d: %s", evt.Amount, evt.Text), m.cfg.MaxMoments)
	}
	if p.Style == model.StyleNone {
		p.Style = inferStyle(evt)
	}
	return copyProfile(p)
}

func tierFor(count int) model.BondingTier {
	switch {
	case count >= 20:
		return model.TierCore
	case count >= 10:
		return model.TierRegular
	case count >= 3:
		return model.TierFamiliar
	default:
		return model.TierStranger
	}
}

// inferStyle 简单启发式：笑点 > 提问 > 应援。
func inferStyle(evt model.Event) model.ReactionStyle {
	switch {
	case evt.IsHumorous():
		return model.StyleHumorous
	case evt.IsQuestion():
		return model.StyleInquisitive
	case evt.IsSupportive():
		return model.StyleSupportive
	}
	return model.StyleNone
}

// Profile 查询观众档案。
func (m *Memory) Profile(user string) (model.ViewerProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.viewers[user]
	if !ok {
		return model.ViewerProfile{}, false
	}
	return copyProfile(p), true
}

// RecordResponded 记录被回应的弹幕。
func (m *Memory) RecordResponded(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responded = appendBounded(m.responded, text, m.cfg.MaxEvents)
}

// RecordIgnored 记录本 step 未被选中的弹幕。
func (m *Memory) RecordIgnored(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.ignored = appendBounded(m.ignored, t, m.cfg.MaxEvents)
	}
}

// AddPromise 记录一个“等会儿再说”的承诺。
func (m *Memory) AddPromise(content string, step, answerAtLine int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promises = append(m.promises, model.Promise{
		Content:      content,
		MadeAtStep:   step,
		AnswerAtLine: answerAtLine,
	})
}

// FulfillPromises 把目标台词为 lineIndex 的未兑现承诺标记为已兑现，返回本次兑现的承诺。
func (m *Memory) FulfillPromises(lineIndex int) []model.Promise {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fulfilled []model.Promise
	for i := range m.promises {
		p := &m.promises[i]
		if !p.Fulfilled && p.AnswerAtLine == lineIndex {
			p.Fulfilled = true
			fulfilled = append(fulfilled, *p)
		}
	}
	return fulfilled
}

// PendingPromises 返回未兑现的承诺。
func (m *Memory) PendingPromises() []model.Promise {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Promise
	for _, p := range m.promises {
		if !p.Fulfilled {
			out = append(out, p)
		}
	}
	return out
}

// SetUpcoming 用剧本的关键信息初始化“将要提到的事实”。
func (m *Memory) SetUpcoming(facts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upcoming = dedupe(facts)
}

// MarkMentioned 把已经讲出的事实从 upcoming 挪到 mentioned。
func (m *Memory) MarkMentioned(facts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range facts {
		if f == "" || contains(m.mentioned, f) {
			continue
		}
		m.mentioned = append(m.mentioned, f)
		m.upcoming = remove(m.upcoming, f)
	}
}

// Facts 返回已提到与将要提到的事实（副本）。
func (m *Memory) Facts() (mentioned, upcoming []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.mentioned...), append([]string(nil), m.upcoming...)
}

// SetProgress 更新剧本进度；演过至少一行后发生阶段切换，上一阶段记为已完成。
func (m *Memory) SetProgress(line, total int, stage model.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.progress.CurrentStage
	if m.progress.CurrentLine > 0 && prev != "" && prev != stage {
		m.progress.CompletedStages = append(m.progress.CompletedStages, prev)
	}
	m.progress.CurrentLine = line
	m.progress.TotalLines = total
	m.progress.CurrentStage = stage
}

// CompleteAll 演出结束时把当前阶段也记为已完成。
func (m *Memory) CompleteAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	stage := m.progress.CurrentStage
	n := len(m.progress.CompletedStages)
	if stage != "" && (n == 0 || m.progress.CompletedStages[n-1] != stage) {
		m.progress.CompletedStages = append(m.progress.CompletedStages, stage)
	}
	m.progress.CurrentLine = m.progress.TotalLines
}

// AddEmotion 记录一次情绪破防。
func (m *Memory) AddEmotion(mark model.EmotionMark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emotionTrack = append(m.emotionTrack, mark)
}

// ActiveViewers 按最近互动时间倒序返回至多 limit 个观众。
func (m *Memory) ActiveViewers(limit int) []model.ViewerProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeViewersLocked(limit)
}

func (m *Memory) activeViewersLocked(limit int) []model.ViewerProfile {
	out := make([]model.ViewerProfile, 0, len(m.viewers))
	for _, p := range m.viewers {
		out = append(out, copyProfile(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].User < out[j].User
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Snapshot 返回当前记忆的只读快照。
func (m *Memory) Snapshot() model.MemorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	progress := m.progress
	progress.CompletedStages = append([]model.Stage{}, m.progress.CompletedStages...)
	return model.MemorySnapshot{
		Progress:     progress,
		Received:     append([]string{}, m.received...),
		Responded:    append([]string{}, m.responded...),
		Ignored:      append([]string{}, m.ignored...),
		Viewers:      m.activeViewersLocked(0),
		Promises:     append([]model.Promise{}, m.promises...),
		Mentioned:    append([]string{}, m.mentioned...),
		Upcoming:     append([]string{}, m.upcoming...),
		EmotionTrack: append([]model.EmotionMark{}, m.emotionTrack...),
	}
}

func copyProfile(p *model.ViewerProfile) model.ViewerProfile {
	out := *p
	out.Moments = append([]string(nil), p.Moments...)
	return out
}

func appendBounded(list []string, item string, max int) []string {
	list = append(list, item)
	if len(list) > max {
		list = append([]string(nil), list[len(list)-max:]...)
	}
	return list
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != "" && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
