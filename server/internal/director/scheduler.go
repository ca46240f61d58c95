package director

import (
	"strings"

	"livecast/server/internal/model"
)

// defaultCost 剧本走完后没有当前台词时使用的阻力。
const defaultCost = 0.2

// AnswerLocation 在剩余剧本里找到的答案位置。
type AnswerLocation struct {
	Found     bool
	LineIndex int
	// Distance = LineIndex - 当前 index
	Distance int
	// Hint 命中的关键信息
	Hint string
}

// Decision 一个 step 的裁决结果。没有弹幕胜出时 Winner 为 nil，Action 为 continue。
type Decision struct {
	Winner      *model.Event
	WinnerIndex int
	Action      model.Action
	Answer      AnswerLocation
	Priority    float64
	Cost        float64
	Relevance   float64
	// Qualified 通过打断阈值的弹幕数量
	Qualified int
}

// Interrupted 本 step 是否有弹幕胜出。
func (d Decision) Interrupted() bool {
	return d.Winner != nil
}

// Scheduler 在一批已评估的弹幕中选出至多一条，并决定叙事动作。
type Scheduler struct {
	cfg Config
	rng RandSource
}

// NewScheduler 创建打断调度器。
func NewScheduler(cfg Config, rng RandSource) *Scheduler {
	if rng == nil {
		rng = NewRand(0)
	}
	return &Scheduler{cfg: cfg.withDefaults(), rng: rng}
}

// Decide 对已评估的弹幕做裁决。
// 每条弹幕都会消耗一次随机数，保证同一随机序列下的结果可复现。
// 优先级并列时保留先到的那条。
func (s *Scheduler) Decide(events []*model.Event, script []model.ScriptLine, index int) Decision {
	cost := defaultCost
	if index >= 0 && index < len(script) {
		cost = script[index].InterruptionCost
	}

	decision := Decision{WinnerIndex: -1, Action: model.ActionContinue}
	threshold := cost * s.cfg.CostFactor
	for i, evt := range events {
		whim := s.rng.Float64() < s.cfg.WhimChance
		if !(evt.Priority > threshold || (evt.Priority > 0.3 && whim)) {
			continue
		}
		decision.Qualified++
		if decision.Winner == nil || evt.Priority > decision.Winner.Priority {
			decision.Winner = evt
			decision.WinnerIndex = i
		}
	}
	if decision.Winner == nil {
		return decision
	}

	decision.Priority = decision.Winner.Priority
	decision.Relevance = decision.Winner.Relevance
	decision.Cost = cost
	decision.Answer = FindAnswer(decision.Winner.Text, script, index)
	decision.Action = chooseAction(decision.Priority, decision.Answer)
	return decision
}

// FindAnswer 从 index 起向后扫描，返回第一条关键信息包含弹幕关键词的台词。
func FindAnswer(text string, script []model.ScriptLine, index int) AnswerLocation {
	keywords := ExtractKeywords(text)
	if len(keywords) == 0 || index < 0 {
		return AnswerLocation{}
	}
	for i := index; i < len(script); i++ {
		for _, info := range script[i].KeyInfo {
			lower := strings.ToLower(info)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					return AnswerLocation{Found: true, LineIndex: i, Distance: i - index, Hint: info}
				}
			}
		}
	}
	return AnswerLocation{}
}

func chooseAction(priority float64, loc AnswerLocation) model.Action {
	if !loc.Found {
		return model.ActionImprovise
	}
	switch {
	case priority > 0.8:
		if loc.Distance <= 3 {
			return model.ActionJump
		}
		return model.ActionTease
	case priority > 0.5:
		if loc.Distance <= 2 {
			return model.ActionContinue
		}
		return model.ActionTease
	default:
		return model.ActionContinue
	}
}
