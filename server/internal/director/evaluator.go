package director

import (
	"strings"

	"livecast/server/internal/model"
)

// emphaticMarkers 情绪化/强调弹幕的关键词。
var emphaticMarkers = []string{
	"哈哈", "笑死", "真的假的", "！", "!", "牛", "woc", "啊这", "离谱", "绝了",
	"lol", "lmao", "omg", "wow", "no way", "www", "草",
}

// StoryContext Evaluator 计算相关性时需要的剧情上下文。
type StoryContext struct {
	Topic     string
	Mentioned []string
	Upcoming  []string
}

// Evaluator 给单条弹幕打分：priority = base + relevanceBonus + giftBonus。
type Evaluator struct {
	cfg Config
	rng RandSource
}

// NewEvaluator 创建弹幕评估器。
func NewEvaluator(cfg Config, rng RandSource) *Evaluator {
	if rng == nil {
		rng = NewRand(0)
	}
	return &Evaluator{cfg: cfg.withDefaults(), rng: rng}
}

// Evaluate 原地写入 evt.Relevance 与 evt.Priority，并返回同一条弹幕。
// 打赏加成不设上限。
func (e *Evaluator) Evaluate(evt *model.Event, story StoryContext) *model.Event {
	base := BaseScore(*evt)
	if e.rng.Float64() < e.cfg.SpontaneousChance {
		base += e.cfg.SpontaneousBonus
	}

	evt.Relevance = Relevance(evt.Text, story)
	evt.Priority = base + relevanceBonus(evt.Relevance) + GiftBonus(*evt)
	return evt
}

// BaseScore 按弹幕形态给出基础分：提问 0.5，情绪化 0.35，其余 0.25。
func BaseScore(evt model.Event) float64 {
	if evt.IsQuestion() {
		return 0.5
	}
	lower := strings.ToLower(evt.Text)
	for _, kw := range emphaticMarkers {
		if strings.Contains(lower, kw) {
			return 0.35
		}
	}
	return 0.25
}

// Relevance 计算弹幕与剧情的相关性：共享关键词数 / 2，封顶 1。
// 已提到与将要提到的事实都为空时退回到话题本身。
func Relevance(text string, story StoryContext) float64 {
	storyKeywords := keywordSet(append(append([]string{}, story.Mentioned...), story.Upcoming...)...)
	if len(storyKeywords) == 0 {
		storyKeywords = keywordSet(story.Topic)
	}
	if len(storyKeywords) == 0 {
		return 0
	}

	overlap := 0
	for kw := range keywordSet(text) {
		if _, ok := storyKeywords[kw]; ok {
			overlap++
		}
	}
	r := float64(overlap) / 2
	if r > 1 {
		r = 1
	}
	return r
}

func relevanceBonus(relevance float64) float64 {
	switch {
	case relevance > 0.7:
		return 0.4
	case relevance > 0.4:
		return 0.2
	default:
		return 0
	}
}

// GiftBonus 打赏加成，只对带打赏标记的弹幕生效。
func GiftBonus(evt model.Event) float64 {
	if !evt.Gift {
		return 0
	}
	switch {
	case evt.Amount >= 200:
		return 0.7
	case evt.Amount >= 100:
		return 0.5
	case evt.Amount >= 50:
		return 0.3
	default:
		return 0.2
	}
}
