package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Event 表示一条观众弹幕（可能带打赏）。
// 生命周期只在收到它的那一个 step 内：被打分、被选中或被丢弃，不会带到下一个 step。
type Event struct {
	// ID 由服务端分配，便于在时间线里追踪。
	ID string `json:"id,omitempty"`
	// Text 是弹幕原文。
	Text string `json:"text"`
	// User 是作者标识。
	User string `json:"user"`
	// Gift/Amount 标记优先打赏（SC）。
	Gift   bool `json:"gift,omitempty"`
	Amount int  `json:"amount,omitempty"`
	// ReceivedAt 由服务端补齐。
	ReceivedAt time.Time `json:"received_at,omitempty"`

	// Relevance/Priority 由 Evaluator 写入，不在别处持久化。
	Relevance float64 `json:"relevance"`
	Priority  float64 `json:"priority"`
}

// IsQuestion 判断弹幕是否是提问。
func (e Event) IsQuestion() bool {
	return strings.ContainsAny(e.Text, "?？")
}

var (
	humorMarkers   = []string{"哈哈", "笑", "xswl", "233", "lol", "lmao", "www", "草"}
	supportMarkers = []string{"加油", "冲", "支持", "go go", "support", "love", "頑張", "がんば"}
)

// IsHumorous 弹幕带笑点标记（哈哈、233、lol 等）。
func (e Event) IsHumorous() bool {
	return containsAny(strings.ToLower(e.Text), humorMarkers)
}

// IsSupportive 弹幕是应援（加油、support 等）。
func (e Event) IsSupportive() bool {
	return containsAny(strings.ToLower(e.Text), supportMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var giftAmountPattern = regexp.MustCompile(`[¥$]?\s*(\d+)`)

// ParseEvent 从弹幕文本解析打赏标记：包含 SC/¥/$ 即视为打赏，金额取文本中的第一个整数。
func ParseEvent(text, user string) Event {
	evt := Event{Text: text, User: user}
	if strings.Contains(text, "SC") || strings.ContainsAny(text, "¥$") {
		evt.Gift = true
		if m := giftAmountPattern.FindStringSubmatch(text); m != nil {
			if amount, err := strconv.Atoi(m[1]); err == nil {
				evt.Amount = amount
			}
		}
	}
	return evt
}

// BondingTier 观众与主播的关系等级，只升不降。
type BondingTier int

const (
	TierStranger BondingTier = iota
	TierFamiliar
	TierRegular
	TierCore
)

func (t BondingTier) String() string {
	switch t {
	case TierFamiliar:
		return "familiar"
	case TierRegular:
		return "regular"
	case TierCore:
		return "core"
	default:
		return "stranger"
	}
}

// ReactionStyle 推断出的观众反应风格，一旦确定不再改写。
type ReactionStyle string

const (
	StyleNone        ReactionStyle = ""
	StyleHumorous    ReactionStyle = "humorous"
	StyleInquisitive ReactionStyle = "inquisitive"
	StyleSupportive  ReactionStyle = "supportive"
)

// ViewerProfile 单个观众的互动档案。
type ViewerProfile struct {
	User             string        `json:"user"`
	InteractionCount int           `json:"interaction_count"`
	FirstSeen        time.Time     `json:"first_seen"`
	LastSeen         time.Time     `json:"last_seen"`
	Tier             BondingTier   `json:"bonding_tier"`
	GiftTotal        int           `json:"gift_total"`
	Moments          []string      `json:"moments,omitempty"`
	Style            ReactionStyle `json:"reaction_style,omitempty"`
}

// Promise 主播“等会儿再说”的承诺，剧本推进到 AnswerAtLine 时兑现。
type Promise struct {
	Content      string `json:"content"`
	MadeAtStep   int    `json:"made_at_step"`
	Fulfilled    bool   `json:"fulfilled"`
	AnswerAtLine int    `json:"answer_at_line"`
}
