// Package cue 为每个 step 推导表演标注（表情、动作、视线），以及语音合成用的情绪强度。
package cue

import (
	"strings"

	"livecast/server/internal/model"
)

// 表情
const (
	EmotionNeutral   = "neutral"
	EmotionHappy     = "happy"
	EmotionAngry     = "angry"
	EmotionSad       = "sad"
	EmotionRelaxed   = "relaxed"
	EmotionSurprised = "surprised"
)

// 视线目标
const (
	LookCamera = "camera"
	LookChat   = "chat"
	LookDown   = "down"
)

type keyword struct {
	word    string
	emotion string
}

// 按顺序匹配，先命中先用。
var emotionKeywords = []keyword{
	{"开心", EmotionHappy}, {"高兴", EmotionHappy}, {"快乐", EmotionHappy}, {"兴奋", EmotionHappy},
	{"愤怒", EmotionAngry}, {"生气", EmotionAngry}, {"恼火", EmotionAngry},
	{"悲伤", EmotionSad}, {"难过", EmotionSad}, {"伤心", EmotionSad}, {"委屈", EmotionSad},
	{"放松", EmotionRelaxed}, {"轻松", EmotionRelaxed},
	{"惊讶", EmotionSurprised}, {"震惊", EmotionSurprised}, {"吃惊", EmotionSurprised}, {"尴尬", EmotionSurprised},
	{"害羞", EmotionHappy}, {"得意", EmotionHappy}, {"无奈", EmotionSad}, {"焦虑", EmotionSad},
	{"happy", EmotionHappy}, {"excited", EmotionHappy}, {"angry", EmotionAngry}, {"mad", EmotionAngry},
	{"sad", EmotionSad}, {"upset", EmotionSad}, {"relaxed", EmotionRelaxed},
	{"surprised", EmotionSurprised}, {"shocked", EmotionSurprised},
	{"嬉しい", EmotionHappy}, {"悲しい", EmotionSad}, {"びっくり", EmotionSurprised},
}

var stageIntensity = map[model.Stage]float64{
	model.StageHook:       0,
	model.StageBuildUp:    0.1,
	model.StageClimax:     0.3,
	model.StageResolution: -0.1,
}

// Deriver 规则推导器。零值可直接使用。
type Deriver struct{}

// Derive 推导本 step 的表演标注。
// 台词自带完整标注时原样沿用；回应弹幕的 step 视线转向弹幕区。
func (Deriver) Derive(line model.ScriptLine, speech string, action model.Action) *model.Cue {
	if line.Cue != nil && line.Cue.Emotion != nil && line.Cue.Gesture != nil && line.Cue.Look != nil {
		c := *line.Cue
		if responding(action) {
			c.Look = &model.LookCue{Target: LookChat, Strength: c.Look.Strength}
		}
		return &c
	}

	text := speech
	if text == "" {
		text = line.Text
	}
	emotion := InferEmotion(text, line.Stage)

	c := &model.Cue{Emotion: emotion, Look: inferLook(text, line.Stage, action)}
	if g, ok := gestureFor(line.Stage, emotion.Key, line.Index); ok {
		c.Gesture = &model.GestureCue{Clip: g.name, Weight: 1.0, Duration: g.duration, Loop: g.loop}
	}
	if line.Cue != nil {
		if line.Cue.Emotion != nil {
			c.Emotion = line.Cue.Emotion
		}
		if line.Cue.Gesture != nil {
			c.Gesture = line.Cue.Gesture
		}
	}
	return c
}

// InferEmotion 从文本关键词与标点推断表情和强度。
func InferEmotion(text string, stage model.Stage) *model.EmotionCue {
	key := EmotionNeutral
	lower := strings.ToLower(text)
	for _, kw := range emotionKeywords {
		if strings.Contains(lower, kw.word) {
			key = kw.emotion
			break
		}
	}

	intensity := 0.6
	if strings.ContainsAny(text, "！!") {
		intensity = 0.85
	}
	if strings.Contains(text, "...") || strings.Contains(text, "…") {
		intensity = 0.5
	}
	if strings.ContainsAny(text, "？?") {
		intensity = 0.7
	}
	intensity = clamp(intensity+stageIntensity[stage], 0.3, 1.0)

	return &model.EmotionCue{Key: key, Intensity: intensity, Attack: 0.15, Release: 0.25}
}

func inferLook(text string, stage model.Stage, action model.Action) *model.LookCue {
	target := LookCamera
	switch {
	case responding(action):
		target = LookChat
	case stage == model.StageHook:
	case strings.Contains(text, "弹幕") || strings.Contains(text, "评论") || strings.Contains(text, "有人问"):
		target = LookChat
	case strings.Contains(text, "...") || strings.Contains(text, "…"):
		target = LookDown
	}
	strength := 0.6
	if stage == model.StageHook || stage == model.StageClimax {
		strength = 0.8
	}
	return &model.LookCue{Target: target, Strength: strength}
}

func responding(action model.Action) bool {
	return action == model.ActionTease || action == model.ActionJump || action == model.ActionImprovise
}

var stageBaseEmotion = map[model.Stage]float64{
	model.StageHook:       0.3,
	model.StageBuildUp:    0.2,
	model.StageClimax:     0.8,
	model.StageResolution: 0.4,
}

// SpeechEmotion 语音合成的情绪强度：阶段基础值 + 0.15×破防等级 + 回应弹幕时 0.2，封顶 1。
func SpeechEmotion(stage model.Stage, breakLevel int, action model.Action) float64 {
	v := stageBaseEmotion[stage] + 0.15*float64(breakLevel)
	if responding(action) {
		v += 0.2
	}
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
