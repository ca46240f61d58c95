package cue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/server/internal/model"
)

// TestInferEmotion 关键词决定表情，标点和阶段决定强度
func TestInferEmotion(t *testing.T) {
	e := InferEmotion("我当时真的超级震惊！", model.StageClimax)
	assert.Equal(t, EmotionSurprised, e.Key)
	assert.Equal(t, 1.0, e.Intensity)

	e = InferEmotion("嗯……就这样吧", model.StageResolution)
	assert.Equal(t, EmotionNeutral, e.Key)
	assert.InDelta(t, 0.4, e.Intensity, 1e-9)

	e = InferEmotion("so sad", model.StageHook)
	assert.Equal(t, EmotionSad, e.Key)
	assert.InDelta(t, 0.6, e.Intensity, 1e-9)
}

// TestDeriveLooksAtChatWhenResponding 回应弹幕时视线转向弹幕区
func TestDeriveLooksAtChatWhenResponding(t *testing.T) {
	line := model.ScriptLine{Index: 2, Stage: model.StageBuildUp, Text: "然后他开心地走了"}

	c := Deriver{}.Derive(line, "", model.ActionContinue)
	require.NotNil(t, c.Look)
	assert.Equal(t, LookCamera, c.Look.Target)
	require.NotNil(t, c.Gesture)
	assert.Equal(t, EmotionHappy, c.Emotion.Key)

	c = Deriver{}.Derive(line, "哈哈你们猜", model.ActionTease)
	assert.Equal(t, LookChat, c.Look.Target)
}

// TestDeriveKeepsAuthoredCue 台词自带完整标注时沿用
func TestDeriveKeepsAuthoredCue(t *testing.T) {
	authored := &model.Cue{
		Emotion: &model.EmotionCue{Key: EmotionAngry, Intensity: 0.9},
		Gesture: &model.GestureCue{Clip: "pose_angry"},
		Look:    &model.LookCue{Target: LookDown, Strength: 0.5},
	}
	line := model.ScriptLine{Stage: model.StageClimax, Text: "x", Cue: authored}

	c := Deriver{}.Derive(line, "", model.ActionContinue)
	assert.Equal(t, "pose_angry", c.Gesture.Clip)
	assert.Equal(t, LookDown, c.Look.Target)

	c = Deriver{}.Derive(line, "", model.ActionJump)
	assert.Equal(t, LookChat, c.Look.Target)
	assert.Equal(t, LookDown, authored.Look.Target)
}

// TestGestureIsDeterministic 同一台词序号得到同一动作
func TestGestureIsDeterministic(t *testing.T) {
	a, ok := gestureFor(model.StageBuildUp, EmotionNeutral, 3)
	require.True(t, ok)
	b, _ := gestureFor(model.StageBuildUp, EmotionNeutral, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, "talk", a.category)

	g, ok := gestureFor(model.StageHook, EmotionRelaxed, 0)
	require.True(t, ok)
	assert.NotEqual(t, "react", g.category)
}

// TestSpeechEmotion 阶段基础值、破防等级与回应加成
func TestSpeechEmotion(t *testing.T) {
	assert.InDelta(t, 0.2, SpeechEmotion(model.StageBuildUp, 0, model.ActionContinue), 1e-9)
	assert.InDelta(t, 1.0, SpeechEmotion(model.StageClimax, 2, model.ActionJump), 1e-9)
	assert.InDelta(t, 0.65, SpeechEmotion(model.StageHook, 1, model.ActionImprovise), 1e-9)
}
