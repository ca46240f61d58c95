package cue

import "livecast/server/internal/model"

type gesture struct {
	name     string
	category string
	duration float64
	loop     bool
	emotions []string
}

var gestures = []gesture{
	{"idle_breathe", "idle", 3.0, true, []string{EmotionNeutral, EmotionRelaxed, EmotionHappy, EmotionSad}},
	{"idle_sway", "idle", 4.0, true, []string{EmotionNeutral, EmotionRelaxed, EmotionHappy}},
	{"idle_look_around", "idle", 2.5, false, []string{EmotionNeutral, EmotionSurprised}},
	{"talk_gesture_small", "talk", 1.5, false, []string{EmotionNeutral, EmotionRelaxed}},
	{"talk_gesture_medium", "talk", 2.0, false, []string{EmotionNeutral, EmotionHappy, EmotionSurprised}},
	{"talk_gesture_big", "talk", 2.5, false, []string{EmotionHappy, EmotionAngry, EmotionSurprised}},
	{"talk_point", "talk", 1.0, false, []string{EmotionNeutral, EmotionAngry, EmotionSurprised}},
	{"emote_nod", "emote", 0.8, false, []string{EmotionNeutral, EmotionHappy, EmotionRelaxed}},
	{"emote_shake_head", "emote", 1.0, false, []string{EmotionSad, EmotionAngry, EmotionNeutral}},
	{"emote_tilt_head", "emote", 0.6, false, []string{EmotionSurprised, EmotionNeutral, EmotionHappy}},
	{"emote_shrug", "emote", 1.2, false, []string{EmotionNeutral, EmotionSad, EmotionRelaxed}},
	{"react_surprised", "react", 0.8, false, []string{EmotionSurprised}},
	{"react_laugh", "react", 1.5, false, []string{EmotionHappy}},
	{"react_think", "react", 2.0, false, []string{EmotionNeutral, EmotionSad}},
	{"react_facepalm", "react", 1.5, false, []string{EmotionSad, EmotionAngry}},
}

var stageCategory = map[model.Stage]string{
	model.StageHook:       "react",
	model.StageBuildUp:    "talk",
	model.StageClimax:     "emote",
	model.StageResolution: "idle",
}

// gestureFor 先在阶段对应的分类里找兼容的动作，找不到再放宽到全部分类。
// 多个候选时按台词序号轮换，保证同一剧本每次推导结果一致。
func gestureFor(stage model.Stage, emotion string, lineIndex int) (gesture, bool) {
	category, ok := stageCategory[stage]
	if !ok {
		category = "talk"
	}
	if g, ok := pickGesture(category, emotion, lineIndex); ok {
		return g, true
	}
	return pickGesture("", emotion, lineIndex)
}

func pickGesture(category, emotion string, lineIndex int) (gesture, bool) {
	var candidates []gesture
	for _, g := range gestures {
		if category != "" && g.category != category {
			continue
		}
		for _, e := range g.emotions {
			if e == emotion {
				candidates = append(candidates, g)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return gesture{}, false
	}
	if lineIndex < 0 {
		lineIndex = 0
	}
	return candidates[lineIndex%len(candidates)], true
}
