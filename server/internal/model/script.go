package model

// Stage 叙事阶段。
type Stage string

const (
	StageHook       Stage = "Hook"
	StageBuildUp    Stage = "Build-up"
	StageClimax     Stage = "Climax"
	StageResolution Stage = "Resolution"
)

// ParseStage 把生成器给出的阶段名归一化，未知值按 Build-up 处理。
func ParseStage(s string) Stage {
	switch Stage(s) {
	case StageHook, StageBuildUp, StageClimax, StageResolution:
		return Stage(s)
	}
	switch s {
	case "hook", "opening":
		return StageHook
	case "climax":
		return StageClimax
	case "resolution", "ending":
		return StageResolution
	}
	return StageBuildUp
}

// ScriptLine 剧本中的一行台词，生成后只读。
type ScriptLine struct {
	ID    string `json:"id" yaml:"id"`
	Index int    `json:"index" yaml:"-"`
	Stage Stage  `json:"stage" yaml:"stage"`
	Text  string `json:"text" yaml:"text"`
	// InterruptionCost 表演这一行时被打断的基础阻力（0-1）。
	InterruptionCost float64 `json:"interruption_cost" yaml:"interruption_cost"`
	// KeyInfo 这一行揭示的事实，用来回答之后的提问。
	KeyInfo      []string      `json:"key_info" yaml:"key_info"`
	Disfluencies []string      `json:"disfluencies,omitempty" yaml:"disfluencies"`
	EmotionBreak *EmotionBreak `json:"emotion_break,omitempty" yaml:"emotion_break"`
	Cue          *Cue          `json:"cue,omitempty" yaml:"cue"`
}

// EmotionBreak 情绪断点：1=微破防 2=明显破防 3=完全破防。
type EmotionBreak struct {
	Level   int    `json:"level" yaml:"level"`
	Trigger string `json:"trigger" yaml:"trigger"`
}

// Cue 表演标注，供前端驱动形象动画。
type Cue struct {
	Emotion *EmotionCue `json:"emotion,omitempty" yaml:"emotion"`
	Gesture *GestureCue `json:"gesture,omitempty" yaml:"gesture"`
	Look    *LookCue    `json:"look,omitempty" yaml:"look"`
}

type EmotionCue struct {
	Key       string  `json:"key" yaml:"key"`
	Intensity float64 `json:"intensity" yaml:"intensity"`
	Attack    float64 `json:"attack" yaml:"attack"`
	Release   float64 `json:"release" yaml:"release"`
}

type GestureCue struct {
	Clip     string  `json:"clip" yaml:"clip"`
	Weight   float64 `json:"weight" yaml:"weight"`
	Duration float64 `json:"duration" yaml:"duration"`
	Loop     bool    `json:"loop" yaml:"loop"`
}

type LookCue struct {
	Target   string  `json:"target" yaml:"target"`
	Strength float64 `json:"strength" yaml:"strength"`
}

// Action 调度器选择的叙事动作。
type Action string

const (
	ActionContinue  Action = "continue"
	ActionTease     Action = "tease"
	ActionJump      Action = "jump"
	ActionImprovise Action = "improvise"
	ActionEnd       Action = "end"
)

// ReplyAction 回复生成器建议的衔接方式。
type ReplyAction string

const (
	ReplyContinue ReplyAction = "continue"
	ReplyAdapt    ReplyAction = "adapt"
	ReplyDigress  ReplyAction = "digress"
)
