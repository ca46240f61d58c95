package model

import "time"

// StepRecord 一个 step 的输出，广播给房间内所有订阅者。
type StepRecord struct {
	Step      int    `json:"step"`
	LineIndex int    `json:"line_index"`
	Stage     Stage  `json:"stage"`
	Speech    string `json:"speech"`
	Action    Action `json:"action"`
	// ReplyAction 只在有弹幕被回应时出现。
	ReplyAction ReplyAction `json:"reply_action,omitempty"`
	// Responded 是被回应的那条弹幕原文。
	Responded    string        `json:"responded,omitempty"`
	RespondedTo  string        `json:"responded_to,omitempty"`
	Priority     float64       `json:"priority"`
	Cost         float64       `json:"cost"`
	Relevance    float64       `json:"relevance"`
	Received     int           `json:"received"`
	Cue          *Cue          `json:"cue,omitempty"`
	Audio        []byte        `json:"audio_b64,omitempty"`
	Disfluencies []string      `json:"disfluencies,omitempty"`
	EmotionBreak *EmotionBreak `json:"emotion_break,omitempty"`
	At           time.Time     `json:"at"`
}

// ScriptProgress 剧本进度。
type ScriptProgress struct {
	CurrentLine     int     `json:"current_line"`
	TotalLines      int     `json:"total_lines"`
	CurrentStage    Stage   `json:"current_stage"`
	CompletedStages []Stage `json:"completed_stages"`
}

// EmotionMark 情绪轨迹中的一个点。
type EmotionMark struct {
	Step      int    `json:"step"`
	LineIndex int    `json:"line_index"`
	Level     int    `json:"level"`
	Trigger   string `json:"trigger"`
	Stage     Stage  `json:"stage"`
}

// MemorySnapshot 表演记忆的只读快照。
type MemorySnapshot struct {
	Progress     ScriptProgress  `json:"script_progress"`
	Received     []string        `json:"received"`
	Responded    []string        `json:"responded"`
	Ignored      []string        `json:"ignored"`
	Viewers      []ViewerProfile `json:"viewers"`
	Promises     []Promise       `json:"promises"`
	Mentioned    []string        `json:"mentioned"`
	Upcoming     []string        `json:"upcoming"`
	EmotionTrack []EmotionMark   `json:"emotion_track"`
}

// StreamState 直播间运行阶段。
type StreamState string

const (
	StreamIdle             StreamState = "idle"
	StreamInitializing     StreamState = "initializing"
	StreamGeneratingScript StreamState = "generating_script"
	StreamPerforming       StreamState = "performing"
	StreamFinished         StreamState = "finished"
	StreamError            StreamState = "error"
	StreamStopped          StreamState = "stopped"
)

// RoomStatus 状态查询的返回值，读取的是一致的快照。
type RoomStatus struct {
	RoomID       string      `json:"room_id"`
	Running      bool        `json:"is_running"`
	StreamState  StreamState `json:"stream_state"`
	CurrentStep  int         `json:"current_step"`
	TotalSteps   int         `json:"total_steps"`
	CurrentStage string      `json:"current_stage"`
	InfoMessage  string      `json:"info_message"`
	ErrorMessage string      `json:"error_message"`
	ViewerCount  int         `json:"online_count"`
}
