package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind 服务端推送消息的类型标签。
type MessageKind string

const (
	KindConnected   MessageKind = "connected"
	KindViewerCount MessageKind = "viewer_count"
	KindInfo        MessageKind = "info"
	KindScriptReady MessageKind = "script_ready"
	KindEvent       MessageKind = "event"
	KindStep        MessageKind = "step"
	KindMemory      MessageKind = "memory"
	KindFinished    MessageKind = "finished"
	KindError       MessageKind = "error"
)

// ServerMessage 是服务端推送消息的封闭集合，只有本包内的类型能实现它。
type ServerMessage interface {
	Kind() MessageKind
	serverMessage()
}

type ConnectedMessage struct {
	RoomID string `json:"room_id"`
}

type ViewerCountMessage struct {
	Count int `json:"count"`
}

type InfoMessage struct {
	Content string `json:"content"`
}

type ScriptReadyMessage struct {
	TotalSteps int      `json:"total_steps"`
	Preview    []string `json:"script_preview"`
}

// EventMessage 回显一条刚收到的弹幕。
type EventMessage struct {
	Text string `json:"text"`
	User string `json:"user"`
}

type StepMessage struct {
	Record StepRecord `json:"record"`
}

type MemoryMessage struct {
	Memory MemorySnapshot `json:"memory"`
}

type FinishedMessage struct {
	Content string `json:"content"`
	Steps   int    `json:"steps"`
}

type ErrorMessage struct {
	Content string `json:"content"`
}

func (ConnectedMessage) Kind() MessageKind   { return KindConnected }
func (ViewerCountMessage) Kind() MessageKind { return KindViewerCount }
func (InfoMessage) Kind() MessageKind        { return KindInfo }
func (ScriptReadyMessage) Kind() MessageKind { return KindScriptReady }
func (EventMessage) Kind() MessageKind       { return KindEvent }
func (StepMessage) Kind() MessageKind        { return KindStep }
func (MemoryMessage) Kind() MessageKind      { return KindMemory }
func (FinishedMessage) Kind() MessageKind    { return KindFinished }
func (ErrorMessage) Kind() MessageKind       { return KindError }

func (ConnectedMessage) serverMessage()   {}
func (ViewerCountMessage) serverMessage() {}
func (InfoMessage) serverMessage()        {}
func (ScriptReadyMessage) serverMessage() {}
func (EventMessage) serverMessage()       {}
func (StepMessage) serverMessage()        {}
func (MemoryMessage) serverMessage()      {}
func (FinishedMessage) serverMessage()    {}
func (ErrorMessage) serverMessage()       {}

type envelope struct {
	Type     MessageKind   `json:"type"`
	Data     ServerMessage `json:"data"`
	ServerTS time.Time     `json:"server_ts"`
}

// EncodeMessage 把消息编码成 {"type":..., "data":...} 文本帧。
func EncodeMessage(msg ServerMessage, now time.Time) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode message: nil message")
	}
	data, err := json.Marshal(envelope{Type: msg.Kind(), Data: msg, ServerTS: now})
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Kind(), err)
	}
	return data, nil
}

// ClientMessageKind 客户端上行消息类型。
type ClientMessageKind string

const ClientKindEvent ClientMessageKind = "event"

// ClientMessage 客户端通过同一条 websocket 提交的消息。
type ClientMessage struct {
	Type   ClientMessageKind `json:"type"`
	Text   string            `json:"text"`
	User   string            `json:"user"`
	Gift   bool              `json:"gift,omitempty"`
	Amount int               `json:"amount,omitempty"`
}
