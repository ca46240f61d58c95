// Package actor 生成主播对单条弹幕的口播回应。
package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"livecast/server/internal/language"
	"livecast/server/internal/llm"
	"livecast/server/internal/model"
)

// ReplyRequest 生成回应所需的上下文
type ReplyRequest struct {
	Performer  string
	Persona    string
	Background string
	Topic      string
	Lang       language.Code

	Event  model.Event
	Viewer model.ViewerProfile
	// ActiveViewers 最近活跃观众的摘要
	ActiveViewers string
	// Memory 表演记忆摘要
	Memory string

	Stage       model.Stage
	CurrentLine string
	NextLine    string
	// Action 调度器给出的叙事动作，提示回应该怎么收尾
	Action model.Action
	// AnswerHint 剧本里找到的答案线索（jump/tease 时有值）
	AnswerHint string
}

// Reply 回应结果
type Reply struct {
	Text        string            `json:"response"`
	Action      model.ReplyAction `json:"action"`
	NextContent string            `json:"next_content,omitempty"`
	// Fallback 为 true 表示这是模板兜底而不是 LLM 生成的
	Fallback bool `json:"-"`
}

// Replier 回应生成器
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (Reply, error)
}

var replySchema = &llm.JSONSchema{
	Name: "danmaku_reply",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response":     map[string]any{"type": "string"},
			"action":       map[string]any{"type": "string", "enum": []string{"continue", "adapt", "digress"}},
			"next_content": map[string]any{"type": "string"},
		},
		"required": []string{"response", "action"},
	},
	Strict: true,
}

// LLMReplier 用 LLM 生成回应
type LLMReplier struct {
	client llm.Client
	logger *log.Logger
}

// NewLLMReplier 创建 LLM 回应生成器
func NewLLMReplier(client llm.Client, logger *log.Logger) *LLMReplier {
	if logger == nil {
		logger = log.Default()
	}
	return &LLMReplier{client: client, logger: logger}
}

// Reply 调用 LLM 生成回应；失败时返回错误，由调用方决定是否兜底。
func (r *LLMReplier) Reply(ctx context.Context, req ReplyRequest) (Reply, error) {
	messages := []llm.Message{
		{Role: "system", Content: buildSystemPrompt(req)},
		{Role: "user", Content: buildUserPrompt(req)},
	}
	raw, err := r.client.Complete(ctx, messages, replySchema)
	if err != nil {
		return Reply{}, fmt.Errorf("complete reply: %w", err)
	}

	reply, err := parseReply(raw)
	if err != nil {
		r.logger.Printf("[Actor] ⚠️ unparsable reply %q: %v", truncateForLog(raw, 80), err)
		return Reply{}, err
	}
	return reply, nil
}

var responseField = regexp.MustCompile(`"response"\s*:\s*"((?:[^"\\]|\\.)*)"`)

func parseReply(raw string) (Reply, error) {
	var reply Reply
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &reply); err != nil {
		// 被截断的 JSON 里只要 response 字段完整也能用
		if m := responseField.FindStringSubmatch(raw); m != nil {
			var text string
			if json.Unmarshal([]byte(`"`+m[1]+`"`), &text) == nil {
				return normalize(Reply{Text: text}), nil
			}
		}
		return Reply{}, fmt.Errorf("parse reply: %w", err)
	}
	if strings.TrimSpace(reply.Text) == "" {
		return Reply{}, fmt.Errorf("parse reply: empty response")
	}
	return normalize(reply), nil
}

func normalize(r Reply) Reply {
	r.Text = strings.TrimSpace(r.Text)
	r.NextContent = strings.TrimSpace(r.NextContent)
	switch r.Action {
	case model.ReplyAdapt, model.ReplyDigress:
	default:
		r.Action = model.ReplyContinue
		r.NextContent = ""
	}
	return r
}

func truncateForLog(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
