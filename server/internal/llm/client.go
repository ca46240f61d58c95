package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"livecast/server/internal/config"
)

// ErrNoProvider provider 配置为 none，调用方应走离线路径。
var ErrNoProvider = errors.New("llm provider disabled")

// Client LLM 客户端接口
type Client interface {
	// Complete 完成文本生成任务
	Complete(ctx context.Context, messages []Message, schema *JSONSchema) (string, error)
}

// Message 消息结构
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// JSONSchema 期望的输出结构。两家 SDK 都通过提示词约束输出，schema 附在 system 消息末尾。
type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

// NewClient 创建 LLM 客户端
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, ErrNoProvider
	case "openai":
		return NewOpenAIClient(cfg.OpenAI, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicClient(cfg.Anthropic, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// withSchema 把 schema 说明拼进 system 消息；没有 system 消息时插入一条。
func withSchema(messages []Message, schema *JSONSchema) []Message {
	if schema == nil {
		return messages
	}
	raw, err := json.Marshal(schema.Schema)
	if err != nil {
		return messages
	}
	hint := fmt.Sprintf("\n\nRespond with a single JSON value named %q matching this JSON Schema, with no extra text:\n%s", schema.Name, raw)

	out := make([]Message, 0, len(messages)+1)
	found := false
	for _, m := range messages {
		if m.Role == "system" && !found {
			m.Content += hint
			found = true
		}
		out = append(out, m)
	}
	if !found {
		out = append([]Message{{Role: "system", Content: strings.TrimSpace(hint)}}, out...)
	}
	return out
}

// CleanJSON 去掉 markdown 代码块和前后的说明文字，只保留第一个 JSON 对象或数组。
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}
