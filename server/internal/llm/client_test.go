package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/server/internal/config"
)

// TestCleanJSON 兼容 markdown 代码块和前后说明
func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `[1,2]`, CleanJSON("好的，结果如下：[1,2] 希望有帮助"))
	assert.Equal(t, `{"a":{"b":2}}`, CleanJSON(`note {"a":{"b":2}} end`))
	assert.Equal(t, "plain", CleanJSON("plain"))
}

// TestWithSchemaAppendsToSystem schema 说明拼到 system 消息
func TestWithSchemaAppendsToSystem(t *testing.T) {
	schema := &JSONSchema{Name: "reply", Schema: map[string]any{"type": "object"}}

	out := withSchema([]Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "u"}}, schema)
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Content, "sys")
	assert.Contains(t, out[0].Content, `"type":"object"`)

	out = withSchema([]Message{{Role: "user", Content: "u"}}, schema)
	require.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)

	msgs := []Message{{Role: "user", Content: "u"}}
	assert.Equal(t, msgs, withSchema(msgs, nil))
}

// TestNewClientProviders provider 选择
func TestNewClientProviders(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "none"})
	assert.True(t, errors.Is(err, ErrNoProvider))

	_, err = NewClient(config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)

	c, err := NewClient(config.LLMConfig{Provider: "openai", OpenAI: config.LLMProviderConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
}

// TestOpenAIClientComplete 走 SDK 请求本地假服务
func TestOpenAIClientComplete(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-test",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello world"}}]}`))
	}))
	defer ts.Close()

	client := NewOpenAIClient(config.LLMProviderConfig{APIURL: ts.URL, APIKey: "dummy", Model: "gpt-test", MaxTokens: 50}, 5*time.Second)
	res, err := client.Complete(context.Background(), []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", res)
	assert.Equal(t, "gpt-test", got["model"])
}

// TestAnthropicClientComplete 拼接所有 text block
func TestAnthropicClientComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"hello "},{"type":"text","text":"there"}],
"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer ts.Close()

	client := NewAnthropicClient(config.LLMProviderConfig{APIURL: ts.URL, APIKey: "dummy", Model: "claude-test"}, 5*time.Second)
	res, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", res)
}

// TestMockClient 顺序返回并记录调用
func TestMockClient(t *testing.T) {
	m := NewMockClient("a", "b")
	r1, _ := m.Complete(context.Background(), nil, nil)
	r2, _ := m.Complete(context.Background(), nil, nil)
	_, err := m.Complete(context.Background(), nil, nil)
	assert.Equal(t, "a", r1)
	assert.Equal(t, "b", r2)
	assert.Error(t, err)
	assert.Equal(t, 3, m.CallCount())
}
