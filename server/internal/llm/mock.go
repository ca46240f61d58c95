package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient 按顺序返回预设回复的客户端，供各包测试使用。
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	// Err 非空时每次调用都返回它
	Err error
	// Calls 记录每次调用收到的消息
	Calls [][]Message
}

// NewMockClient 创建 Mock 客户端
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

// Complete 返回下一条预设回复
func (m *MockClient) Complete(ctx context.Context, messages []Message, schema *JSONSchema) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("mock llm: no response left")
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}

// CallCount 已发生的调用次数
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
