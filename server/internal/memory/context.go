package memory

import (
	"fmt"
	"strings"

	"livecast/server/internal/model"
)

// ViewerSummary 单个观众的一行摘要，拼进回应提示词。
func ViewerSummary(p model.ViewerProfile) string {
	parts := []string{fmt.Sprintf("%s: %s (%d interactions", p.User, p.Tier, p.InteractionCount)}
	if p.GiftTotal > 0 {
		parts[0] += fmt.Sprintf(", gifted ¥%d", p.GiftTotal)
	}
	parts[0] += ")"
	if p.Style != model.StyleNone {
		parts = append(parts, "style="+string(p.Style))
	}
	if n := len(p.Moments); n > 0 {
		start := n - 2
		if start < 0 {
			start = 0
		}
		parts = append(parts, "moments="+strings.Join(p.Moments[start:], ", "))
	}
	return strings.Join(parts, " | ")
}

// ActiveViewersContext 最近活跃观众的摘要；没有观众时返回空串。
func (m *Memory) ActiveViewersContext(limit int) string {
	viewers := m.ActiveViewers(limit)
	if len(viewers) == 0 {
		return ""
	}
	lines := make([]string, len(viewers))
	for i, v := range viewers {
		lines[i] = ViewerSummary(v)
	}
	return strings.Join(lines, "\n")
}

// Context 记忆的简短文本摘要：进度、活跃观众、已提到的事实、待兑现承诺。
func (m *Memory) Context() string {
	snap := m.Snapshot()
	parts := []string{fmt.Sprintf("progress %d/%d (%s)",
		snap.Progress.CurrentLine, snap.Progress.TotalLines, snap.Progress.CurrentStage)}

	if viewers := m.ActiveViewersContext(3); viewers != "" {
		parts = append(parts, "active viewers:\n"+viewers)
	}
	if n := len(snap.Mentioned); n > 0 {
		start := n - 5
		if start < 0 {
			start = 0
		}
		parts = append(parts, "already said: "+strings.Join(snap.Mentioned[start:], "; "))
	}
	var pending []string
	for _, p := range snap.Promises {
		if !p.Fulfilled {
			pending = append(pending, p.Content)
		}
		if len(pending) == 2 {
			break
		}
	}
	if len(pending) > 0 {
		parts = append(parts, "promised to answer later: "+strings.Join(pending, "; "))
	}
	return strings.Join(parts, "\n")
}
