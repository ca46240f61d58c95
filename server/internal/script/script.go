// Package script 生成一场演出的剧本：LLM 生成、预写 YAML 文件、内置模板三种来源。
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"livecast/server/internal/language"
	"livecast/server/internal/model"
)

// ErrScriptTooShort 剧本行数低于下限（重试后仍不足）。
var ErrScriptTooShort = errors.New("script too short")

const defaultCost = 0.5

// Request 剧本生成参数
type Request struct {
	Performer  string
	Persona    string
	Background string
	Topic      string
	Lang       language.Code
	MinLines   int
	MaxLines   int
}

func (r Request) bounds() (int, int) {
	min, max := r.MinLines, r.MaxLines
	if min <= 0 {
		min = 8
	}
	if max < min {
		max = min
	}
	return min, max
}

// Generator 剧本生成器
type Generator interface {
	Generate(ctx context.Context, req Request) ([]model.ScriptLine, error)
}

// Finalize 整理生成结果：丢弃空行、补齐编号与 ID、归一化阶段、把阻力限制在 [0,1]，超出上限的部分截掉。
// 行数不足下限时返回 ErrScriptTooShort。
func Finalize(lines []model.ScriptLine, minLines, maxLines int) ([]model.ScriptLine, error) {
	out := make([]model.ScriptLine, 0, len(lines))
	for _, l := range lines {
		l.Text = strings.TrimSpace(l.Text)
		if l.Text == "" {
			continue
		}
		l.Stage = model.ParseStage(string(l.Stage))
		l.InterruptionCost = clampCost(l.InterruptionCost)
		if l.EmotionBreak != nil {
			eb := *l.EmotionBreak
			switch {
			case eb.Level < 1:
				l.EmotionBreak = nil
			case eb.Level > 3:
				eb.Level = 3
				l.EmotionBreak = &eb
			default:
				l.EmotionBreak = &eb
			}
		}
		out = append(out, l)
	}
	if maxLines > 0 && len(out) > maxLines {
		out = out[:maxLines]
	}
	if len(out) < minLines {
		return nil, fmt.Errorf("%w: %d lines, want at least %d", ErrScriptTooShort, len(out), minLines)
	}
	for i := range out {
		out[i].Index = i
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("line_%d", i)
		}
	}
	return out, nil
}

func clampCost(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Preview 剧本前 n 行的文本，用于 script_ready 广播。
func Preview(lines []model.ScriptLine, n int) []string {
	if n > len(lines) {
		n = len(lines)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = lines[i].Text
	}
	return out
}

// KeyFacts 剧本所有行的关键信息，按出现顺序。
func KeyFacts(lines []model.ScriptLine) []string {
	var facts []string
	for _, l := range lines {
		facts = append(facts, l.KeyInfo...)
	}
	return facts
}
