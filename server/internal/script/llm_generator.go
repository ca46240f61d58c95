package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"livecast/server/internal/language"
	"livecast/server/internal/llm"
	"livecast/server/internal/model"
)

// LLMGenerator 用 LLM 生成剧本，行数不足时带着原始要求重试一次。
type LLMGenerator struct {
	client llm.Client
	logger *log.Logger
}

// NewLLMGenerator 创建 LLM 剧本生成器
func NewLLMGenerator(client llm.Client, logger *log.Logger) *LLMGenerator {
	if logger == nil {
		logger = log.Default()
	}
	return &LLMGenerator{client: client, logger: logger}
}

type rawLine struct {
	ID               string              `json:"id"`
	Text             string              `json:"text"`
	Stage            string              `json:"stage"`
	Cost             *float64            `json:"cost"`
	InterruptionCost *float64            `json:"interruption_cost"`
	KeyInfo          []string            `json:"key_info"`
	Disfluencies     []string            `json:"disfluencies"`
	EmotionBreak     *model.EmotionBreak `json:"emotion_break"`
}

var scriptSchema = &llm.JSONSchema{
	Name: "script_lines",
	Schema: map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":            map[string]any{"type": "string"},
				"text":          map[string]any{"type": "string"},
				"stage":         map[string]any{"type": "string", "enum": []string{"Hook", "Build-up", "Climax", "Resolution"}},
				"cost":          map[string]any{"type": "number"},
				"key_info":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"disfluencies":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"emotion_break": map[string]any{"type": []string{"object", "null"}},
			},
			"required": []string{"text", "stage", "cost", "key_info"},
		},
	},
}

// Generate 生成剧本
func (g *LLMGenerator) Generate(ctx context.Context, req Request) ([]model.ScriptLine, error) {
	minLines, maxLines := req.bounds()
	system := buildSystemPrompt(req.Lang)
	user := buildUserPrompt(req, minLines, maxLines)

	lines, err := g.call(ctx, system, user)
	if err != nil {
		return nil, err
	}
	script, err := Finalize(lines, minLines, maxLines)
	if err == nil {
		g.logger.Printf("[Script] generated %d lines for topic=%q", len(script), req.Topic)
		return script, nil
	}
	if !errors.Is(err, ErrScriptTooShort) {
		return nil, err
	}

	g.logger.Printf("[Script] ⚠️ only %d lines, asking to extend to %d-%d", len(lines), minLines, maxLines)
	retry := fmt.Sprintf("Your previous JSON had only %d items. Extend it to %d-%d items. Output only the JSON array.\n\nOriginal requirements:\n%s",
		len(lines), minLines, maxLines, user)
	lines, err = g.call(ctx, system, retry)
	if err != nil {
		return nil, err
	}
	return Finalize(lines, minLines, maxLines)
}

func (g *LLMGenerator) call(ctx context.Context, system, user string) ([]model.ScriptLine, error) {
	raw, err := g.client.Complete(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, scriptSchema)
	if err != nil {
		return nil, fmt.Errorf("generate script: %w", err)
	}
	return ParseJSON(raw)
}

// ParseJSON 解析 LLM 输出的 JSON 数组，兼容 cost 与 interruption_cost 两种字段名。
func ParseJSON(raw string) ([]model.ScriptLine, error) {
	var items []rawLine
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &items); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	lines := make([]model.ScriptLine, 0, len(items))
	for _, it := range items {
		cost := defaultCost
		switch {
		case it.Cost != nil:
			cost = *it.Cost
		case it.InterruptionCost != nil:
			cost = *it.InterruptionCost
		}
		lines = append(lines, model.ScriptLine{
			ID:               it.ID,
			Text:             it.Text,
			Stage:            model.Stage(it.Stage),
			InterruptionCost: cost,
			KeyInfo:          it.KeyInfo,
			Disfluencies:     it.Disfluencies,
			EmotionBreak:     it.EmotionBreak,
		})
	}
	return lines, nil
}

func buildSystemPrompt(lang language.Code) string {
	var sb strings.Builder
	sb.WriteString("[Role Definition]\n")
	sb.WriteString("You write spoken scripts for a VTuber telling a personal story on stream.\n\n")
	sb.WriteString("[Structure]\n")
	sb.WriteString("- Stages in order: Hook, Build-up, Climax, Resolution.\n")
	sb.WriteString("- cost (0-1): how bad it is to be interrupted on this line. Low for small talk, high at the climax.\n")
	sb.WriteString("- key_info: short facts this line reveals, used later to answer viewer questions.\n")
	sb.WriteString("- disfluencies: optional speech quirks such as vague numbers, self-correction, repetition, lost train of thought.\n")
	sb.WriteString("- emotion_break: null, or {\"level\": 1-3, \"trigger\": \"...\"} where the performer visibly loses composure.\n\n")
	sb.WriteString("[Constraints]\n")
	sb.WriteString("- Show why the performer wants to tell this now.\n")
	sb.WriteString("- Include something unexpected. Numbers may be vague.\n")
	sb.WriteString("- Do not end with a moral.\n")
	sb.WriteString("- " + language.For(lang).Hint + "\n")
	sb.WriteString("- Output only a JSON array: [{\"id\":\"line_0\",\"text\":\"...\",\"stage\":\"Hook\",\"cost\":0.3,\"key_info\":[\"...\"],\"disfluencies\":[],\"emotion_break\":null}]\n")
	return sb.String()
}

func buildUserPrompt(req Request, minLines, maxLines int) string {
	var sb strings.Builder
	sb.WriteString("[Performer]\n")
	sb.WriteString(fmt.Sprintf("Name: %s\n", req.Performer))
	if req.Persona != "" {
		sb.WriteString(fmt.Sprintf("Persona: %s\n", req.Persona))
	}
	if req.Background != "" {
		sb.WriteString(fmt.Sprintf("Background: %s\n", req.Background))
	}
	sb.WriteString(fmt.Sprintf("Topic: %s\n\n", req.Topic))
	sb.WriteString("[Task]\n")
	sb.WriteString(fmt.Sprintf("Write %d-%d units, each 80-120 characters of natural speech.\n", minLines, maxLines))
	return sb.String()
}
