// Package tts 把 step 的口播文本合成为音频。合成是尽力而为的：失败时 step 只带文本。
package tts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"livecast/server/internal/config"
	"livecast/server/internal/language"
)

// Synthesizer 语音合成器
type Synthesizer interface {
	// Synthesize 合成一段语音；emotion 为 0-1 的情绪强度
	Synthesize(ctx context.Context, text string, emotion float64, lang language.Code) ([]byte, error)
}

// New 按配置创建合成器；未启用时返回 Noop。
func New(cfg config.TTSConfig) Synthesizer {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewOpenAISynthesizer(cfg)
}

// Noop 不产出音频
type Noop struct{}

func (Noop) Synthesize(context.Context, string, float64, language.Code) ([]byte, error) {
	return nil, nil
}

// OpenAISynthesizer 调用 OpenAI speech 接口
type OpenAISynthesizer struct {
	cfg     config.TTSConfig
	client  openai.Client
	timeout time.Duration
}

// NewOpenAISynthesizer 创建 OpenAI 语音合成器
func NewOpenAISynthesizer(cfg config.TTSConfig) *OpenAISynthesizer {
	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIURL))
	}
	return &OpenAISynthesizer{cfg: cfg, client: openai.NewClient(opts...), timeout: 30 * time.Second}
}

// Synthesize 合成语音
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, emotion float64, lang language.Code) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(s.cfg.Format),
		Instructions:   openai.String(instructions(emotion, lang)),
	}
	if s.cfg.Speed > 0 {
		params.Speed = openai.Float(s.cfg.Speed)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech body: %w", err)
	}
	return audio, nil
}

// instructions 把情绪强度翻译成语气描述
func instructions(emotion float64, lang language.Code) string {
	tone := "calm and conversational"
	switch {
	case emotion >= 0.8:
		tone = "very emotional, breathless and animated"
	case emotion >= 0.5:
		tone = "expressive and lively"
	case emotion >= 0.3:
		tone = "warm and engaged"
	}
	return fmt.Sprintf("You are a VTuber live streaming in %s. Speak %s.", lang.Tag(), tone)
}
