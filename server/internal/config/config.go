package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	TTS       TTSConfig       `yaml:"tts"`
	Director  DirectorConfig  `yaml:"director"`
	Room      RoomConfig      `yaml:"room"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Paths     PathsConfig     `yaml:"paths"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// LLMConfig 剧本生成与弹幕回应使用的 LLM
type LLMConfig struct {
	Provider  string            `yaml:"provider"` // "none", "openai" or "anthropic"
	Timeout   time.Duration     `yaml:"timeout"`
	OpenAI    LLMProviderConfig `yaml:"openai"`
	Anthropic LLMProviderConfig `yaml:"anthropic"`
}

// LLMProviderConfig LLM 提供商配置
type LLMProviderConfig struct {
	APIKey      string  `yaml:"api_key"`
	APIURL      string  `yaml:"api_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// TTSConfig 语音合成；关闭时 step 只带文本
type TTSConfig struct {
	Enabled bool    `yaml:"enabled"`
	APIKey  string  `yaml:"api_key"`
	APIURL  string  `yaml:"api_url"`
	Model   string  `yaml:"model"`
	Voice   string  `yaml:"voice"`
	Format  string  `yaml:"format"`
	Speed   float64 `yaml:"speed"`
}

// DirectorConfig 打断裁决参数
type DirectorConfig struct {
	SpontaneousChance float64 `yaml:"spontaneous_chance"`
	SpontaneousBonus  float64 `yaml:"spontaneous_bonus"`
	WhimChance        float64 `yaml:"whim_chance"`
	CostFactor        float64 `yaml:"cost_factor"`
	// Seed 非 0 时所有房间使用固定随机种子，便于复现
	Seed uint64 `yaml:"seed"`
}

type RoomConfig struct {
	StepDelay        time.Duration `yaml:"step_delay"`
	MaxSteps         int           `yaml:"max_steps"` // 0 表示直到剧本结束
	MinLines         int           `yaml:"min_lines"`
	MaxLines         int           `yaml:"max_lines"`
	QueueSize        int           `yaml:"queue_size"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	DefaultLanguage  string        `yaml:"default_language"`
	SeedEvents       bool          `yaml:"seed_events"`
}

// HistoryConfig 已结束演出的存档
type HistoryConfig struct {
	Mode        string `yaml:"mode"` // "memory", "sqlite" or "postgres"
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"` // 空为标准输出，否则为日志文件路径
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type PathsConfig struct {
	// Scripts 预写剧本目录；非空且 LLM 关闭时从这里读剧本
	Scripts string `yaml:"scripts"`
}

// envOverrides 可以被环境变量覆盖的字段
type envOverrides struct {
	Provider     string `env:"LIVECAST_LLM_PROVIDER"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	HistoryMode  string `env:"LIVECAST_HISTORY_MODE"`
	SQLitePath   string `env:"LIVECAST_SQLITE_PATH"`
	PostgresDSN  string `env:"LIVECAST_POSTGRES_DSN"`
	OTelEndpoint string `env:"LIVECAST_OTEL_ENDPOINT"`
	ScriptsDir   string `env:"LIVECAST_SCRIPTS_DIR"`
	Port         int    `env:"LIVECAST_PORT"`
}

// Default 返回无需任何外部服务即可运行的默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "none",
			Timeout:  60 * time.Second,
			OpenAI: LLMProviderConfig{
				Model:       "gpt-4o-mini",
				Temperature: 0.8,
				MaxTokens:   4096,
			},
			Anthropic: LLMProviderConfig{
				Model:       "claude-3-5-sonnet-20241022",
				Temperature: 0.8,
				MaxTokens:   4096,
			},
		},
		TTS: TTSConfig{
			Model:  "gpt-4o-mini-tts",
			Voice:  "alloy",
			Format: "mp3",
			Speed:  1.0,
		},
		Director: DirectorConfig{
			SpontaneousChance: 0.2,
			SpontaneousBonus:  0.3,
			WhimChance:        0.15,
			CostFactor:        0.7,
		},
		Room: RoomConfig{
			StepDelay:        1500 * time.Millisecond,
			MinLines:         8,
			MaxLines:         10,
			QueueSize:        64,
			SubscriberBuffer: 32,
			PingInterval:     30 * time.Second,
			DefaultLanguage:  "zh",
			SeedEvents:       true,
		},
		History: HistoryConfig{
			Mode:       "memory",
			SQLitePath: "data/livecast.db",
		},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "livecast",
		},
	}
}

// Load 从文件加载配置；path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fmt.Printf("📋 Loading config from: %s\n", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		fmt.Printf("✅ Config parsed successfully (%d bytes)\n", len(data))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	fmt.Printf("\n📊 Configuration Summary:\n")
	fmt.Printf("   Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("   LLM Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("   TTS Enabled: %v\n", cfg.TTS.Enabled)
	fmt.Printf("   History Mode: %s\n", cfg.History.Mode)
	if cfg.Paths.Scripts != "" {
		fmt.Printf("   Scripts Dir: %s\n", cfg.Paths.Scripts)
	}
	fmt.Printf("\n")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖敏感信息和部署相关字段
func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.Provider != "" {
		c.LLM.Provider = o.Provider
	}
	if o.OpenAIKey != "" {
		fmt.Printf("🔑 Using OPENAI_API_KEY from environment variable\n")
		c.LLM.OpenAI.APIKey = o.OpenAIKey
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = c.LLM.OpenAI.APIKey
	}
	if o.AnthropicKey != "" {
		fmt.Printf("🔑 Using ANTHROPIC_API_KEY from environment variable\n")
		c.LLM.Anthropic.APIKey = o.AnthropicKey
	}
	if o.HistoryMode != "" {
		c.History.Mode = o.HistoryMode
	}
	if o.SQLitePath != "" {
		c.History.SQLitePath = o.SQLitePath
	}
	if o.PostgresDSN != "" {
		c.History.PostgresDSN = o.PostgresDSN
	}
	if o.OTelEndpoint != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = o.OTelEndpoint
	}
	if o.ScriptsDir != "" {
		c.Paths.Scripts = o.ScriptsDir
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case "none":
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY env var or config)")
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY env var or config)")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	if c.TTS.Enabled && c.TTS.APIKey == "" {
		return fmt.Errorf("tts is enabled but no API key is configured")
	}

	for name, p := range map[string]float64{
		"spontaneous_chance": c.Director.SpontaneousChance,
		"whim_chance":        c.Director.WhimChance,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("director.%s must be within [0,1], got %v", name, p)
		}
	}

	if c.Room.MinLines < 1 || c.Room.MaxLines < c.Room.MinLines {
		return fmt.Errorf("invalid script length bounds: min=%d max=%d", c.Room.MinLines, c.Room.MaxLines)
	}
	if c.Room.MaxSteps < 0 {
		return fmt.Errorf("room.max_steps must not be negative")
	}
	if c.Room.QueueSize <= 0 {
		return fmt.Errorf("room.queue_size must be positive")
	}

	switch c.History.Mode {
	case "memory":
	case "sqlite":
		if c.History.SQLitePath == "" {
			return fmt.Errorf("history.sqlite_path is required in sqlite mode")
		}
	case "postgres":
		if c.History.PostgresDSN == "" {
			return fmt.Errorf("history.postgres_dsn is required in postgres mode")
		}
	default:
		return fmt.Errorf("unsupported history mode: %s", c.History.Mode)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	return nil
}
