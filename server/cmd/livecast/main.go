package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"livecast/server/internal/actor"
	"livecast/server/internal/api"
	"livecast/server/internal/config"
	"livecast/server/internal/gateway"
	"livecast/server/internal/history"
	"livecast/server/internal/llm"
	"livecast/server/internal/room"
	"livecast/server/internal/script"
	"livecast/server/internal/telemetry"
	"livecast/server/internal/timeline"
	"livecast/server/internal/tts"
)

func main() {
	// 敏感信息（API Key、数据库 DSN）优先走环境变量，配置文件只放部署参数。
	configPath := flag.String("config", "server/configs/livecast.yaml", "config file path (empty for defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Printf("[Main] telemetry shutdown: %v", err)
		}
	}()

	scripts, replier := collaborators(cfg, logger)

	runs, mode, err := history.New(cfg.History)
	if err != nil {
		logger.Fatalf("init history: %v", err)
	}
	defer runs.Close()
	logger.Printf("[Main] history store: %s", mode)

	rooms := room.NewManager(room.Deps{
		Room:     cfg.Room,
		Director: cfg.Director,
		Scripts:  scripts,
		Replier:  replier,
		Synth:    tts.New(cfg.TTS),
		Timeline: timeline.NewInMemoryStore(),
		History:  runs,
		Tracer:   telemetry.Tracer(),
		Logger:   logger,
		Debug:    cfg.Logging.Level == "debug",
	})
	defer rooms.Close()

	stream := gateway.NewHandler(rooms, gateway.Config{
		SendBuffer:     cfg.Room.SubscriberBuffer,
		PingInterval:   cfg.Room.PingInterval,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)
	server := api.NewServer(cfg.Server, rooms, stream, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     server.Routes(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout 不设置：websocket 连接是长连接
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("[Main] livecast server listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("[Main] shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("[Main] serve: %v", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Printf("[Main] http shutdown: %v", err)
	}
}

// collaborators 根据 LLM 配置选择剧本生成器与回应生成器；未配置 LLM 时走离线路径。
func collaborators(cfg *config.Config, logger *log.Logger) (script.Generator, actor.Replier) {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		if !errors.Is(err, llm.ErrNoProvider) {
			logger.Printf("[Main] ⚠️ llm unavailable, running offline: %v", err)
		}
		if cfg.Paths.Scripts != "" {
			logger.Printf("[Main] offline mode: scripts from %s", cfg.Paths.Scripts)
			return script.FileGenerator{Path: cfg.Paths.Scripts}, actor.TemplateReplier{}
		}
		logger.Printf("[Main] offline mode: builtin scripts")
		return script.BuiltinGenerator{}, actor.TemplateReplier{}
	}
	logger.Printf("[Main] llm provider: %s", cfg.LLM.Provider)
	return script.NewLLMGenerator(client, logger), actor.NewLLMReplier(client, logger)
}

func newLogger(cfg config.LoggingConfig) (*log.Logger, func(), error) {
	if cfg.Output == "" {
		return log.Default(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	return logger, func() { f.Close() }, nil
}
