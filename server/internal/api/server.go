package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"livecast/server/internal/config"
	"livecast/server/internal/gateway"
	"livecast/server/internal/model"
	"livecast/server/internal/room"
)

// Server HTTP 入口：房间管理、弹幕提交、状态查询、websocket 推流。
type Server struct {
	cfg    config.ServerConfig
	rooms  *room.Manager
	stream *gateway.Handler
	logger *log.Logger
}

func NewServer(cfg config.ServerConfig, rooms *room.Manager, stream *gateway.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{cfg: cfg, rooms: rooms, stream: stream, logger: logger}
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), s.corsMiddleware())
	engine.GET("/healthz", s.handleHealthz)

	api := engine.Group("/api")
	api.POST("/rooms", s.handleCreateRoom)
	api.GET("/rooms", s.handleListRooms)
	api.POST("/rooms/:id/start", s.handleStart)
	api.POST("/rooms/:id/stop", s.handleStop)
	api.POST("/rooms/:id/events", s.handleEvent)
	api.GET("/rooms/:id/status", s.handleStatus)
	api.GET("/rooms/:id/steps", s.handleSteps)
	api.GET("/rooms/:id/stream", s.handleStream)
	api.GET("/history", s.handleHistory)
	return engine
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCreateRoom 创建直播间；房主凭证只在这里返回一次。
func (s *Server) handleCreateRoom(c *gin.Context) {
	roomID, token, err := s.rooms.Create(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "owner_token": token})
}

// handleListRooms 列出所有房间的状态快照。
func (s *Server) handleListRooms(c *gin.Context) {
	rooms, err := s.rooms.Rooms(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type startRequest struct {
	OwnerToken string   `json:"owner_token" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Persona    string   `json:"persona"`
	Background string   `json:"background"`
	Topic      string   `json:"topic" binding:"required"`
	SeedEvents []string `json:"seed_events"`
	Language   string   `json:"language"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}

	roomID := c.Param("id")
	err := s.rooms.Start(c.Request.Context(), roomID, room.StartRequest{
		OwnerToken: req.OwnerToken,
		Name:       req.Name,
		Persona:    req.Persona,
		Background: req.Background,
		Topic:      req.Topic,
		SeedEvents: req.SeedEvents,
		Language:   req.Language,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"room_id": roomID, "topic": strings.TrimSpace(req.Topic)})
}

type stopRequest struct {
	OwnerToken string `json:"owner_token" binding:"required"`
}

func (s *Server) handleStop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if err := s.rooms.Stop(c.Request.Context(), c.Param("id"), req.OwnerToken); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.StreamStopped})
}

type eventRequest struct {
	Text   string `json:"text" binding:"required"`
	User   string `json:"user" binding:"required"`
	Gift   bool   `json:"gift"`
	Amount int    `json:"amount"`
}

// handleEvent 接收一条弹幕，进入下一个 step 的队列。
func (s *Server) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	err := s.rooms.Submit(c.Request.Context(), c.Param("id"), model.Event{
		Text:   req.Text,
		User:   req.User,
		Gift:   req.Gift,
		Amount: req.Amount,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.rooms.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSteps(c *gin.Context) {
	steps, err := s.rooms.Steps(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if steps == nil {
		steps = []model.StepRecord{}
	}
	c.JSON(http.StatusOK, steps)
}

// handleStream 升级为 websocket；房间不存在时在升级前返回 404。
func (s *Server) handleStream(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := s.rooms.Status(c.Request.Context(), roomID); err != nil {
		s.writeError(c, err)
		return
	}
	s.stream.ServeRoom(c.Writer, c.Request, roomID)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := s.rooms.History(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// writeError 把领域错误映射为 HTTP 状态码
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrInvalidCredential):
		status = http.StatusForbidden
	case errors.Is(err, room.ErrAlreadyRunning), errors.Is(err, room.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, room.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, room.ErrQueueFull):
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		s.logger.Printf("[API] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
