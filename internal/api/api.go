package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/modernalchemist/magic-sub000/internal/app/orchestrate"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UserIDHeader is the header that identifies the calling user.
const UserIDHeader = "X-User-Id"

// Orchestrator is the task orchestrator used by the API.
type Orchestrator interface {
	CreateTopic(ctx context.Context, req orchestrate.CreateTopicRequest) (*model.Topic, error)
	Submit(ctx context.Context, req orchestrate.SubmitRequest) (string, error)
	GetTask(ctx context.Context, userID, taskID string) (*model.Task, error)
	Interrupt(ctx context.Context, req orchestrate.InterruptRequest) error
	HandleInboundFrame(ctx context.Context, raw []byte) error
}

// EventSubscriber streams the client envelopes of a topic.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topicID string) <-chan notify.Envelope
}

// HandlerConfig is the configuration for the HTTP API handler.
type HandlerConfig struct {
	Orchestrator Orchestrator
	// Events is optional, without it the event stream endpoint is not registered.
	Events EventSubscriber
	// MaxFrameSize is the max body size accepted on the frame callback.
	MaxFrameSize int64
	WriteTimeout time.Duration
	Logger       log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = 32 * 1024 * 1024
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})
	return nil
}

type handler struct {
	orch         Orchestrator
	events       EventSubscriber
	maxFrameSize int64
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       log.Logger
}

// NewHandler returns the HTTP API handler.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{
		orch:         cfg.Orchestrator,
		events:       cfg.Events,
		maxFrameSize: cfg.MaxFrameSize,
		writeTimeout: cfg.WriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: cfg.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())

	v1 := r.Group("/api/v1")
	v1.POST("/topics", h.requireUser(), h.createTopic)
	v1.POST("/tasks", h.requireUser(), h.submitTask)
	v1.GET("/tasks/:id", h.requireUser(), h.getTask)
	v1.POST("/tasks/:id/interrupt", h.requireUser(), h.interruptTask)
	v1.POST("/callback/frames", h.inboundFrame)
	if h.events != nil {
		v1.GET("/topics/:id/events", h.streamEvents)
	}

	return r, nil
}

func (h handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debugf("%s %s %d (%s)", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func (h handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(UserIDHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing " + UserIDHeader + " header"})
			return
		}
		c.Next()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type createTopicRequest struct {
	OrganizationCode   string         `json:"organization_code"`
	ChatConversationID string         `json:"chat_conversation_id"`
	ChatTopicID        string         `json:"chat_topic_id"`
	AgentUserID        string         `json:"agent_user_id"`
	WorkspaceID        string         `json:"workspace_id"`
	WorkDir            string         `json:"work_dir"`
	TaskMode           model.TaskMode `json:"task_mode"`
}

type topicResponse struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"user_id"`
	ChatConversationID string           `json:"chat_conversation_id"`
	ChatTopicID        string           `json:"chat_topic_id"`
	SandboxID          string           `json:"sandbox_id,omitempty"`
	CurrentTaskID      string           `json:"current_task_id,omitempty"`
	CurrentTaskStatus  model.TaskStatus `json:"current_task_status,omitempty"`
	TaskMode           model.TaskMode   `json:"task_mode"`
}

func (h handler) createTopic(c *gin.Context) {
	req := createTopicRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	topic, err := h.orch.CreateTopic(c.Request.Context(), orchestrate.CreateTopicRequest{
		UserID:             c.GetHeader(UserIDHeader),
		OrganizationCode:   req.OrganizationCode,
		ChatConversationID: req.ChatConversationID,
		ChatTopicID:        req.ChatTopicID,
		AgentUserID:        req.AgentUserID,
		WorkspaceID:        req.WorkspaceID,
		WorkDir:            req.WorkDir,
		TaskMode:           req.TaskMode,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, topicResponse{
		ID:                 topic.ID,
		UserID:             topic.UserID,
		ChatConversationID: topic.ChatConversationID,
		ChatTopicID:        topic.ChatTopicID,
		SandboxID:          topic.SandboxID,
		CurrentTaskID:      topic.CurrentTaskID,
		CurrentTaskStatus:  topic.CurrentTaskStatus,
		TaskMode:           topic.TaskMode,
	})
}

type submitTaskRequest struct {
	TopicID     string                `json:"topic_id"`
	Prompt      string                `json:"prompt"`
	Attachments []protocol.Attachment `json:"attachments"`
	Instruction model.Instruction     `json:"instruction"`
	TaskMode    model.TaskMode        `json:"task_mode"`
}

type submitTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (h handler) submitTask(c *gin.Context) {
	req := submitTaskRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	taskID, err := h.orch.Submit(c.Request.Context(), orchestrate.SubmitRequest{
		UserID:      c.GetHeader(UserIDHeader),
		TopicID:     req.TopicID,
		Prompt:      req.Prompt,
		Attachments: req.Attachments,
		Instruction: req.Instruction,
		TaskMode:    req.TaskMode,
		Language:    language(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitTaskResponse{TaskID: taskID})
}

// TaskResponse is the API representation of a task.
type TaskResponse struct {
	ID             string            `json:"id"`
	TopicID        string            `json:"topic_id"`
	UserID         string            `json:"user_id"`
	SandboxID      string            `json:"sandbox_id,omitempty"`
	ProtocolTaskID string            `json:"protocol_task_id,omitempty"`
	Prompt         string            `json:"prompt"`
	Instruction    model.Instruction `json:"instruction"`
	Status         model.TaskStatus  `json:"status"`
	ErrMessage     string            `json:"err_message,omitempty"`
	TaskMode       model.TaskMode    `json:"task_mode"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewTaskResponse maps a task to its API representation.
func NewTaskResponse(t model.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID,
		TopicID:        t.TopicID,
		UserID:         t.UserID,
		SandboxID:      t.SandboxID,
		ProtocolTaskID: t.ProtocolTaskID,
		Prompt:         t.Prompt,
		Instruction:    t.Instruction,
		Status:         t.Status,
		ErrMessage:     t.ErrMessage,
		TaskMode:       t.TaskMode,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (h handler) getTask(c *gin.Context) {
	task, err := h.orch.GetTask(c.Request.Context(), c.GetHeader(UserIDHeader), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewTaskResponse(*task))
}

func (h handler) interruptTask(c *gin.Context) {
	err := h.orch.Interrupt(c.Request.Context(), orchestrate.InterruptRequest{
		UserID: c.GetHeader(UserIDHeader),
		TaskID: c.Param("id"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (h handler) inboundFrame(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFrameSize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	if err := h.orch.HandleInboundFrame(c.Request.Context(), raw); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (h handler) streamEvents(c *gin.Context) {
	topicID := c.Param("id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warningf("Could not upgrade event stream connection: %s", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Client messages are ignored, reading is only used to detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.events.Subscribe(ctx, topicID)
	for env := range events {
		data, err := json.Marshal(env)
		if err != nil {
			h.logger.Errorf("Could not marshal envelope %s: %s", env.MessageID, err)
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debugf("Event stream of topic %s closed: %s", topicID, err)
			return
		}
	}
}

func (h handler) writeError(c *gin.Context, err error) {
	var limitErr *orchestrate.LimitExceededError
	switch {
	case errors.As(err, &limitErr):
		c.JSON(http.StatusTooManyRequests, errorResponse{Error: limitErr.Message})
	case errors.Is(err, model.ErrNotValid):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrConcurrentDelivery):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.logger.Errorf("%s %s failed: %s", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// language returns the preferred language of the client (e.g: zh_CN).
func language(c *gin.Context) string {
	lang, _, _ := strings.Cut(c.GetHeader("Accept-Language"), ",")
	lang, _, _ = strings.Cut(lang, ";")
	return strings.ReplaceAll(strings.TrimSpace(lang), "-", "_")
}
