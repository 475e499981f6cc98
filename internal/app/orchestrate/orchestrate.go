package orchestrate

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modernalchemist/magic-sub000/internal/app/lifecycle"
	"github.com/modernalchemist/magic-sub000/internal/credential"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/internal/queue"
	"github.com/modernalchemist/magic-sub000/internal/session"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

// Mode is how the agent frames of a running task reach the orchestrator.
type Mode string

const (
	// ModeWebsocket keeps the agent session open and receives the frames in a loop.
	ModeWebsocket Mode = "websocket"
	// ModePull closes the session after the handshakes, the agent delivers the
	// frames with callbacks (HandleInboundFrame).
	ModePull Mode = "pull"
)

// SandboxResolver resolves the sandbox and agent endpoint of a task.
type SandboxResolver interface {
	Resolve(ctx context.Context, req lifecycle.ResolveRequest) (lifecycle.Resolution, error)
	Endpoint(ctx context.Context, sandboxID string) (string, error)
	IsRunning(ctx context.Context, sandboxID string) bool
}

// AttachmentProcessor resolves frame attachments into durable files.
type AttachmentProcessor interface {
	Process(ctx context.Context, atts []protocol.Attachment, tc model.TaskContext) []protocol.Attachment
	ProcessTool(ctx context.Context, tool *protocol.Tool, tc model.TaskContext)
	ResolveURLs(ctx context.Context, atts []protocol.Attachment) []protocol.Attachment
	FinishTool(ctx context.Context, a protocol.Attachment) (*protocol.Tool, error)
}

// Notifier relays events to the client, it never fails.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

// DeliveryLock serializes the deliveries of the same sandbox.
type DeliveryLock interface {
	WithLock(ctx context.Context, sandboxID string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Deduper tracks the already handled message ids.
type Deduper interface {
	CheckAndMark(key string) bool
	Forget(key string)
}

// frameKey is the dedupe key of an agent frame. Message ids are only unique
// inside a task.
func frameKey(taskID, messageID string) string {
	if messageID == "" {
		return ""
	}
	return taskID + ":" + messageID
}

// ServiceConfig is the configuration for the orchestrator.
type ServiceConfig struct {
	Repository  storage.Repository
	Sandboxes   SandboxResolver
	Sessions    session.Factory
	Attachments AttachmentProcessor
	Notifier    Notifier
	// Credentials issues the agent upload credentials, optional.
	Credentials  credential.Issuer
	DeliveryLock DeliveryLock
	Producer     queue.Producer
	Deduper      Deduper

	Mode Mode
	// InitTimeout is the max wait for the init handshake response.
	InitTimeout time.Duration
	// ChatTimeout is the max wait for the chat handshake response.
	ChatTimeout time.Duration
	// ReceiveTimeout is the max wait of a single read in the receive loop.
	ReceiveTimeout time.Duration
	// TaskTimeout is the wall-clock budget of the receive loop.
	TaskTimeout time.Duration
	// InterruptTimeout bounds the session used to send interrupts.
	InterruptTimeout time.Duration
	// DeliveryLockTTL is the TTL of the delivery lock taken on inbound frames.
	DeliveryLockTTL time.Duration
	// MaxRunningTasksPerUser limits the running tasks of a user (by sandbox).
	MaxRunningTasksPerUser int
	// OpenMode disables the running tasks limit.
	OpenMode bool
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Sandboxes == nil {
		return fmt.Errorf("sandbox resolver is required")
	}
	if c.Sessions == nil {
		return fmt.Errorf("session factory is required")
	}
	if c.Attachments == nil {
		return fmt.Errorf("attachment processor is required")
	}
	if c.Notifier == nil {
		return fmt.Errorf("notifier is required")
	}
	if c.DeliveryLock == nil {
		return fmt.Errorf("delivery lock is required")
	}
	if c.Producer == nil {
		return fmt.Errorf("producer is required")
	}
	if c.Deduper == nil {
		return fmt.Errorf("deduper is required")
	}

	switch c.Mode {
	case "":
		c.Mode = ModeWebsocket
	case ModeWebsocket, ModePull:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.InitTimeout == 0 {
		c.InitTimeout = 5 * time.Minute
	}
	if c.ChatTimeout == 0 {
		c.ChatTimeout = 30 * time.Second
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = 10 * time.Second
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = 2 * time.Hour
	}
	if c.InterruptTimeout == 0 {
		c.InterruptTimeout = 10 * time.Second
	}
	if c.DeliveryLockTTL == 0 {
		c.DeliveryLockTTL = 30 * time.Second
	}
	if c.MaxRunningTasksPerUser == 0 {
		c.MaxRunningTasksPerUser = 3
	}
	if c.MaxRunningTasksPerUser < 0 {
		return fmt.Errorf("max running tasks per user can't be negative")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Orchestrate"})
	return nil
}

// Service runs the agent tasks on the sandboxes.
type Service struct {
	repo        storage.Repository
	sandboxes   SandboxResolver
	sessions    session.Factory
	attachments AttachmentProcessor
	notifier    Notifier
	credentials credential.Issuer
	lock        DeliveryLock
	producer    queue.Producer
	deduper     Deduper

	mode             Mode
	initTimeout      time.Duration
	chatTimeout      time.Duration
	receiveTimeout   time.Duration
	taskTimeout      time.Duration
	interruptTimeout time.Duration
	lockTTL          time.Duration
	maxRunning       int
	openMode         bool

	logger    log.Logger
	timeNowFn func() time.Time
	newIDFn   func() string

	wg         sync.WaitGroup
	runsMu     sync.Mutex
	closed     bool
	runsCtx    context.Context
	cancelRuns context.CancelFunc
}

// NewService returns a new orchestrator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runsCtx, cancelRuns := context.WithCancel(context.Background())

	return &Service{
		repo:        cfg.Repository,
		sandboxes:   cfg.Sandboxes,
		sessions:    cfg.Sessions,
		attachments: cfg.Attachments,
		notifier:    cfg.Notifier,
		credentials: cfg.Credentials,
		lock:        cfg.DeliveryLock,
		producer:    cfg.Producer,
		deduper:     cfg.Deduper,

		mode:             cfg.Mode,
		initTimeout:      cfg.InitTimeout,
		chatTimeout:      cfg.ChatTimeout,
		receiveTimeout:   cfg.ReceiveTimeout,
		taskTimeout:      cfg.TaskTimeout,
		interruptTimeout: cfg.InterruptTimeout,
		lockTTL:          cfg.DeliveryLockTTL,
		maxRunning:       cfg.MaxRunningTasksPerUser,
		openMode:         cfg.OpenMode,

		logger:    cfg.Logger,
		timeNowFn: func() time.Time { return time.Now().UTC() },
		newIDFn:   func() string { return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() },

		runsCtx:    runsCtx,
		cancelRuns: cancelRuns,
	}, nil
}

// SubmitRequest is the request to run a new task on a topic.
type SubmitRequest struct {
	UserID      string
	TopicID     string
	Prompt      string
	Attachments []protocol.Attachment
	Instruction model.Instruction
	TaskMode    model.TaskMode
	// Language is used to localize the errors returned to the user (e.g: en_US, zh_CN).
	Language string
}

func (r SubmitRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user id is required: %w", model.ErrNotValid)
	}
	if r.TopicID == "" {
		return fmt.Errorf("topic id is required: %w", model.ErrNotValid)
	}
	switch r.Instruction {
	case "", model.InstructionNormal, model.InstructionFollowUp, model.InstructionInterrupt:
	default:
		return fmt.Errorf("unknown instruction %q: %w", r.Instruction, model.ErrNotValid)
	}
	switch r.TaskMode {
	case "", model.TaskModeChat, model.TaskModePlan:
	default:
		return fmt.Errorf("unknown task mode %q: %w", r.TaskMode, model.ErrNotValid)
	}
	if r.Prompt == "" && r.Instruction != model.InstructionInterrupt {
		return fmt.Errorf("prompt is required: %w", model.ErrNotValid)
	}
	return nil
}

// Submit creates a task and starts running it in background. It returns as soon
// as the task is stored, with the new task ID. An interrupt instruction
// interrupts the current task of the topic instead and returns its ID.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	if s.isClosed() {
		return "", fmt.Errorf("orchestrator not accepting tasks: %w", model.ErrShuttingDown)
	}

	topic, err := s.repo.GetTopic(ctx, req.TopicID)
	if err != nil {
		return "", fmt.Errorf("could not get topic: %w", err)
	}
	if topic.UserID != req.UserID {
		return "", fmt.Errorf("topic %s doesn't belong to user %s: %w", topic.ID, req.UserID, model.ErrNotValid)
	}

	if req.Instruction == model.InstructionInterrupt {
		err := s.Interrupt(ctx, InterruptRequest{UserID: req.UserID, TopicID: req.TopicID})
		if err != nil {
			return "", err
		}
		return topic.CurrentTaskID, nil
	}

	if err := s.checkRunningLimit(ctx, *topic, req.Language); err != nil {
		return "", err
	}

	atts, err := protocol.MarshalAttachments(req.Attachments)
	if err != nil {
		return "", fmt.Errorf("could not marshal attachments: %w", err)
	}

	instruction := req.Instruction
	if instruction == "" {
		instruction = model.InstructionNormal
	}
	taskMode := req.TaskMode
	if taskMode == "" {
		taskMode = topic.TaskMode
	}
	if taskMode == "" {
		taskMode = model.TaskModeChat
	}

	now := s.timeNowFn()
	task := model.Task{
		ID:               s.newIDFn(),
		TopicID:          topic.ID,
		UserID:           req.UserID,
		OrganizationCode: topic.OrganizationCode,
		Prompt:           req.Prompt,
		Attachments:      atts,
		Instruction:      instruction,
		Status:           model.TaskStatusWaiting,
		WorkDir:          topic.WorkDir,
		TaskMode:         taskMode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := task.Validate(); err != nil {
		return "", err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("could not create task: %w", err)
	}

	if err := s.repo.SetTopicCurrentTask(ctx, topic.ID, task.ID); err != nil {
		return "", fmt.Errorf("could not set topic current task: %w", err)
	}
	topic.CurrentTaskID = task.ID
	topic.CurrentTaskStatus = task.Status
	topic.TaskMode = task.TaskMode

	s.logger.Infof("Task %s submitted on topic %s", task.ID, topic.ID)

	tc := newTaskContext(task, *topic)
	if err := s.startRun(ctx, tc, req.Attachments); err != nil {
		s.fail(ctx, tc, err)
		return "", err
	}

	return task.ID, nil
}

// startRun runs the task in background. The run outlives the request, only a
// service shutdown cancels it.
func (s *Service) startRun(ctx context.Context, tc model.TaskContext, atts []protocol.Attachment) error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	if s.closed {
		return fmt.Errorf("orchestrator not accepting tasks: %w", model.ErrShuttingDown)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.runsCtx, cancel)
	s.wg.Add(1)
	go s.run(runCtx, func() { stop(); cancel() }, tc, atts)

	return nil
}

func (s *Service) isClosed() bool {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	return s.closed
}

// Wait blocks until all the running tasks have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting new tasks and waits for the running ones. When ctx
// ends first the running tasks are cancelled so they end in error status, and
// the ctx error is returned once all of them stopped.
func (s *Service) Shutdown(ctx context.Context) error {
	s.runsMu.Lock()
	s.closed = true
	s.runsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	s.logger.Warningf("Cancelling the running tasks: %s", ctx.Err())
	s.cancelRuns()
	<-done

	return ctx.Err()
}

func newTaskContext(task model.Task, topic model.Topic) model.TaskContext {
	sandboxID := task.SandboxID
	if sandboxID == "" {
		sandboxID = topic.SandboxID
	}

	return model.TaskContext{
		Task:               task,
		ChatConversationID: topic.ChatConversationID,
		ChatTopicID:        topic.ChatTopicID,
		AgentUserID:        topic.AgentUserID,
		SandboxID:          sandboxID,
		Instruction:        task.Instruction,
	}
}

func (s *Service) taskContext(ctx context.Context, taskID string) (model.TaskContext, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return model.TaskContext{}, fmt.Errorf("could not get task: %w", err)
	}
	topic, err := s.repo.GetTopic(ctx, task.TopicID)
	if err != nil {
		return model.TaskContext{}, fmt.Errorf("could not get topic: %w", err)
	}

	return newTaskContext(*task, *topic), nil
}
