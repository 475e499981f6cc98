package orchestrate

import (
	"context"
	"fmt"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/internal/queue"
)

// InterruptRequest is the request to interrupt a task.
type InterruptRequest struct {
	UserID  string
	TopicID string
	// TaskID is the task to interrupt, when empty the topic current task is used.
	TaskID string
}

// Interrupt suspends a task. The agent is told to stop only when its sandbox is
// reachable, otherwise the client is notified directly so the task never gets stuck.
func (s *Service) Interrupt(ctx context.Context, req InterruptRequest) error {
	if req.TopicID == "" && req.TaskID == "" {
		return fmt.Errorf("topic or task id is required: %w", model.ErrNotValid)
	}

	taskID := req.TaskID
	if taskID == "" {
		topic, err := s.repo.GetTopic(ctx, req.TopicID)
		if err != nil {
			return fmt.Errorf("could not get topic: %w", err)
		}
		if topic.CurrentTaskID == "" {
			return fmt.Errorf("topic %s has no task: %w", topic.ID, model.ErrNotFound)
		}
		taskID = topic.CurrentTaskID
	}

	tc, err := s.taskContext(ctx, taskID)
	if err != nil {
		return err
	}
	if req.UserID != "" && tc.Task.UserID != req.UserID {
		return fmt.Errorf("task %s doesn't belong to user %s: %w", taskID, req.UserID, model.ErrNotValid)
	}
	tc.Instruction = model.InstructionInterrupt

	logger := s.logger.WithValues(log.Kv{"task_id": tc.Task.ID, "sandbox_id": tc.SandboxID})

	changed, err := s.repo.UpdateTaskStatus(ctx, tc.Task.ID, model.TaskStatusSuspended, "interrupted by user")
	if err != nil {
		return fmt.Errorf("could not suspend task: %w", err)
	}
	if !changed {
		logger.Infof("Task already ended (%s), nothing to interrupt", tc.Task.Status)
		return nil
	}

	if s.sandboxes.IsRunning(ctx, tc.SandboxID) {
		err := s.sendInterrupt(ctx, tc)
		if err == nil {
			logger.Infof("Interrupt sent to the agent")
			return nil
		}
		logger.Warningf("Could not send the interrupt to the agent: %s", err)
	}

	s.notifier.Notify(ctx, notify.Event{
		TopicID:            tc.Task.TopicID,
		TaskID:             tc.Task.ID,
		ChatTopicID:        tc.ChatTopicID,
		ChatConversationID: tc.ChatConversationID,
		Type:               protocol.MessageTypeChat,
		Status:             protocol.StatusSuspended,
		Event:              "task_suspended",
		ShowInUI:           true,
	})

	return nil
}

func (s *Service) sendInterrupt(ctx context.Context, tc model.TaskContext) error {
	ctx, cancel := context.WithTimeout(ctx, s.interruptTimeout)
	defer cancel()

	endpoint, err := s.sandboxes.Endpoint(ctx, tc.SandboxID)
	if err != nil {
		return err
	}

	sess := s.sessions.NewSession(endpoint)
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Disconnect()

	return sess.Send(ctx, protocol.Frame{
		Metadata: metadata(tc),
		Payload: protocol.Payload{
			Type:      protocol.MessageTypeChat,
			MessageID: s.newIDFn(),
			TaskID:    tc.Task.ProtocolTaskID,
		},
	})
}

// HandleInboundFrame receives an agent frame delivered by callback (pull mode) and
// enqueues it for ordered delivery. Frames of the same sandbox are enqueued while
// holding the sandbox delivery lock.
func (s *Service) HandleInboundFrame(ctx context.Context, raw []byte) error {
	f, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	if f.Metadata.SandboxID == "" {
		return fmt.Errorf("frame without sandbox id: %w", model.ErrNotValid)
	}
	if f.Metadata.SuperMagicTaskID == "" {
		return fmt.Errorf("frame without task id: %w", model.ErrNotValid)
	}

	key := frameKey(f.Metadata.SuperMagicTaskID, f.Payload.MessageID)
	if s.deduper.CheckAndMark(key) {
		s.logger.Debugf("Discarding duplicated frame %s", f.Payload.MessageID)
		return nil
	}

	err = s.lock.WithLock(ctx, f.Metadata.SandboxID, s.lockTTL, func(ctx context.Context) error {
		return s.producer.Publish(ctx, queue.Message{Key: f.Metadata.SandboxID, Body: raw})
	})
	if err != nil {
		// Not enqueued, the agent retry must be accepted.
		s.deduper.Forget(key)
		return fmt.Errorf("could not enqueue frame: %w", err)
	}

	return nil
}

// ConsumeFrame is the queue handler that dispatches the enqueued agent frames.
func (s *Service) ConsumeFrame(ctx context.Context, msg queue.Message) error {
	f, err := protocol.Decode(msg.Body)
	if err != nil {
		return err
	}

	tc, err := s.taskContext(ctx, f.Metadata.SuperMagicTaskID)
	if err != nil {
		return err
	}

	ctx = s.logger.SetValuesOnCtx(ctx, log.Kv{"task_id": tc.Task.ID, "topic_id": tc.Task.TopicID, "sandbox_id": tc.SandboxID})
	terminal, err := s.dispatch(ctx, tc, f)
	if err != nil {
		return fmt.Errorf("could not dispatch frame: %w", err)
	}
	if terminal {
		s.logger.WithCtxValues(ctx).Infof("Task reached %s status", f.Payload.Status)
	}

	return nil
}
