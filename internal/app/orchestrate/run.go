package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/app/attachment"
	"github.com/modernalchemist/magic-sub000/internal/app/lifecycle"
	"github.com/modernalchemist/magic-sub000/internal/credential"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/internal/session"
)

// run executes a task until it reaches a terminal status. Any error or panic ends
// with the task in error status and the client notified.
func (s *Service) run(ctx context.Context, cancel context.CancelFunc, tc model.TaskContext, atts []protocol.Attachment) {
	defer s.wg.Done()
	defer cancel()

	ctx = s.logger.SetValuesOnCtx(ctx, log.Kv{"task_id": tc.Task.ID, "topic_id": tc.Task.TopicID})
	logger := s.logger.WithCtxValues(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Task run panicked: %v", r)
			s.fail(ctx, tc, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := s.execute(ctx, &tc, atts); err != nil {
		logger.Errorf("Task run failed: %s", err)
		s.fail(ctx, tc, err)
		return
	}

	logger.Infof("Task run ended")
}

func (s *Service) execute(ctx context.Context, tc *model.TaskContext, atts []protocol.Attachment) error {
	topic, err := s.repo.GetTopic(ctx, tc.Task.TopicID)
	if err != nil {
		return fmt.Errorf("could not get topic: %w", err)
	}

	res, err := s.sandboxes.Resolve(ctx, lifecycle.ResolveRequest{
		ExistingSandboxID: topic.SandboxID,
		TopicID:           topic.ID,
		UserID:            tc.Task.UserID,
	})
	if err != nil {
		return fmt.Errorf("could not resolve sandbox: %w", err)
	}

	tc.SandboxID = res.SandboxID
	tc.Task.SandboxID = res.SandboxID
	if err := s.repo.UpdateTaskRun(ctx, tc.Task.ID, res.SandboxID, ""); err != nil {
		return fmt.Errorf("could not set task sandbox: %w", err)
	}
	if topic.SandboxID != res.SandboxID {
		if err := s.repo.SetTopicSandbox(ctx, topic.ID, res.SandboxID); err != nil {
			return fmt.Errorf("could not set topic sandbox: %w", err)
		}
		topic.SandboxID = res.SandboxID
	}

	ctx = s.logger.SetValuesOnCtx(ctx, log.Kv{"sandbox_id": tc.SandboxID})
	logger := s.logger.WithCtxValues(ctx)

	endpoint, err := s.sandboxes.Endpoint(ctx, tc.SandboxID)
	if err != nil {
		return fmt.Errorf("could not get agent endpoint: %w: %w", model.ErrFatalTransport, err)
	}

	sess := s.sessions.NewSession(endpoint)
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("could not connect with the agent: %w", err)
	}
	defer sess.Disconnect()

	if res.NeedsInit {
		if err := s.initHandshake(ctx, sess, *tc, *topic); err != nil {
			return err
		}
		logger.Debugf("Agent initialized")
	}

	protocolTaskID, err := s.chatHandshake(ctx, sess, *tc, atts)
	if err != nil {
		return err
	}
	tc.Task.ProtocolTaskID = protocolTaskID
	if err := s.repo.UpdateTaskRun(ctx, tc.Task.ID, "", protocolTaskID); err != nil {
		return fmt.Errorf("could not set task protocol id: %w", err)
	}

	changed, err := s.repo.UpdateTaskStatus(ctx, tc.Task.ID, model.TaskStatusRunning, "")
	if err != nil {
		return fmt.Errorf("could not set task running: %w", err)
	}
	if !changed && s.isTerminal(ctx, tc.Task.ID) {
		logger.Infof("Task ended before running")
		return nil
	}

	if s.mode == ModePull {
		logger.Infof("Task running, agent frames will be delivered by callbacks")
		return nil
	}

	return s.receiveLoop(ctx, sess, *tc)
}

func (s *Service) initHandshake(ctx context.Context, sess session.Session, tc model.TaskContext, topic model.Topic) error {
	payload := protocol.Payload{
		Type:      protocol.MessageTypeInit,
		MessageID: s.newIDFn(),
		TaskMode:  string(tc.Task.TaskMode),
		WorkDir:   tc.Task.WorkDir,
	}

	if s.credentials != nil {
		cred, err := s.credentials.Issue(ctx, credential.IssueRequest{
			OrganizationCode: tc.Task.OrganizationCode,
			UserID:           tc.Task.UserID,
			TopicID:          tc.Task.TopicID,
		})
		if err != nil {
			return fmt.Errorf("could not issue upload credentials: %w", err)
		}
		payload.UploadConfig = uploadConfig(cred)
	}

	archive, err := protocol.UnmarshalProjectArchive(topic.ProjectArchive)
	if err != nil {
		// A bad archive only loses the previous workspace.
		s.logger.WithCtxValues(ctx).Warningf("Ignoring invalid project archive: %s", err)
	}
	payload.ProjectArchive = archive

	if err := sess.Send(ctx, protocol.Frame{Metadata: metadata(tc), Payload: payload}); err != nil {
		return fmt.Errorf("could not send init frame: %w", err)
	}

	resp, err := s.waitResponse(ctx, sess, s.initTimeout)
	if err != nil {
		return fmt.Errorf("init handshake: %w", err)
	}
	if resp.Payload.Type != protocol.MessageTypeInit {
		return fmt.Errorf("init handshake got %q frame: %w", resp.Payload.Type, model.ErrHandshakeProtocolViolation)
	}
	if resp.Payload.Status == protocol.StatusError {
		return fmt.Errorf("agent init failed (%s): %w", resp.Payload.Content, model.ErrHandshakeProtocolViolation)
	}

	return nil
}

func (s *Service) chatHandshake(ctx context.Context, sess session.Session, tc model.TaskContext, atts []protocol.Attachment) (string, error) {
	frame := protocol.Frame{
		Metadata: metadata(tc),
		Payload: protocol.Payload{
			Type:        protocol.MessageTypeChat,
			MessageID:   s.newIDFn(),
			Prompt:      tc.Task.Prompt,
			Attachments: s.attachments.ResolveURLs(ctx, atts),
			TaskMode:    string(tc.Task.TaskMode),
		},
	}
	if err := sess.Send(ctx, frame); err != nil {
		return "", fmt.Errorf("could not send chat frame: %w", err)
	}

	resp, err := s.waitResponse(ctx, sess, s.chatTimeout)
	if err != nil {
		return "", fmt.Errorf("chat handshake: %w", err)
	}
	if resp.Payload.Type != protocol.MessageTypeChat {
		return "", fmt.Errorf("chat handshake got %q frame: %w", resp.Payload.Type, model.ErrHandshakeProtocolViolation)
	}
	if resp.Payload.Status == protocol.StatusError {
		return "", fmt.Errorf("agent chat failed (%s): %w", resp.Payload.Content, model.ErrHandshakeProtocolViolation)
	}
	if resp.Payload.TaskID == "" {
		return "", fmt.Errorf("chat handshake response without task id: %w", model.ErrHandshakeProtocolViolation)
	}

	return resp.Payload.TaskID, nil
}

// waitResponse waits for the next frame up to timeout.
func (s *Service) waitResponse(ctx context.Context, sess session.Session, timeout time.Duration) (protocol.Frame, error) {
	deadline := s.timeNowFn().Add(timeout)
	for {
		remaining := deadline.Sub(s.timeNowFn())
		if remaining <= 0 {
			return protocol.Frame{}, fmt.Errorf("no response after %s: %w", timeout, model.ErrHandshakeTimeout)
		}

		raw, err := sess.Receive(ctx, remaining)
		if err != nil {
			return protocol.Frame{}, fmt.Errorf("could not receive response: %w", err)
		}
		if raw == nil {
			continue
		}

		f, err := protocol.Decode(raw)
		if err != nil {
			return protocol.Frame{}, fmt.Errorf("invalid response: %w: %w", model.ErrHandshakeProtocolViolation, err)
		}
		return f, nil
	}
}

// receiveLoop dispatches the agent frames until the task reaches a terminal status,
// the task budget is exhausted or the channel breaks.
func (s *Service) receiveLoop(ctx context.Context, sess session.Session, tc model.TaskContext) error {
	logger := s.logger.WithCtxValues(ctx)
	start := s.timeNowFn()

	for {
		if !sess.IsConnected() {
			logger.Warningf("Agent session lost, reconnecting")
			if err := sess.Connect(ctx); err != nil {
				return fmt.Errorf("could not reconnect with the agent: %w: %w", model.ErrFatalTransport, err)
			}
		}

		raw, err := sess.Receive(ctx, s.receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("receive loop cancelled: %w: %w", model.ErrFatalTransport, err)
			}
			return fmt.Errorf("could not receive frame: %w", err)
		}

		if raw == nil {
			if elapsed := s.timeNowFn().Sub(start); elapsed > s.taskTimeout {
				return fmt.Errorf("task running for %s: %w", elapsed.Round(time.Second), model.ErrTaskTimeout)
			}
			// The task could be ended by an interrupt while the agent was silent.
			if s.isTerminal(ctx, tc.Task.ID) {
				logger.Infof("Task already ended, leaving receive loop")
				return nil
			}
			continue
		}

		f, err := protocol.Decode(raw)
		if err != nil {
			logger.Errorf("Discarding frame: %s", err)
			continue
		}
		if s.deduper.CheckAndMark(frameKey(tc.Task.ID, f.Payload.MessageID)) {
			logger.Debugf("Discarding duplicated frame %s", f.Payload.MessageID)
			continue
		}

		terminal, err := s.dispatch(ctx, tc, f)
		if err != nil {
			if terminal || model.IsFatal(err) {
				return err
			}
			logger.Errorf("Could not dispatch %s frame: %s", f.Payload.Type, err)
			continue
		}
		if terminal {
			logger.Infof("Task reached %s status", f.Payload.Status)
			return nil
		}
	}
}

// dispatch handles a decoded agent frame of a task: resolves its attachments,
// relays it to the client and folds its status in the task. Returns true when
// the frame status is terminal.
func (s *Service) dispatch(ctx context.Context, tc model.TaskContext, f protocol.Frame) (bool, error) {
	logger := s.logger.WithCtxValues(ctx)
	p := f.Payload

	if !p.Type.IsKnown() {
		logger.Warningf("Unknown %q message type, forwarding anyway", p.Type)
	}

	if p.Type == protocol.MessageTypeProjectArchive {
		return false, s.saveProjectArchive(ctx, tc, p.ProjectArchive)
	}

	if p.Tool != nil {
		s.attachments.ProcessTool(ctx, p.Tool, tc)
	}
	p.Attachments = s.attachments.Process(ctx, p.Attachments, tc)

	if p.Status == protocol.StatusFinished && p.Tool == nil {
		if out, ok := outputAttachment(p.Attachments); ok {
			tool, err := s.attachments.FinishTool(ctx, out)
			if err != nil {
				logger.Warningf("Could not build the output tool: %s", err)
			} else {
				p.Tool = tool
			}
		}
	}

	s.notifier.Notify(ctx, notify.Event{
		TopicID:            tc.Task.TopicID,
		TaskID:             tc.Task.ID,
		ChatTopicID:        tc.ChatTopicID,
		ChatConversationID: tc.ChatConversationID,
		Content:            p.Content,
		Type:               p.Type,
		Status:             p.Status,
		Event:              p.Event,
		Steps:              p.Steps,
		Tool:               p.Tool,
		Attachments:        p.Attachments,
		ShowInUI:           p.ShowInUI,
	})

	if status := p.Status.TaskStatus(); status != "" {
		errMsg := ""
		if status == model.TaskStatusError {
			errMsg = p.Content
		}
		if _, err := s.repo.UpdateTaskStatus(ctx, tc.Task.ID, status, errMsg); err != nil {
			return p.Status.IsTerminal(), fmt.Errorf("could not update task status: %w", err)
		}
	}

	return p.Status.IsTerminal(), nil
}

// outputAttachment selects the output candidates that have a durable file.
func outputAttachment(atts []protocol.Attachment) (protocol.Attachment, bool) {
	resolved := make([]protocol.Attachment, 0, len(atts))
	for _, a := range atts {
		if a.FileID != "" {
			resolved = append(resolved, a)
		}
	}
	return attachment.SelectOutput(resolved)
}

func (s *Service) saveProjectArchive(ctx context.Context, tc model.TaskContext, pa *protocol.ProjectArchive) error {
	if pa == nil || pa.Key == "" {
		return fmt.Errorf("project archive without key: %w", model.ErrNotValid)
	}

	archive, err := protocol.MarshalProjectArchive(pa)
	if err != nil {
		return err
	}
	if err := s.repo.SetTopicProjectArchive(ctx, tc.Task.TopicID, archive); err != nil {
		return fmt.Errorf("could not save project archive: %w", err)
	}

	s.logger.WithCtxValues(ctx).Debugf("Project archive %s saved (version %d)", pa.Key, pa.Version)
	return nil
}

// fail sets the task in error status and notifies the client. Tasks already in
// a terminal status are left untouched.
func (s *Service) fail(ctx context.Context, tc model.TaskContext, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.WithCtxValues(ctx)

	changed, err := s.repo.UpdateTaskStatus(ctx, tc.Task.ID, model.TaskStatusError, cause.Error())
	if err != nil {
		logger.Errorf("Could not set task error status: %s", err)
	}
	if !changed && err == nil {
		logger.Warningf("Task already ended, ignoring error: %s", cause)
		return
	}

	s.notifier.Notify(ctx, notify.Event{
		TopicID:            tc.Task.TopicID,
		TaskID:             tc.Task.ID,
		ChatTopicID:        tc.ChatTopicID,
		ChatConversationID: tc.ChatConversationID,
		Content:            cause.Error(),
		Type:               protocol.MessageTypeError,
		Status:             protocol.StatusError,
		ShowInUI:           true,
	})
}

func (s *Service) isTerminal(ctx context.Context, taskID string) bool {
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.WithCtxValues(ctx).Warningf("Could not get task status: %s", err)
		}
		return false
	}
	return t.Status.IsTerminal()
}

func metadata(tc model.TaskContext) protocol.Metadata {
	return protocol.Metadata{
		AgentUserID:        tc.AgentUserID,
		UserID:             tc.Task.UserID,
		OrganizationCode:   tc.Task.OrganizationCode,
		ChatConversationID: tc.ChatConversationID,
		ChatTopicID:        tc.ChatTopicID,
		Instruction:        string(tc.Instruction),
		SandboxID:          tc.SandboxID,
		SuperMagicTaskID:   tc.Task.ID,
	}
}

func uploadConfig(c model.UploadCredential) *protocol.UploadConfig {
	uc := &protocol.UploadConfig{
		Platform:        c.Platform,
		Region:          c.Region,
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Dir:             c.Dir,
	}
	if !c.ExpiresAt.IsZero() {
		uc.Expires = c.ExpiresAt.Unix()
	}
	return uc
}
