package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/api"
	"github.com/modernalchemist/magic-sub000/internal/api/apimock"
	"github.com/modernalchemist/magic-sub000/internal/app/orchestrate"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

func TestHandler(t *testing.T) {
	tests := map[string]struct {
		method  string
		path    string
		user    string
		headers map[string]string
		body    string
		mock    func(m *apimock.MockOrchestrator)
		expCode int
		expBody string
	}{
		"Creating a topic should return the created topic.": {
			method: http.MethodPost,
			path:   "/api/v1/topics",
			user:   "user1",
			body:   `{"chat_conversation_id":"conv1","chat_topic_id":"ct1","work_dir":"/w"}`,
			mock: func(m *apimock.MockOrchestrator) {
				exp := orchestrate.CreateTopicRequest{UserID: "user1", ChatConversationID: "conv1", ChatTopicID: "ct1", WorkDir: "/w"}
				m.On("CreateTopic", mock.Anything, exp).Once().Return(&model.Topic{
					ID: "topic1", UserID: "user1", ChatConversationID: "conv1", ChatTopicID: "ct1", TaskMode: model.TaskModeChat,
				}, nil)
			},
			expCode: http.StatusCreated,
			expBody: `{"id":"topic1","user_id":"user1","chat_conversation_id":"conv1","chat_topic_id":"ct1","task_mode":"chat"}`,
		},

		"Requests without user should be rejected.": {
			method:  http.MethodPost,
			path:    "/api/v1/tasks",
			body:    `{}`,
			mock:    func(m *apimock.MockOrchestrator) {},
			expCode: http.StatusUnauthorized,
			expBody: `{"error":"missing X-User-Id header"}`,
		},

		"Submitting a task should return the task id.": {
			method:  http.MethodPost,
			path:    "/api/v1/tasks",
			user:    "user1",
			headers: map[string]string{"Accept-Language": "zh-CN,zh;q=0.9"},
			body:    `{"topic_id":"topic1","prompt":"hello","attachments":[{"file_key":"k","file_extension":"md","filename":"a.md"}]}`,
			mock: func(m *apimock.MockOrchestrator) {
				exp := orchestrate.SubmitRequest{
					UserID:      "user1",
					TopicID:     "topic1",
					Prompt:      "hello",
					Attachments: []protocol.Attachment{{FileKey: "k", FileExtension: "md", FileName: "a.md"}},
					Language:    "zh_CN",
				}
				m.On("Submit", mock.Anything, exp).Once().Return("task1", nil)
			},
			expCode: http.StatusAccepted,
			expBody: `{"task_id":"task1"}`,
		},

		"Submitting a task over the limit should return the localized message.": {
			method: http.MethodPost,
			path:   "/api/v1/tasks",
			user:   "user1",
			body:   `{"topic_id":"topic1","prompt":"hello"}`,
			mock: func(m *apimock.MockOrchestrator) {
				err := fmt.Errorf("nope: %w", &orchestrate.LimitExceededError{Message: "too many", Running: 3})
				m.On("Submit", mock.Anything, mock.Anything).Once().Return("", err)
			},
			expCode: http.StatusTooManyRequests,
			expBody: `{"error":"too many"}`,
		},

		"Submitting an invalid task should return a bad request.": {
			method: http.MethodPost,
			path:   "/api/v1/tasks",
			user:   "user1",
			body:   `{"topic_id":"topic1"}`,
			mock: func(m *apimock.MockOrchestrator) {
				m.On("Submit", mock.Anything, mock.Anything).Once().Return("", fmt.Errorf("prompt is required: %w", model.ErrNotValid))
			},
			expCode: http.StatusBadRequest,
			expBody: `{"error":"prompt is required: not valid"}`,
		},

		"Submitting a task while shutting down should return service unavailable.": {
			method: http.MethodPost,
			path:   "/api/v1/tasks",
			user:   "user1",
			body:   `{"topic_id":"topic1","prompt":"hello"}`,
			mock: func(m *apimock.MockOrchestrator) {
				m.On("Submit", mock.Anything, mock.Anything).Once().Return("", fmt.Errorf("orchestrator not accepting tasks: %w", model.ErrShuttingDown))
			},
			expCode: http.StatusServiceUnavailable,
			expBody: `{"error":"orchestrator not accepting tasks: shutting down"}`,
		},

		"Submitting malformed JSON should return a bad request.": {
			method:  http.MethodPost,
			path:    "/api/v1/tasks",
			user:    "user1",
			body:    `{`,
			mock:    func(m *apimock.MockOrchestrator) {},
			expCode: http.StatusBadRequest,
		},

		"Getting a task should return the task.": {
			method: http.MethodGet,
			path:   "/api/v1/tasks/task1",
			user:   "user1",
			mock: func(m *apimock.MockOrchestrator) {
				m.On("GetTask", mock.Anything, "user1", "task1").Once().Return(&model.Task{
					ID: "task1", TopicID: "topic1", UserID: "user1", Prompt: "p", Instruction: model.InstructionNormal,
					Status: model.TaskStatusRunning, TaskMode: model.TaskModeChat,
					CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				}, nil)
			},
			expCode: http.StatusOK,
			expBody: `{"id":"task1","topic_id":"topic1","user_id":"user1","prompt":"p","instruction":"normal","status":"running","task_mode":"chat","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}`,
		},

		"Getting a missing task should return not found.": {
			method: http.MethodGet,
			path:   "/api/v1/tasks/task1",
			user:   "user1",
			mock: func(m *apimock.MockOrchestrator) {
				m.On("GetTask", mock.Anything, "user1", "task1").Once().Return(nil, model.ErrNotFound)
			},
			expCode: http.StatusNotFound,
			expBody: `{"error":"not found"}`,
		},

		"Interrupting a task should be accepted.": {
			method: http.MethodPost,
			path:   "/api/v1/tasks/task1/interrupt",
			user:   "user1",
			mock: func(m *apimock.MockOrchestrator) {
				m.On("Interrupt", mock.Anything, orchestrate.InterruptRequest{UserID: "user1", TaskID: "task1"}).Once().Return(nil)
			},
			expCode: http.StatusAccepted,
		},

		"Inbound frames should be handed to the orchestrator.": {
			method: http.MethodPost,
			path:   "/api/v1/callback/frames",
			body:   `{"metadata":{"sandbox_id":"sb1"}}`,
			mock: func(m *apimock.MockOrchestrator) {
				m.On("HandleInboundFrame", mock.Anything, []byte(`{"metadata":{"sandbox_id":"sb1"}}`)).Once().Return(nil)
			},
			expCode: http.StatusAccepted,
		},

		"Inbound frames on a delivery conflict should return a conflict.": {
			method: http.MethodPost,
			path:   "/api/v1/callback/frames",
			body:   `{}`,
			mock: func(m *apimock.MockOrchestrator) {
				m.On("HandleInboundFrame", mock.Anything, mock.Anything).Once().Return(model.ErrConcurrentDelivery)
			},
			expCode: http.StatusConflict,
		},

		"Unexpected errors should not leak.": {
			method: http.MethodPost,
			path:   "/api/v1/callback/frames",
			body:   `{}`,
			mock: func(m *apimock.MockOrchestrator) {
				m.On("HandleInboundFrame", mock.Anything, mock.Anything).Once().Return(fmt.Errorf("db is on fire"))
			},
			expCode: http.StatusInternalServerError,
			expBody: `{"error":"internal error"}`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := apimock.NewMockOrchestrator(t)
			test.mock(m)

			h, err := api.NewHandler(api.HandlerConfig{Orchestrator: m})
			require.NoError(err)

			req := httptest.NewRequest(test.method, test.path, strings.NewReader(test.body))
			if test.user != "" {
				req.Header.Set(api.UserIDHeader, test.user)
			}
			for k, v := range test.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(test.expCode, rec.Code)
			if test.expBody != "" {
				assert.JSONEq(test.expBody, rec.Body.String())
			}
		})
	}
}

type staticEvents struct {
	topicID string
	envs    []notify.Envelope
}

func (s staticEvents) Subscribe(ctx context.Context, topicID string) <-chan notify.Envelope {
	ch := make(chan notify.Envelope, len(s.envs))
	if topicID == s.topicID {
		for _, env := range s.envs {
			ch <- env
		}
	}
	close(ch)
	return ch
}

func TestHandlerStreamEvents(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	events := staticEvents{
		topicID: "topic1",
		envs: []notify.Envelope{
			{MessageID: "m1", Seq: 1, TopicID: "topic1", Type: protocol.MessageTypeMessage, Content: "hi"},
			{MessageID: "m2", Seq: 2, TopicID: "topic1", Type: protocol.MessageTypeFinished, Status: protocol.StatusFinished},
		},
	}
	h, err := api.NewHandler(api.HandlerConfig{Orchestrator: apimock.NewMockOrchestrator(t), Events: events})
	require.NoError(err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/topics/topic1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(err)
	defer conn.Close()

	var got []notify.Envelope
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		env := notify.Envelope{}
		require.NoError(json.Unmarshal(data, &env))
		got = append(got, env)
	}

	require.Len(got, 2)
	assert.Equal("m1", got[0].MessageID)
	assert.Equal(int64(2), got[1].Seq)
	assert.Equal(protocol.MessageTypeFinished, got[1].Type)
}
