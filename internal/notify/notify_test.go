package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/notify"
	"github.com/modernalchemist/magic-sub000/internal/notify/notifymock"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

func TestNotifierNotify(t *testing.T) {
	tests := map[string]struct {
		events  []notify.Event
		mock    func(m *notifymock.MockTransport)
		expSeqs []int64
	}{
		"Every event should be sent with a per topic sequence.": {
			events: []notify.Event{
				{TopicID: "t1", TaskID: "task1", Type: protocol.MessageTypeChat, Status: protocol.StatusRunning},
				{TopicID: "t1", TaskID: "task1", Type: protocol.MessageTypeFinished, Status: protocol.StatusFinished},
				{TopicID: "t2", TaskID: "task2", Type: protocol.MessageTypeError, Status: protocol.StatusError},
			},
			mock: func(m *notifymock.MockTransport) {
				m.On("Send", mock.Anything, mock.Anything).Once().Return(nil)
				m.On("Send", mock.Anything, mock.Anything).Once().Return(nil)
				m.On("Send", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expSeqs: []int64{1, 2, 1},
		},

		"Transport errors should not be propagated.": {
			events: []notify.Event{
				{TopicID: "t1", TaskID: "task1", Type: protocol.MessageTypeChat},
				{TopicID: "t1", TaskID: "task1", Type: protocol.MessageTypeChat},
			},
			mock: func(m *notifymock.MockTransport) {
				m.On("Send", mock.Anything, mock.Anything).Once().Return(errors.New("something"))
				m.On("Send", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expSeqs: []int64{1, 2},
		},

		"Transport panics should not be propagated.": {
			events: []notify.Event{
				{TopicID: "t1", TaskID: "task1", Type: protocol.MessageTypeChat},
				{TopicID: "t1", TaskID: "task1", Type: protocol.MessageTypeFinished},
			},
			mock: func(m *notifymock.MockTransport) {
				m.On("Send", mock.Anything, mock.Anything).Once().Run(func(mock.Arguments) { panic("boom") }).Return(nil)
				m.On("Send", mock.Anything, mock.Anything).Once().Return(nil)
			},
			expSeqs: []int64{1, 2},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := notifymock.NewMockTransport(t)
			test.mock(m)

			n, err := notify.NewNotifier(notify.NotifierConfig{Transport: m})
			require.NoError(err)

			for _, ev := range test.events {
				n.Notify(context.TODO(), ev)
			}

			var gotSeqs []int64
			ids := map[string]bool{}
			for i, call := range m.Calls {
				env := call.Arguments.Get(1).(notify.Envelope)
				gotSeqs = append(gotSeqs, env.Seq)
				ids[env.MessageID] = true
				assert.Equal(test.events[i].TaskID, env.TaskID)
				assert.Equal(test.events[i].Type, env.Type)
				assert.False(env.SendTime.IsZero())
			}
			assert.Equal(test.expSeqs, gotSeqs)
			assert.Len(ids, len(test.events), "message ids must be unique")
		})
	}
}

func TestNewNotifierRequiresTransport(t *testing.T) {
	_, err := notify.NewNotifier(notify.NotifierConfig{})
	assert.Error(t, err)
}

func TestMultiTransportSend(t *testing.T) {
	assert := assert.New(t)

	env := notify.Envelope{MessageID: "m1"}
	ok := notifymock.NewMockTransport(t)
	ok.On("Send", mock.Anything, env).Once().Return(nil)
	failing := notifymock.NewMockTransport(t)
	failing.On("Send", mock.Anything, env).Once().Return(errors.New("boom"))
	last := notifymock.NewMockTransport(t)
	last.On("Send", mock.Anything, env).Once().Return(nil)

	err := notify.MultiTransport{ok, failing, last}.Send(context.TODO(), env)
	assert.ErrorContains(err, "boom")
}
