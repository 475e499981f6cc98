package model_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

func TestTaskStatusCanTransitionTo(t *testing.T) {
	tests := map[string]struct {
		from model.TaskStatus
		to   model.TaskStatus
		exp  bool
	}{
		"Waiting to running should be allowed.":       {from: model.TaskStatusWaiting, to: model.TaskStatusRunning, exp: true},
		"Waiting to error should be allowed.":         {from: model.TaskStatusWaiting, to: model.TaskStatusError, exp: true},
		"Running to finished should be allowed.":      {from: model.TaskStatusRunning, to: model.TaskStatusFinished, exp: true},
		"Running to running should be allowed.":       {from: model.TaskStatusRunning, to: model.TaskStatusRunning, exp: true},
		"Running to waiting should not be allowed.":   {from: model.TaskStatusRunning, to: model.TaskStatusWaiting, exp: false},
		"Finished to finished should be allowed.":     {from: model.TaskStatusFinished, to: model.TaskStatusFinished, exp: true},
		"Finished to error should not be allowed.":    {from: model.TaskStatusFinished, to: model.TaskStatusError, exp: false},
		"Suspended to running should not be allowed.": {from: model.TaskStatusSuspended, to: model.TaskStatusRunning, exp: false},
		"Error to suspended should not be allowed.":   {from: model.TaskStatusError, to: model.TaskStatusSuspended, exp: false},
		"Unknown target should not be allowed.":       {from: model.TaskStatusRunning, to: "whatever", exp: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.from.CanTransitionTo(test.to))
		})
	}
}

func TestTaskValidate(t *testing.T) {
	tests := map[string]struct {
		task   model.Task
		expErr bool
	}{
		"A valid task should not fail.": {
			task: model.Task{TopicID: "t1", UserID: "u1", Prompt: "hello", Status: model.TaskStatusWaiting},
		},
		"Missing topic should fail.": {
			task:   model.Task{UserID: "u1", Prompt: "hello", Status: model.TaskStatusWaiting},
			expErr: true,
		},
		"Missing prompt should fail.": {
			task:   model.Task{TopicID: "t1", UserID: "u1", Status: model.TaskStatusWaiting},
			expErr: true,
		},
		"Invalid status should fail.": {
			task:   model.Task{TopicID: "t1", UserID: "u1", Prompt: "hello", Status: "wrong"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.task.Validate()
			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDirKey(t *testing.T) {
	tests := map[string]struct {
		fileKey string
		exp     string
	}{
		"Nested file should return its directory.": {fileKey: "org/topic/report.html", exp: "org/topic/"},
		"Root file should return empty.":           {fileKey: "report.html", exp: ""},
		"Directory key should return its parent.":  {fileKey: "org/topic/", exp: "org/"},
		"Absolute key should keep the slash.":      {fileKey: "/org/a.md", exp: "/org/"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, model.DirKey(test.fileKey))
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := map[string]struct {
		err error
		exp bool
	}{
		"Nil should not be fatal.":                    {err: nil, exp: false},
		"Wrapped transport error should be fatal.":    {err: fmt.Errorf("read: %w", model.ErrFatalTransport), exp: true},
		"Deadline should be fatal.":                   {err: context.DeadlineExceeded, exp: true},
		"Attachment errors should not be fatal.":      {err: fmt.Errorf("x: %w", model.ErrAttachmentProcessing), exp: false},
		"Concurrent delivery should not be fatal.":    {err: model.ErrConcurrentDelivery, exp: false},
		"Handshake violation should be fatal.":        {err: model.ErrHandshakeProtocolViolation, exp: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, model.IsFatal(test.err))
		})
	}
}
