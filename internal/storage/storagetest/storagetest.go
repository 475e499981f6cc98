// Package storagetest has the behavior tests that every storage.Repository implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

// TaskFixture returns a valid waiting task.
func TaskFixture(id, topicID, userID string, createdAt time.Time) model.Task {
	return model.Task{
		ID:          id,
		TopicID:     topicID,
		UserID:      userID,
		Prompt:      "build me a report",
		Attachments: "[]",
		Instruction: model.InstructionNormal,
		Status:      model.TaskStatusWaiting,
		WorkDir:     "/workspace",
		TaskMode:    model.TaskModeChat,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// TopicFixture returns a valid topic.
func TopicFixture(id, userID string) model.Topic {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Topic{
		ID:                 id,
		UserID:             userID,
		OrganizationCode:   "org1",
		ChatConversationID: "conv-" + id,
		ChatTopicID:        "chat-topic-" + id,
		AgentUserID:        "agent1",
		WorkspaceID:        "ws1",
		WorkDir:            "/workspace",
		TaskMode:           model.TaskModeChat,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// RunRepositoryTests runs the behavior tests against the repositories returned by newRepo,
// every call must return a new empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("Tasks", func(t *testing.T) { testTasks(t, newRepo) })
	t.Run("TaskStatus", func(t *testing.T) { testTaskStatus(t, newRepo) })
	t.Run("Topics", func(t *testing.T) { testTopics(t, newRepo) })
	t.Run("Files", func(t *testing.T) { testFiles(t, newRepo) })
}

func testTasks(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	base := time.Now().UTC().Truncate(time.Second)

	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating and getting a task should work.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("task1", "topic1", "user1", base)
				require.NoError(t, repo.CreateTask(ctx, task))

				got, err := repo.GetTask(ctx, "task1")
				require.NoError(t, err)
				assert.Equal(t, task, *got)
			},
		},

		"Creating a duplicated task should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				task := TaskFixture("task1", "topic1", "user1", base)
				require.NoError(t, repo.CreateTask(ctx, task))
				err := repo.CreateTask(ctx, task)
				assert.ErrorIs(t, err, model.ErrAlreadyExists)
			},
		},

		"Getting a missing task should fail with not found.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				_, err := repo.GetTask(ctx, "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},

		"Updating the run of a task should not overwrite with empty values.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreateTask(ctx, TaskFixture("task1", "topic1", "user1", base)))
				require.NoError(t, repo.UpdateTaskRun(ctx, "task1", "sbx1", ""))
				require.NoError(t, repo.UpdateTaskRun(ctx, "task1", "", "ptask1"))

				got, err := repo.GetTask(ctx, "task1")
				require.NoError(t, err)
				assert.Equal(t, "sbx1", got.SandboxID)
				assert.Equal(t, "ptask1", got.ProtocolTaskID)
			},
		},

		"Updating the run of a missing task should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				err := repo.UpdateTaskRun(ctx, "missing", "sbx1", "")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},

		"Listing tasks should filter and sort newest first.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				t1 := TaskFixture("task1", "topic1", "user1", base)
				t2 := TaskFixture("task2", "topic2", "user1", base.Add(time.Second))
				t3 := TaskFixture("task3", "topic3", "user2", base.Add(2*time.Second))
				for _, task := range []model.Task{t1, t2, t3} {
					require.NoError(t, repo.CreateTask(ctx, task))
				}
				_, err := repo.UpdateTaskStatus(ctx, "task2", model.TaskStatusRunning, "")
				require.NoError(t, err)

				got, err := repo.ListTasks(ctx, storage.ListTasksOpts{UserID: "user1"})
				require.NoError(t, err)
				require.Len(t, got, 2)
				assert.Equal(t, "task2", got[0].ID)
				assert.Equal(t, "task1", got[1].ID)

				got, err = repo.ListTasks(ctx, storage.ListTasksOpts{UserID: "user1", Statuses: []model.TaskStatus{model.TaskStatusRunning}})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "task2", got[0].ID)

				got, err = repo.ListTasks(ctx, storage.ListTasksOpts{Limit: 1})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "task3", got[0].ID)

				got, err = repo.ListTasks(ctx, storage.ListTasksOpts{TopicID: "topic9"})
				require.NoError(t, err)
				assert.Empty(t, got)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newRepo(t))
		})
	}
}

func testTaskStatus(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	type write struct {
		status     model.TaskStatus
		errMsg     string
		expChanged bool
	}

	tests := map[string]struct {
		currentTask bool
		writes      []write
		expStatus   model.TaskStatus
		expErrMsg   string
	}{
		"Regular flow should update the status.": {
			currentTask: true,
			writes: []write{
				{status: model.TaskStatusRunning, expChanged: true},
				{status: model.TaskStatusFinished, expChanged: true},
			},
			expStatus: model.TaskStatusFinished,
		},

		"Repeated statuses should be idempotent.": {
			currentTask: true,
			writes: []write{
				{status: model.TaskStatusRunning, expChanged: true},
				{status: model.TaskStatusRunning, expChanged: false},
				{status: model.TaskStatusRunning, expChanged: false},
			},
			expStatus: model.TaskStatusRunning,
		},

		"Terminal statuses should not be overwritten.": {
			currentTask: true,
			writes: []write{
				{status: model.TaskStatusRunning, expChanged: true},
				{status: model.TaskStatusSuspended, expChanged: true},
				{status: model.TaskStatusRunning, expChanged: false},
				{status: model.TaskStatusError, errMsg: "late", expChanged: false},
				{status: model.TaskStatusFinished, expChanged: false},
			},
			expStatus: model.TaskStatusSuspended,
		},

		"Error status should store the message.": {
			currentTask: true,
			writes: []write{
				{status: model.TaskStatusError, errMsg: "task timeout", expChanged: true},
			},
			expStatus: model.TaskStatusError,
			expErrMsg: "task timeout",
		},

		"Tasks that are not the current topic task should not update the topic.": {
			currentTask: false,
			writes: []write{
				{status: model.TaskStatusRunning, expChanged: true},
			},
			expStatus: model.TaskStatusRunning,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			topic := TopicFixture("topic1", "user1")
			if test.currentTask {
				topic.CurrentTaskID = "task1"
				topic.CurrentTaskStatus = model.TaskStatusWaiting
			}
			require.NoError(t, repo.CreateTopic(ctx, topic))
			require.NoError(t, repo.CreateTask(ctx, TaskFixture("task1", "topic1", "user1", time.Now().UTC().Truncate(time.Second))))

			for _, w := range test.writes {
				changed, err := repo.UpdateTaskStatus(ctx, "task1", w.status, w.errMsg)
				require.NoError(t, err)
				assert.Equal(t, w.expChanged, changed, "write %s", w.status)
			}

			gotTask, err := repo.GetTask(ctx, "task1")
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, gotTask.Status)
			assert.Equal(t, test.expErrMsg, gotTask.ErrMessage)

			gotTopic, err := repo.GetTopic(ctx, "topic1")
			require.NoError(t, err)
			if test.currentTask {
				assert.Equal(t, test.expStatus, gotTopic.CurrentTaskStatus)
			} else {
				assert.Equal(t, model.TaskStatus(""), gotTopic.CurrentTaskStatus)
			}
		})
	}

	t.Run("Missing task should fail with not found.", func(t *testing.T) {
		_, err := newRepo(t).UpdateTaskStatus(context.Background(), "missing", model.TaskStatusRunning, "")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func testTopics(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating, updating and getting a topic should work.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				topic := TopicFixture("topic1", "user1")
				require.NoError(t, repo.CreateTopic(ctx, topic))

				task := TaskFixture("task1", "topic1", "user1", topic.CreatedAt)
				task.TaskMode = model.TaskModePlan
				require.NoError(t, repo.CreateTask(ctx, task))
				_, err := repo.UpdateTaskStatus(ctx, "task1", model.TaskStatusRunning, "")
				require.NoError(t, err)

				require.NoError(t, repo.SetTopicSandbox(ctx, "topic1", "sbx1"))
				require.NoError(t, repo.SetTopicCurrentTask(ctx, "topic1", "task1"))
				require.NoError(t, repo.SetTopicProjectArchive(ctx, "topic1", `{"key":"archive.zip"}`))

				got, err := repo.GetTopic(ctx, "topic1")
				require.NoError(t, err)
				topic.SandboxID = "sbx1"
				topic.CurrentTaskID = "task1"
				topic.CurrentTaskStatus = model.TaskStatusRunning
				topic.TaskMode = model.TaskModePlan
				topic.ProjectArchive = `{"key":"archive.zip"}`
				topic.UpdatedAt = got.UpdatedAt
				assert.Equal(t, topic, *got)
			},
		},

		"Setting a topic field should not overwrite the others.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				topic := TopicFixture("topic1", "user1")
				require.NoError(t, repo.CreateTopic(ctx, topic))
				require.NoError(t, repo.CreateTask(ctx, TaskFixture("task1", "topic1", "user1", topic.CreatedAt)))
				require.NoError(t, repo.SetTopicCurrentTask(ctx, "topic1", "task1"))

				// Status written while a sandbox is being bound.
				stale, err := repo.GetTopic(ctx, "topic1")
				require.NoError(t, err)
				_, err = repo.UpdateTaskStatus(ctx, "task1", model.TaskStatusSuspended, "interrupted")
				require.NoError(t, err)
				require.NoError(t, repo.SetTopicSandbox(ctx, stale.ID, "sbx1"))
				require.NoError(t, repo.SetTopicProjectArchive(ctx, stale.ID, "archive"))

				got, err := repo.GetTopic(ctx, "topic1")
				require.NoError(t, err)
				assert.Equal(t, "task1", got.CurrentTaskID)
				assert.Equal(t, model.TaskStatusSuspended, got.CurrentTaskStatus)
				assert.Equal(t, "sbx1", got.SandboxID)
				assert.Equal(t, "archive", got.ProjectArchive)
			},
		},

		"Setting a missing task as the current one should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				require.NoError(t, repo.CreateTopic(ctx, TopicFixture("topic1", "user1")))
				err := repo.SetTopicCurrentTask(ctx, "topic1", "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},

		"Creating a duplicated topic should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				topic := TopicFixture("topic1", "user1")
				require.NoError(t, repo.CreateTopic(ctx, topic))
				assert.ErrorIs(t, repo.CreateTopic(ctx, topic), model.ErrAlreadyExists)
			},
		},

		"Updating a missing topic should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				assert.ErrorIs(t, repo.SetTopicSandbox(ctx, "missing", "sbx1"), model.ErrNotFound)
				assert.ErrorIs(t, repo.SetTopicProjectArchive(ctx, "missing", "archive"), model.ErrNotFound)
				assert.ErrorIs(t, repo.SetTopicCurrentTask(ctx, "missing", "task1"), model.ErrNotFound)
			},
		},

		"Getting a missing topic should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				_, err := repo.GetTopic(ctx, "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newRepo(t))
		})
	}
}

func testFiles(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	now := time.Now().UTC().Truncate(time.Second)

	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo storage.Repository)
	}{
		"Creating and getting a file by key should work.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				dir := model.File{ID: "dir1", TopicID: "topic1", UserID: "user1", FileKey: "org/topic1/", FileName: "topic1", IsDirectory: true, Source: model.FileSourceAgent, CreatedAt: now}
				f := model.File{ID: "f1", TopicID: "topic1", TaskID: "task1", UserID: "user1", FileKey: "org/topic1/a.html", FileName: "a.html", FileExtension: "html", FileSize: 100, ParentID: "dir1", Source: model.FileSourceAgent, CreatedAt: now}
				require.NoError(t, repo.CreateFile(ctx, dir))
				require.NoError(t, repo.CreateFile(ctx, f))

				got, err := repo.GetFileByKey(ctx, "org/topic1/a.html")
				require.NoError(t, err)
				assert.Equal(t, f, *got)

				got, err = repo.GetFileByKey(ctx, "org/topic1/")
				require.NoError(t, err)
				assert.Equal(t, dir, *got)
			},
		},

		"Creating a file with an existing key should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				f := model.File{ID: "f1", FileKey: "k", FileName: "a.md", FileExtension: "md", CreatedAt: now}
				require.NoError(t, repo.CreateFile(ctx, f))
				f.ID = "f2"
				assert.ErrorIs(t, repo.CreateFile(ctx, f), model.ErrAlreadyExists)
			},
		},

		"Getting a missing file should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo storage.Repository) {
				_, err := repo.GetFileByKey(ctx, "missing")
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newRepo(t))
		})
	}
}
