package attachment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/objectstore"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

// FinishToolName is the name of the tool synthesized with the output artifact of a finished task.
const FinishToolName = "finish_task"

const browserToolName = "browser"

// ServiceConfig is the configuration for the attachment service.
type ServiceConfig struct {
	Repository  storage.FileRepository
	ObjectStore objectstore.Store
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.ObjectStore == nil {
		return fmt.Errorf("object store is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Attachment"})
	return nil
}

// Service resolves the attachments of the agent frames into durable file records.
type Service struct {
	repo      storage.FileRepository
	store     objectstore.Store
	logger    log.Logger
	newIDFn   func() string
	timeNowFn func() time.Time
}

// NewService returns a new attachment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		store:     cfg.ObjectStore,
		logger:    cfg.Logger,
		newIDFn:   func() string { return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() },
		timeNowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Process resolves every attachment into a file record and returns the attachments
// stamped with their file IDs. Attachments that can't be resolved are returned
// untouched, a bad attachment never fails the batch.
func (s *Service) Process(ctx context.Context, atts []protocol.Attachment, tc model.TaskContext) []protocol.Attachment {
	if len(atts) == 0 {
		return atts
	}

	logger := s.logger.WithValues(log.Kv{"task_id": tc.Task.ID, "topic_id": tc.Task.TopicID})
	res := make([]protocol.Attachment, 0, len(atts))
	for _, a := range atts {
		fileID, err := s.processOne(ctx, a, tc)
		if err != nil {
			logger.Warningf("Skipping attachment %q: %s", a.FileKey, err)
			res = append(res, a)
			continue
		}

		a.FileID = fileID
		res = append(res, a)
	}

	return res
}

// ProcessTool processes the tool attachments. For browser tools the file ID is
// backfilled on the tool detail when it only names the file key.
func (s *Service) ProcessTool(ctx context.Context, tool *protocol.Tool, tc model.TaskContext) {
	if tool == nil {
		return
	}

	tool.Attachments = s.Process(ctx, tool.Attachments, tc)

	if tool.Name == browserToolName {
		backfillFileID(tool.Detail, tool.Attachments)
		if data, ok := tool.Detail["data"].(map[string]any); ok {
			backfillFileID(data, tool.Attachments)
		}
	}
}

func backfillFileID(detail map[string]any, atts []protocol.Attachment) {
	if detail == nil {
		return
	}

	for _, keys := range [][2]string{{"file_key", "file_id"}, {"fileKey", "fileId"}} {
		fileKey, _ := detail[keys[0]].(string)
		if fileKey == "" {
			continue
		}
		if id, _ := detail[keys[1]].(string); id != "" {
			continue
		}
		for _, a := range atts {
			if a.FileKey == fileKey && a.FileID != "" {
				detail[keys[1]] = a.FileID
				break
			}
		}
	}
}

func (s *Service) processOne(ctx context.Context, a protocol.Attachment, tc model.TaskContext) (string, error) {
	if !a.HasRequiredFields() {
		return "", fmt.Errorf("missing file key, extension or name: %w", model.ErrAttachmentProcessing)
	}

	parentID := ""
	if dirKey := model.DirKey(a.FileKey); dirKey != "" {
		dir, err := s.getOrCreate(ctx, model.File{
			TopicID:          tc.Task.TopicID,
			TaskID:           tc.Task.ID,
			UserID:           tc.Task.UserID,
			OrganizationCode: tc.Task.OrganizationCode,
			FileKey:          dirKey,
			FileName:         path.Base(dirKey),
			IsDirectory:      true,
			Source:           model.FileSourceAgent,
		})
		if err != nil {
			return "", fmt.Errorf("could not resolve directory %q: %w: %w", dirKey, model.ErrAttachmentProcessing, err)
		}
		parentID = dir.ID
	}

	f, err := s.getOrCreate(ctx, model.File{
		TopicID:          tc.Task.TopicID,
		TaskID:           tc.Task.ID,
		UserID:           tc.Task.UserID,
		OrganizationCode: tc.Task.OrganizationCode,
		FileKey:          a.FileKey,
		FileName:         a.FileName,
		FileExtension:    a.Extension(),
		FileSize:         a.FileSize,
		ParentID:         parentID,
		Source:           model.FileSourceAgent,
	})
	if err != nil {
		return "", fmt.Errorf("could not resolve file: %w: %w", model.ErrAttachmentProcessing, err)
	}

	return f.ID, nil
}

// getOrCreate returns the file record with the same key or creates it. When a
// concurrent creation wins, the winner record is returned.
func (s *Service) getOrCreate(ctx context.Context, f model.File) (*model.File, error) {
	existing, err := s.repo.GetFileByKey(ctx, f.FileKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	f.ID = s.newIDFn()
	f.CreatedAt = s.timeNowFn()
	err = s.repo.CreateFile(ctx, f)
	if err == nil {
		return &f, nil
	}
	if !errors.Is(err, model.ErrAlreadyExists) {
		return nil, err
	}

	return s.repo.GetFileByKey(ctx, f.FileKey)
}

// ResolveURLs sets the download URL of the attachments that don't have one.
func (s *Service) ResolveURLs(ctx context.Context, atts []protocol.Attachment) []protocol.Attachment {
	res := make([]protocol.Attachment, 0, len(atts))
	for _, a := range atts {
		if a.FileURL == "" && a.FileKey != "" {
			u, err := s.store.URL(ctx, a.FileKey)
			if err != nil {
				s.logger.Warningf("Could not resolve URL of %q: %s", a.FileKey, err)
			} else {
				a.FileURL = u
			}
		}
		res = append(res, a)
	}
	return res
}

// SelectOutput picks the artifact that represents the output of a finished task.
// HTML files are preferred over markdown ones. Inside the chosen extension, names
// with "final" or "report" win, ties and no matches are decided by size.
func SelectOutput(atts []protocol.Attachment) (protocol.Attachment, bool) {
	for _, ext := range []string{"html", "md"} {
		var best, bestKeyword *protocol.Attachment
		for i := range atts {
			a := &atts[i]
			if a.Extension() != ext {
				continue
			}
			if best == nil || a.FileSize > best.FileSize {
				best = a
			}
			if hasOutputKeyword(a.FileName) && (bestKeyword == nil || a.FileSize > bestKeyword.FileSize) {
				bestKeyword = a
			}
		}

		switch {
		case bestKeyword != nil:
			return *bestKeyword, true
		case best != nil:
			return *best, true
		}
	}

	return protocol.Attachment{}, false
}

func hasOutputKeyword(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "final") || strings.Contains(name, "report")
}

// FinishTool fetches the content of the output artifact and returns the tool
// that displays it.
func (s *Service) FinishTool(ctx context.Context, a protocol.Attachment) (*protocol.Tool, error) {
	content, err := s.store.Fetch(ctx, a.FileKey)
	if err != nil {
		return nil, fmt.Errorf("could not fetch output %q: %w: %w", a.FileKey, model.ErrAttachmentProcessing, err)
	}

	contentType := "text"
	switch a.Extension() {
	case "html":
		contentType = "html"
	case "md":
		contentType = "md"
	}

	return &protocol.Tool{
		ID:     s.newIDFn(),
		Name:   FinishToolName,
		Action: "Finished the task",
		Status: string(protocol.StatusFinished),
		Remark: a.FileName,
		Detail: map[string]any{
			"type": contentType,
			"data": map[string]any{
				"file_name": a.FileName,
				"file_id":   a.FileID,
				"content":   string(content),
			},
		},
		Attachments: []protocol.Attachment{a},
	}, nil
}
