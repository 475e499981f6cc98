package credential

import (
	"context"
	"path"
	"strings"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

// IssueRequest is the request to issue upload credentials for a topic workspace.
type IssueRequest struct {
	OrganizationCode string
	UserID           string
	TopicID          string
}

// Issuer issues temporary upload credentials for the agents.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (model.UploadCredential, error)
}

// Dir returns the object storage directory where the agent of a topic uploads its files.
func Dir(prefix string, req IssueRequest) string {
	parts := []string{strings.Trim(prefix, "/")}
	for _, p := range []string{req.OrganizationCode, req.UserID, req.TopicID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.TrimPrefix(path.Join(parts...), "/") + "/"
}
