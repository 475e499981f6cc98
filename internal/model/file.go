package model

import (
	"path"
	"strings"
	"time"
)

// FileSource is where a file record came from.
type FileSource string

const (
	FileSourceAgent FileSource = "agent"
	FileSourceUser  FileSource = "user"
)

// File is the durable record of an object storage file or directory.
type File struct {
	ID               string
	TopicID          string
	TaskID           string
	UserID           string
	OrganizationCode string
	FileKey          string
	FileName         string
	FileExtension    string
	FileSize         int64
	ParentID         string
	IsDirectory      bool
	Source           FileSource
	CreatedAt        time.Time
}

// DirKey returns the key of the directory that contains fileKey. Directory
// keys always end with a slash, the root returns empty.
func DirKey(fileKey string) string {
	dir := path.Dir(strings.TrimSuffix(fileKey, "/"))
	if dir == "." || dir == "/" || dir == "" {
		return ""
	}
	return dir + "/"
}
