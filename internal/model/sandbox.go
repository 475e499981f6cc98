package model

import "time"

// SandboxState is the state of a sandbox as reported by the sandbox gateway.
type SandboxState string

const (
	SandboxStateRunning  SandboxState = "running"
	SandboxStatePending  SandboxState = "pending"
	SandboxStateExited   SandboxState = "exited"
	SandboxStateNotFound SandboxState = "not_found"
	SandboxStateUnknown  SandboxState = "unknown"
)

// UploadCredential are the temporary object storage credentials handed to the agent
// so it can upload the files it produces.
type UploadCredential struct {
	Platform        string
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Dir             string
	ExpiresAt       time.Time
}
