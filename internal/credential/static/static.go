package static

import (
	"context"
	"fmt"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/credential"
	"github.com/modernalchemist/magic-sub000/internal/model"
)

// IssuerConfig is the configuration for the static issuer.
type IssuerConfig struct {
	Platform        string
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	DirPrefix       string
}

func (c *IssuerConfig) defaults() error {
	if c.Platform == "" {
		c.Platform = "local"
	}
	return nil
}

// Issuer hands the same long lived credentials to every agent. Only for local
// or single tenant deployments.
type Issuer struct {
	cfg IssuerConfig
}

// NewIssuer returns a new static issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue satisfies credential.Issuer interface.
func (i *Issuer) Issue(_ context.Context, req credential.IssueRequest) (model.UploadCredential, error) {
	return model.UploadCredential{
		Platform:        i.cfg.Platform,
		Region:          i.cfg.Region,
		Bucket:          i.cfg.Bucket,
		Endpoint:        i.cfg.Endpoint,
		AccessKeyID:     i.cfg.AccessKeyID,
		SecretAccessKey: i.cfg.SecretAccessKey,
		Dir:             credential.Dir(i.cfg.DirPrefix, req),
		ExpiresAt:       time.Time{},
	}, nil
}

var _ credential.Issuer = &Issuer{}
