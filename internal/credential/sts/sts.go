package sts

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssts "github.com/aws/aws-sdk-go/service/sts"
	jsoniter "github.com/json-iterator/go"

	"github.com/modernalchemist/magic-sub000/internal/credential"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/objectstore/s3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IssuerConfig is the configuration for the STS issuer.
type IssuerConfig struct {
	RoleARN string
	Bucket  string
	Region  string
	// Endpoint is the object storage endpoint handed to the agent.
	Endpoint string
	// STSEndpoint is used for STS compatible services.
	STSEndpoint     string
	AccessKeyID     string
	SecretAccessKey string
	DirPrefix       string
	Duration        time.Duration
	// HTTPClient is the underlying HTTP client, mainly for tests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *IssuerConfig) defaults() error {
	if c.RoleARN == "" {
		return fmt.Errorf("role arn is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Duration == 0 {
		c.Duration = time.Hour
	}
	if c.Duration < 15*time.Minute {
		return fmt.Errorf("duration can't be less than 15m")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "credential.STS"})
	return nil
}

// Issuer issues credentials assuming a role with a session policy that only
// allows writing in the topic directory.
type Issuer struct {
	client *awssts.STS
	cfg    IssuerConfig
	logger log.Logger
}

// NewIssuer returns a new STS issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sess, err := s3.NewSession(cfg.Region, cfg.STSEndpoint, cfg.AccessKeyID, cfg.SecretAccessKey, "", false, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}

	return &Issuer{
		client: awssts.New(sess),
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Issue satisfies credential.Issuer interface.
func (i *Issuer) Issue(ctx context.Context, req credential.IssueRequest) (model.UploadCredential, error) {
	dir := credential.Dir(i.cfg.DirPrefix, req)
	policy, err := sessionPolicy(i.cfg.Bucket, dir)
	if err != nil {
		return model.UploadCredential{}, err
	}

	out, err := i.client.AssumeRoleWithContext(ctx, &awssts.AssumeRoleInput{
		RoleArn:         aws.String(i.cfg.RoleARN),
		RoleSessionName: aws.String(sessionName(req)),
		DurationSeconds: aws.Int64(int64(i.cfg.Duration / time.Second)),
		Policy:          aws.String(policy),
	})
	if err != nil {
		return model.UploadCredential{}, fmt.Errorf("could not assume role: %w", err)
	}
	if out.Credentials == nil {
		return model.UploadCredential{}, fmt.Errorf("assume role returned no credentials")
	}

	i.logger.Debugf("Issued upload credentials for %s", dir)

	return model.UploadCredential{
		Platform:        "aws",
		Region:          i.cfg.Region,
		Bucket:          i.cfg.Bucket,
		Endpoint:        i.cfg.Endpoint,
		AccessKeyID:     aws.StringValue(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.StringValue(out.Credentials.SecretAccessKey),
		SessionToken:    aws.StringValue(out.Credentials.SessionToken),
		Dir:             dir,
		ExpiresAt:       aws.TimeValue(out.Credentials.Expiration),
	}, nil
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

func sessionPolicy(bucket, dir string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:   "Allow",
			Action:   []string{"s3:PutObject", "s3:GetObject", "s3:AbortMultipartUpload"},
			Resource: []string{fmt.Sprintf("arn:aws:s3:::%s/%s*", bucket, dir)},
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("could not marshal session policy: %w", err)
	}
	return string(data), nil
}

// sessionName returns a valid role session name ([\w+=,.@-]{2,64}).
func sessionName(req credential.IssueRequest) string {
	name := "magic-" + req.TopicID
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune("+=,.@-_", r):
			return r
		}
		return '-'
	}, name)
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

var _ credential.Issuer = &Issuer{}
