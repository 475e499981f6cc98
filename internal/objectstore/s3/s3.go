package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/objectstore"
)

// StoreConfig is the configuration for the S3 store.
type StoreConfig struct {
	Bucket string
	Region string
	// Endpoint is used for S3 compatible services (e.g: minio, OSS, TOS).
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool
	// URLExpiry is the lifetime of the presigned URLs.
	URLExpiry     time.Duration
	MaxObjectSize int64
	// HTTPClient is the underlying HTTP client, mainly for tests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.URLExpiry <= 0 {
		c.URLExpiry = time.Hour
	}
	if c.MaxObjectSize <= 0 {
		c.MaxObjectSize = objectstore.DefaultMaxObjectSize
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "objectstore.S3"})
	return nil
}

// Store is an objectstore.Store backed by S3 (or an S3 compatible service).
type Store struct {
	client    *awss3.S3
	bucket    string
	urlExpiry time.Duration
	maxSize   int64
	logger    log.Logger
}

// NewStore returns a new S3 store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sess, err := NewSession(cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken, cfg.ForcePathStyle, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}

	return &Store{
		client:    awss3.New(sess),
		bucket:    cfg.Bucket,
		urlExpiry: cfg.URLExpiry,
		maxSize:   cfg.MaxObjectSize,
		logger:    cfg.Logger,
	}, nil
}

// NewSession returns an AWS session. Without static credentials the default
// credential chain is used (env, shared config, instance role...).
func NewSession(region, endpoint, accessKeyID, secretAccessKey, sessionToken string, forcePathStyle bool, httpClient *http.Client) (*session.Session, error) {
	awsCfg := aws.NewConfig().
		WithRegion(region).
		WithS3ForcePathStyle(forcePathStyle)
	if endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint)
		if strings.HasPrefix(endpoint, "http://") {
			awsCfg = awsCfg.WithDisableSSL(true)
		}
	}
	if accessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(accessKeyID, secretAccessKey, sessionToken))
	}
	if httpClient != nil {
		awsCfg = awsCfg.WithHTTPClient(httpClient)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("could not create aws session: %w", err)
	}

	return sess, nil
}

// Fetch satisfies objectstore.Store interface.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > s.maxSize {
		return nil, fmt.Errorf("object %s has %d bytes, max is %d", key, *out.ContentLength, s.maxSize)
	}

	return objectstore.ReadLimited(out.Body, s.maxSize)
}

// URL satisfies objectstore.Store interface. Returns a presigned URL.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	req, _ := s.client.GetObjectRequest(&awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(s.urlExpiry)
	if err != nil {
		return "", fmt.Errorf("could not presign object %s: %w", key, err)
	}

	return u, nil
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}

	var aErr awserr.Error
	if errors.As(err, &aErr) {
		switch aErr.Code() {
		case awss3.ErrCodeNoSuchKey, awss3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}

	return false
}

var _ objectstore.Store = &Store{}
