package httpstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/objectstore"
)

// StoreConfig is the configuration for the HTTP store.
type StoreConfig struct {
	// BaseURL is where objects are served from, the key is appended as path.
	BaseURL       string
	Headers       map[string]string
	Timeout       time.Duration
	MaxObjectSize int64
	// HTTPClient is the underlying HTTP client, mainly for tests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxObjectSize <= 0 {
		c.MaxObjectSize = objectstore.DefaultMaxObjectSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "objectstore.HTTP"})
	return nil
}

// Store is an objectstore.Store for objects served over plain HTTP (e.g a CDN
// or a public bucket).
type Store struct {
	client  *resty.Client
	baseURL string
	maxSize int64
	logger  log.Logger
}

// NewStore returns a new HTTP store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := resty.NewWithClient(cfg.HTTPClient).
		SetTimeout(cfg.Timeout).
		SetHeaders(cfg.Headers)

	return &Store{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		maxSize: cfg.MaxObjectSize,
		logger:  cfg.Logger,
	}, nil
}

// Fetch satisfies objectstore.Store interface.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	u, _ := s.URL(ctx, key)
	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u)
	if err != nil {
		return nil, fmt.Errorf("could not get object: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("object %s: %w", key, model.ErrNotFound)
	case resp.IsError():
		return nil, fmt.Errorf("get object failed with status %d", resp.StatusCode())
	}

	return objectstore.ReadLimited(body, s.maxSize)
}

// URL satisfies objectstore.Store interface.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	return s.baseURL + "/" + strings.TrimPrefix(key, "/"), nil
}

var _ objectstore.Store = &Store{}
