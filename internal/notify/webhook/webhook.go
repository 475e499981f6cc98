package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/notify"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TransportConfig is the configuration for the webhook transport.
type TransportConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// HTTPClient is the underlying HTTP client, mainly for tests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *TransportConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Webhook"})
	return nil
}

// Transport is a notify.Transport that posts every envelope as JSON to the chat
// service.
type Transport struct {
	client *resty.Client
	url    string
	logger log.Logger
}

// NewTransport returns a new webhook transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := resty.NewWithClient(cfg.HTTPClient).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Transport{
		client: client,
		url:    cfg.URL,
		logger: cfg.Logger,
	}, nil
}

// Send satisfies notify.Transport interface.
func (t *Transport) Send(ctx context.Context, env notify.Envelope) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(env).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("could not post envelope: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("envelope post failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

var _ notify.Transport = &Transport{}
