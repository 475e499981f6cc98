package commands

import (
	"context"
	"fmt"

	"github.com/modernalchemist/magic-sub000/internal/app/attachment"
	"github.com/modernalchemist/magic-sub000/internal/app/lifecycle"
	"github.com/modernalchemist/magic-sub000/internal/app/orchestrate"
	"github.com/modernalchemist/magic-sub000/internal/config"
	"github.com/modernalchemist/magic-sub000/internal/credential"
	"github.com/modernalchemist/magic-sub000/internal/credential/static"
	"github.com/modernalchemist/magic-sub000/internal/credential/sts"
	"github.com/modernalchemist/magic-sub000/internal/dedupe"
	"github.com/modernalchemist/magic-sub000/internal/lock"
	lockmemory "github.com/modernalchemist/magic-sub000/internal/lock/memory"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/notify"
	notifymemory "github.com/modernalchemist/magic-sub000/internal/notify/memory"
	"github.com/modernalchemist/magic-sub000/internal/notify/webhook"
	"github.com/modernalchemist/magic-sub000/internal/objectstore"
	"github.com/modernalchemist/magic-sub000/internal/objectstore/httpstore"
	objmemory "github.com/modernalchemist/magic-sub000/internal/objectstore/memory"
	"github.com/modernalchemist/magic-sub000/internal/objectstore/s3"
	queuememory "github.com/modernalchemist/magic-sub000/internal/queue/memory"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
	"github.com/modernalchemist/magic-sub000/internal/sandbox/docker"
	sandboxfake "github.com/modernalchemist/magic-sub000/internal/sandbox/fake"
	"github.com/modernalchemist/magic-sub000/internal/sandbox/remote"
	"github.com/modernalchemist/magic-sub000/internal/session/ws"
	"github.com/modernalchemist/magic-sub000/internal/storage"
	storagememory "github.com/modernalchemist/magic-sub000/internal/storage/memory"
	"github.com/modernalchemist/magic-sub000/internal/storage/sqlite"
)

// services are the application services wired from the configuration.
type services struct {
	repo         storage.Repository
	orchestrator *orchestrate.Service
	events       *notifymemory.Broadcaster
	queue        *queuememory.Queue
	dedupe       *dedupe.Cache
	close        func() error
}

// newRepository returns the configured repository and the locker sharing its backend.
func newRepository(ctx context.Context, cfg config.Config, logger log.Logger) (storage.Repository, lock.Locker, func() error, error) {
	switch cfg.Database.Driver {
	case "memory":
		repo, err := storagememory.NewRepository(storagememory.RepositoryConfig{Logger: logger})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("could not create memory repository: %w", err)
		}
		return repo, lockmemory.NewLocker(), func() error { return nil }, nil
	default:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: cfg.Database.Path,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("could not create repository: %w", err)
		}
		return repo, repo, repo.Close, nil
	}
}

func newGateway(cfg config.Config, logger log.Logger) (sandbox.Gateway, error) {
	if !cfg.Sandbox.Enabled {
		return nil, nil
	}

	switch cfg.Sandbox.Gateway {
	case "docker":
		return docker.NewGateway(docker.GatewayConfig{
			Image:     cfg.Sandbox.Docker.Image,
			PullImage: cfg.Sandbox.Docker.PullImage,
			Network:   cfg.Sandbox.Docker.Network,
			AgentPort: cfg.Sandbox.Docker.AgentPort,
			Env:       cfg.Sandbox.Docker.Env,
			Logger:    logger,
		})
	case "remote":
		return remote.NewGateway(remote.GatewayConfig{
			BaseURL: cfg.Sandbox.Remote.BaseURL,
			Token:   cfg.Sandbox.Remote.Token,
			Timeout: cfg.Sandbox.Remote.Timeout,
			Logger:  logger,
		})
	default:
		logger.Warningf("Using fake sandbox gateway, agents are expected on the fake endpoints")
		return sandboxfake.NewGateway(sandboxfake.GatewayConfig{Logger: logger})
	}
}

func newObjectStore(cfg config.Config, logger log.Logger) (objectstore.Store, error) {
	c := cfg.ObjectStore
	switch c.Driver {
	case "s3":
		return s3.NewStore(s3.StoreConfig{
			Bucket:          c.Bucket,
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			ForcePathStyle:  c.ForcePathStyle,
			URLExpiry:       c.URLExpiry,
			MaxObjectSize:   c.MaxObjectSize,
			Logger:          logger,
		})
	case "http":
		return httpstore.NewStore(httpstore.StoreConfig{
			BaseURL:       c.BaseURL,
			MaxObjectSize: c.MaxObjectSize,
			Logger:        logger,
		})
	default:
		return objmemory.NewStore(), nil
	}
}

func newCredentialIssuer(cfg config.Config, logger log.Logger) (credential.Issuer, error) {
	c, o := cfg.Credentials, cfg.ObjectStore
	switch c.Driver {
	case "static":
		return static.NewIssuer(static.IssuerConfig{
			Region:          o.Region,
			Bucket:          o.Bucket,
			Endpoint:        o.Endpoint,
			AccessKeyID:     o.AccessKeyID,
			SecretAccessKey: o.SecretAccessKey,
			DirPrefix:       c.DirPrefix,
		})
	case "sts":
		return sts.NewIssuer(sts.IssuerConfig{
			RoleARN:         c.RoleARN,
			Bucket:          o.Bucket,
			Region:          o.Region,
			Endpoint:        o.Endpoint,
			STSEndpoint:     c.STSEndpoint,
			AccessKeyID:     o.AccessKeyID,
			SecretAccessKey: o.SecretAccessKey,
			DirPrefix:       c.DirPrefix,
			Duration:        c.Duration,
			Logger:          logger,
		})
	default:
		return nil, nil
	}
}

// newServices wires all the application services from the configuration.
func newServices(ctx context.Context, cfg config.Config, logger log.Logger) (*services, error) {
	repo, locker, closeRepo, err := newRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create sandbox gateway: %w", err)
	}

	lc, err := lifecycle.NewService(lifecycle.ServiceConfig{
		Gateway:        gw,
		NonSandboxMode: !cfg.Sandbox.Enabled,
		AgentEndpoint:  cfg.Sandbox.AgentEndpoint,
		ReadyTimeout:   cfg.Sandbox.ReadyTimeout,
		PollInterval:   cfg.Sandbox.PollInterval,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create lifecycle service: %w", err)
	}

	sessions, err := ws.NewFactory(ws.FactoryConfig{
		ConnectTimeout: cfg.Agent.ConnectTimeout,
		ReadLimit:      cfg.Agent.ReadLimit,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create session factory: %w", err)
	}

	store, err := newObjectStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create object store: %w", err)
	}

	atts, err := attachment.NewService(attachment.ServiceConfig{
		Repository:  repo,
		ObjectStore: store,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create attachment service: %w", err)
	}

	// The broadcaster is always there so local clients can follow the events.
	events, err := notifymemory.NewBroadcaster(notifymemory.BroadcasterConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create event broadcaster: %w", err)
	}
	transport := notify.MultiTransport{events}
	if cfg.Notify.Transport == "webhook" {
		wh, err := webhook.NewTransport(webhook.TransportConfig{
			URL:     cfg.Notify.WebhookURL,
			Headers: cfg.Notify.Headers,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create webhook transport: %w", err)
		}
		transport = append(transport, wh)
	}
	notifier, err := notify.NewNotifier(notify.NotifierConfig{Transport: transport, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create notifier: %w", err)
	}

	issuer, err := newCredentialIssuer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create credential issuer: %w", err)
	}

	dl, err := lock.NewDeliveryLock(lock.DeliveryLockConfig{
		Locker:         locker,
		AcquireTimeout: cfg.Delivery.AcquireTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create delivery lock: %w", err)
	}

	q, err := queuememory.NewQueue(queuememory.QueueConfig{Capacity: cfg.Delivery.QueueCapacity, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create queue: %w", err)
	}

	dd, err := dedupe.NewCache(dedupe.CacheConfig{TTL: cfg.Delivery.DedupeTTL, MaxSize: cfg.Delivery.DedupeSize})
	if err != nil {
		return nil, fmt.Errorf("could not create dedupe cache: %w", err)
	}

	orch, err := orchestrate.NewService(orchestrate.ServiceConfig{
		Repository:             repo,
		Sandboxes:              lc,
		Sessions:               sessions,
		Attachments:            atts,
		Notifier:               notifier,
		Credentials:            issuer,
		DeliveryLock:           dl,
		Producer:               q,
		Deduper:                dd,
		Mode:                   orchestrate.Mode(cfg.Agent.Mode),
		InitTimeout:            cfg.Agent.InitTimeout,
		ChatTimeout:            cfg.Agent.ChatTimeout,
		ReceiveTimeout:         cfg.Agent.ReceiveTimeout,
		TaskTimeout:            cfg.Agent.TaskTimeout,
		InterruptTimeout:       cfg.Agent.InterruptTimeout,
		DeliveryLockTTL:        cfg.Delivery.LockTTL,
		MaxRunningTasksPerUser: cfg.Limits.MaxRunningTasksPerUser,
		OpenMode:               cfg.Limits.OpenMode,
		Logger:                 logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	return &services{
		repo:         repo,
		orchestrator: orch,
		events:       events,
		queue:        q,
		dedupe:       dd,
		close:        closeRepo,
	}, nil
}
