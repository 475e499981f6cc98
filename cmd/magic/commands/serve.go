package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/modernalchemist/magic-sub000/internal/api"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddress string
	shutdownGrace time.Duration
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the task orchestrator API server.")
	c.Cmd.Flag("listen-address", "Address the HTTP API listens on (overrides the configuration).").StringVar(&c.listenAddress)
	c.Cmd.Flag("shutdown-grace", "Max time waiting for the running tasks on shutdown.").Default("30s").DurationVar(&c.shutdownGrace)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	cfg := c.rootCmd.Config
	if c.listenAddress != "" {
		cfg.Server.ListenAddress = c.listenAddress
	}

	svcs, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.close()

	handler, err := api.NewHandler(api.HandlerConfig{
		Orchestrator: svcs.orchestrator,
		Events:       svcs.events,
		MaxFrameSize: cfg.Agent.ReadLimit,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API handler: %w", err)
	}

	var g run.Group

	// Context cancellation.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// HTTP API.
	{
		server := &http.Server{
			Addr:              cfg.Server.ListenAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				logger.Infof("HTTP API listening on %s", cfg.Server.ListenAddress)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					logger.Errorf("Could not shutdown HTTP server: %s", err)
				}
			},
		)
	}

	// Inbound frames consumer.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return svcs.queue.Run(ctx, svcs.orchestrator.ConsumeFrame)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Dedupe cache cleanup.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return svcs.dedupe.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	err = g.Run()

	c.shutdownTasks(svcs.orchestrator)

	return err
}

// shutdownTasks waits for the background task runs, bounded by the shutdown
// grace. The runs still alive after it are cancelled and end in error.
func (c ServeCommand) shutdownTasks(s interface {
	Shutdown(ctx context.Context) error
}) {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownGrace)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Running tasks didn't finish in %s, they were cancelled", c.shutdownGrace)
	}
}
