package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/quizarena/internal/config"
	"github.com/roach88/quizarena/internal/engine"
	"github.com/roach88/quizarena/internal/gateway"
	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/store"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	Address  string
	Database string

	// Ready, if set, receives the bound listen address once the server
	// accepts connections (for testing).
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the arena server",
		Long: `Start the arena server.

Loads the configuration (defaults when --config is omitted), opens the
SQLite score store (creating it if it doesn't exist), starts the
single-writer session engine and serves the WebSocket endpoint and the
HTTP API until interrupted.

Example:
  arena serve
  arena serve --config ./arena.yaml
  arena serve --addr :8080 --db /var/lib/arena/arena.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Address, "addr", "", "listen address (overrides server.address)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(path, addr, db string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
	if db != "" {
		cfg.Store.Path = db
	}
	return cfg, nil
}

// newLogger builds the slog handler selected by log.format and log.level.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, opts.Address, opts.Database)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	slog.SetDefault(newLogger(cfg, opts.Verbose, cmd.ErrOrStderr()))

	slog.Info("opening score store", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	problems := quiz.NewGenerator(quiz.WithHistory(cfg.Problems.History))
	hub := gateway.NewHub()
	eng := engine.New(problems, st, hub, engine.WithConfig(cfg.Engine()))
	api := gateway.NewServer(hub, eng, st, problems,
		gateway.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		gateway.WithStoreTimeout(cfg.Store.Timeout),
	)

	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(ln) }()

	addr := ln.Addr().String()
	slog.Info("arena listening", "addr", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Arena listening on %s\n", addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitFailure, "server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	hub.CloseAll()
	eng.Stop()

	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
		runErr = WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("arena stopped")
	return runErr
}
