package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridapi/gridapi/internal/api"
	"github.com/gridapi/gridapi/internal/config"
	"github.com/gridapi/gridapi/internal/schema"
	"github.com/gridapi/gridapi/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the schema tables over HTTP",
		Long: `Load the schema, create the backing tables and serve them over HTTP.

Startup is fail-fast: a table whose codecs cannot be derived aborts the
command instead of serving a partial surface.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (YAML); defaults apply when omitted")

	return cmd
}

func runServe(opts *RootOptions, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading config", err)
		}
		cfg = loaded
	}

	log, err := newLogger(opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "building logger", err)
	}
	defer log.Sync()

	result, err := schema.Load(cfg.SchemaDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading schema", err)
	}
	log.Info("schema loaded",
		zap.Int("files", result.FileCount),
		zap.Int("tables", len(result.Schema.Tables)))

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening database", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := api.New(ctx, cfg, log, result.Schema, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "building api", err)
	}

	httpSrv := &http.Server{Addr: cfg.Listen, Handler: srv.Router()}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Listen))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "http server", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitCommandError, "shutting down", err)
		}
		log.Info("shut down")
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
