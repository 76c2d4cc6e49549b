package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/api"
	"github.com/shigeo-nakamura/dex-router/internal/config"
	"github.com/shigeo-nakamura/dex-router/internal/gateway"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/internal/version"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

const (
	exitFailure       = 1
	exitConfiguration = 2
)

// exitCode separates configuration errors, which a restart cannot fix, from
// runtime failures.
func exitCode(err error) int {
	if errors.IsConfiguration(err) {
		return exitConfiguration
	}

	return exitFailure
}

// serveAction loads the config, starts every enabled adapter and serves the
// HTTP router until SIGINT or SIGTERM.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env-file"))
	if err != nil {
		return err
	}

	if listen := cmd.String("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	zlog, err := logger.NewLoggerWithLevel(cfg.LogLevel())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := version.CheckRelease(version.GetVersion()); err != nil && cfg.Mainnet() {
		zlog.Warn("Running a non-release build against mainnet", zap.String("version", version.GetVersion()), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.NewRecorder()

	gw, err := gateway.New(ctx, cfg, zlog, rec)
	if err != nil {
		return err
	}

	if err := gw.Start(ctx); err != nil {
		_ = gw.Stop()
		return err
	}

	server := api.NewServer(api.Config{Listen: cfg.Server.Listen, APIKey: cfg.Server.APIKey}, gw, zlog, rec)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	zlog.Info("Gateway started",
		zap.String("env_mode", string(cfg.EnvMode)),
		zap.String("version", version.GetVersion()),
		zap.Int("exchanges", len(gw.Names())))

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		zlog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		zlog.Warn("HTTP shutdown failed", zap.Error(shutdownErr))
	}

	if stopErr := gw.Stop(); stopErr != nil {
		zlog.Warn("Gateway stop failed", zap.Error(stopErr))
	}

	return err
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Bool("sample") {
		out, err := config.SampleYAML(cmd.String("schema-name"))
		if err != nil {
			return err
		}

		_, err = os.Stdout.Write(out)

		return err
	}

	schema, err := config.Schema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "dex-router",
		Usage:   "Instant-fill order gateway for derivatives exchanges",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the HTTP gateway",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the YAML config file",
						Value:   "config.yaml",
						Sources: cli.EnvVars("DEX_ROUTER_CONFIG"),
					},
					&cli.StringFlag{
						Name:  "env-file",
						Usage: "Dotenv file loaded before the config is expanded",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Override server.listen",
					},
				},
				Action: serveAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "sample",
						Usage: "Print a sample config with every default instead",
					},
					&cli.StringFlag{
						Name:  "schema-name",
						Usage: "Schema file referenced by the sample",
						Value: "config.schema.json",
					},
				},
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.IsConfiguration(err) {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}

		os.Exit(exitCode(err))
	}
}
