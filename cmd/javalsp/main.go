// Command javalsp serves Java code-intelligence tools over MCP on stdio,
// backed by an Eclipse JDT language server subprocess.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xonecas/javalsp/internal/config"
	"github.com/xonecas/javalsp/internal/constants"
	"github.com/xonecas/javalsp/internal/lsp"
	"github.com/xonecas/javalsp/internal/mcp"
	"github.com/xonecas/javalsp/internal/query"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("javalsp: exiting")
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "javalsp <workspace-path> [jdtls-command]",
		Short: "MCP server exposing Java symbol queries backed by JDTLS",
		Long: `javalsp starts the Eclipse JDT language server for one workspace and
serves find_symbols, find_references, find_definition, document_symbols and
find_interfaces_with_method over MCP on stdin/stdout.

The JDTLS command line is split on whitespace; quote it to pass JVM flags.
It may be omitted when the config file sets jdtls.command.`,
		Version:       constants.Version,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f, cmd)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				cfg.JDTLS.Command = args[1]
			}
			if cfg.JDTLS.Command == "" {
				return errors.New("no JDTLS command: pass it as the second argument or set jdtls.command")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, args[0])
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// loadConfig reads the config file and lets explicitly set flags override it.
func loadConfig(f flags, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

// setupLogging sends logs to stderr; stdout belongs to the MCP transport.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config, workspace string) error {
	info, err := os.Stat(workspace)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", workspace)
	}

	dataDir, err := config.EnsureDataDir(cfg.JDTLS.DataRoot, workspace)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	log.Info().Str("workspace", workspace).Str("data_dir", dataDir).Msg("javalsp: starting")

	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr)
	}

	session, err := lsp.Start(ctx, workspace, cfg.JDTLS.Command, lsp.Options{
		DataDir:         dataDir,
		LaunchGrace:     cfg.JDTLS.LaunchGrace.Duration,
		RequestTimeout:  cfg.Timeouts.Request.Duration,
		InitTimeout:     cfg.Timeouts.Initialize.Duration,
		PostInitGrace:   cfg.Timeouts.PostInitGrace.Duration,
		ShutdownTimeout: cfg.Timeouts.Shutdown.Duration,
	})
	if err != nil {
		return err
	}
	defer func() {
		// The serving context is likely canceled by now.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*cfg.Timeouts.Shutdown.Duration)
		defer cancel()
		session.Shutdown(shutdownCtx)
		log.Info().Msg("javalsp: language server stopped")
	}()

	if err := session.Initialize(ctx); err != nil {
		return err
	}
	if ready := cfg.Timeouts.Ready.Duration; ready > 0 {
		if !session.WaitReady(ctx, ready) {
			log.Warn().Dur("waited", ready).Str("status", session.Status()).Msg("javalsp: server not ready yet, serving anyway")
		}
	}

	composer := query.New(session, session.Root(), query.Options{
		Concurrency:  cfg.Scan.Concurrency,
		FallbackGlob: cfg.Scan.FallbackGlob,
	})
	return mcp.NewServer(composer).ServeStdio(ctx, os.Stdin, os.Stdout)
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info().Str("addr", addr).Msg("javalsp: serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("addr", addr).Msg("javalsp: metrics server failed")
	}
}
