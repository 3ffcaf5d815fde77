// Package main implements repotrack, a CLI for the repository change tracking API.
//
// Each tracking operation has a subcommand that performs one request against
// the configured repository and prints the result. serve-stub runs an
// in-memory repository behind the same HTTP API.
//
// Configuration is read from ~/.config/repotrack/config.yaml (or --config) and
// REPOTRACK_* environment variables.
//
// Usage:
//
//	# List the first transactions
//	repotrack transactions --min-id 1 --max 100
//
//	# Fetch full metadata for two nodes
//	REPOTRACK_REPOSITORY_HOST=repo.internal repotrack metadata --ids 100,101
//
//	# Serve a fixture on :8080
//	repotrack serve-stub --fixture fixture.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/logging"
	"github.com/fyrsmithlabs/repotrack/internal/registry"
	"github.com/fyrsmithlabs/repotrack/internal/telemetry"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
)

// version is set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds what the subcommands share. It is built in the root command's
// PersistentPreRunE and torn down in PersistentPostRunE.
type app struct {
	configPath     string
	dictionaryPath string
	logLevel       string
	jsonOut        bool

	cfg      *config.Config
	dict     *dictionary.Dictionary
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	registry *registry.Registry
	out      io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "repotrack",
		Short: "Client for the repository change tracking API",
		Long: `repotrack talks to the change tracking API of a content repository.

It lists ACL change sets, ACLs and their readers, transactions, node changes,
node metadata, extracted text and content models, and can serve an in-memory
repository over the same API for testing indexers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/repotrack/config.yaml)")
	flags.StringVar(&a.dictionaryPath, "dictionary", "", "property dictionary YAML (overrides tracker.dictionary_file)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newAclChangeSetsCmd(a),
		newAclsCmd(a),
		newAclReadersCmd(a),
		newTransactionsCmd(a),
		newFollowCmd(a),
		newNodesCmd(a),
		newMetadataCmd(a),
		newTextContentCmd(a),
		newModelCmd(a),
		newModelsDiffCmd(a),
		newNextTxCmd(a),
		newTxIntervalCmd(a),
		newServeStubCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger, telemetry and client registry.
func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a.out = cmd.OutOrStdout()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.dictionaryPath != "" {
		cfg.Tracker.DictionaryFile = a.dictionaryPath
	}
	a.cfg = cfg

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel

	lcfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	lcfg.Output.Stdout = false
	lcfg.Output.Stderr = true
	lcfg.Output.OTEL = tel.IsEnabled()
	logger, err := logging.NewLogger(lcfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	if err := tel.Err(); err != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(err))
	}

	a.dict = dictionary.New()
	if path := cfg.Tracker.DictionaryFile; path != "" {
		if a.dict, err = dictionary.LoadFile(path); err != nil {
			return err
		}
	}

	metrics, err := tracking.NewMetrics(tel.Meter(tracking.InstrumentationName))
	if err != nil {
		logger.Warn(ctx, "tracking metrics unavailable", zap.Error(err))
	}
	a.registry = registry.New(
		registry.HTTPFactory(cfg.Tracker, a.dict, logger.Underlying(), metrics),
		registry.WithLogger(logger.Underlying()),
	)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Shutdown(ctx))
	}
	if a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Sync())
	}
	return errors.Join(errs...)
}

// client returns the tracking client of the configured repository and a
// context carrying the repository log fields. Every request the command sends
// shares one request id.
func (a *app) client(ctx context.Context, op string) (context.Context, tracking.Client, error) {
	repo := a.cfg.Repository
	ctx = logging.WithRepository(ctx, &logging.Repository{
		Endpoint: registry.EndpointFor(repo).String(),
		Core:     a.cfg.Tracker.CoreName,
	})
	ctx = logging.WithOperation(ctx, op)
	if logging.RequestIDFromContext(ctx) == "" {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}

	c, err := a.registry.Get(ctx, repo)
	if err != nil {
		return ctx, nil, err
	}
	a.logger.Debug(ctx, "running tracking operation", zap.String("url", repo.URL()))
	return ctx, c, nil
}
