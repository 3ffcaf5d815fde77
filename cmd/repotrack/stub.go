package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repotrack/internal/stubserver"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
)

const stubShutdownTimeout = 10 * time.Second

func newServeStubCmd(a *app) *cobra.Command {
	var (
		fixture string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve-stub",
		Short: "Serve an in-memory repository over the tracking API",
		Long: `Serve an in-memory repository loaded from a YAML fixture over the same HTTP
API the client uses. Runs until interrupted.

Example:
  repotrack serve-stub --fixture testdata/fixture.yaml --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			stub := a.cfg.Stub
			if fixture != "" {
				stub.FixtureFile = fixture
			}
			if host != "" {
				stub.Host = host
			}
			if port != 0 {
				stub.Port = port
			}

			logger := a.logger.Underlying()
			repo := tracking.NewMemoryRepository(logger)
			if stub.FixtureFile != "" {
				if err := stubserver.LoadFixtureFile(stub.FixtureFile, repo, a.dict); err != nil {
					return err
				}
				a.logger.Info(ctx, "loaded fixture", zap.String("path", stub.FixtureFile))
			}

			srv, err := stubserver.NewServer(repo, logger, &stubserver.Config{
				Host:     stub.Host,
				Port:     stub.Port,
				BasePath: a.cfg.Repository.BaseURL,
			})
			if err != nil {
				return fmt.Errorf("failed to create stub server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), stubShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return repo.Close()
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "fixture YAML (overrides stub.fixture_file)")
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides stub.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides stub.port)")
	return cmd
}
