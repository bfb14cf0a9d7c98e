package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/database"
	"github.com/mantonx/vcompress/internal/ffmpeg"
	"github.com/mantonx/vcompress/internal/jobs"
	"github.com/mantonx/vcompress/internal/metrics"
	"github.com/mantonx/vcompress/internal/server"
	"github.com/mantonx/vcompress/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job service: HTTP API, job workers and the optional watch folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), config.Get())
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	log := rootLogger()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	opts := append(ffmpeg.Options(cfg.FFmpeg, log),
		compress.WithLogger(log),
		compress.WithRecorder(metrics.NewExportRecorder()),
	)
	if cfg.Compression.KeepPartialOutput {
		opts = append(opts, compress.WithCleanupPolicy(compress.KeepPartialOutput))
	}

	manager := jobs.NewManager(jobs.NewRepository(db), jobs.CompressorRunner(opts...), cfg.Jobs, cfg.Compression, log)

	ctx, stop := exportContext(parent)
	defer stop()

	if err := manager.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	srv := server.New(cfg.Server, manager, sqlDB, log)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if cfg.Watch.Enabled {
		w := watch.New(cfg.Watch, manager, log)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	log.Info("vcompress serving", "addr", srv.Addr(), "database", cfg.Database.Type, "watch", cfg.Watch.Enabled)
	runErr := g.Wait()

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Warn("job manager did not stop in time", "error", err)
	}

	return runErr
}
