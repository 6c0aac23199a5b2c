package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/catalog-import/internal/queue"
	"github.com/JonMunkholm/catalog-import/internal/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP intake for upload URLs and S3 events",
		Long: `serve answers GET /import with presigned upload URLs and POST /events/s3
with a synchronous parse of every uploaded object named in the event.

With --with-worker the same process also consumes the unit queue, which is
required when QUEUE_DRIVER=memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the batch worker in this process")
	return cmd
}

func runServe(ctx context.Context, a *app, withWorker bool) error {
	cfg := a.cfg
	if cfg.Queue.Driver == "memory" && !withWorker {
		slog.Warn("memory queue without --with-worker; queued units will never be committed")
	}

	d := newDeps(cfg)
	steps := []func(context.Context) error{d.withObjects, d.withQueue}
	if withWorker {
		steps = append(steps, d.withStore, d.withNotifier)
	}
	if err := d.build(ctx, steps...); err != nil {
		return err
	}
	defer d.Close()

	rpm := 0
	if cfg.Rate.Enabled {
		rpm = cfg.Rate.RequestsPerMinute
	}
	opts := web.Options{
		Addr:                cfg.Server.Addr(),
		Bucket:              cfg.Storage.Bucket,
		UploadPrefix:        cfg.Storage.UploadPrefix,
		PresignTTL:          cfg.Storage.PresignTTL,
		RequestTimeout:      cfg.Server.RequestTimeout,
		RequestsPerMinute:   rpm,
		MaxConcurrentParses: cfg.Server.MaxConcurrentParses,
		ParseWait:           cfg.Server.ParseWait,
		ReadTimeout:         cfg.Server.ReadTimeout,
		WriteTimeout:        cfg.Server.WriteTimeout,
		IdleTimeout:         cfg.Server.IdleTimeout,
	}
	if stream, ok := d.queue.(*queue.RedisStream); ok {
		opts.QueuePing = stream.Ping
	}
	server := web.NewServer(d.parser(), d.objects, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
			return err
		}
		return nil
	})
	if withWorker {
		w := d.worker()
		g.Go(func() error {
			err := w.Run(gctx)
			slog.Info("worker stopped", "stats", w.Stats())
			return err
		})
	}

	return g.Wait()
}
