package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"
)

func newWorkerCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Commit queued units as products and stock records",
		Long: `worker consumes the unit queue in batches of QUEUE_BATCH_SIZE.

Committed and invalid units are acknowledged. Undecodable units go straight to
the dead-letter stream. Units whose commit failed stay pending and are
reclaimed after QUEUE_VISIBILITY_TIMEOUT, until QUEUE_MAX_DELIVERIES is
reached and they are dead-lettered too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), a, once, cmd)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process stale pending units and one batch, then exit")
	return cmd
}

func runWorker(ctx context.Context, a *app, once bool, cmd *cobra.Command) error {
	if a.cfg.Queue.Driver == "memory" {
		slog.Warn("standalone worker on the memory queue only sees units it sent itself")
	}

	d := newDeps(a.cfg)
	if err := d.build(ctx, d.withQueue, d.withStore, d.withNotifier); err != nil {
		return err
	}
	defer d.Close()

	w := d.worker()
	if once {
		if _, err := w.ReclaimOnce(ctx); err != nil {
			return err
		}
		if _, err := w.RunOnce(ctx); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(w.Stats())
	}

	err := w.Run(ctx)
	slog.Info("worker stopped", "stats", w.Stats())
	return err
}
