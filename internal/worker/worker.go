// Package worker drives the batch processor from a queue consumer.
//
// Settlement rules per unit:
//
//	committed, invalid  ack
//	poison              dead-letter
//	failed              leave pending for redelivery, dead-letter once the
//	                    delivery count reaches MaxDeliveries
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/JonMunkholm/catalog-import/internal/logging"
	"github.com/JonMunkholm/catalog-import/internal/queue"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor processes one batch. *core.Processor satisfies it.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, msgs []queue.Message) core.BatchOutcome
}

// Config controls batching and redelivery.
type Config struct {
	BatchSize         int
	Consumers         int
	VisibilityTimeout time.Duration
	MaxDeliveries     int64
	ReclaimInterval   time.Duration
	ErrorBackoff      time.Duration
	SettleTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.Consumers <= 0 {
		c.Consumers = 1
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = c.VisibilityTimeout / 2
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 5 * time.Second
	}
	return c
}

// Stats are cumulative counters since the worker was created.
type Stats struct {
	Batches      atomic.Int64
	Committed    atomic.Int64
	Invalid      atomic.Int64
	Poison       atomic.Int64
	Failed       atomic.Int64
	Acked        atomic.Int64
	DeadLettered atomic.Int64
	Reclaimed    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Batches      int64 `json:"batches"`
	Committed    int64 `json:"committed"`
	Invalid      int64 `json:"invalid"`
	Poison       int64 `json:"poison"`
	Failed       int64 `json:"failed"`
	Acked        int64 `json:"acked"`
	DeadLettered int64 `json:"dead_lettered"`
	Reclaimed    int64 `json:"reclaimed"`
}

// Worker pulls batches from a consumer and settles each unit.
type Worker struct {
	consumer  queue.Consumer
	processor BatchProcessor
	cfg       Config
	stats     Stats
}

// New creates a worker. Zero config fields take defaults.
func New(consumer queue.Consumer, processor BatchProcessor, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg.withDefaults(),
	}
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() StatsSnapshot {
	return StatsSnapshot{
		Batches:      w.stats.Batches.Load(),
		Committed:    w.stats.Committed.Load(),
		Invalid:      w.stats.Invalid.Load(),
		Poison:       w.stats.Poison.Load(),
		Failed:       w.stats.Failed.Load(),
		Acked:        w.stats.Acked.Load(),
		DeadLettered: w.stats.DeadLettered.Load(),
		Reclaimed:    w.stats.Reclaimed.Load(),
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Info("worker started",
		"consumers", w.cfg.Consumers,
		"batch_size", w.cfg.BatchSize,
		"visibility_timeout", w.cfg.VisibilityTimeout,
		"max_deliveries", w.cfg.MaxDeliveries,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Consumers; i++ {
		cctx := logging.NewContext(gctx, "consumer", i)
		g.Go(func() error { return w.consumeLoop(cctx) })
	}
	g.Go(func() error { return w.reclaimLoop(logging.NewContext(gctx, "consumer", "reclaim")) })

	err := g.Wait()
	logger.Info("worker stopped", "stats", w.Stats())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) consumeLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.FromContext(ctx).Error("receive failed", "error", err)
			w.sleep(ctx, w.cfg.ErrorBackoff)
		}
	}
	return nil
}

func (w *Worker) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := w.ReclaimOnce(ctx); err != nil && ctx.Err() == nil {
			logging.FromContext(ctx).Error("reclaim failed", "error", err)
		}
	}
}

// RunOnce receives one batch and processes it. An empty receive returns a
// zero outcome.
func (w *Worker) RunOnce(ctx context.Context) (core.BatchOutcome, error) {
	msgs, err := w.consumer.Receive(ctx, w.cfg.BatchSize)
	if err != nil {
		return core.BatchOutcome{}, fmt.Errorf("receive: %w", err)
	}
	if len(msgs) == 0 {
		return core.BatchOutcome{}, nil
	}
	return w.handle(ctx, msgs), nil
}

// ReclaimOnce redelivers units whose visibility timeout expired.
func (w *Worker) ReclaimOnce(ctx context.Context) (core.BatchOutcome, error) {
	msgs, err := w.consumer.Reclaim(ctx, w.cfg.VisibilityTimeout, w.cfg.BatchSize)
	if err != nil {
		return core.BatchOutcome{}, fmt.Errorf("reclaim: %w", err)
	}
	if len(msgs) == 0 {
		return core.BatchOutcome{}, nil
	}
	w.stats.Reclaimed.Add(int64(len(msgs)))
	logging.FromContext(ctx).Info("reclaimed pending units", "count", len(msgs))
	return w.handle(ctx, msgs), nil
}

func (w *Worker) handle(ctx context.Context, msgs []queue.Message) core.BatchOutcome {
	w.stats.Batches.Add(1)
	outcome := w.processor.ProcessBatch(ctx, msgs)
	w.settle(ctx, msgs, outcome)
	return outcome
}

// settle acks, dead-letters or leaves pending each unit. It outlives a
// cancelled ctx so finished work is not redelivered on shutdown.
func (w *Worker) settle(ctx context.Context, msgs []queue.Message, outcome core.BatchOutcome) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SettleTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	var ack []string
	for i, r := range outcome.Results {
		msg := msgs[i]
		switch r.Status {
		case core.UnitCommitted:
			w.stats.Committed.Add(1)
			ack = append(ack, msg.ID)
		case core.UnitInvalid:
			w.stats.Invalid.Add(1)
			ack = append(ack, msg.ID)
		case core.UnitPoison:
			w.stats.Poison.Add(1)
			w.deadLetter(sctx, msg, r.Reason)
		case core.UnitFailed:
			w.stats.Failed.Add(1)
			if msg.Deliveries >= w.cfg.MaxDeliveries {
				w.deadLetter(sctx, msg, fmt.Sprintf("gave up after %d deliveries: %s", msg.Deliveries, r.Reason))
				continue
			}
			logger.Warn("unit left pending for redelivery",
				"message_id", msg.ID,
				"deliveries", msg.Deliveries,
				"max_deliveries", w.cfg.MaxDeliveries,
			)
		}
	}

	if err := w.consumer.Ack(sctx, ack...); err != nil {
		logger.Error("ack failed", "count", len(ack), "error", err)
		return
	}
	w.stats.Acked.Add(int64(len(ack)))
}

func (w *Worker) deadLetter(ctx context.Context, msg queue.Message, reason string) {
	logger := logging.WithFields(ctx, "message_id", msg.ID, "deliveries", msg.Deliveries)
	if err := w.consumer.DeadLetter(ctx, msg, reason); err != nil {
		logger.Error("dead-letter failed", "reason", reason, "error", err)
		return
	}
	w.stats.DeadLettered.Add(1)
	logger.Warn("unit dead-lettered", "reason", reason)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
