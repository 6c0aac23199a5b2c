package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/logging"
	"github.com/JonMunkholm/catalog-import/internal/queue"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CountPolicy decides the stock count for items that did not supply one.
type CountPolicy struct {
	Default   int
	Randomize bool
	RandomMax int // exclusive upper bound when Randomize is set
}

// Resolve returns count when set, otherwise the policy's default.
func (c CountPolicy) Resolve(count *int) int {
	if count != nil {
		return *count
	}
	if c.Randomize && c.RandomMax > 0 {
		return rand.IntN(c.RandomMax)
	}
	return c.Default
}

// UnitStatus is the outcome of processing one queued unit.
type UnitStatus string

const (
	// UnitCommitted means the product and stock were written.
	UnitCommitted UnitStatus = "committed"
	// UnitInvalid means the unit decoded but failed validation.
	UnitInvalid UnitStatus = "invalid"
	// UnitPoison means the body is not a unit of work at all.
	UnitPoison UnitStatus = "poison"
	// UnitFailed means the store write failed; the unit may succeed later.
	UnitFailed UnitStatus = "failed"
)

// UnitResult reports what happened to one message.
type UnitResult struct {
	MessageID string
	Status    UnitStatus
	Reason    string
	Err       error
	Product   Product
	Stock     Stock
	Notified  bool
}

// BatchOutcome collects the per-unit results of one batch, in input order.
type BatchOutcome struct {
	Results  []UnitResult
	Duration time.Duration
}

// Count returns how many results have status.
func (b BatchOutcome) Count(status UnitStatus) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// ByStatus groups results by status.
func (b BatchOutcome) ByStatus() map[UnitStatus][]UnitResult {
	out := make(map[UnitStatus][]UnitResult)
	for _, r := range b.Results {
		out[r.Status] = append(out[r.Status], r)
	}
	return out
}

// Processor commits queued units as product and stock pairs.
type Processor struct {
	store       ProductStore
	notifier    Notifier
	newID       func() string
	counts      CountPolicy
	concurrency int
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithIDGenerator replaces uuid.NewString as the identity source.
func WithIDGenerator(fn func() string) ProcessorOption {
	return func(p *Processor) { p.newID = fn }
}

// WithCountPolicy sets how missing stock counts are filled in.
func WithCountPolicy(c CountPolicy) ProcessorOption {
	return func(p *Processor) { p.counts = c }
}

// WithConcurrency bounds how many units of a batch commit at once.
func WithConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewProcessor creates a processor writing to store and announcing commits
// through notifier.
func NewProcessor(store ProductStore, notifier Notifier, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:       store,
		notifier:    notifier,
		newID:       uuid.NewString,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessBatch processes every message independently and never fails as a
// whole. Settling the messages against the queue is left to the caller,
// which decides from each result's status.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []queue.Message) BatchOutcome {
	start := time.Now()
	results := make([]UnitResult, len(msgs))

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			results[i] = p.processUnit(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	outcome := BatchOutcome{Results: results, Duration: time.Since(start)}
	logging.FromContext(ctx).Info("batch processed",
		"size", len(msgs),
		"committed", outcome.Count(UnitCommitted),
		"invalid", outcome.Count(UnitInvalid),
		"poison", outcome.Count(UnitPoison),
		"failed", outcome.Count(UnitFailed),
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome
}

func (p *Processor) processUnit(ctx context.Context, msg queue.Message) UnitResult {
	logger := logging.WithFields(ctx, "message_id", msg.ID, "deliveries", msg.Deliveries)
	res := UnitResult{MessageID: msg.ID}

	item, err := DecodeUnit(msg.Body)
	if err == nil {
		err = ValidateItem(item)
	}
	if err != nil {
		if reason, ok := IsRejection(err); ok {
			res.Status, res.Reason, res.Err = UnitInvalid, reason, err
			logger.Warn("unit rejected", "reason", reason)
			return res
		}
		res.Status, res.Reason, res.Err = UnitPoison, err.Error(), err
		logger.Error("unit undecodable", "error", err)
		return res
	}

	product := Product{
		ID:          p.newID(),
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
	}
	stock := Stock{ProductID: product.ID, Count: p.counts.Resolve(item.Count)}
	res.Product, res.Stock = product, stock

	if err := p.store.CreateProduct(ctx, product, stock); err != nil {
		res.Status, res.Reason, res.Err = UnitFailed, err.Error(), err
		if errors.Is(err, ErrProductExists) {
			logger.Error("product identity collision", "product_id", product.ID, "error", err)
		} else {
			logger.Error("commit failed", "product_id", product.ID, "error", err)
		}
		return res
	}
	res.Status = UnitCommitted
	logger.Info("product created", "product_id", product.ID, "count", stock.Count)

	if err := p.notifier.Publish(ctx, NewCreatedNotification(product, stock)); err != nil {
		logger.Warn("notification failed", "product_id", product.ID, "error", err)
	} else {
		res.Notified = true
	}
	return res
}
