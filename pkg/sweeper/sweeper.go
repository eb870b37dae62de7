// Package sweeper drains settled orders from the fast store into the durable
// store in bulk. A fast-store entry is evicted only after its terminal state
// is durably confirmed, so a failed sweep loses nothing and is retried on the
// next cycle.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/proofline-hq/proofline/pkg/circuitbreaker"
	"github.com/proofline-hq/proofline/pkg/database"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/metrics"
	"github.com/proofline-hq/proofline/pkg/models"
)

// SettledSource is the slice of the fast store the sweeper needs
type SettledSource interface {
	DrainSettled(ctx context.Context, limit int) ([]intentstore.SettledEntry, error)
	Evict(ctx context.Context, uniqueKeys []string) error
	SettledCount(ctx context.Context) (int64, error)
}

// DurableStore applies terminal settlements to the system of record
type DurableStore interface {
	ConfirmSettled(ctx context.Context, status models.OrderStatus, settlements []database.Settlement) ([]string, error)
}

// Sweeper periodically flushes settled orders to the durable store
type Sweeper struct {
	store     SettledSource
	db        DurableStore
	breaker   *circuitbreaker.CircuitBreaker
	interval  time.Duration
	batchSize int
	log       logger.Logger
}

// New creates a Sweeper
func New(store SettledSource, db DurableStore, breaker *circuitbreaker.CircuitBreaker,
	interval time.Duration, batchSize int, log logger.Logger,
) *Sweeper {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Sweeper{
		store:     store,
		db:        db,
		breaker:   breaker,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run sweeps on the configured cadence until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("Settlement sweeper started with interval %v", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Settlement sweeper shutting down")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Error("Sweep failed: %v", err)
			}
		}
	}
}

// Sweep drains one batch of settled orders, durably confirms them per
// terminal status and evicts only the confirmed entries
func (s *Sweeper) Sweep(ctx context.Context) error {
	if s.breaker.IsOpen() {
		metrics.SweepBatches.WithLabelValues("skipped").Inc()
		s.log.Notice("Skipping sweep: durable store circuit open")
		return nil
	}

	entries, err := s.store.DrainSettled(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to drain settled orders: %w", err)
	}

	defer s.updateBacklogGauge(ctx)

	if len(entries) == 0 {
		return nil
	}

	partitions := make(map[models.OrderStatus][]database.Settlement)
	keysByOrder := make(map[string]string, len(entries))
	for _, entry := range entries {
		intent := entry.Intent
		if !intent.Status.IsTerminal() {
			s.log.Error("Settled index holds non-terminal intent %s (%s)", intent.OrderID, intent.Status)
			continue
		}
		partitions[intent.Status] = append(partitions[intent.Status], database.Settlement{
			OrderID: intent.OrderID,
			TxHash:  intent.TxHash,
			Reason:  intent.Reason,
		})
		keysByOrder[intent.OrderID] = intent.UniqueKey
	}

	for status, settlements := range partitions {
		confirmed, err := s.db.ConfirmSettled(ctx, status, settlements)
		if err != nil {
			s.breaker.RecordFailure()
			metrics.SweepBatches.WithLabelValues("failed").Inc()
			return fmt.Errorf("durable write of %d %s orders failed: %w", len(settlements), status, err)
		}
		s.breaker.RecordSuccess()

		evict := make([]string, 0, len(confirmed))
		for _, orderID := range confirmed {
			if uniqueKey, ok := keysByOrder[orderID]; ok {
				evict = append(evict, uniqueKey)
			}
		}
		if err := s.store.Evict(ctx, evict); err != nil {
			// Entries stay in the settled index and re-sweep idempotently
			s.log.Error("Failed to evict %d swept orders: %v", len(evict), err)
			continue
		}

		metrics.SweepBatches.WithLabelValues("ok").Inc()
		metrics.SweptOrders.WithLabelValues(string(status)).Add(float64(len(confirmed)))
		s.log.Info("Swept %d %s orders to durable store", len(confirmed), status)
	}
	return nil
}

func (s *Sweeper) updateBacklogGauge(ctx context.Context) {
	if backlog, err := s.store.SettledCount(ctx); err == nil {
		metrics.SettledBacklog.Set(float64(backlog))
	}
}
