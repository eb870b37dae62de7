// Package worker implements the match-and-verify state machine that drives
// each observed transfer against the pool of registered order intents.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/proofline-hq/proofline/pkg/events"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/metrics"
	"github.com/proofline-hq/proofline/pkg/models"
	"github.com/proofline-hq/proofline/pkg/queue"
	"github.com/proofline-hq/proofline/pkg/signer"
)

// Transfer processing outcomes used as metric labels
const (
	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
	outcomeNoMatch   = "no_match"
)

// IntentStore is the slice of the fast store the worker needs
type IntentStore interface {
	FindCandidatesByTransfer(ctx context.Context, transfer models.TransferEvent) ([]string, error)
	GetIntent(ctx context.Context, uniqueKey string) (models.Intent, error)
	MarkVerifying(ctx context.Context, uniqueKey string) error
	MarkCompleted(ctx context.Context, uniqueKey, txHash string) error
	MarkCancelled(ctx context.Context, uniqueKey, txHash, reason string) error
}

// TransferWorker consumes the ingest queue and advances matched orders to a
// terminal state
type TransferWorker struct {
	store  IntentStore
	signer *signer.Signer
	bus    events.Bus
	log    logger.Logger
}

var _ asynq.Handler = (*TransferWorker)(nil)

// New creates a TransferWorker
func New(store IntentStore, sig *signer.Signer, bus events.Bus, log logger.Logger) *TransferWorker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &TransferWorker{store: store, signer: sig, bus: bus, log: log}
}

// ProcessTask handles one observed transfer. Business outcomes (no match,
// invalid signature) return nil; only infrastructure failures return an
// error, which sends the task back to the queue for retry.
func (w *TransferWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	transfer, err := queue.ParseTransferTask(task)
	if err != nil {
		// A malformed payload never heals on retry
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	chainLabel := strconv.Itoa(transfer.ChainID)
	defer func() {
		metrics.TransferProcessingTime.WithLabelValues(chainLabel).Observe(time.Since(start).Seconds())
	}()

	candidates, err := w.store.FindCandidatesByTransfer(ctx, transfer)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		// Expected for transfers unrelated to any registered order
		metrics.TransfersProcessed.WithLabelValues(chainLabel, outcomeNoMatch).Inc()
		w.log.DebugWithChain(transfer.ChainID, "No intent matches transfer %s", transfer.TxHash)
		return nil
	}

	// First candidate in registration order; no fallback to later
	// candidates if verification fails
	uniqueKey := candidates[0]
	intent, err := w.store.GetIntent(ctx, uniqueKey)
	if err != nil {
		if errors.Is(err, intentstore.ErrNotFound) {
			// Settled and evicted between lookup and read
			return nil
		}
		return err
	}

	if err := w.store.MarkVerifying(ctx, uniqueKey); err != nil {
		if errors.Is(err, intentstore.ErrConflict) {
			// Another worker already concluded this intent
			w.log.DebugWithChain(transfer.ChainID, "Intent %s already settled", intent.OrderID)
			return nil
		}
		return err
	}

	w.log.InfoWithChain(transfer.ChainID, "Verifying order %s against transfer %s", intent.OrderID, transfer.TxHash)
	w.publish(ctx, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusVerifying})

	// Recompute the signature from the observed transfer and the stored
	// signing timestamp
	valid := w.signer.Verify(signer.OrderPayload{
		ChainID:   transfer.ChainID,
		To:        transfer.To,
		From:      transfer.From,
		ERC20:     transfer.ERC20,
		Amount:    transfer.Amount,
		Timestamp: intent.Timestamp,
	}, intent.Signature)

	if !valid {
		return w.cancel(ctx, transfer, intent, uniqueKey, chainLabel)
	}
	return w.complete(ctx, transfer, intent, uniqueKey, chainLabel)
}

func (w *TransferWorker) complete(ctx context.Context, transfer models.TransferEvent, intent models.Intent, uniqueKey, chainLabel string) error {
	if err := w.store.MarkCompleted(ctx, uniqueKey, transfer.TxHash); err != nil {
		if errors.Is(err, intentstore.ErrConflict) {
			return nil
		}
		return err
	}

	metrics.TransfersProcessed.WithLabelValues(chainLabel, outcomeCompleted).Inc()
	metrics.OrdersCompleted.WithLabelValues(chainLabel).Inc()

	w.publish(ctx, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusCompleted})
	w.publish(ctx, events.CompletedEvent{
		OrderID:   intent.OrderID,
		ERC20:     intent.ERC20,
		From:      intent.From,
		To:        intent.To,
		Amount:    intent.Amount,
		ChainID:   transfer.ChainID,
		TxHash:    transfer.TxHash,
		Signature: intent.Signature,
	})

	w.log.InfoWithChain(transfer.ChainID, "Order %s completed with tx %s", intent.OrderID, transfer.TxHash)
	return nil
}

func (w *TransferWorker) cancel(ctx context.Context, transfer models.TransferEvent, intent models.Intent, uniqueKey, chainLabel string) error {
	reason := string(models.ReasonInvalidSignature)
	if err := w.store.MarkCancelled(ctx, uniqueKey, transfer.TxHash, reason); err != nil {
		if errors.Is(err, intentstore.ErrConflict) {
			return nil
		}
		return err
	}

	metrics.TransfersProcessed.WithLabelValues(chainLabel, outcomeCancelled).Inc()
	metrics.OrdersCancelled.WithLabelValues(chainLabel, reason).Inc()

	w.publish(ctx, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusCancelled})
	w.publish(ctx, events.CancelledEvent{OrderID: intent.OrderID, Reason: reason})

	w.log.NoticeWithChain(transfer.ChainID, "Order %s cancelled: invalid signature on tx %s", intent.OrderID, transfer.TxHash)
	return nil
}

// publish delivers an event best effort; the store transition already
// happened and must not be rolled back for a bus failure
func (w *TransferWorker) publish(ctx context.Context, event events.Event) {
	if err := w.bus.Publish(ctx, event); err != nil {
		w.log.Error("Failed to publish %s event: %v", event.Name(), err)
	}
}
