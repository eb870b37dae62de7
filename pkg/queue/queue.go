// Package queue is the durable ingest queue of observed transfers.
// Work items are deduplicated by transaction hash, retried with backoff on
// processing failure and parked in the archive after retry exhaustion.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/metrics"
	"github.com/proofline-hq/proofline/pkg/models"
)

// TypeTransferObserved is the task type of a normalized transfer awaiting matching
const TypeTransferObserved = "transfer:observed"

// dedupRetention keeps finished tasks around so a transfer re-observed after
// a transport reconnect still collides on its transaction hash
const dedupRetention = 24 * time.Hour

// NewTransferTask encodes a transfer into an ingest task
func NewTransferTask(transfer models.TransferEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(transfer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer %s: %w", transfer.TxHash, err)
	}
	return asynq.NewTask(TypeTransferObserved, payload), nil
}

// ParseTransferTask decodes a transfer from an ingest task
func ParseTransferTask(task *asynq.Task) (models.TransferEvent, error) {
	var transfer models.TransferEvent
	if err := json.Unmarshal(task.Payload(), &transfer); err != nil {
		return transfer, fmt.Errorf("failed to decode transfer task: %w", err)
	}
	return transfer, nil
}

// Enqueuer pushes observed transfers onto the ingest queue
type Enqueuer struct {
	client     *asynq.Client
	maxRetries int
	jobTimeout time.Duration
	log        logger.Logger
}

// NewEnqueuer creates an Enqueuer connected to the queue's Redis backend
func NewEnqueuer(redisOpt asynq.RedisConnOpt, maxRetries int, jobTimeout time.Duration, log logger.Logger) *Enqueuer {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Enqueuer{
		client:     asynq.NewClient(redisOpt),
		maxRetries: maxRetries,
		jobTimeout: jobTimeout,
		log:        log,
	}
}

// Close releases the queue connection
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// EnqueueTransfer enqueues a transfer for matching. The transaction hash is
// the task identity, so re-enqueueing an already queued or already processed
// transfer is a no-op.
func (e *Enqueuer) EnqueueTransfer(ctx context.Context, transfer models.TransferEvent) error {
	task, err := NewTransferTask(transfer)
	if err != nil {
		return err
	}

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(transfer.TxHash),
		asynq.MaxRetry(e.maxRetries),
		asynq.Timeout(e.jobTimeout),
		asynq.Retention(dedupRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		metrics.TransfersDeduplicated.WithLabelValues(strconv.Itoa(transfer.ChainID)).Inc()
		e.log.DebugWithChain(transfer.ChainID, "Duplicate transfer %s dropped", transfer.TxHash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue transfer %s: %w", transfer.TxHash, err)
	}

	metrics.TransfersEnqueued.WithLabelValues(strconv.Itoa(transfer.ChainID)).Inc()
	e.log.DebugWithChain(transfer.ChainID, "Enqueued transfer %s", transfer.TxHash)
	return nil
}

// NewServer builds the queue consumer with the configured concurrency bound.
// Handler errors trigger retries with the queue's exponential backoff; tasks
// that exhaust their retry budget move to the archive for inspection.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, log logger.Logger) *asynq.Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("Task %s failed: %v", task.Type(), err)
		}),
	})
}
