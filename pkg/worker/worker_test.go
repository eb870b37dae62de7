package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofline-hq/proofline/pkg/events"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/models"
	"github.com/proofline-hq/proofline/pkg/queue"
	"github.com/proofline-hq/proofline/pkg/signer"
)

// recordingBus captures published events for assertions
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

type fixture struct {
	store  *intentstore.Store
	signer *signer.Signer
	bus    *recordingBus
	worker *TransferWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sig := signer.New("test-signature-secret", "test-index-secret")
	store := intentstore.New(rdb, sig, &logger.EmptyLogger{})
	bus := &recordingBus{}

	return &fixture{
		store:  store,
		signer: sig,
		bus:    bus,
		worker: New(store, sig, bus, &logger.EmptyLogger{}),
	}
}

// registerIntent signs and registers an order intent, returning its unique key
func (f *fixture) registerIntent(t *testing.T, timestamp int64, signature string) (string, models.Intent) {
	t.Helper()

	payload := signer.OrderPayload{
		ChainID:   97,
		To:        "0xCCC",
		From:      "0xBBB",
		ERC20:     "0xAAA",
		Amount:    "1000",
		Timestamp: timestamp,
	}
	if signature == "" {
		signature = f.signer.SignOrder(payload)
	}

	intent := models.Intent{
		OrderID:   models.NewOrderID(),
		ERC20:     payload.ERC20,
		From:      payload.From,
		To:        payload.To,
		Amount:    payload.Amount,
		ChainID:   payload.ChainID,
		Timestamp: payload.Timestamp,
		Signature: signature,
	}
	uniqueKey, err := f.store.Register(context.Background(), intent)
	require.NoError(t, err)
	return uniqueKey, intent
}

func transferTask(t *testing.T, transfer models.TransferEvent) *asynq.Task {
	t.Helper()
	task, err := queue.NewTransferTask(transfer)
	require.NoError(t, err)
	return task
}

func matchingTransfer() models.TransferEvent {
	return models.TransferEvent{
		From:        "0xbbb",
		To:          "0xccc",
		ERC20:       "0xaaa",
		Amount:      "1000",
		ChainID:     97,
		Network:     "bsc-testnet",
		TxHash:      "0xT1",
		BlockNumber: 100,
		BlockHash:   "0xb1",
	}
}

func TestProcessMatchingTransferCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uniqueKey, intent := f.registerIntent(t, 1700000000, "")

	err := f.worker.ProcessTask(ctx, transferTask(t, matchingTransfer()))
	require.NoError(t, err)

	stored, err := f.store.GetIntent(ctx, uniqueKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, "0xT1", stored.TxHash)

	published := f.bus.published()
	require.Len(t, published, 3)
	assert.Equal(t, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusVerifying}, published[0])
	assert.Equal(t, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusCompleted}, published[1])
	assert.Equal(t, events.CompletedEvent{
		OrderID:   intent.OrderID,
		ERC20:     intent.ERC20,
		From:      intent.From,
		To:        intent.To,
		Amount:    intent.Amount,
		ChainID:   97,
		TxHash:    "0xT1",
		Signature: intent.Signature,
	}, published[2])
}

func TestProcessAmountMismatchIsSilentNoMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uniqueKey, _ := f.registerIntent(t, 1700000000, "")

	transfer := matchingTransfer()
	transfer.Amount = "999"

	err := f.worker.ProcessTask(ctx, transferTask(t, transfer))
	require.NoError(t, err)

	stored, err := f.store.GetIntent(ctx, uniqueKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, f.bus.published())
}

func TestProcessInvalidSignatureCancelsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uniqueKey, intent := f.registerIntent(t, 1700000000, "corrupted-signature")

	err := f.worker.ProcessTask(ctx, transferTask(t, matchingTransfer()))
	require.NoError(t, err)

	stored, err := f.store.GetIntent(ctx, uniqueKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, string(models.ReasonInvalidSignature), stored.Reason)

	published := f.bus.published()
	require.Len(t, published, 3)
	assert.Equal(t, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusVerifying}, published[0])
	assert.Equal(t, events.ProgressEvent{OrderID: intent.OrderID, Status: models.StatusCancelled}, published[1])
	assert.Equal(t, events.CancelledEvent{OrderID: intent.OrderID, Reason: string(models.ReasonInvalidSignature)}, published[2])
}

func TestProcessSettlesFirstCandidateOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two intents with identical economic fields, different timestamps
	firstKey, _ := f.registerIntent(t, 1700000000, "")
	secondKey, _ := f.registerIntent(t, 1700000555, "")

	err := f.worker.ProcessTask(ctx, transferTask(t, matchingTransfer()))
	require.NoError(t, err)

	first, err := f.store.GetIntent(ctx, firstKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, first.Status)

	second, err := f.store.GetIntent(ctx, secondKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, second.Status)
}

func TestProcessAlreadySettledIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uniqueKey, _ := f.registerIntent(t, 1700000000, "")
	require.NoError(t, f.store.MarkCompleted(ctx, uniqueKey, "0xEARLIER"))

	// The settled intent is gone from the base index, so this is a no-match
	err := f.worker.ProcessTask(ctx, transferTask(t, matchingTransfer()))
	require.NoError(t, err)

	stored, err := f.store.GetIntent(ctx, uniqueKey)
	require.NoError(t, err)
	assert.Equal(t, "0xEARLIER", stored.TxHash)
	assert.Empty(t, f.bus.published())
}

func TestProcessMalformedPayloadSkipsRetry(t *testing.T) {
	f := newFixture(t)

	task := asynq.NewTask(queue.TypeTransferObserved, []byte("{not json"))
	err := f.worker.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
