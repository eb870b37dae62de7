package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/proofline-hq/proofline/pkg/circuitbreaker"
	"github.com/proofline-hq/proofline/pkg/database"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/models"
	"github.com/proofline-hq/proofline/pkg/signer"
)

// flakyDurable fails ConfirmSettled a configured number of times before
// delegating to the real database
type flakyDurable struct {
	inner     DurableStore
	failures  int
	callCount int
}

func (f *flakyDurable) ConfirmSettled(ctx context.Context, status models.OrderStatus, settlements []database.Settlement) ([]string, error) {
	f.callCount++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("durable store unavailable")
	}
	return f.inner.ConfirmSettled(ctx, status, settlements)
}

type fixture struct {
	store   *intentstore.Store
	db      *database.OrderDatabase
	flaky   *flakyDurable
	breaker *circuitbreaker.CircuitBreaker
	sweeper *Sweeper
}

func newFixture(t *testing.T, durableFailures int) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(gdb))

	sig := signer.New("test-signature-secret", "test-index-secret")
	store := intentstore.New(rdb, sig, &logger.EmptyLogger{})
	orderDB := database.NewOrderDatabase(gdb)
	flaky := &flakyDurable{inner: orderDB, failures: durableFailures}
	breaker := circuitbreaker.NewCircuitBreaker(true, 3, time.Minute, time.Minute)

	return &fixture{
		store:   store,
		db:      orderDB,
		flaky:   flaky,
		breaker: breaker,
		sweeper: New(store, flaky, breaker, time.Second, 100, &logger.EmptyLogger{}),
	}
}

// settleOrder creates a durable order, registers the matching intent and
// settles it in the fast store, returning the unique key
func (f *fixture) settleOrder(t *testing.T, status models.OrderStatus, timestamp int64) (string, *models.Order) {
	t.Helper()
	ctx := context.Background()

	order := &models.Order{
		ERC20:     "0xaaa",
		From:      "0xbbb",
		To:        "0xccc",
		Amount:    "1000",
		ChainID:   97,
		Signature: models.NewOrderID(),
		Timestamp: timestamp,
	}
	require.NoError(t, f.db.CreateOrder(ctx, order))

	uniqueKey, err := f.store.Register(ctx, models.Intent{
		OrderID:   order.ID,
		ERC20:     order.ERC20,
		From:      order.From,
		To:        order.To,
		Amount:    order.Amount,
		ChainID:   order.ChainID,
		Timestamp: order.Timestamp,
		Signature: order.Signature,
	})
	require.NoError(t, err)

	switch status {
	case models.StatusCompleted:
		require.NoError(t, f.store.MarkCompleted(ctx, uniqueKey, "0xT1"))
	case models.StatusCancelled:
		require.NoError(t, f.store.MarkCancelled(ctx, uniqueKey, "0xT1", string(models.ReasonInvalidSignature)))
	default:
		t.Fatalf("unexpected status %s", status)
	}
	return uniqueKey, order
}

func TestSweepPersistsAndEvicts(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	completedKey, completedOrder := f.settleOrder(t, models.StatusCompleted, 1700000000)
	cancelledKey, cancelledOrder := f.settleOrder(t, models.StatusCancelled, 1700000001)

	require.NoError(t, f.sweeper.Sweep(ctx))

	got, err := f.db.GetOrderByID(ctx, completedOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "0xT1", got.TxHash)

	got, err = f.db.GetOrderByID(ctx, cancelledOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, string(models.ReasonInvalidSignature), got.Error)

	// Both entries evicted from the fast store
	_, err = f.store.GetIntent(ctx, completedKey)
	assert.ErrorIs(t, err, intentstore.ErrNotFound)
	_, err = f.store.GetIntent(ctx, cancelledKey)
	assert.ErrorIs(t, err, intentstore.ErrNotFound)

	backlog, err := f.store.SettledCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestSweepEmptyBacklogIsNoop(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.sweeper.Sweep(context.Background()))
	assert.Zero(t, f.flaky.callCount)
}

func TestSweepDurableFailureKeepsEntriesForRetry(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	uniqueKey, order := f.settleOrder(t, models.StatusCompleted, 1700000000)

	// First sweep fails at the durable store; nothing may be evicted
	err := f.sweeper.Sweep(ctx)
	require.Error(t, err)

	stored, err := f.store.GetIntent(ctx, uniqueKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)

	backlog, err := f.store.SettledCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, backlog)

	durable, err := f.db.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, durable.Status)

	// The next sweep retries the same batch and succeeds
	require.NoError(t, f.sweeper.Sweep(ctx))

	durable, err = f.db.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, durable.Status)

	_, err = f.store.GetIntent(ctx, uniqueKey)
	assert.ErrorIs(t, err, intentstore.ErrNotFound)
}

func TestSweepSkippedWhileCircuitOpen(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.settleOrder(t, models.StatusCompleted, 1700000000)

	// Three failing sweeps trip the breaker
	for i := 0; i < 3; i++ {
		require.Error(t, f.sweeper.Sweep(ctx))
	}
	require.True(t, f.breaker.IsOpen())

	// While open, the sweep skips without touching the durable store
	calls := f.flaky.callCount
	require.NoError(t, f.sweeper.Sweep(ctx))
	assert.Equal(t, calls, f.flaky.callCount)

	backlog, err := f.store.SettledCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, backlog)
}

func TestSweepConfirmedSubsetOnlyEvicted(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	uniqueKey, order := f.settleOrder(t, models.StatusCompleted, 1700000000)

	// Simulate a stale fast-store entry whose durable row settled differently
	_, err := f.db.ConfirmSettled(ctx, models.StatusCancelled, []database.Settlement{
		{OrderID: order.ID, TxHash: "0xOTHER", Reason: "operator"},
	})
	require.NoError(t, err)

	require.NoError(t, f.sweeper.Sweep(ctx))

	// The conflicting entry is not confirmed and therefore not evicted
	_, err = f.store.GetIntent(ctx, uniqueKey)
	require.NoError(t, err)

	durable, err := f.db.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, durable.Status)
}
