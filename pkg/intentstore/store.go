// Package intentstore implements the low-latency working store of active
// order intents on Redis.
//
// Key layout:
//
//	orders:active          set of unique keys awaiting settlement
//	orders:base:<baseKey>  zset of unique keys sharing a base key, scored by
//	                       a monotonic registration sequence
//	orders:intent:<uKey>   hash holding the intent snapshot plus status
//	orders:settled         zset of settled unique keys scored by settlement time
package intentstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/models"
	"github.com/proofline-hq/proofline/pkg/signer"
)

const (
	activeSetKey    = "orders:active"
	settledIndexKey = "orders:settled"
	registerSeqKey  = "orders:seq"
	baseIndexPrefix = "orders:base:"
	intentKeyPrefix = "orders:intent:"
)

var (
	// ErrNotFound is returned when no intent exists under the given unique key
	ErrNotFound = errors.New("intentstore: intent not found")

	// ErrConflict is returned when a transition would contradict a terminal state
	ErrConflict = errors.New("intentstore: conflicting status transition")
)

// Store indexes active order intents and tracks settled ones until the
// sweeper persists them durably.
type Store struct {
	rdb    *redis.Client
	signer *signer.Signer
	log    logger.Logger
}

// New creates a Store on an existing Redis client
func New(rdb *redis.Client, sig *signer.Signer, log logger.Logger) *Store {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Store{rdb: rdb, signer: sig, log: log}
}

// Ping verifies the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func baseIndexKey(baseKey string) string {
	return baseIndexPrefix + baseKey
}

func intentKey(uniqueKey string) string {
	return intentKeyPrefix + uniqueKey
}

// Register computes the base and unique keys for the intent and writes the
// active-set entry, the base index entry and the intent record in a single
// transaction. The returned unique key identifies the registration.
func (s *Store) Register(ctx context.Context, intent models.Intent) (string, error) {
	payload := signer.OrderPayload{
		ChainID:   intent.ChainID,
		To:        intent.To,
		From:      intent.From,
		ERC20:     intent.ERC20,
		Amount:    intent.Amount,
		Timestamp: intent.Timestamp,
	}
	baseKey := s.signer.BaseKey(signer.TransferKeyPayload{
		ChainID: intent.ChainID,
		To:      intent.To,
		From:    intent.From,
		ERC20:   intent.ERC20,
		Amount:  intent.Amount,
	})
	uniqueKey := s.signer.UniqueKey(payload)

	// The sequence fixes candidate ordering: candidates are returned in
	// registration order, so matching stays deterministic when several
	// intents share a base key.
	seq, err := s.rdb.Incr(ctx, registerSeqKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate registration sequence: %w", err)
	}

	intent.Status = models.StatusPending
	intent.BaseKey = baseKey
	intent.UniqueKey = uniqueKey

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, activeSetKey, uniqueKey)
		pipe.ZAdd(ctx, baseIndexKey(baseKey), redis.Z{Score: float64(seq), Member: uniqueKey})
		pipe.HSet(ctx, intentKey(uniqueKey), intentFields(intent))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to register intent %s: %w", intent.OrderID, err)
	}

	s.log.DebugWithChain(intent.ChainID, "Registered intent %s under base key %s", intent.OrderID, baseKey)
	return uniqueKey, nil
}

// FindCandidatesByTransfer returns the unique keys of all active intents
// whose base key matches the transfer's economic fields, in registration
// order. An empty result means the transfer matches no known intent.
func (s *Store) FindCandidatesByTransfer(ctx context.Context, transfer models.TransferEvent) ([]string, error) {
	baseKey := s.signer.BaseKey(signer.TransferKeyPayload{
		ChainID: transfer.ChainID,
		To:      transfer.To,
		From:    transfer.From,
		ERC20:   transfer.ERC20,
		Amount:  transfer.Amount,
	})

	indexed, err := s.rdb.ZRange(ctx, baseIndexKey(baseKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read base index: %w", err)
	}
	if len(indexed) == 0 {
		return nil, nil
	}

	active, err := s.rdb.SMIsMember(ctx, activeSetKey, toAnySlice(indexed)...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check active set: %w", err)
	}

	candidates := make([]string, 0, len(indexed))
	for i, uniqueKey := range indexed {
		if active[i] {
			candidates = append(candidates, uniqueKey)
		}
	}
	return candidates, nil
}

// GetIntent returns the intent snapshot stored under the unique key
func (s *Store) GetIntent(ctx context.Context, uniqueKey string) (models.Intent, error) {
	var intent models.Intent
	fields, err := s.rdb.HGetAll(ctx, intentKey(uniqueKey)).Result()
	if err != nil {
		return intent, fmt.Errorf("failed to read intent record: %w", err)
	}
	if len(fields) == 0 {
		return intent, ErrNotFound
	}

	chainID, err := strconv.Atoi(fields["chainId"])
	if err != nil {
		return intent, fmt.Errorf("corrupt intent record %s: bad chainId: %w", uniqueKey, err)
	}
	timestamp, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return intent, fmt.Errorf("corrupt intent record %s: bad timestamp: %w", uniqueKey, err)
	}

	return models.Intent{
		OrderID:   fields["orderId"],
		ERC20:     fields["erc20"],
		From:      fields["from"],
		To:        fields["to"],
		Amount:    fields["amount"],
		ChainID:   chainID,
		Timestamp: timestamp,
		Signature: fields["signature"],
		Status:    models.OrderStatus(fields["status"]),
		TxHash:    fields["txHash"],
		Reason:    fields["reason"],
		BaseKey:   fields["baseKey"],
		UniqueKey: fields["uniqueKey"],
	}, nil
}

// MarkVerifying transitions the intent from PENDING to VERIFYING.
// Calling it again while the intent is already VERIFYING is a no-op.
func (s *Store) MarkVerifying(ctx context.Context, uniqueKey string) error {
	res, err := markVerifyingScript.Run(ctx, s.rdb,
		[]string{intentKey(uniqueKey)},
	).Int()
	if err != nil {
		return fmt.Errorf("failed to mark intent verifying: %w", err)
	}
	return transitionError(res)
}

// MarkCompleted settles the intent as COMPLETED with the transaction hash.
// Atomically updates the record, adds the unique key to the settled index and
// removes it from the active set and its base index. Idempotent.
func (s *Store) MarkCompleted(ctx context.Context, uniqueKey, txHash string) error {
	return s.settle(ctx, uniqueKey, models.StatusCompleted, txHash, "")
}

// MarkCancelled settles the intent as CANCELLED with the failure reason.
// Same atomicity and idempotence as MarkCompleted.
func (s *Store) MarkCancelled(ctx context.Context, uniqueKey, txHash, reason string) error {
	return s.settle(ctx, uniqueKey, models.StatusCancelled, txHash, reason)
}

func (s *Store) settle(ctx context.Context, uniqueKey string, status models.OrderStatus, txHash, reason string) error {
	intent, err := s.GetIntent(ctx, uniqueKey)
	if err != nil {
		return err
	}

	res, err := settleScript.Run(ctx, s.rdb,
		[]string{intentKey(uniqueKey), activeSetKey, settledIndexKey, baseIndexKey(intent.BaseKey)},
		uniqueKey, string(status), txHash, reason, time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to settle intent: %w", err)
	}
	return transitionError(res)
}

// SettledEntry pairs a settled intent snapshot with its settlement time
type SettledEntry struct {
	Intent    models.Intent
	SettledAt time.Time
}

// DrainSettled returns up to limit settled entries, most recent first.
// Entries are not removed; eviction is explicit.
func (s *Store) DrainSettled(ctx context.Context, limit int) ([]SettledEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	scored, err := s.rdb.ZRevRangeWithScores(ctx, settledIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read settled index: %w", err)
	}

	entries := make([]SettledEntry, 0, len(scored))
	for _, z := range scored {
		uniqueKey, ok := z.Member.(string)
		if !ok {
			continue
		}
		intent, err := s.GetIntent(ctx, uniqueKey)
		if errors.Is(err, ErrNotFound) {
			// Record already evicted; drop the dangling index entry
			s.rdb.ZRem(ctx, settledIndexKey, uniqueKey)
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, SettledEntry{
			Intent:    intent,
			SettledAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return entries, nil
}

// Evict removes settled records and their settled-index entries.
// Missing keys are ignored.
func (s *Store) Evict(ctx context.Context, uniqueKeys []string) error {
	if len(uniqueKeys) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, uniqueKey := range uniqueKeys {
			pipe.Del(ctx, intentKey(uniqueKey))
			pipe.ZRem(ctx, settledIndexKey, uniqueKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to evict settled intents: %w", err)
	}
	return nil
}

// ActiveCount returns the number of intents awaiting settlement
func (s *Store) ActiveCount(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, activeSetKey).Result()
}

// SettledCount returns the number of settled intents awaiting sweep
func (s *Store) SettledCount(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, settledIndexKey).Result()
}

func intentFields(intent models.Intent) map[string]interface{} {
	return map[string]interface{}{
		"orderId":   intent.OrderID,
		"erc20":     intent.ERC20,
		"from":      intent.From,
		"to":        intent.To,
		"amount":    intent.Amount,
		"chainId":   strconv.Itoa(intent.ChainID),
		"timestamp": strconv.FormatInt(intent.Timestamp, 10),
		"signature": intent.Signature,
		"status":    string(intent.Status),
		"txHash":    intent.TxHash,
		"reason":    intent.Reason,
		"baseKey":   intent.BaseKey,
		"uniqueKey": intent.UniqueKey,
	}
}

func toAnySlice(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func transitionError(res int) error {
	switch res {
	case transitionApplied, transitionNoop:
		return nil
	case transitionMissing:
		return ErrNotFound
	default:
		return ErrConflict
	}
}
