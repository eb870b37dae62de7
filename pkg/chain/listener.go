package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/proofline-hq/proofline/pkg/config"
	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/models"
)

const reconnectDelay = 5 * time.Second

// Enqueuer hands observed transfers to the ingest queue
type Enqueuer interface {
	EnqueueTransfer(ctx context.Context, transfer models.TransferEvent) error
}

// Listener watches one chain's token contract for Transfer events and feeds
// them to the ingest queue. WebSocket endpoints use a log subscription, HTTP
// endpoints fall back to block-range polling.
type Listener struct {
	cfg      config.ChainConfig
	client   *ethclient.Client
	enqueuer Enqueuer
	log      logger.Logger
}

// NewListener connects to the chain's RPC endpoint and creates a Listener
func NewListener(ctx context.Context, cfg config.ChainConfig, enqueuer Enqueuer, log logger.Logger) (*Listener, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %w", cfg.ChainID, err)
	}

	return &Listener{
		cfg:      cfg,
		client:   client,
		enqueuer: enqueuer,
		log:      log,
	}, nil
}

// Run watches for Transfer events until the context is cancelled
func (l *Listener) Run(ctx context.Context) {
	defer l.client.Close()

	if strings.HasPrefix(l.cfg.RPCURL, "ws://") || strings.HasPrefix(l.cfg.RPCURL, "wss://") {
		l.subscribeLoop(ctx)
		return
	}
	l.pollLoop(ctx)
}

func (l *Listener) filterQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(l.cfg.TokenAddress)},
		Topics:    [][]common.Hash{{TransferTopic}},
	}
}

func (l *Listener) subscribeLoop(ctx context.Context) {
	l.log.InfoWithChain(l.cfg.ChainID, "Subscribing to Transfer events on %s", l.cfg.TokenAddress)

	for {
		logs := make(chan types.Log, 64)
		sub, err := l.client.SubscribeFilterLogs(ctx, l.filterQuery(), logs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.ErrorWithChain(l.cfg.ChainID, "Failed to subscribe to logs: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		if !l.consume(ctx, sub, logs) {
			return
		}
	}
}

// consume drains the subscription; returns false when the context is done
func (l *Listener) consume(ctx context.Context, sub ethereum.Subscription, logs <-chan types.Log) bool {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-sub.Err():
			l.log.ErrorWithChain(l.cfg.ChainID, "Log subscription dropped: %v", err)
			return true
		case entry := <-logs:
			l.handleLog(ctx, entry)
		}
	}
}

func (l *Listener) pollLoop(ctx context.Context) {
	l.log.InfoWithChain(l.cfg.ChainID, "Polling for Transfer events on %s every %v", l.cfg.TokenAddress, l.cfg.PollInterval)

	var lastBlock uint64
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := l.client.BlockNumber(ctx)
			if err != nil {
				l.log.ErrorWithChain(l.cfg.ChainID, "Failed to get block number: %v", err)
				continue
			}
			if lastBlock == 0 {
				// First tick establishes the starting point
				lastBlock = head
				continue
			}
			if head <= lastBlock {
				continue
			}

			query := l.filterQuery()
			query.FromBlock = new(big.Int).SetUint64(lastBlock + 1)
			query.ToBlock = new(big.Int).SetUint64(head)

			entries, err := l.client.FilterLogs(ctx, query)
			if err != nil {
				l.log.ErrorWithChain(l.cfg.ChainID, "Failed to filter logs %d-%d: %v", lastBlock+1, head, err)
				continue
			}
			for _, entry := range entries {
				l.handleLog(ctx, entry)
			}
			lastBlock = head
		}
	}
}

func (l *Listener) handleLog(ctx context.Context, entry types.Log) {
	if entry.Removed {
		l.log.DebugWithChain(l.cfg.ChainID, "Skipping reorged log %s", entry.TxHash.Hex())
		return
	}

	transfer, err := ParseTransferLog(l.cfg.ChainID, l.cfg.Network, entry)
	if err != nil {
		l.log.DebugWithChain(l.cfg.ChainID, "Skipping log: %v", err)
		return
	}

	if err := l.enqueuer.EnqueueTransfer(ctx, transfer); err != nil {
		l.log.ErrorWithChain(l.cfg.ChainID, "Failed to enqueue transfer %s: %v", transfer.TxHash, err)
	}
}
