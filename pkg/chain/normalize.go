// Package chain watches ERC-20 Transfer events on the configured chains and
// normalizes them into the canonical transfer form used for matching.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/proofline-hq/proofline/pkg/models"
)

// TransferTopic is the topic0 of the ERC-20 Transfer(address,address,uint256) event
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ParseTransferLog normalizes a raw Transfer log into a TransferEvent.
// Addresses and hashes are lowercased and the amount is rendered as a
// decimal string so downstream matching is exact.
func ParseTransferLog(chainID int, network string, log types.Log) (models.TransferEvent, error) {
	var transfer models.TransferEvent

	if len(log.Topics) != 3 {
		return transfer, fmt.Errorf("log %s has %d topics, want 3", log.TxHash.Hex(), len(log.Topics))
	}
	if log.Topics[0] != TransferTopic {
		return transfer, fmt.Errorf("log %s is not a Transfer event", log.TxHash.Hex())
	}

	amount := new(big.Int).SetBytes(log.Data)

	return models.TransferEvent{
		From:        strings.ToLower(common.HexToAddress(log.Topics[1].Hex()).Hex()),
		To:          strings.ToLower(common.HexToAddress(log.Topics[2].Hex()).Hex()),
		ERC20:       strings.ToLower(log.Address.Hex()),
		Amount:      amount.String(),
		ChainID:     chainID,
		Network:     network,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		BlockNumber: log.BlockNumber,
		BlockHash:   strings.ToLower(log.BlockHash.Hex()),
	}, nil
}
