package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferLog(from, to common.Address, amount *big.Int) types.Log {
	return types.Log{
		Address: common.HexToAddress("0xAbCd00000000000000000000000000000000EF12"),
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: 12345,
		TxHash:      common.HexToHash("0xDEAD"),
		BlockHash:   common.HexToHash("0xBEEF"),
	}
}

func TestParseTransferLog(t *testing.T) {
	from := common.HexToAddress("0xBBBB000000000000000000000000000000000001")
	to := common.HexToAddress("0xCCCC000000000000000000000000000000000002")
	amount, _ := new(big.Int).SetString("123456789000000000000", 10)

	transfer, err := ParseTransferLog(97, "bsc-testnet", transferLog(from, to, amount))
	require.NoError(t, err)

	assert.Equal(t, "0xbbbb000000000000000000000000000000000001", transfer.From)
	assert.Equal(t, "0xcccc000000000000000000000000000000000002", transfer.To)
	assert.Equal(t, "0xabcd00000000000000000000000000000000ef12", transfer.ERC20)
	assert.Equal(t, "123456789000000000000", transfer.Amount)
	assert.Equal(t, 97, transfer.ChainID)
	assert.Equal(t, "bsc-testnet", transfer.Network)
	assert.Equal(t, uint64(12345), transfer.BlockNumber)
}

func TestParseTransferLogRejectsWrongTopicCount(t *testing.T) {
	entry := transferLog(common.Address{}, common.Address{}, big.NewInt(1))
	entry.Topics = entry.Topics[:2]

	_, err := ParseTransferLog(97, "bsc-testnet", entry)
	assert.Error(t, err)
}

func TestParseTransferLogRejectsOtherEvents(t *testing.T) {
	entry := transferLog(common.Address{}, common.Address{}, big.NewInt(1))
	entry.Topics[0] = common.HexToHash("0x01")

	_, err := ParseTransferLog(97, "bsc-testnet", entry)
	assert.Error(t, err)
}

func TestParseTransferLogZeroAmount(t *testing.T) {
	entry := transferLog(common.Address{}, common.Address{}, big.NewInt(0))

	transfer, err := ParseTransferLog(97, "bsc-testnet", entry)
	require.NoError(t, err)
	assert.Equal(t, "0", transfer.Amount)
}
