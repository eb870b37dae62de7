package queue

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofline-hq/proofline/pkg/models"
)

func TestTransferTaskRoundTrip(t *testing.T) {
	transfer := models.TransferEvent{
		From:        "0xbbb",
		To:          "0xccc",
		ERC20:       "0xaaa",
		Amount:      "123456789000000000000",
		ChainID:     97,
		Network:     "bsc-testnet",
		TxHash:      "0xdeadbeef",
		BlockNumber: 42,
		BlockHash:   "0xfeed",
	}

	task, err := NewTransferTask(transfer)
	require.NoError(t, err)
	assert.Equal(t, TypeTransferObserved, task.Type())

	decoded, err := ParseTransferTask(task)
	require.NoError(t, err)
	assert.Equal(t, transfer, decoded)
}

func TestParseTransferTaskRejectsGarbage(t *testing.T) {
	_, err := ParseTransferTask(asynq.NewTask(TypeTransferObserved, []byte("{not json")))
	assert.Error(t, err)
}
