package models

// TransferEvent is a normalized on-chain transfer observation.
// All addresses and hashes are lower-cased hex; the amount is a
// base-10 string so arbitrary-precision values survive transport.
type TransferEvent struct {
	From        string `json:"from"`
	To          string `json:"to"`
	ERC20       string `json:"erc20"`
	Amount      string `json:"amount"`
	ChainID     int    `json:"chainId"`
	Network     string `json:"network"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
}

// Intent is the fast-store snapshot of an active order.
// It mirrors the durable Order while the order is awaiting settlement;
// the durable store remains the system of record.
type Intent struct {
	OrderID   string      `json:"orderId"`
	ERC20     string      `json:"erc20"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Amount    string      `json:"amount"`
	ChainID   int         `json:"chainId"`
	Timestamp int64       `json:"timestamp"`
	Signature string      `json:"signature"`
	Status    OrderStatus `json:"status"`
	TxHash    string      `json:"txHash"`
	Reason    string      `json:"reason"`
	BaseKey   string      `json:"baseKey"`
	UniqueKey string      `json:"uniqueKey"`
}
