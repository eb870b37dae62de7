// Package signer derives the keyed hashes that identify and authenticate
// orders: the order signature, the base key shared by all orders with the
// same economic parameters, and the unique key of one signed instance.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"hash"
	"strings"
)

// OrderPayload holds the canonicalized fields of a signed order
type OrderPayload struct {
	ChainID   int
	To        string
	From      string
	ERC20     string
	Amount    string
	Timestamp int64
}

// TransferKeyPayload holds the economic fields shared by an order and a
// transfer that may settle it. The timestamp is deliberately absent so the
// derived base key is independent of when the order was signed.
type TransferKeyPayload struct {
	ChainID int
	To      string
	From    string
	ERC20   string
	Amount  string
}

// canonicalOrder is marshaled field-by-field in declaration order, which is
// the wire canonicalization every key derivation relies on. Addresses are
// lower-cased before marshaling.
type canonicalOrder struct {
	ChainID   int    `json:"chainId"`
	To        string `json:"to"`
	From      string `json:"from"`
	ERC20     string `json:"erc20"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Signer derives order signatures and fast-store index keys.
// The two secrets are independent: signatureSecret authenticates orders
// against their creators, indexSecret only namespaces internal index keys.
type Signer struct {
	signatureSecret []byte
	indexSecret     []byte
}

// New creates a Signer from the two HMAC secrets
func New(signatureSecret, indexSecret string) *Signer {
	return &Signer{
		signatureSecret: []byte(signatureSecret),
		indexSecret:     []byte(indexSecret),
	}
}

// SignOrder computes the HMAC-SHA512 signature of an order payload,
// returned as a lower-case hex string
func (s *Signer) SignOrder(p OrderPayload) string {
	return digest(sha512.New, s.signatureSecret, canonicalOrder{
		ChainID:   p.ChainID,
		To:        strings.ToLower(p.To),
		From:      strings.ToLower(p.From),
		ERC20:     strings.ToLower(p.ERC20),
		Amount:    p.Amount,
		Timestamp: p.Timestamp,
	})
}

// BaseKey computes the index key identifying an economic intent independent
// of signing time. Orders and transfers with the same chain, parties, asset
// and amount share a base key.
func (s *Signer) BaseKey(p TransferKeyPayload) string {
	return digest(sha256.New, s.indexSecret, canonicalOrder{
		ChainID: p.ChainID,
		To:      strings.ToLower(p.To),
		From:    strings.ToLower(p.From),
		ERC20:   strings.ToLower(p.ERC20),
		Amount:  p.Amount,
	})
}

// UniqueKey computes the index key of one specific signed instance.
// Two orders with identical economic parameters but different timestamps
// yield distinct unique keys under the same base key.
func (s *Signer) UniqueKey(p OrderPayload) string {
	return digest(sha256.New, s.indexSecret, canonicalOrder{
		ChainID:   p.ChainID,
		To:        strings.ToLower(p.To),
		From:      strings.ToLower(p.From),
		ERC20:     strings.ToLower(p.ERC20),
		Amount:    p.Amount,
		Timestamp: p.Timestamp,
	})
}

// Verify reports whether the given signature matches the payload.
// Comparison is constant-time.
func (s *Signer) Verify(p OrderPayload, signature string) bool {
	return hmac.Equal([]byte(s.SignOrder(p)), []byte(signature))
}

func digest(h func() hash.Hash, secret []byte, payload canonicalOrder) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// canonicalOrder contains only marshalable fields
		panic(err)
	}
	mac := hmac.New(h, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
