// Package chain defines the normalized transaction and token-balance model
// consumed by the analysis engine, plus the client that fetches it from a
// third-party indexing API.
//
// All normalization (direction inference, decimal adjustment, counterparty
// derivation) happens here. Downstream packages trust this data as given
// and only handle nil/empty inputs.
package chain

import (
	"context"
	"errors"
	"time"
)

// Direction classifies a transfer relative to the subject wallet.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Transaction is a single normalized transfer involving the subject wallet.
// Immutable once produced; scoped to one analysis request.
type Transaction struct {
	Hash         string    `json:"hash"`
	Direction    Direction `json:"direction"`
	Token        string    `json:"token"`
	Amount       float64   `json:"amount"` // decimal-adjusted, >= 0
	Counterparty string    `json:"counterparty"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Timestamp    time.Time `json:"timestamp"`
	GasUsed      uint64    `json:"gasUsed"`
	Contract     string    `json:"contract,omitempty"` // token/contract address, if any
}

// TokenBalance is a single token holding of the subject wallet.
type TokenBalance struct {
	Symbol   string  `json:"symbol"`
	Balance  float64 `json:"balance"` // decimal-adjusted, >= 0
	Contract string  `json:"contract,omitempty"`
	Decimals int     `json:"decimals,omitempty"`
}

// Fetcher pulls a wallet's transfer and balance history.
// Implementations must return normalized data; a nil slice with nil error
// means the wallet has no history.
type Fetcher interface {
	FetchTransactions(ctx context.Context, address string) ([]Transaction, error)
	FetchTokenBalances(ctx context.Context, address string) ([]TokenBalance, error)
}

// Typed errors for programmatic handling.
var (
	ErrInvalidAddress = errors.New("chain: invalid address")
	ErrUpstream       = errors.New("chain: indexer request failed")
	ErrMalformed      = errors.New("chain: malformed indexer response")
)
