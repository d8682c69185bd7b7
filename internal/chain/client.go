package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds a single indexer HTTP call.
const DefaultRequestTimeout = 10 * time.Second

// Client fetches wallet history from an indexing API over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates an indexer client. The API key is sent as a bearer
// token on every request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
}

// transferItem is the raw shape returned by the indexer for one transfer.
type transferItem struct {
	Hash            string `json:"tx_hash"`
	From            string `json:"from_address"`
	To              string `json:"to_address"`
	Value           string `json:"value"` // raw integer units
	Decimals        int    `json:"contract_decimals"`
	Symbol          string `json:"contract_ticker_symbol"`
	ContractAddress string `json:"contract_address"`
	GasUsed         uint64 `json:"gas_spent"`
	BlockSignedAt   string `json:"block_signed_at"` // RFC3339
}

type transfersResponse struct {
	Data struct {
		Address string         `json:"address"`
		Items   []transferItem `json:"items"`
	} `json:"data"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"error_message"`
}

type balanceItem struct {
	Symbol          string `json:"contract_ticker_symbol"`
	Balance         string `json:"balance"` // raw integer units
	Decimals        int    `json:"contract_decimals"`
	ContractAddress string `json:"contract_address"`
}

type balancesResponse struct {
	Data struct {
		Items []balanceItem `json:"items"`
	} `json:"data"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// FetchTransactions returns the wallet's normalized transfer history.
func (c *Client) FetchTransactions(ctx context.Context, address string) ([]Transaction, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, ErrInvalidAddress
	}

	var resp transfersResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/address/%s/transfers", url.PathEscape(address)), &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, resp.ErrorMessage)
	}

	txs := make([]Transaction, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		tx, ok := normalizeTransfer(address, item)
		if !ok {
			continue // skip records the indexer could not fully resolve
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// FetchTokenBalances returns the wallet's normalized token holdings.
func (c *Client) FetchTokenBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, ErrInvalidAddress
	}

	var resp balancesResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/address/%s/balances", url.PathEscape(address)), &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, resp.ErrorMessage)
	}

	balances := make([]TokenBalance, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		balances = append(balances, TokenBalance{
			Symbol:   item.Symbol,
			Balance:  adjustDecimals(item.Balance, item.Decimals),
			Contract: strings.ToLower(item.ContractAddress),
			Decimals: item.Decimals,
		})
	}
	return balances, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// normalizeTransfer converts a raw indexer item into the engine model.
// Direction is inferred from the from/to fields relative to the subject;
// the counterparty is the other side of the transfer.
func normalizeTransfer(subject string, item transferItem) (Transaction, bool) {
	from := strings.ToLower(item.From)
	to := strings.ToLower(item.To)

	var dir Direction
	var counterparty string
	switch {
	case to == subject:
		dir = DirectionIncoming
		counterparty = from
	case from == subject:
		dir = DirectionOutgoing
		counterparty = to
	default:
		return Transaction{}, false // transfer does not involve the subject
	}

	ts, err := time.Parse(time.RFC3339, item.BlockSignedAt)
	if err != nil {
		return Transaction{}, false
	}

	symbol := item.Symbol
	if symbol == "" {
		symbol = "ETH"
	}

	return Transaction{
		Hash:         item.Hash,
		Direction:    dir,
		Token:        symbol,
		Amount:       adjustDecimals(item.Value, item.Decimals),
		Counterparty: counterparty,
		From:         from,
		To:           to,
		Timestamp:    ts,
		GasUsed:      item.GasUsed,
		Contract:     strings.ToLower(item.ContractAddress),
	}, true
}

// adjustDecimals converts a raw integer value string into a decimal amount.
// Malformed values normalize to 0 rather than failing the whole fetch.
func adjustDecimals(raw string, decimals int) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	if decimals <= 0 {
		return v
	}
	return v / math.Pow10(decimals)
}
