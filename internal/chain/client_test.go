package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subjectAddr = "0x1111111111111111111111111111111111111111"

const transfersFixture = `{
	"data": {
		"address": "0x1111111111111111111111111111111111111111",
		"items": [
			{
				"tx_hash": "0xaaa",
				"from_address": "0x1111111111111111111111111111111111111111",
				"to_address": "0x2222222222222222222222222222222222222222",
				"value": "1500000000000000000",
				"contract_decimals": 18,
				"contract_ticker_symbol": "ETH",
				"gas_spent": 21000,
				"block_signed_at": "2026-03-10T12:00:00Z"
			},
			{
				"tx_hash": "0xbbb",
				"from_address": "0x3333333333333333333333333333333333333333",
				"to_address": "0x1111111111111111111111111111111111111111",
				"value": "250000000",
				"contract_decimals": 6,
				"contract_ticker_symbol": "USDC",
				"contract_address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				"gas_spent": 48000,
				"block_signed_at": "2026-03-10T14:30:00Z"
			},
			{
				"tx_hash": "0xccc",
				"from_address": "0x4444444444444444444444444444444444444444",
				"to_address": "0x5555555555555555555555555555555555555555",
				"value": "1",
				"contract_decimals": 0,
				"block_signed_at": "2026-03-10T15:00:00Z"
			},
			{
				"tx_hash": "0xddd",
				"from_address": "0x1111111111111111111111111111111111111111",
				"to_address": "0x6666666666666666666666666666666666666666",
				"value": "1",
				"contract_decimals": 0,
				"block_signed_at": "not-a-timestamp"
			}
		]
	},
	"error": false
}`

func TestFetchTransactions_Normalization(t *testing.T) {
	var gotPath, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(transfersFixture))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "ckey_test")
	txs, err := c.FetchTransactions(context.Background(), subjectAddr)
	require.NoError(t, err)

	assert.Equal(t, "/v1/address/"+subjectAddr+"/transfers", gotPath)
	assert.Equal(t, "Bearer ckey_test", gotAuth)

	// Items 0xccc (not involving subject) and 0xddd (bad timestamp) are skipped
	require.Len(t, txs, 2)

	out := txs[0]
	assert.Equal(t, "0xaaa", out.Hash)
	assert.Equal(t, DirectionOutgoing, out.Direction)
	assert.Equal(t, "ETH", out.Token)
	assert.InDelta(t, 1.5, out.Amount, 1e-9)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", out.Counterparty)
	assert.Equal(t, uint64(21000), out.GasUsed)

	in := txs[1]
	assert.Equal(t, DirectionIncoming, in.Direction)
	assert.Equal(t, "USDC", in.Token)
	assert.InDelta(t, 250.0, in.Amount, 1e-9)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", in.Counterparty)
	// Contract addresses are lowercased
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", in.Contract)
}

func TestFetchTransactions_SubjectCaseInsensitive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(transfersFixture))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	txs, err := c.FetchTransactions(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	upper, err := c.FetchTransactions(context.Background(), "0X1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, len(txs), len(upper))
}

func TestFetchTransactions_EmptyAddress(t *testing.T) {
	c := NewClient("http://localhost:0", "")
	_, err := c.FetchTransactions(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestFetchTransactions_UpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"items": []}, "error": true, "error_message": "rate limited"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	_, err := c.FetchTransactions(context.Background(), subjectAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFetchTransactions_HTTPStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	_, err := c.FetchTransactions(context.Background(), subjectAddr)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestFetchTransactions_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": not json`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	_, err := c.FetchTransactions(context.Background(), subjectAddr)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFetchTokenBalances(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/address/"+subjectAddr+"/balances", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"data": {
				"items": [
					{"contract_ticker_symbol": "ETH", "balance": "2000000000000000000", "contract_decimals": 18},
					{"contract_ticker_symbol": "USDC", "balance": "5000000", "contract_decimals": 6, "contract_address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
					{"contract_ticker_symbol": "JUNK", "balance": "not-a-number", "contract_decimals": 18}
				]
			},
			"error": false
		}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	balances, err := c.FetchTokenBalances(context.Background(), subjectAddr)
	require.NoError(t, err)
	require.Len(t, balances, 3)

	assert.InDelta(t, 2.0, balances[0].Balance, 1e-9)
	assert.InDelta(t, 5.0, balances[1].Balance, 1e-9)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", balances[1].Contract)
	// Malformed balance normalizes to zero instead of failing the fetch
	assert.Zero(t, balances[2].Balance)
}

func TestAdjustDecimals(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int
		want     float64
	}{
		{"1500000000000000000", 18, 1.5},
		{"250000000", 6, 250},
		{"42", 0, 42},
		{"", 18, 0},
		{"not-a-number", 18, 0},
		{"-5", 0, 0},
	}

	for _, tc := range tests {
		got := adjustDecimals(tc.raw, tc.decimals)
		if got != tc.want {
			t.Errorf("adjustDecimals(%q, %d) = %v, want %v", tc.raw, tc.decimals, got, tc.want)
		}
	}
}
