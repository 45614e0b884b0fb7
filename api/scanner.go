// Package api contains clients for the external services the bot consumes:
// the block-explorer transaction lookup and the pending-transaction feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// ScannerClient queries an etherscan-style HTTP API for the transaction
// history of an address, newest first.
type ScannerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ScannerTx is one entry of the scanner's txlist response. All numeric
// fields arrive as decimal strings.
type ScannerTx struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Input       string `json:"input"`
	BlockNumber string `json:"blockNumber"`
	IsError     string `json:"isError"`
}

type txListResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Result  []ScannerTx `json:"result"`
}

// NewScannerClient creates a client for the given scanner endpoint.
func NewScannerClient(baseURL, apiKey string) *ScannerClient {
	return &ScannerClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Transactions fetches the full transaction list for an address, newest
// first.
func (c *ScannerClient) Transactions(ctx context.Context, address string) ([]ScannerTx, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("sort", "desc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scanner returned status %d: %s", resp.StatusCode, string(body))
	}

	var list txListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	// The scanner reports status "0" both for errors and for an empty
	// result set; only the former carries a non-empty message.
	if list.Status != "1" && len(list.Result) == 0 && list.Message != "No transactions found" {
		return nil, fmt.Errorf("scanner error: %s", list.Message)
	}

	return list.Result, nil
}

// LatestTransaction returns the most recent transaction for an address,
// or nil when the address has no history yet.
func (c *ScannerClient) LatestTransaction(ctx context.Context, address string) (*ScannerTx, error) {
	txs, err := c.Transactions(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// Candidate converts a scanner entry into the pipeline's candidate form.
func (t *ScannerTx) Candidate() (models.CandidateTx, error) {
	value := new(big.Int)
	if t.Value != "" {
		if _, ok := value.SetString(t.Value, 10); !ok {
			return models.CandidateTx{}, fmt.Errorf("invalid value %q in tx %s", t.Value, t.Hash)
		}
	}
	var input []byte
	if t.Input != "" && t.Input != "0x" {
		decoded, err := hexutil.Decode(t.Input)
		if err != nil {
			return models.CandidateTx{}, fmt.Errorf("invalid input in tx %s: %w", t.Hash, err)
		}
		input = decoded
	}
	return models.CandidateTx{
		Hash:  strings.ToLower(t.Hash),
		From:  strings.ToLower(t.From),
		To:    strings.ToLower(t.To),
		Input: input,
		Value: value,
	}, nil
}
