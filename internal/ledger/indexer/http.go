package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"certledger/internal/ledger/tx"
	dErrors "certledger/pkg/domain-errors"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL    string
	ProjectID  string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// HTTPClient talks to a hosted indexer using Blockfrost-style routes.
type HTTPClient struct {
	baseURL   string
	projectID string
	client    HTTPDoer
}

// NewHTTPClient creates an HTTP indexer client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		projectID: cfg.ProjectID,
		client:    doer,
	}
}

type wireTx struct {
	Hash        string `json:"hash"`
	Block       string `json:"block"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
	Slot        uint64 `json:"slot"`
}

type wireBlock struct {
	Slot   uint64 `json:"slot"`
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
	Time   int64  `json:"time"`
}

type wireAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type wireUTXO struct {
	Address     string       `json:"address"`
	TxHash      string       `json:"tx_hash"`
	OutputIndex uint32       `json:"output_index"`
	Amount      []wireAmount `json:"amount"`
}

// Asset fetches an asset by concatenated hex id.
func (c *HTTPClient) Asset(ctx context.Context, assetID string) (*Asset, error) {
	var out Asset
	if err := c.get(ctx, "/assets/"+url.PathEscape(assetID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssetHistory fetches the mint/burn history of an asset.
func (c *HTTPClient) AssetHistory(ctx context.Context, assetID string) ([]AssetEvent, error) {
	var out []AssetEvent
	if err := c.get(ctx, "/assets/"+url.PathEscape(assetID)+"/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transaction fetches an included transaction. Not-yet-included transactions
// are reported as ledger not found.
func (c *HTTPClient) Transaction(ctx context.Context, txHash string) (*Transaction, error) {
	var w wireTx
	if err := c.get(ctx, "/txs/"+url.PathEscape(txHash), &w); err != nil {
		return nil, err
	}
	return &Transaction{
		Hash:      w.Hash,
		Block:     w.Block,
		Height:    w.BlockHeight,
		Slot:      w.Slot,
		BlockTime: time.Unix(w.BlockTime, 0).UTC(),
	}, nil
}

// UTXOs lists unspent outputs at address. An unused address has none.
func (c *HTTPClient) UTXOs(ctx context.Context, address string) ([]tx.UTXO, error) {
	var w []wireUTXO
	err := c.get(ctx, "/addresses/"+url.PathEscape(address)+"/utxos", &w)
	if dErrors.HasReason(err, dErrors.CodeLedger, dErrors.ReasonNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]tx.UTXO, 0, len(w))
	for _, u := range w {
		utxo := tx.UTXO{TxHash: u.TxHash, Index: u.OutputIndex, Address: u.Address}
		for _, a := range u.Amount {
			qty, err := strconv.ParseUint(a.Quantity, 10, 64)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "indexer returned a malformed quantity")
			}
			if a.Unit == "lovelace" {
				utxo.Lovelace = qty
				continue
			}
			if utxo.Assets == nil {
				utxo.Assets = map[string]uint64{}
			}
			utxo.Assets[a.Unit] = qty
		}
		out = append(out, utxo)
	}
	return out, nil
}

// Submit broadcasts a signed transaction and returns its hash.
func (c *HTTPClient) Submit(ctx context.Context, signedTx []byte) (string, error) {
	var hash string
	if err := c.do(ctx, http.MethodPost, "/tx/submit", bytes.NewReader(signedTx), "application/cbor", &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// Tip returns the latest block.
func (c *HTTPClient) Tip(ctx context.Context) (*Tip, error) {
	var b wireBlock
	if err := c.get(ctx, "/blocks/latest", &b); err != nil {
		return nil, err
	}
	return &Tip{Slot: b.Slot, Height: b.Height, Hash: b.Hash, Time: time.Unix(b.Time, 0).UTC()}, nil
}

// Health checks that the indexer answers.
func (c *HTTPClient) Health(ctx context.Context) error {
	_, err := c.Tip(ctx)
	return err
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create indexer request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.projectID != "" {
		req.Header.Set("project_id", c.projectID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return dErrors.WrapReason(err, dErrors.CodeNetwork, dErrors.ReasonTimeout, "indexer request timeout")
		}
		return dErrors.WrapReason(err, dErrors.CodeNetwork, dErrors.ReasonUnavailable, "failed to reach indexer")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return dErrors.WrapReason(err, dErrors.CodeNetwork, dErrors.ReasonUnavailable, "failed to read indexer response")
	}

	if err := classifyStatus(method, resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode indexer response")
	}
	return nil
}

type wireError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func classifyStatus(method string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var w wireError
	_ = json.Unmarshal(body, &w) //nolint:errcheck // message is best-effort
	detail := w.Message
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusNotFound:
		return dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonNotFound, "not found on ledger")
	case status == http.StatusBadRequest && method == http.MethodPost:
		return dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "transaction rejected: "+detail)
	case status == http.StatusBadRequest:
		return dErrors.New(dErrors.CodeValidation, "indexer rejected query: "+detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("indexer authentication failed: %d", status))
	case status == http.StatusTooManyRequests || status == 418 || status >= 500:
		return dErrors.NewReason(dErrors.CodeNetwork, dErrors.ReasonUnavailable, fmt.Sprintf("indexer unavailable: %d", status))
	default:
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected indexer status %d: %s", status, detail))
	}
}
