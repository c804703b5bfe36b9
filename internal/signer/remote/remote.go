// Package remote implements a signer that delegates to an HTTP wallet bridge.
//
// The bridge exposes the wallet's dApp connector surface over HTTP:
//
//	GET  /api/address  -> {"address": "addr..."}
//	GET  /api/utxos    -> [{"txHash", "outputIndex", "address", "amount": [{"unit", "quantity"}]}]
//	POST /api/sign     {"tx": "<cbor hex>", "partialSign": true} -> {"witnessSet": "<cbor hex>"}
//	POST /api/submit   {"tx": "<cbor hex>"} -> {"txHash": "..."}
//
// Failures carry {"code": n, "info": "..."} using the connector error codes.
package remote

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"certledger/internal/ledger/tx"
	"certledger/internal/signer"
	dErrors "certledger/pkg/domain-errors"
)

// Connector API error codes.
const (
	apiInvalidRequest = -1
	apiInternalError  = -2
	apiRefused        = -3
	apiAccountChange  = -4
)

// Sign error codes.
const (
	signProofGeneration = 1
	signUserDeclined    = 2
)

// Submit error codes.
const (
	submitRefused = 1
	submitFailure = 2
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Logger     *slog.Logger
}

// Client is a Connector backed by a wallet bridge.
type Client struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// New creates a wallet bridge client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		// Signing waits on a human; allow far longer than an indexer call.
		cfg.Timeout = 2 * time.Minute
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: cfg.BaseURL, client: doer, logger: logger}
}

type addressResponse struct {
	Address string `json:"address"`
}

type wireAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type wireUTXO struct {
	TxHash      string       `json:"txHash"`
	OutputIndex uint32       `json:"outputIndex"`
	Address     string       `json:"address"`
	Amount      []wireAmount `json:"amount"`
}

type txRequest struct {
	Tx          string `json:"tx"`
	PartialSign bool   `json:"partialSign,omitempty"`
}

type signResponse struct {
	WitnessSet string `json:"witnessSet"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
}

type wireError struct {
	Code int    `json:"code"`
	Info string `json:"info"`
}

type operation string

const (
	opQuery  operation = "query"
	opSign   operation = "sign"
	opSubmit operation = "submit"
)

func (c *Client) Address(ctx context.Context) (string, error) {
	var out addressResponse
	if err := c.do(ctx, opQuery, http.MethodGet, "/api/address", nil, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "wallet returned no address")
	}
	return out.Address, nil
}

// KeyHash is the payment key hash of the wallet's change address.
func (c *Client) KeyHash(ctx context.Context) (tx.KeyHash, error) {
	addr, err := c.Address(ctx)
	if err != nil {
		return tx.KeyHash{}, err
	}
	kh, ok := signer.PaymentKeyHash(addr)
	if !ok {
		return tx.KeyHash{}, dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "wallet address has no payment key")
	}
	return kh, nil
}

func (c *Client) UTXOs(ctx context.Context) ([]tx.UTXO, error) {
	var wire []wireUTXO
	if err := c.do(ctx, opQuery, http.MethodGet, "/api/utxos", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]tx.UTXO, 0, len(wire))
	for _, w := range wire {
		u := tx.UTXO{TxHash: w.TxHash, Index: w.OutputIndex, Address: w.Address}
		for _, a := range w.Amount {
			qty, err := strconv.ParseUint(a.Quantity, 10, 64)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeWallet, "wallet returned malformed amount")
			}
			if a.Unit == "lovelace" {
				u.Lovelace = qty
				continue
			}
			if u.Assets == nil {
				u.Assets = map[string]uint64{}
			}
			u.Assets[a.Unit] = qty
		}
		out = append(out, u)
	}
	return out, nil
}

// Sign asks the wallet for key witnesses over the unsigned transaction.
func (c *Client) Sign(ctx context.Context, unsigned *tx.Unsigned) ([]tx.VKeyWitness, error) {
	raw, err := unsigned.CBOR()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "encode unsigned transaction")
	}
	var out signResponse
	req := txRequest{Tx: hex.EncodeToString(raw), PartialSign: true}
	if err := c.do(ctx, opSign, http.MethodPost, "/api/sign", req, &out); err != nil {
		return nil, err
	}
	wsRaw, err := hex.DecodeString(out.WitnessSet)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeWallet, "wallet returned malformed witness set")
	}
	ws, err := tx.DecodeWitnessSet(wsRaw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeWallet, "wallet returned malformed witness set")
	}
	if len(ws.VKeys) == 0 {
		return nil, dErrors.New(dErrors.CodeWallet, "wallet returned no key witnesses")
	}
	return ws.VKeys, nil
}

func (c *Client) Submit(ctx context.Context, signedTx []byte) (string, error) {
	var out submitResponse
	if err := c.do(ctx, opSubmit, http.MethodPost, "/api/submit", txRequest{Tx: hex.EncodeToString(signedTx)}, &out); err != nil {
		return "", err
	}
	return out.TxHash, nil
}

func (c *Client) do(ctx context.Context, op operation, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode wallet request")
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create wallet request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "wallet bridge error", "operation", op, "status", resp.StatusCode)
		return classify(op, resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeWallet, "failed to decode wallet response")
	}
	return nil
}

// transportError maps an unreachable bridge. Submission failures are network
// errors (retryable); anything earlier means the signer is unavailable.
func transportError(ctx context.Context, op operation, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return dErrors.WrapReason(err, dErrors.CodeValidation, dErrors.ReasonCancelled, "wallet request cancelled")
	}
	if op == opSubmit {
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.WrapReason(err, dErrors.CodeNetwork, dErrors.ReasonTimeout, "wallet submission timeout")
		}
		return dErrors.WrapReason(err, dErrors.CodeNetwork, dErrors.ReasonUnavailable, "failed to reach wallet for submission")
	}
	return dErrors.WrapReason(err, dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "failed to reach wallet")
}

func classify(op operation, status int, body []byte) error {
	var w wireError
	if err := json.Unmarshal(body, &w); err != nil || (w.Code == 0 && w.Info == "") {
		if status >= 500 && op == opSubmit {
			return dErrors.NewReason(dErrors.CodeNetwork, dErrors.ReasonUnavailable, fmt.Sprintf("wallet bridge status %d", status))
		}
		return dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, fmt.Sprintf("wallet bridge status %d", status))
	}
	detail := w.Info
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch op {
	case opSign:
		switch w.Code {
		case signUserDeclined:
			return dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonUserCancelled, "signing declined: "+detail)
		case signProofGeneration:
			return dErrors.New(dErrors.CodeWallet, "wallet cannot sign this transaction: "+detail)
		}
	case opSubmit:
		switch w.Code {
		case submitRefused:
			return dErrors.NewReason(dErrors.CodeLedger, dErrors.ReasonRejected, "transaction rejected: "+detail)
		case submitFailure:
			return dErrors.NewReason(dErrors.CodeNetwork, dErrors.ReasonUnavailable, "submission failed: "+detail)
		}
	}

	switch w.Code {
	case apiRefused:
		return dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonUserCancelled, "wallet refused access: "+detail)
	case apiAccountChange:
		return dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "wallet account changed: "+detail)
	case apiInvalidRequest:
		return dErrors.New(dErrors.CodeInternal, "wallet rejected request: "+detail)
	case apiInternalError:
		return dErrors.NewReason(dErrors.CodeWallet, dErrors.ReasonSignerUnavailable, "wallet internal error: "+detail)
	default:
		return dErrors.New(dErrors.CodeWallet, fmt.Sprintf("wallet error %d: %s", w.Code, detail))
	}
}

var _ signer.Connector = (*Client)(nil)
