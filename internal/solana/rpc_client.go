package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrRetryExhausted is returned when an RPC call failed after its bounded retries.
// The last underlying error is attached via wrapping.
var ErrRetryExhausted = errors.New("rpc retry attempts exhausted")

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint this client talks to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// rpcErrMethodNotFound is the JSON-RPC code for an unsupported method.
const rpcErrMethodNotFound = -32601

// IsMethodDisabled reports whether err is an explicit "method disabled/unsupported"
// response from the node. Such errors are a negative capability, not a transient
// failure, and must never be retried.
func IsMethodDisabled(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == rpcErrMethodNotFound {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "disabled") || strings.Contains(msg, "not available")
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Delay after attempt n is retryDelay × backoffMult^(n-1), capped at maxDelay.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC-level errors are definitive responses, not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetVersion retrieves node version info.
func (c *HTTPClient) GetVersion(ctx context.Context) (*Version, error) {
	var result struct {
		SolanaCore string `json:"solana-core"`
	}
	if err := c.call(ctx, "getVersion", nil, &result); err != nil {
		return nil, err
	}
	return &Version{SolanaCore: result.SolanaCore}, nil
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := make(map[string]interface{})
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	params := []interface{}{address}
	if len(config) > 0 {
		params = append(params, config)
	}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}

	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// GetTransaction retrieves a fully parsed transaction by signature.
// Returns nil when the transaction is not found.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result getTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}

	if result.Slot == 0 && result.BlockTime == nil {
		// Transaction not found
		return nil, nil
	}

	tx := &ParsedTransaction{
		Slot:      result.Slot,
		Signature: signature,
	}
	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}

	if result.Meta != nil {
		tx.Err = result.Meta.Err
		tx.LogMessages = result.Meta.LogMessages
		tx.PreBalances = convertTokenBalances(result.Meta.PreTokenBalances)
		tx.PostBalances = convertTokenBalances(result.Meta.PostTokenBalances)
		tx.PreLamports = result.Meta.PreBalances
		tx.PostLamports = result.Meta.PostBalances
		for _, inner := range result.Meta.InnerInstructions {
			tx.Inner = append(tx.Inner, InnerInstructionSet{
				ParentIndex:  inner.Index,
				Instructions: convertInstructions(inner.Instructions),
			})
		}
	}

	if result.Transaction != nil && result.Transaction.Message != nil {
		msg := result.Transaction.Message
		for _, key := range msg.AccountKeys {
			tx.AccountKeys = append(tx.AccountKeys, key.Pubkey)
		}
		tx.Instructions = convertInstructions(msg.Instructions)
	}

	return tx, nil
}

// Raw RPC response shapes for getTransaction with jsonParsed encoding.

type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *getTransactionMeta `json:"meta"`
	Transaction *getTransactionTx   `json:"transaction"`
}

type getTransactionMeta struct {
	Err               interface{}          `json:"err"`
	LogMessages       []string             `json:"logMessages"`
	PreBalances       []uint64             `json:"preBalances"`
	PostBalances      []uint64             `json:"postBalances"`
	PreTokenBalances  []rawTokenBalance    `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance    `json:"postTokenBalances"`
	InnerInstructions []rawInnerInstrs     `json:"innerInstructions"`
}

type rawInnerInstrs struct {
	Index        int              `json:"index"`
	Instructions []rawInstruction `json:"instructions"`
}

type rawTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UiTokenAmount struct {
		Amount   string  `json:"amount"`
		Decimals int     `json:"decimals"`
		UiAmount float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

type getTransactionTx struct {
	Message *getTransactionMessage `json:"message"`
}

type getTransactionMessage struct {
	AccountKeys  []rawAccountKey  `json:"accountKeys"`
	Instructions []rawInstruction `json:"instructions"`
}

type rawAccountKey struct {
	Pubkey string `json:"pubkey"`
}

type rawInstruction struct {
	ProgramID string   `json:"programId"`
	Program   string   `json:"program"`
	Data      string   `json:"data"`
	Accounts  []string `json:"accounts"`
	Parsed    *struct {
		Type string `json:"type"`
		Info struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Authority   string `json:"authority"`
			Mint        string `json:"mint"`
			Amount      string `json:"amount"`
			TokenAmount *struct {
				Amount   string  `json:"amount"`
				Decimals int     `json:"decimals"`
				UiAmount float64 `json:"uiAmount"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func convertTokenBalances(raw []rawTokenBalance) []TokenBalance {
	balances := make([]TokenBalance, 0, len(raw))
	for _, b := range raw {
		balances = append(balances, TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.UiTokenAmount.UiAmount,
			RawAmount:    b.UiTokenAmount.Amount,
			Decimals:     b.UiTokenAmount.Decimals,
		})
	}
	return balances
}

func convertInstructions(raw []rawInstruction) []Instruction {
	instrs := make([]Instruction, 0, len(raw))
	for _, ri := range raw {
		ins := Instruction{
			ProgramID: ri.ProgramID,
			Program:   ri.Program,
			Data:      ri.Data,
			Accounts:  ri.Accounts,
		}
		if ri.Parsed != nil {
			parsed := &ParsedInstruction{
				Type: ri.Parsed.Type,
				Info: InstructionInfo{
					Source:      ri.Parsed.Info.Source,
					Destination: ri.Parsed.Info.Destination,
					Authority:   ri.Parsed.Info.Authority,
					Mint:        ri.Parsed.Info.Mint,
					Amount:      ri.Parsed.Info.Amount,
				},
			}
			if ta := ri.Parsed.Info.TokenAmount; ta != nil {
				parsed.Info.TokenAmount = &UiTokenAmount{
					Amount:   ta.Amount,
					Decimals: ta.Decimals,
					UiAmount: ta.UiAmount,
				}
			}
			ins.Parsed = parsed
		}
		instrs = append(instrs, ins)
	}
	return instrs
}

// GetTokenSupply retrieves the total supply of a mint.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error) {
	params := []interface{}{mint}

	var result struct {
		Value struct {
			UiAmount float64 `json:"uiAmount"`
			Decimals int     `json:"decimals"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", params, &result); err != nil {
		return nil, err
	}

	return &TokenSupply{
		Amount:   result.Value.UiAmount,
		Decimals: result.Value.Decimals,
	}, nil
}

// GetTokenLargestAccounts retrieves the top token accounts by balance, largest first.
func (c *HTTPClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	params := []interface{}{mint}

	var result struct {
		Value []struct {
			Address  string  `json:"address"`
			UiAmount float64 `json:"uiAmount"`
			Decimals int     `json:"decimals"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", params, &result); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccountBalance, 0, len(result.Value))
	for _, v := range result.Value {
		accounts = append(accounts, TokenAccountBalance{
			Address:  v.Address,
			Amount:   v.UiAmount,
			Decimals: v.Decimals,
		})
	}
	return accounts, nil
}

// GetAccountInfo retrieves account info by public key.
// Returns nil if account not found.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding": "base64",
		},
	}

	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
		RentEpoch:  result.Value.RentEpoch,
	}

	if len(result.Value.Data) >= 1 {
		info.Data = result.Value.Data[0]
	}

	return info, nil
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

type getAccountInfoResult struct {
	Value *getAccountInfoValue `json:"value"`
}

type getAccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// TokenProgramID is the SPL token program that owns all token accounts.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// splTokenAccountSize is the byte size of an SPL token account, used as a
// getProgramAccounts filter to select token accounts only.
const splTokenAccountSize = 165

// GetTokenAccountsByMint scans the SPL token program for every token account
// of a mint. Unlike GetTokenLargestAccounts this is not capped at the top 20,
// so it yields a real holder count — but it requires an endpoint that allows
// bulk account scans (see Gateway.SupportsBulkScan).
func (c *HTTPClient) GetTokenAccountsByMint(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	params := []interface{}{
		TokenProgramID,
		map[string]interface{}{
			"encoding": "jsonParsed",
			"filters": []interface{}{
				map[string]interface{}{"dataSize": splTokenAccountSize},
				map[string]interface{}{
					"memcmp": map[string]interface{}{"offset": 0, "bytes": mint},
				},
			},
		},
	}

	var result []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Owner       string `json:"owner"`
						TokenAmount struct {
							UiAmount float64 `json:"uiAmount"`
							Decimals int    `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccountBalance, 0, len(result))
	for _, v := range result {
		info := v.Account.Data.Parsed.Info
		accounts = append(accounts, TokenAccountBalance{
			Address:  info.Owner,
			Amount:   info.TokenAmount.UiAmount,
			Decimals: info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}

// ProbeBulkScan issues a minimal getProgramAccounts query against programID.
// Used by the gateway to detect whether the endpoint allows bulk account scans.
func (c *HTTPClient) ProbeBulkScan(ctx context.Context, programID string) error {
	params := []interface{}{
		programID,
		map[string]interface{}{
			"encoding":  "base64",
			"dataSlice": map[string]int{"offset": 0, "length": 0},
			"filters": []interface{}{
				map[string]interface{}{"dataSize": 0},
			},
		},
	}
	var result json.RawMessage
	return c.call(ctx, "getProgramAccounts", params, &result)
}
