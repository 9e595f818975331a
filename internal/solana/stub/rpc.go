package stub

import (
	"context"
	"errors"
	"sync"

	"launchwatch/internal/solana"
)

// ErrNotFound is returned when a stubbed entity does not exist.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu           sync.Mutex
	Slot         int64
	SlotErr      error
	Transactions map[string]*solana.ParsedTransaction
	Signatures   map[string][]solana.SignatureInfo
	Supplies     map[string]*solana.TokenSupply
	TopHolders   map[string][]solana.TokenAccountBalance
	Accounts     map[string]*solana.AccountInfo

	// BulkScan enables SupportsBulkScan and serves TokenAccounts.
	BulkScan      bool
	TokenAccounts map[string][]solana.TokenAccountBalance

	SlotCalls int
	SigCalls  int
	TxCalls   int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.ParsedTransaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Supplies:      make(map[string]*solana.TokenSupply),
		TopHolders:    make(map[string][]solana.TokenAccountBalance),
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenAccounts: make(map[string][]solana.TokenAccountBalance),
	}
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SlotCalls++
	if c.SlotErr != nil {
		return 0, c.SlotErr
	}
	return c.Slot, nil
}

// GetVersion always reports a live node.
func (c *RPCClient) GetVersion(_ context.Context) (*solana.Version, error) {
	return &solana.Version{SolanaCore: "stub"}, nil
}

// GetSignaturesForAddress retrieves signatures from the stub store, newest first.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SigCalls++

	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

// GetTransaction retrieves a parsed transaction from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.ParsedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TxCalls++

	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetTokenSupply retrieves a stubbed supply.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenSupply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Supplies[mint]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetTokenLargestAccounts retrieves stubbed top holders.
func (c *RPCClient) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TopHolders[mint], nil
}

// GetTokenAccountsByMint retrieves the stubbed full holder set.
func (c *RPCClient) GetTokenAccountsByMint(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.BulkScan {
		return nil, errors.New("bulk scan not enabled on stub")
	}
	return c.TokenAccounts[mint], nil
}

// SupportsBulkScan reports the configured bulk-scan capability.
func (c *RPCClient) SupportsBulkScan(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BulkScan, nil
}

// GetAccountInfo retrieves stubbed account info.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// SetSlot updates the stub slot.
func (c *RPCClient) SetSlot(slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Slot = slot
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.ParsedTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures sets signatures for an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// Interface check.
var _ solana.RPCClient = (*RPCClient)(nil)
