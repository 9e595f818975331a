package solana

import "context"

// RPCClient defines the Solana RPC HTTP surface the watcher depends on.
type RPCClient interface {
	// GetSlot retrieves the current slot (chain height).
	GetSlot(ctx context.Context) (int64, error)

	// GetVersion retrieves node version info; used as the liveness probe.
	GetVersion(ctx context.Context) (*Version, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination,
	// newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction retrieves a fully parsed transaction by signature.
	// Returns nil when the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetTokenSupply retrieves the total supply of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)

	// GetTokenLargestAccounts retrieves the top token accounts by balance.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenAccountsByMint scans for every token account of a mint.
	// Only works against endpoints that allow bulk account scans.
	GetTokenAccountsByMint(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetAccountInfo retrieves raw account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}
