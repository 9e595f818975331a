package solana

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrConnectionUnavailable is returned when every configured endpoint failed
// the liveness probe. The polling loop treats this as fatal until an operator
// intervenes or a retry-forever policy is configured upstream.
var ErrConnectionUnavailable = errors.New("all rpc endpoints unavailable")

// Endpoint is one RPC endpoint in the gateway's fallback list.
type Endpoint struct {
	URL     string
	Private bool // dedicated/private endpoint vs public rate-limited one
}

// GatewayStatus is a read-only snapshot of the gateway's connection state.
type GatewayStatus struct {
	Endpoint     string
	Private      bool
	Fallbacks    int
	RetryCount   int
	MaxRetries   int
	BulkScan     *bool // nil until the capability has been probed
	InitializedAt time.Time
}

// Gateway owns one active RPC connection with an ordered fallback list,
// capability probing and bounded retry. All connection-state mutation happens
// inside the gateway; callers only ever see copies via Status().
type Gateway struct {
	mu         sync.Mutex
	endpoints  []Endpoint
	active     int
	client     *HTTPClient
	clientOpts []ClientOption

	maxRetries int
	baseDelay  time.Duration
	retryCount int

	bulkScan      *bool
	bulkProbeAddr string

	initializedAt time.Time
	logger        *log.Logger
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Endpoints is the prioritized endpoint list; the first is the primary.
	Endpoints []Endpoint
	// MaxRetries bounds WithRetry attempts. Default 3.
	MaxRetries int
	// BaseDelay is the first backoff delay; delay after attempt n is
	// BaseDelay × 2^(n-1). Default 1s.
	BaseDelay time.Duration
	// BulkProbeProgram is the program address used for the bulk-scan probe.
	BulkProbeProgram string
	// ClientOptions are applied to every HTTPClient the gateway constructs.
	ClientOptions []ClientOption
	Logger        *log.Logger
}

// NewGateway creates an uninitialized gateway. Call Initialize before use.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("gateway requires at least one endpoint")
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay == 0 {
		baseDelay = 1 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	// Gateway owns the retry policy; per-call client retries are disabled so a
	// failure surfaces immediately and WithRetry counts attempts exactly once.
	clientOpts := append([]ClientOption{WithMaxRetries(0)}, opts.ClientOptions...)

	return &Gateway{
		endpoints:     opts.Endpoints,
		active:        -1,
		clientOpts:    clientOpts,
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		bulkProbeAddr: opts.BulkProbeProgram,
		logger:        logger,
	}, nil
}

// Initialize establishes a connection to the primary endpoint, verifying
// liveness with getVersion. On failure it iterates the fallback list in order,
// retrying each endpoint once before moving on, and returns
// ErrConnectionUnavailable only after every endpoint has failed.
func (g *Gateway) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lastErr error
	for i, ep := range g.endpoints {
		client := NewHTTPClient(ep.URL, g.clientOpts...)

		// One initial attempt plus one retry per endpoint.
		for attempt := 0; attempt < 2; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(g.baseDelay):
				}
			}
			if _, err := client.GetVersion(ctx); err != nil {
				lastErr = err
				continue
			}
			g.active = i
			g.client = client
			g.retryCount = 0
			g.initializedAt = time.Now()
			if i > 0 {
				g.logger.Printf("Primary endpoint down, connected to fallback %d: %s", i, ep.URL)
			}
			return nil
		}
		g.logger.Printf("Endpoint %s failed liveness probe: %v", ep.URL, lastErr)
	}

	return fmt.Errorf("%w: last error: %v", ErrConnectionUnavailable, lastErr)
}

// currentClient returns the active client, initializing lazily is not supported:
// callers must Initialize first.
func (g *Gateway) currentClient() (*HTTPClient, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil, errors.New("gateway not initialized")
	}
	return g.client, nil
}

// WithRetry wraps op with bounded retries and exponential backoff.
// Delay after attempt n is baseDelay × 2^(n-1). Explicit method-disabled RPC
// responses and context cancellation are returned immediately. On exhaustion it
// returns ErrRetryExhausted wrapping the last underlying error.
func (g *Gateway) WithRetry(ctx context.Context, op func(ctx context.Context, c *HTTPClient) error) error {
	client, err := g.currentClient()
	if err != nil {
		return err
	}

	delay := g.baseDelay
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := op(ctx, client)
		if err == nil {
			g.mu.Lock()
			g.retryCount = 0
			g.mu.Unlock()
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if IsMethodDisabled(err) {
			// A disabled method is a definitive answer, not a transient failure.
			return err
		}

		lastErr = err
		g.mu.Lock()
		g.retryCount = attempt + 1
		g.mu.Unlock()
	}

	return fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

// GetSlot retrieves the current slot through the retry policy.
func (g *Gateway) GetSlot(ctx context.Context) (int64, error) {
	var slot int64
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		slot, err = c.GetSlot(ctx)
		return err
	})
	return slot, err
}

// GetSignaturesForAddress retrieves signatures through the retry policy.
func (g *Gateway) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	var sigs []SignatureInfo
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		sigs, err = c.GetSignaturesForAddress(ctx, address, opts)
		return err
	})
	return sigs, err
}

// GetTransaction retrieves a parsed transaction through the retry policy.
func (g *Gateway) GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	var tx *ParsedTransaction
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		tx, err = c.GetTransaction(ctx, signature)
		return err
	})
	return tx, err
}

// GetTokenSupply retrieves a mint's supply through the retry policy.
func (g *Gateway) GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error) {
	var supply *TokenSupply
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		supply, err = c.GetTokenSupply(ctx, mint)
		return err
	})
	return supply, err
}

// GetTokenLargestAccounts retrieves top holders through the retry policy.
func (g *Gateway) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	var accounts []TokenAccountBalance
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		accounts, err = c.GetTokenLargestAccounts(ctx, mint)
		return err
	})
	return accounts, err
}

// GetTokenAccountsByMint scans the full holder set through the retry policy.
// Callers should check SupportsBulkScan first; an endpoint that disables the
// scan answers with a method-disabled error, which is not retried.
func (g *Gateway) GetTokenAccountsByMint(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	var accounts []TokenAccountBalance
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		accounts, err = c.GetTokenAccountsByMint(ctx, mint)
		return err
	})
	return accounts, err
}

// GetAccountInfo retrieves account info through the retry policy.
func (g *Gateway) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var info *AccountInfo
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		info, err = c.GetAccountInfo(ctx, pubkey)
		return err
	})
	return info, err
}

// GetVersion retrieves node version info through the retry policy.
func (g *Gateway) GetVersion(ctx context.Context) (*Version, error) {
	var v *Version
	err := g.WithRetry(ctx, func(ctx context.Context, c *HTTPClient) error {
		var err error
		v, err = c.GetVersion(ctx)
		return err
	})
	return v, err
}

// SupportsBulkScan probes once whether the active endpoint allows bulk account
// scans (getProgramAccounts) and memoizes the answer. An explicit
// method-disabled response is recorded as a negative capability; transient
// errors leave the capability unknown so a later call probes again.
func (g *Gateway) SupportsBulkScan(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.bulkScan != nil {
		v := *g.bulkScan
		g.mu.Unlock()
		return v, nil
	}
	client := g.client
	probeAddr := g.bulkProbeAddr
	g.mu.Unlock()

	if client == nil {
		return false, errors.New("gateway not initialized")
	}
	if probeAddr == "" {
		return false, errors.New("no bulk probe program configured")
	}

	err := client.ProbeBulkScan(ctx, probeAddr)
	switch {
	case err == nil:
		g.setBulkScan(true)
		return true, nil
	case IsMethodDisabled(err):
		g.setBulkScan(false)
		return false, nil
	default:
		// Transient failure: leave capability unknown.
		return false, err
	}
}

func (g *Gateway) setBulkScan(v bool) {
	g.mu.Lock()
	g.bulkScan = &v
	g.mu.Unlock()
}

// Failover abandons the active endpoint and re-runs the liveness probe over the
// remaining fallback list, starting after the failed endpoint.
func (g *Gateway) Failover(ctx context.Context) error {
	g.mu.Lock()
	failed := g.active
	g.mu.Unlock()

	var lastErr error
	for i := failed + 1; i < len(g.endpoints); i++ {
		client := NewHTTPClient(g.endpoints[i].URL, g.clientOpts...)
		if _, err := client.GetVersion(ctx); err != nil {
			lastErr = err
			continue
		}
		g.mu.Lock()
		g.active = i
		g.client = client
		g.retryCount = 0
		g.bulkScan = nil // capability is per-endpoint
		g.mu.Unlock()
		g.logger.Printf("Failed over to endpoint %s", g.endpoints[i].URL)
		return nil
	}

	return fmt.Errorf("%w: last error: %v", ErrConnectionUnavailable, lastErr)
}

// The gateway fronts the full RPC surface.
var _ RPCClient = (*Gateway)(nil)

// Status returns a snapshot of the connection state. Safe for concurrent use.
func (g *Gateway) Status() GatewayStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := GatewayStatus{
		Fallbacks:     len(g.endpoints) - 1,
		RetryCount:    g.retryCount,
		MaxRetries:    g.maxRetries,
		InitializedAt: g.initializedAt,
	}
	if g.active >= 0 && g.active < len(g.endpoints) {
		s.Endpoint = g.endpoints[g.active].URL
		s.Private = g.endpoints[g.active].Private
	}
	if g.bulkScan != nil {
		v := *g.bulkScan
		s.BulkScan = &v
	}
	return s
}
