package domain

// TokenState is the lifecycle state of a tracked token.
type TokenState string

const (
	// StateNew means the token was just discovered and has no metric snapshot yet.
	StateNew TokenState = "new"
	// StateTracked means metrics are actively updating.
	StateTracked TokenState = "tracked"
	// StateGraduated is terminal: the token crossed the configured graduation rule.
	StateGraduated TokenState = "graduated"
	// StateStale is terminal: no event or metric update within the retention window.
	StateStale TokenState = "stale"
)

// ConcentrationRisk classifies how much supply sits with the top holders.
type ConcentrationRisk string

const (
	RiskLow         ConcentrationRisk = "low"
	RiskModerate    ConcentrationRisk = "moderate"
	RiskElevated    ConcentrationRisk = "elevated"
	RiskHigh        ConcentrationRisk = "high"
	RiskManipulated ConcentrationRisk = "manipulated"
)

// HolderBalance is one entry of a token's holder distribution, ordered by balance DESC.
type HolderBalance struct {
	Address string
	Balance float64
}

// Token is the canonical record for one tracked token.
// Corresponds to the tokens table in PostgreSQL.
// The lifecycle manager is the only writer of score, graduation and alert fields.
type Token struct {
	// Identity
	Mint      string // PRIMARY KEY, token mint address
	Symbol    string
	Name      string
	Creator   string
	CreatedAt int64 // Unix timestamp in milliseconds

	// Mutable metrics
	Price              float64
	Volume             float64 // cumulative volume in quote currency
	HolderCount        int
	Liquidity          float64
	Supply             float64
	HolderDistribution []HolderBalance

	// Running aggregates maintained by the lifecycle manager
	TxCount       int64 // classified trading events applied since creation
	LastTradeTime int64 // Unix ms of last buy/sell event

	// RecentSignatures remembers the last N applied event signatures,
	// oldest first. Persisted with the record so event idempotence
	// survives a process restart.
	RecentSignatures []string

	// Derived
	PotentialScore    int // always within [0, 100]
	ConcentrationRisk ConcentrationRisk
	VolumeGrowthRate  float64
	Patterns          []string

	State       TokenState
	Graduated   bool   // monotonic: never reverts to false
	GraduatedAt *int64 // Unix ms, set once, immutable afterwards
	AlertSent   bool
	Active      bool
	UpdatedAt   int64 // Unix ms

	// Version is the optimistic-concurrency token for read-modify-write updates.
	Version int64
}
