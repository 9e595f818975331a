package domain

// EventType is the classified trading-event type of one transaction.
type EventType string

const (
	EventBuy             EventType = "buy"
	EventSell            EventType = "sell"
	EventTransfer        EventType = "transfer"
	EventLiquidityAdd    EventType = "liquidity_add"
	EventLiquidityRemove EventType = "liquidity_remove"
	EventMint            EventType = "mint"
	EventBurn            EventType = "burn"
	EventUnknown         EventType = "unknown"
)

// ClassifiedEvent is the structured result of classifying one parsed transaction
// against one token mint. Created by the classifier, consumed exactly once by the
// lifecycle manager, then persisted for audit or discarded. Never mutated after creation.
type ClassifiedEvent struct {
	Signature      string // transaction signature, unique, used for de-duplication
	Mint           string // token under analysis
	Type           EventType
	FromWallet     string // optional
	ToWallet       string // optional
	Amount         float64 // signed; magnitude of the dominant balance delta
	QuoteAmount    float64 // unsigned; SOL moved by the dominant wallet (the trade's quote leg)
	LiquidityDelta float64 // liquidity-change amount for pool events
	Wallets        []string // distinct owners involved, in account-list order
	Slot           int64
	BlockTime      int64 // Unix timestamp (seconds)
	Note           string // diagnostic text for unknown classifications
}
