// Package classify turns raw parsed transactions into structured trading
// events by diffing token balances and recognizing known program IDs.
package classify

import (
	"fmt"
	"math"

	"launchwatch/internal/domain"
	"launchwatch/internal/solana"
)

// Classifier maps one parsed transaction plus a target mint to a ClassifiedEvent.
// It is a pure transform: no side effects, deterministic for identical inputs,
// and it never panics outward — malformed input classifies as unknown with a
// diagnostic note.
type Classifier struct {
	poolPrograms map[string]string // programID -> name
	dexPrograms  map[string]string
}

// NewClassifier creates a classifier with the default program registries.
func NewClassifier() *Classifier {
	return &Classifier{
		poolPrograms: defaultPoolPrograms(),
		dexPrograms:  defaultDexPrograms(),
	}
}

// RegisterPoolProgram adds a liquidity-pool program to the registry.
func (c *Classifier) RegisterPoolProgram(programID, name string) {
	c.poolPrograms[programID] = name
}

// RegisterDexProgram adds a DEX/aggregator program to the registry.
func (c *Classifier) RegisterDexProgram(programID, name string) {
	c.dexPrograms[programID] = name
}

// Classify produces a ClassifiedEvent for the target mint.
//
// Balance deltas are the factual basis: instruction-level heuristics are a
// secondary signal layered on top and never contradict a directly attributable
// delta. Decision order, first match wins:
//
//  1. liquidity-pool program present: net delta negative → liquidity_add
//     (tokens leaving user wallets into the pool), positive → liquidity_remove
//  2. DEX/aggregator program present: net delta positive → buy, negative → sell
//  3. exactly one owner up, one owner down, no DEX/pool program → transfer
//  4. direct token-transfer (or mint/burn) instruction with inconclusive
//     deltas → fields taken from the parsed instruction
//  5. otherwise unknown
func (c *Classifier) Classify(tx *solana.ParsedTransaction, mint string) (ev *domain.ClassifiedEvent) {
	ev = &domain.ClassifiedEvent{
		Mint: mint,
		Type: domain.EventUnknown,
	}

	// One malformed transaction must never abort the batch it was part of.
	defer func() {
		if r := recover(); r != nil {
			ev.Type = domain.EventUnknown
			ev.Note = fmt.Sprintf("classification failed: %v", r)
		}
	}()

	if tx == nil {
		ev.Note = "nil transaction"
		return ev
	}

	ev.Signature = tx.Signature
	ev.Slot = tx.Slot
	ev.BlockTime = tx.BlockTime

	instrs := flatten(tx)
	programs := programSet(instrs)
	deltas := balanceDeltas(tx, mint)

	for _, d := range deltas {
		ev.Wallets = append(ev.Wallets, d.Owner)
	}

	net := netDelta(deltas)
	dominant := dominantDelta(deltas)
	amount := math.Abs(dominant.Delta)

	poolName, poolPresent := c.firstKnown(programs, c.poolPrograms)
	dexName, dexPresent := c.firstKnown(programs, c.dexPrograms)

	// (a) liquidity-pool program
	if poolPresent && net != 0 {
		ev.LiquidityDelta = net
		ev.Amount = amount
		ev.QuoteAmount = math.Abs(tx.LamportDelta(dominant.Owner))
		if net < 0 {
			ev.Type = domain.EventLiquidityAdd
		} else {
			ev.Type = domain.EventLiquidityRemove
		}
		ev.Note = poolName
		return ev
	}

	// (b) DEX / aggregator program
	if dexPresent && net != 0 {
		ev.Amount = amount
		// The wallet's native SOL change is the opposite leg of the swap.
		ev.QuoteAmount = math.Abs(tx.LamportDelta(dominant.Owner))
		if net > 0 {
			ev.Type = domain.EventBuy
			ev.ToWallet = dominant.Owner
		} else {
			ev.Type = domain.EventSell
			ev.FromWallet = dominant.Owner
		}
		ev.Note = dexName
		return ev
	}

	// (c) plain wallet-to-wallet transfer. A pool or DEX program in the
	// transaction disqualifies the transfer shape even when its own rule did
	// not fire: a swap with a zero net delta is not a transfer.
	if !poolPresent && !dexPresent {
		if from, to, ok := transferPair(deltas); ok {
			ev.Type = domain.EventTransfer
			ev.FromWallet = from
			ev.ToWallet = to
			ev.Amount = amount
			return ev
		}
	}

	// (d) instruction-level fallback when deltas are inconclusive
	if done := c.classifyFromInstructions(ev, instrs, mint); done {
		return ev
	}

	// (e) nothing matched
	if len(deltas) == 0 {
		ev.Note = "no balance change for mint"
	} else {
		ev.Note = "ambiguous balance deltas"
	}
	return ev
}

// firstKnown returns the registry name of the first referenced program found in
// the registry.
func (c *Classifier) firstKnown(programs []string, registry map[string]string) (string, bool) {
	for _, p := range programs {
		if name, ok := registry[p]; ok {
			return name, true
		}
	}
	return "", false
}

// transferPair matches the exact one-up-one-down shape of a direct transfer.
func transferPair(deltas []OwnerDelta) (from, to string, ok bool) {
	if len(deltas) != 2 {
		return "", "", false
	}
	a, b := deltas[0], deltas[1]
	switch {
	case a.Delta < 0 && b.Delta > 0:
		return a.Owner, b.Owner, true
	case a.Delta > 0 && b.Delta < 0:
		return b.Owner, a.Owner, true
	}
	return "", "", false
}

// classifyFromInstructions extracts event fields straight from the first
// matching token instruction. Instructions carrying an explicit mint must match
// the target; plain transfers (no mint field) are accepted as-is.
func (c *Classifier) classifyFromInstructions(ev *domain.ClassifiedEvent, instrs []DecodedInstruction, mint string) bool {
	for _, ins := range instrs {
		if ins.Mint != "" && ins.Mint != mint {
			continue
		}
		switch ins.Kind {
		case KindTokenTransfer:
			ev.Type = domain.EventTransfer
			ev.FromWallet = ins.Authority
			ev.ToWallet = ins.Destination
			ev.Amount = ins.Amount
			return true
		case KindTokenMint:
			if ins.Mint != mint {
				continue
			}
			ev.Type = domain.EventMint
			ev.ToWallet = ins.Destination
			ev.Amount = ins.Amount
			return true
		case KindTokenBurn:
			if ins.Mint != mint {
				continue
			}
			ev.Type = domain.EventBurn
			ev.FromWallet = ins.Authority
			ev.Amount = -ins.Amount
			return true
		}
	}
	return false
}

// TargetMints lists the candidate mints a transaction touched, excluding
// wrapped SOL, in account-list order. The monitor classifies the transaction
// once per returned mint.
func TargetMints(tx *solana.ParsedTransaction) []string {
	if tx == nil {
		return nil
	}
	seen := make(map[string]bool)
	var mints []string
	add := func(balances []solana.TokenBalance) {
		for _, b := range balances {
			if b.Mint == "" || b.Mint == WSOL || seen[b.Mint] {
				continue
			}
			seen[b.Mint] = true
			mints = append(mints, b.Mint)
		}
	}
	add(tx.PreBalances)
	add(tx.PostBalances)
	return mints
}
