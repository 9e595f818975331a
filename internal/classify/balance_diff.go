package classify

import (
	"math"

	"launchwatch/internal/solana"
)

// OwnerDelta is one owner's signed balance change for the target mint.
type OwnerDelta struct {
	Owner string
	Delta float64
	// order is the smallest account index the owner appeared at; used for
	// deterministic tie-breaking when two deltas share the same magnitude.
	order int
}

// balanceDeltas computes per-owner pre/post balance deltas for the target mint
// across every account that held a balance before or after. Owners with a zero
// delta are dropped. The result is ordered by account-list appearance.
func balanceDeltas(tx *solana.ParsedTransaction, mint string) []OwnerDelta {
	type entry struct {
		pre, post float64
		order     int
	}
	byOwner := make(map[string]*entry)
	var owners []string

	record := func(b solana.TokenBalance, pre bool) {
		if b.Mint != mint || b.Owner == "" {
			return
		}
		e, ok := byOwner[b.Owner]
		if !ok {
			e = &entry{order: b.AccountIndex}
			byOwner[b.Owner] = e
			owners = append(owners, b.Owner)
		}
		if b.AccountIndex < e.order {
			e.order = b.AccountIndex
		}
		// An owner can hold the mint in several token accounts; sum them.
		if pre {
			e.pre += b.Amount
		} else {
			e.post += b.Amount
		}
	}

	for _, b := range tx.PreBalances {
		record(b, true)
	}
	for _, b := range tx.PostBalances {
		record(b, false)
	}

	var deltas []OwnerDelta
	for _, owner := range owners {
		e := byOwner[owner]
		delta := e.post - e.pre
		if delta == 0 {
			continue
		}
		deltas = append(deltas, OwnerDelta{Owner: owner, Delta: delta, order: e.order})
	}
	return deltas
}

// netDelta is the sum of all owner deltas: the token flow into (positive) or
// out of (negative) user wallets.
func netDelta(deltas []OwnerDelta) float64 {
	var net float64
	for _, d := range deltas {
		net += d.Delta
	}
	return net
}

// dominantDelta returns the delta with the largest magnitude. Ties are broken
// by the owner appearing earliest in the account list. Returns a zero OwnerDelta
// when there are no deltas.
func dominantDelta(deltas []OwnerDelta) OwnerDelta {
	var best OwnerDelta
	bestMag := -1.0
	for _, d := range deltas {
		mag := math.Abs(d.Delta)
		switch {
		case mag > bestMag:
			best = d
			bestMag = mag
		case mag == bestMag && d.order < best.order:
			best = d
		}
	}
	return best
}
