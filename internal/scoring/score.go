// Package scoring computes the composite potential score of a token from its
// accumulated metrics. All functions are deterministic and side-effect-free so
// the score can be safely recomputed on every metric update.
package scoring

import (
	"math"

	"launchwatch/internal/domain"
)

// Input carries the metric snapshot the score is computed from.
type Input struct {
	Liquidity   float64 // quote-currency liquidity
	HolderCount int
	Volume      float64 // current rolling volume
	AgeHours    float64 // elapsed time since token creation
	TxPerHour   float64 // transactions per hour since creation
	TxLastHour  int     // transaction count in the most recent full hour
	TxPrevHour  int     // transaction count in the hour before that
	TopTenShare float64 // fraction of supply held by the top 10 holders, 0..1
}

// Components is the per-signal breakdown of a computed score. Each component
// is independently bounded; the weights reflect relative signal strength, not
// a probability model.
type Components struct {
	Liquidity     int // 0-25
	Holders       int // 0-20
	Volume        int // 0-20
	Age           int // 0-15
	Velocity      int // 0-20 (base 0-12 plus acceleration bonus 0-8)
	Concentration int // 0-12
}

// Result is the full scoring output.
type Result struct {
	Score             int // 0-100
	Components        Components
	ConcentrationRisk domain.ConcentrationRisk
}

// Score combines the input metrics into a bounded composite score and a
// concentration-risk label. Identical inputs always produce identical outputs.
func Score(in Input) Result {
	comp := Components{
		Liquidity: liquidityComponent(in.Liquidity),
		Holders:   holdersComponent(in.HolderCount),
		Volume:    volumeComponent(in.Volume),
		Age:       ageComponent(in.AgeHours),
		Velocity:  velocityComponent(in.TxPerHour, in.TxLastHour, in.TxPrevHour),
	}

	risk, concScore := concentration(in.TopTenShare)
	comp.Concentration = concScore

	total := comp.Liquidity + comp.Holders + comp.Volume + comp.Age + comp.Velocity + comp.Concentration
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	return Result{Score: total, Components: comp, ConcentrationRisk: risk}
}

func liquidityComponent(liquidity float64) int {
	switch {
	case liquidity >= 100_000:
		return 25
	case liquidity >= 50_000:
		return 20
	case liquidity >= 20_000:
		return 15
	case liquidity >= 5_000:
		return 10
	case liquidity >= 1_000:
		return 5
	default:
		return 0
	}
}

func holdersComponent(holders int) int {
	switch {
	case holders > 500:
		return 20
	case holders > 100:
		return 15
	case holders > 50:
		return 10
	case holders > 10:
		return 5
	case holders > 0:
		return 2
	default:
		return 0
	}
}

func volumeComponent(volume float64) int {
	switch {
	case volume > 200_000:
		return 20
	case volume > 50_000:
		return 15
	case volume > 10_000:
		return 10
	case volume > 1_000:
		return 5
	case volume > 0:
		return 2
	default:
		return 0
	}
}

// ageComponent scores newer tokens higher.
func ageComponent(hours float64) int {
	switch {
	case hours < 1:
		return 15
	case hours < 3:
		return 13
	case hours < 6:
		return 10
	case hours < 12:
		return 8
	case hours < 24:
		return 5
	case hours < 48:
		return 3
	default:
		return 1
	}
}

// velocityComponent maps transactions-per-hour to a base score and adds a
// bonus for positive hour-over-hour acceleration. Deceleration never subtracts.
func velocityComponent(txPerHour float64, lastHour, prevHour int) int {
	var base int
	switch {
	case txPerHour >= 20:
		base = 12
	case txPerHour >= 10:
		base = 10
	case txPerHour >= 5:
		base = 8
	case txPerHour >= 1:
		base = 5
	default:
		base = 2
	}

	bonus := lastHour - prevHour
	if bonus < 0 {
		bonus = 0
	}
	if bonus > 8 {
		bonus = 8
	}
	return base + bonus
}

// concentration maps the top-10 holder share to a discrete risk label and its
// score. Higher concentration scores lower: a heavily concentrated supply is a
// manipulation signal, not a growth signal.
func concentration(topTenShare float64) (domain.ConcentrationRisk, int) {
	switch {
	case topTenShare > 0.80:
		return domain.RiskManipulated, 2
	case topTenShare > 0.60:
		return domain.RiskHigh, 4
	case topTenShare > 0.40:
		return domain.RiskElevated, 6
	case topTenShare > 0.20:
		return domain.RiskModerate, 9
	default:
		return domain.RiskLow, 12
	}
}

// TopTenShare computes the fraction of total supply held by the ten largest
// holders. Returns 0 when supply is unknown or zero.
func TopTenShare(holders []domain.HolderBalance, supply float64) float64 {
	if supply <= 0 || len(holders) == 0 {
		return 0
	}
	n := len(holders)
	if n > 10 {
		n = 10
	}
	var top float64
	for _, h := range holders[:n] {
		top += h.Balance
	}
	share := top / supply
	if share > 1 {
		share = 1
	}
	return share
}

// VolumeGrowthRate is the relative change between two consecutive volume
// readings. Returns 0 when the previous reading is zero or not finite.
func VolumeGrowthRate(prev, curr float64) float64 {
	if prev <= 0 {
		return 0
	}
	rate := (curr - prev) / prev
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return rate
}
