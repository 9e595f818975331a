package classify

// Known Solana program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// RaydiumCPMM is the Raydium constant-product pool program ID.
	RaydiumCPMM = "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"
	// PumpFun is the pump.fun bonding-curve program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// PumpSwap is the pump.fun AMM program ID (post-graduation pools).
	PumpSwap = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	// JupiterV6 is the Jupiter aggregator v6 program ID.
	JupiterV6 = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	// OrcaWhirlpool is the Orca Whirlpool program ID.
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	// MeteoraDLMM is the Meteora DLMM pool program ID.
	MeteoraDLMM = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
	// SPLToken is the SPL token program ID.
	SPLToken = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// WSOL is the Wrapped SOL mint address.
const WSOL = "So11111111111111111111111111111111111111112"

// defaultPoolPrograms are programs whose presence marks a transaction as a
// liquidity operation. The split between pool and DEX buckets is a heuristic;
// deployments register additional programs as the ecosystem moves.
func defaultPoolPrograms() map[string]string {
	return map[string]string{
		RaydiumCPMM: "raydium-cpmm",
		PumpSwap:    "pump-swap",
		MeteoraDLMM: "meteora-dlmm",
	}
}

// defaultDexPrograms are swap/aggregator programs: their presence marks a
// transaction as a trade against the pool or curve.
func defaultDexPrograms() map[string]string {
	return map[string]string{
		RaydiumAMMV4:  "raydium-amm-v4",
		PumpFun:       "pump-fun",
		JupiterV6:     "jupiter-v6",
		OrcaWhirlpool: "orca-whirlpool",
	}
}
