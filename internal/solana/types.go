package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// TokenBalance is one pre or post token balance attached to a transaction.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       float64 // uiAmount, decimals applied
	RawAmount    string
	Decimals     int
}

// Instruction is one top-level or inner instruction of a parsed transaction.
// Parsed is nil when the RPC node could not decode the instruction; Data then
// carries the raw base58 payload.
type Instruction struct {
	ProgramID string
	Program   string // node-assigned name, e.g. "spl-token"
	Parsed    *ParsedInstruction
	Data      string
	Accounts  []string
}

// ParsedInstruction is the node-decoded form of an instruction.
type ParsedInstruction struct {
	Type string
	Info InstructionInfo
}

// InstructionInfo holds the parsed fields this system cares about.
// Unrecognized instruction types leave fields zero-valued.
type InstructionInfo struct {
	Source      string
	Destination string
	Authority   string
	Mint        string
	Amount      string
	TokenAmount *UiTokenAmount
}

// UiTokenAmount mirrors the RPC uiTokenAmount shape.
type UiTokenAmount struct {
	Amount   string
	Decimals int
	UiAmount float64
}

// InnerInstructionSet groups inner instructions under their parent index.
type InnerInstructionSet struct {
	ParentIndex  int
	Instructions []Instruction
}

// ParsedTransaction is one fully parsed transaction as returned by getTransaction
// with jsonParsed encoding.
type ParsedTransaction struct {
	Slot         int64
	Signature    string
	BlockTime    int64 // Unix timestamp (seconds)
	Err          interface{}
	AccountKeys  []string
	Instructions []Instruction
	Inner        []InnerInstructionSet
	PreBalances  []TokenBalance
	PostBalances []TokenBalance
	// PreLamports/PostLamports are the native SOL balances per account, in
	// AccountKeys order. They carry the quote leg of a swap.
	PreLamports  []uint64
	PostLamports []uint64
	LogMessages  []string
}

// LamportsPerSol converts raw lamport amounts to SOL.
const LamportsPerSol = 1_000_000_000

// LamportDelta returns the signed native-SOL balance change of one account
// key, in SOL. Zero when the key is unknown or balances are missing.
func (t *ParsedTransaction) LamportDelta(key string) float64 {
	for i, k := range t.AccountKeys {
		if k != key {
			continue
		}
		if i >= len(t.PreLamports) || i >= len(t.PostLamports) {
			return 0
		}
		return (float64(t.PostLamports[i]) - float64(t.PreLamports[i])) / LamportsPerSol
	}
	return 0
}

// Failed reports whether the transaction failed on chain.
func (t *ParsedTransaction) Failed() bool {
	return t.Err != nil
}

// TokenAccountBalance is one entry of getTokenLargestAccounts.
type TokenAccountBalance struct {
	Address  string
	Amount   float64 // uiAmount
	Decimals int
}

// TokenSupply is the result of getTokenSupply.
type TokenSupply struct {
	Amount   float64 // uiAmount
	Decimals int
}

// Version is the result of getVersion, used as the liveness probe.
type Version struct {
	SolanaCore string
}
