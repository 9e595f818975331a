package classify

import (
	"strconv"

	"launchwatch/internal/solana"
)

// InstructionKind tags the decoded shape of an instruction. Classification
// logic switches on the tag instead of probing optional fields at runtime.
type InstructionKind int

const (
	// KindUnrecognized is the catch-all for instructions this system does not decode.
	KindUnrecognized InstructionKind = iota
	KindTokenTransfer
	KindTokenMint
	KindTokenBurn
)

// DecodedInstruction is one flattened instruction with its decoded tag.
// ParentIndex is -1 for top-level instructions, otherwise the index of the
// top-level instruction that emitted it.
type DecodedInstruction struct {
	Kind        InstructionKind
	ProgramID   string
	ParentIndex int

	// Populated for token instructions.
	Source      string // source token account
	Destination string // destination token account
	Authority   string // owner authorizing the movement
	Mint        string // mint when the parsed form carries one (transferChecked, mintTo, burn)
	Amount      float64
}

// flatten merges top-level and inner instructions into one ordered list,
// preserving the order emitted by the chain. Inner instructions follow their
// parent and carry its index.
func flatten(tx *solana.ParsedTransaction) []DecodedInstruction {
	inner := make(map[int][]solana.Instruction, len(tx.Inner))
	for _, set := range tx.Inner {
		inner[set.ParentIndex] = set.Instructions
	}

	var out []DecodedInstruction
	for i, ins := range tx.Instructions {
		out = append(out, decode(ins, -1))
		for _, child := range inner[i] {
			out = append(out, decode(child, i))
		}
	}
	return out
}

// decode turns one raw instruction into its tagged form.
func decode(ins solana.Instruction, parent int) DecodedInstruction {
	d := DecodedInstruction{
		Kind:        KindUnrecognized,
		ProgramID:   ins.ProgramID,
		ParentIndex: parent,
	}

	if ins.Program != "spl-token" || ins.Parsed == nil {
		return d
	}

	info := ins.Parsed.Info
	switch ins.Parsed.Type {
	case "transfer", "transferChecked":
		d.Kind = KindTokenTransfer
	case "mintTo", "mintToChecked":
		d.Kind = KindTokenMint
	case "burn", "burnChecked":
		d.Kind = KindTokenBurn
	default:
		return d
	}

	d.Source = info.Source
	d.Destination = info.Destination
	d.Authority = info.Authority
	d.Mint = info.Mint
	d.Amount = parseAmount(info)
	return d
}

// parseAmount prefers the decimals-adjusted tokenAmount of checked variants and
// falls back to the raw integer amount of plain transfers.
func parseAmount(info solana.InstructionInfo) float64 {
	if info.TokenAmount != nil {
		return info.TokenAmount.UiAmount
	}
	if info.Amount == "" {
		return 0
	}
	v, err := strconv.ParseFloat(info.Amount, 64)
	if err != nil {
		return 0
	}
	return v
}

// programSet collects the distinct program IDs referenced by any instruction,
// in first-appearance order.
func programSet(instrs []DecodedInstruction) []string {
	seen := make(map[string]bool, len(instrs))
	var out []string
	for _, ins := range instrs {
		if ins.ProgramID == "" || seen[ins.ProgramID] {
			continue
		}
		seen[ins.ProgramID] = true
		out = append(out, ins.ProgramID)
	}
	return out
}
