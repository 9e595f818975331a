package classify

import (
	"reflect"
	"testing"

	"launchwatch/internal/domain"
	"launchwatch/internal/solana"
)

const testMint = "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func swapTx(program string, deltas map[string][2]float64) *solana.ParsedTransaction {
	tx := &solana.ParsedTransaction{
		Slot:      250100,
		Signature: "sig-1",
		BlockTime: 1700000000,
		Instructions: []solana.Instruction{
			{ProgramID: program},
		},
	}
	idx := 0
	for owner, prePost := range deltas {
		tx.PreBalances = append(tx.PreBalances, solana.TokenBalance{
			AccountIndex: idx, Mint: testMint, Owner: owner, Amount: prePost[0],
		})
		tx.PostBalances = append(tx.PostBalances, solana.TokenBalance{
			AccountIndex: idx, Mint: testMint, Owner: owner, Amount: prePost[1],
		})
		idx++
	}
	return tx
}

func TestClassify_DexSell(t *testing.T) {
	// Wallet A sends 500 tokens into a Raydium swap: net negative -> sell.
	c := NewClassifier()
	tx := swapTx(RaydiumAMMV4, map[string][2]float64{
		"walletA": {1000, 500},
	})

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventSell {
		t.Fatalf("Expected sell, got %s (note %q)", ev.Type, ev.Note)
	}
	if ev.FromWallet != "walletA" {
		t.Errorf("Expected from walletA, got %q", ev.FromWallet)
	}
	if ev.Amount != 500 {
		t.Errorf("Expected amount 500, got %v", ev.Amount)
	}
	if ev.Signature != "sig-1" || ev.Slot != 250100 {
		t.Errorf("Event did not carry tx identity: %+v", ev)
	}
}

func TestClassify_DexBuy(t *testing.T) {
	c := NewClassifier()
	tx := swapTx(PumpFun, map[string][2]float64{
		"walletB": {0, 1200},
	})

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventBuy {
		t.Fatalf("Expected buy, got %s", ev.Type)
	}
	if ev.ToWallet != "walletB" {
		t.Errorf("Expected to walletB, got %q", ev.ToWallet)
	}
	if ev.Amount != 1200 {
		t.Errorf("Expected amount 1200, got %v", ev.Amount)
	}
}

func TestClassify_BuyCarriesSolLeg(t *testing.T) {
	// The buyer's native balance drops by 1.5 SOL while the token balance
	// rises: the lamport delta is the trade's quote leg.
	c := NewClassifier()
	tx := swapTx(PumpFun, map[string][2]float64{
		"walletB": {0, 1200},
	})
	tx.AccountKeys = []string{"walletB", PumpFun}
	tx.PreLamports = []uint64{2_000_000_000, 10}
	tx.PostLamports = []uint64{500_000_000, 10}

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventBuy {
		t.Fatalf("Expected buy, got %s", ev.Type)
	}
	if ev.QuoteAmount != 1.5 {
		t.Errorf("Expected quote leg 1.5 SOL, got %v", ev.QuoteAmount)
	}
}

func TestClassify_QuoteLegZeroWithoutNativeBalances(t *testing.T) {
	c := NewClassifier()
	tx := swapTx(RaydiumAMMV4, map[string][2]float64{
		"walletA": {1000, 500},
	})

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventSell {
		t.Fatalf("Expected sell, got %s", ev.Type)
	}
	if ev.QuoteAmount != 0 {
		t.Errorf("Expected no quote leg, got %v", ev.QuoteAmount)
	}
}

func TestClassify_LiquidityAdd(t *testing.T) {
	// Tokens leave the owner's wallet into a pool program: liquidity_add with
	// a negative delta.
	c := NewClassifier()
	tx := swapTx(RaydiumCPMM, map[string][2]float64{
		"lpOwner": {10000, 4000},
	})

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventLiquidityAdd {
		t.Fatalf("Expected liquidity_add, got %s", ev.Type)
	}
	if ev.LiquidityDelta != -6000 {
		t.Errorf("Expected liquidity delta -6000, got %v", ev.LiquidityDelta)
	}
}

func TestClassify_LiquidityRemove(t *testing.T) {
	c := NewClassifier()
	tx := swapTx(MeteoraDLMM, map[string][2]float64{
		"lpOwner": {100, 900},
	})

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventLiquidityRemove {
		t.Fatalf("Expected liquidity_remove, got %s", ev.Type)
	}
	if ev.LiquidityDelta != 800 {
		t.Errorf("Expected liquidity delta 800, got %v", ev.LiquidityDelta)
	}
}

func TestClassify_PoolProgramZeroNetIsNotTransfer(t *testing.T) {
	// One owner down, one up by the same amount under a pool program: net is
	// zero, so the pool rule does not fire — but the pool program's presence
	// also disqualifies the transfer shape, leaving the event unknown.
	c := NewClassifier()
	tx := &solana.ParsedTransaction{
		Signature:    "sig-z",
		Instructions: []solana.Instruction{{ProgramID: RaydiumCPMM}},
		PreBalances: []solana.TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: "a", Amount: 100},
			{AccountIndex: 1, Mint: testMint, Owner: "b", Amount: 0},
		},
		PostBalances: []solana.TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: "a", Amount: 0},
			{AccountIndex: 1, Mint: testMint, Owner: "b", Amount: 100},
		},
	}

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventUnknown {
		t.Fatalf("Expected unknown, got %s", ev.Type)
	}
	if ev.Note == "" {
		t.Error("Expected a diagnostic note on the unknown classification")
	}
}

func TestClassify_Transfer(t *testing.T) {
	c := NewClassifier()
	tx := &solana.ParsedTransaction{
		Signature:    "sig-t",
		Instructions: []solana.Instruction{{ProgramID: SPLToken, Program: "spl-token"}},
		PreBalances: []solana.TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: "sender", Amount: 50},
			{AccountIndex: 1, Mint: testMint, Owner: "receiver", Amount: 10},
		},
		PostBalances: []solana.TokenBalance{
			{AccountIndex: 0, Mint: testMint, Owner: "sender", Amount: 20},
			{AccountIndex: 1, Mint: testMint, Owner: "receiver", Amount: 40},
		},
	}

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventTransfer {
		t.Fatalf("Expected transfer, got %s", ev.Type)
	}
	if ev.FromWallet != "sender" || ev.ToWallet != "receiver" {
		t.Errorf("Expected sender -> receiver, got %q -> %q", ev.FromWallet, ev.ToWallet)
	}
	if ev.Amount != 30 {
		t.Errorf("Expected amount 30, got %v", ev.Amount)
	}
}

func TestClassify_MintFromInstruction(t *testing.T) {
	// No balance records for the mint (fresh token accounts can be absent from
	// preTokenBalances) but a parsed mintTo instruction names it.
	c := NewClassifier()
	tx := &solana.ParsedTransaction{
		Signature: "sig-m",
		Instructions: []solana.Instruction{
			{
				ProgramID: SPLToken,
				Program:   "spl-token",
				Parsed: &solana.ParsedInstruction{
					Type: "mintToChecked",
					Info: solana.InstructionInfo{
						Mint:        testMint,
						Destination: "destAcct",
						Authority:   "mintAuth",
						TokenAmount: &solana.UiTokenAmount{UiAmount: 1_000_000},
					},
				},
			},
		},
	}

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventMint {
		t.Fatalf("Expected mint, got %s (note %q)", ev.Type, ev.Note)
	}
	if ev.Amount != 1_000_000 {
		t.Errorf("Expected amount 1000000, got %v", ev.Amount)
	}
	if ev.ToWallet != "destAcct" {
		t.Errorf("Expected destination destAcct, got %q", ev.ToWallet)
	}
}

func TestClassify_BurnFromInstruction(t *testing.T) {
	c := NewClassifier()
	tx := &solana.ParsedTransaction{
		Signature: "sig-b",
		Instructions: []solana.Instruction{
			{
				ProgramID: SPLToken,
				Program:   "spl-token",
				Parsed: &solana.ParsedInstruction{
					Type: "burn",
					Info: solana.InstructionInfo{
						Mint:      testMint,
						Authority: "holder",
						Amount:    "2500",
					},
				},
			},
		},
	}

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventBurn {
		t.Fatalf("Expected burn, got %s", ev.Type)
	}
	if ev.Amount != -2500 {
		t.Errorf("Expected negative supply delta -2500, got %v", ev.Amount)
	}
	if ev.FromWallet != "holder" {
		t.Errorf("Expected from holder, got %q", ev.FromWallet)
	}
}

func TestClassify_InnerInstructionMintFiltered(t *testing.T) {
	// A transferChecked for a different mint must not classify against the
	// target mint.
	c := NewClassifier()
	tx := &solana.ParsedTransaction{
		Signature: "sig-o",
		Instructions: []solana.Instruction{
			{
				ProgramID: SPLToken,
				Program:   "spl-token",
				Parsed: &solana.ParsedInstruction{
					Type: "transferChecked",
					Info: solana.InstructionInfo{
						Mint:        "OtherMint11111111111111111111111111111111111",
						Authority:   "x",
						Destination: "y",
						TokenAmount: &solana.UiTokenAmount{UiAmount: 7},
					},
				},
			},
		},
	}

	ev := c.Classify(tx, testMint)

	if ev.Type != domain.EventUnknown {
		t.Fatalf("Expected unknown, got %s", ev.Type)
	}
	if ev.Note == "" {
		t.Error("Expected diagnostic note on unknown event")
	}
}

func TestClassify_MalformedIsUnknown(t *testing.T) {
	c := NewClassifier()

	ev := c.Classify(nil, testMint)
	if ev.Type != domain.EventUnknown {
		t.Fatalf("Expected unknown for nil tx, got %s", ev.Type)
	}
	if ev.Note == "" {
		t.Error("Expected note for nil tx")
	}

	// Empty transaction: no instructions, no balances.
	ev = c.Classify(&solana.ParsedTransaction{Signature: "sig-e"}, testMint)
	if ev.Type != domain.EventUnknown {
		t.Fatalf("Expected unknown for empty tx, got %s", ev.Type)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier()
	tx := swapTx(JupiterV6, map[string][2]float64{
		"w1": {100, 400},
	})

	first := c.Classify(tx, testMint)
	for i := 0; i < 10; i++ {
		again := c.Classify(tx, testMint)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Classification not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestClassify_RegisteredProgram(t *testing.T) {
	c := NewClassifier()
	c.RegisterDexProgram("CustomDex1111111111111111111111111111111111", "custom-dex")
	tx := swapTx("CustomDex1111111111111111111111111111111111", map[string][2]float64{
		"w": {0, 10},
	})

	ev := c.Classify(tx, testMint)
	if ev.Type != domain.EventBuy {
		t.Fatalf("Expected buy via registered program, got %s", ev.Type)
	}
}

func TestTargetMints(t *testing.T) {
	tx := &solana.ParsedTransaction{
		PreBalances: []solana.TokenBalance{
			{Mint: WSOL, Owner: "a"},
			{Mint: "m1", Owner: "a"},
		},
		PostBalances: []solana.TokenBalance{
			{Mint: "m1", Owner: "a"},
			{Mint: "m2", Owner: "b"},
		},
	}

	mints := TargetMints(tx)
	want := []string{"m1", "m2"}
	if !reflect.DeepEqual(mints, want) {
		t.Fatalf("Expected %v, got %v", want, mints)
	}

	if got := TargetMints(nil); got != nil {
		t.Errorf("Expected nil for nil tx, got %v", got)
	}
}
