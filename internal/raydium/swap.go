package raydium

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-snipe-engine/internal/domain"
)

// AMM v4 instruction discriminators.
const (
	InstructionSwapBaseIn  byte = 9
	InstructionSwapBaseOut byte = 11
)

// SPL token instruction discriminators used around the swap.
const (
	tokenInstructionCloseAccount byte = 9
	tokenInstructionSyncNative   byte = 17
)

// ataCreateIdempotent is the associated token account program's CreateIdempotent.
const ataCreateIdempotent byte = 1

var wsolMint = solana.MustPublicKeyFromBase58(domain.WSOLMint)

// Tip is a lamport transfer to a block engine tip account appended to a bundle.
type Tip struct {
	Account  solana.PublicKey
	Lamports uint64
}

// BuyParams describes a WSOL -> token buy on an AMM v4 pool.
type BuyParams struct {
	Pool  *domain.PoolRecord
	Owner solana.PublicKey

	// ExactOut selects swapBaseOut: receive exactly AmountOut spending at most AmountIn.
	// Otherwise swapBaseIn: spend exactly AmountIn receiving at least AmountOut.
	ExactOut  bool
	AmountIn  uint64 // lamports
	AmountOut uint64 // raw token units

	ComputeUnitLimit uint32
	ComputeUnitPrice uint64 // micro-lamports

	Tip *Tip
}

// BuildBuyInstructions assembles the full instruction list for a buy:
// compute budget, WSOL wrap, target ATA, swap, WSOL unwrap and optional tip.
func BuildBuyInstructions(p BuyParams) ([]solana.Instruction, error) {
	if p.Pool == nil {
		return nil, fmt.Errorf("build buy: nil pool")
	}
	token, ok := p.Pool.TradableToken()
	if !ok {
		return nil, fmt.Errorf("build buy: pool %s has no tradable token", p.Pool.ID)
	}
	if p.AmountIn == 0 {
		return nil, fmt.Errorf("build buy: zero amount in")
	}
	if p.ExactOut && p.AmountOut == 0 {
		return nil, fmt.Errorf("build buy: zero amount out")
	}

	tokenMint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return nil, fmt.Errorf("build buy: token mint: %w", err)
	}
	wsolATA, _, err := solana.FindAssociatedTokenAddress(p.Owner, wsolMint)
	if err != nil {
		return nil, fmt.Errorf("build buy: wsol ata: %w", err)
	}
	tokenATA, _, err := solana.FindAssociatedTokenAddress(p.Owner, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("build buy: token ata: %w", err)
	}

	swap, err := swapInstruction(p.Pool, wsolATA, tokenATA, p.Owner, p.ExactOut, p.AmountIn, p.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("build buy: %w", err)
	}

	var instrs []solana.Instruction
	if p.ComputeUnitLimit > 0 {
		instrs = append(instrs, computebudget.NewSetComputeUnitLimitInstruction(p.ComputeUnitLimit).Build())
	}
	if p.ComputeUnitPrice > 0 {
		instrs = append(instrs, computebudget.NewSetComputeUnitPriceInstruction(p.ComputeUnitPrice).Build())
	}

	instrs = append(instrs,
		createATAIdempotent(p.Owner, wsolATA, wsolMint),
		system.NewTransferInstruction(p.AmountIn, p.Owner, wsolATA).Build(),
		syncNative(wsolATA),
		createATAIdempotent(p.Owner, tokenATA, tokenMint),
		swap,
		closeAccount(wsolATA, p.Owner),
	)

	if p.Tip != nil && p.Tip.Lamports > 0 {
		instrs = append(instrs, system.NewTransferInstruction(p.Tip.Lamports, p.Owner, p.Tip.Account).Build())
	}
	return instrs, nil
}

// BuildTransaction wraps instructions into an unsigned transaction paid by payer.
func BuildTransaction(instrs []solana.Instruction, payer solana.PublicKey, blockhash string) (*solana.Transaction, error) {
	hash, err := solana.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	builder := solana.NewTransactionBuilder()
	for _, in := range instrs {
		builder.AddInstruction(in)
	}
	builder.SetFeePayer(payer)
	builder.SetRecentBlockHash(hash)

	tx, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// SignTransaction signs tx with key, the only signer of a buy.
func SignTransaction(tx *solana.Transaction, key solana.PrivateKey) error {
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if key.PublicKey().Equals(pk) {
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

// swapInstruction builds swapBaseIn or swapBaseOut with the 18 account layout.
func swapInstruction(pool *domain.PoolRecord, source, dest, owner solana.PublicKey, exactOut bool, amountIn, amountOut uint64) (solana.Instruction, error) {
	keys := []string{
		pool.ProgramID, pool.ID, pool.Authority, pool.OpenOrders, pool.TargetOrders,
		pool.BaseVault, pool.QuoteVault, pool.MarketProgramID, pool.MarketID,
		pool.MarketBids, pool.MarketAsks, pool.MarketEventQueue,
		pool.MarketBaseVault, pool.MarketQuoteVault, pool.MarketVaultSigner,
	}
	pks := make([]solana.PublicKey, len(keys))
	for i, k := range keys {
		pk, err := solana.PublicKeyFromBase58(k)
		if err != nil {
			return nil, fmt.Errorf("pool %s account %d %q: %w", pool.ID, i, k, err)
		}
		pks[i] = pk
	}
	program := pks[0]

	data := make([]byte, 17)
	if exactOut {
		data[0] = InstructionSwapBaseOut
		binary.LittleEndian.PutUint64(data[1:], amountIn) // max in
		binary.LittleEndian.PutUint64(data[9:], amountOut)
	} else {
		data[0] = InstructionSwapBaseIn
		binary.LittleEndian.PutUint64(data[1:], amountIn)
		binary.LittleEndian.PutUint64(data[9:], amountOut) // min out
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: pks[1], IsSigner: false, IsWritable: true},   // amm
		{PublicKey: pks[2], IsSigner: false, IsWritable: false},  // authority
		{PublicKey: pks[3], IsSigner: false, IsWritable: true},   // open orders
		{PublicKey: pks[4], IsSigner: false, IsWritable: true},   // target orders
		{PublicKey: pks[5], IsSigner: false, IsWritable: true},   // pool base vault
		{PublicKey: pks[6], IsSigner: false, IsWritable: true},   // pool quote vault
		{PublicKey: pks[7], IsSigner: false, IsWritable: false},  // market program
		{PublicKey: pks[8], IsSigner: false, IsWritable: true},   // market
		{PublicKey: pks[9], IsSigner: false, IsWritable: true},   // bids
		{PublicKey: pks[10], IsSigner: false, IsWritable: true},  // asks
		{PublicKey: pks[11], IsSigner: false, IsWritable: true},  // event queue
		{PublicKey: pks[12], IsSigner: false, IsWritable: true},  // market base vault
		{PublicKey: pks[13], IsSigner: false, IsWritable: true},  // market quote vault
		{PublicKey: pks[14], IsSigner: false, IsWritable: false}, // vault signer
		{PublicKey: source, IsSigner: false, IsWritable: true},
		{PublicKey: dest, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(program, accounts, data), nil
}

func createATAIdempotent(owner, ata, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			{PublicKey: owner, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		},
		[]byte{ataCreateIdempotent},
	)
}

func syncNative(account solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: account, IsSigner: false, IsWritable: true},
		},
		[]byte{tokenInstructionSyncNative},
	)
}

func closeAccount(account, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			{PublicKey: account, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		[]byte{tokenInstructionCloseAccount},
	)
}
