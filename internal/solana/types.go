package solana

import (
	"encoding/base64"
	"fmt"
)

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

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// DecodeData returns the raw account data.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}

// TokenAmount is an SPL token balance. Amount is the raw integer amount as a string.
type TokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// Blockhash is a recent blockhash and the last block height it is valid for.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SimulateResult is the outcome of simulateTransaction.
// Err is nil when the simulated execution succeeded.
type SimulateResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// Failed reports whether the simulated execution returned an error.
func (r *SimulateResult) Failed() bool {
	return r.Err != nil
}

// Reason describes the simulation failure, empty if it succeeded.
func (r *SimulateResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("%v", r.Err)
}
