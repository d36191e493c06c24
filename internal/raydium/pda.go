package raydium

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const maxSeedLength = 32

// IsOnCurve reports whether key is a valid ed25519 point, i.e. a wallet-style
// address rather than a program derived one.
func IsOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// CreateProgramAddress derives an address from seeds without a bump search.
// It fails when the hash lands on the curve.
func CreateProgramAddress(seeds [][]byte, programID []byte) ([]byte, error) {
	data := make([]byte, 0, 64+len(programID)+21)
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return nil, fmt.Errorf("seed length %d exceeds %d", len(seed), maxSeedLength)
		}
		data = append(data, seed...)
	}
	data = append(data, programID...)
	data = append(data, []byte("ProgramDerivedAddress")...)

	hash := sha256.Sum256(data)
	if IsOnCurve(hash[:]) {
		return nil, fmt.Errorf("derived address is on curve")
	}
	return hash[:], nil
}

// VaultSigner derives a market's vault signer from its stored nonce.
// Seeds are [market, nonce as u64 LE].
func VaultSigner(marketID, marketProgramID string, nonce uint64) (string, error) {
	market, err := base58.Decode(marketID)
	if err != nil || len(market) != 32 {
		return "", fmt.Errorf("market id %q: invalid pubkey", marketID)
	}
	program, err := base58.Decode(marketProgramID)
	if err != nil || len(program) != 32 {
		return "", fmt.Errorf("market program %q: invalid pubkey", marketProgramID)
	}

	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)

	addr, err := CreateProgramAddress([][]byte{market, nonceBytes}, program)
	if err != nil {
		return "", fmt.Errorf("vault signer for %s: %w", marketID, err)
	}
	return base58.Encode(addr), nil
}
