package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeAttemptID computes a deterministic attempt_id using SHA256.
// Formula: SHA256(order_id|pool_id|slot|started_at_ms)
// Returns hex-encoded hash (64 characters). A journal row written twice for the
// same attempt keeps the same id, so ReplacingMergeTree collapses it.
func ComputeAttemptID(orderID, poolID string, slot int64, startedAtMs int64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", orderID, poolID, slot, startedAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
