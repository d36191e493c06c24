package domain

// AttemptOutcome is how a single execution attempt concluded.
type AttemptOutcome string

const (
	OutcomeSimulateFailed AttemptOutcome = "simulate_failed"
	OutcomeSendFailed     AttemptOutcome = "send_failed"
	OutcomeSent           AttemptOutcome = "sent"
	OutcomeGuarded        AttemptOutcome = "guarded"
	OutcomeSkipped        AttemptOutcome = "skipped" // order left pending before the guarded attempt claimed it
)

// SnipeAttempt records one executor attempt for an order.
// Corresponds to snipe_attempts table in ClickHouse.
type SnipeAttempt struct {
	AttemptID string         // deterministic hash of (order, pool, slot)
	OrderID   string         // FK to snipe_orders
	UserID    int64          // order owner
	Token     string         // target mint
	PoolID    string         // pool the check arrived for
	Slot      int64          // trigger slot
	Shard     int            // executor shard
	Outcome   AttemptOutcome // simulate_failed | send_failed | sent | guarded | skipped
	Signature string         // tx signature or bundle id, empty unless sent
	Error     string         // failure detail
	LatencyMs int64          // check received -> outcome
	Timestamp int64          // Unix timestamp in milliseconds
}
