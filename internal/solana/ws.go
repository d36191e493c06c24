package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// AccountSubscribe subscribes to changes of a single account.
	// The returned id is passed to Unsubscribe; the channel is closed on unsubscribe.
	AccountSubscribe(ctx context.Context, address string) (int64, <-chan AccountNotification, error)

	// Unsubscribe cancels a subscription created by AccountSubscribe.
	Unsubscribe(ctx context.Context, subID int64) error

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// AccountNotification is an account change pushed by accountSubscribe.
type AccountNotification struct {
	Address string
	Slot    int64
	Account AccountInfo
}
