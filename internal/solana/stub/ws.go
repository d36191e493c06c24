package stub

import (
	"context"
	"errors"
	"sync"

	"solana-snipe-engine/internal/solana"
)

// WSClient implements solana.WSClient in memory. Tests push account changes with Notify.
type WSClient struct {
	mu       sync.Mutex
	next     int64
	accounts map[int64]*accountSub
	logs     []chan solana.LogNotification
	closed   bool

	// SubscribeErr, when set, fails every AccountSubscribe call.
	SubscribeErr error
}

type accountSub struct {
	address string
	ch      chan solana.AccountNotification
}

var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{accounts: make(map[int64]*accountSub)}
}

// SubscribeLogs returns a channel fed by PushLogs.
func (c *WSClient) SubscribeLogs(_ context.Context, _ solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("client closed")
	}
	ch := make(chan solana.LogNotification, 100)
	c.logs = append(c.logs, ch)
	return ch, nil
}

// AccountSubscribe registers an account subscription.
func (c *WSClient) AccountSubscribe(_ context.Context, address string) (int64, <-chan solana.AccountNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, errors.New("client closed")
	}
	if c.SubscribeErr != nil {
		return 0, nil, c.SubscribeErr
	}
	c.next++
	sub := &accountSub{address: address, ch: make(chan solana.AccountNotification, 16)}
	c.accounts[c.next] = sub
	return c.next, sub.ch, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (c *WSClient) Unsubscribe(_ context.Context, subID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.accounts[subID]; ok {
		close(sub.ch)
		delete(c.accounts, subID)
	}
	return nil
}

// Close closes every channel.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for id, sub := range c.accounts {
		close(sub.ch)
		delete(c.accounts, id)
	}
	for _, ch := range c.logs {
		close(ch)
	}
	c.logs = nil
	return nil
}

// Notify delivers an account change at slot to every subscription on address.
// It reports how many subscriptions received it.
func (c *WSClient) Notify(address string, slot int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sub := range c.accounts {
		if sub.address != address {
			continue
		}
		select {
		case sub.ch <- solana.AccountNotification{Address: address, Slot: slot}:
			n++
		default:
		}
	}
	return n
}

// PushLogs delivers a logs notification to every logs subscriber.
func (c *WSClient) PushLogs(n solana.LogNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.logs {
		ch <- n
	}
}

// Subscribed returns the addresses with a live account subscription.
func (c *WSClient) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.accounts))
	for _, sub := range c.accounts {
		out = append(out, sub.address)
	}
	return out
}

// BundleSender records bundles instead of sending them.
type BundleSender struct {
	mu      sync.Mutex
	Bundles [][][]byte
	Err     error
}

var _ solana.BundleSender = (*BundleSender)(nil)

// SendBundle records txs and returns Err if set.
func (b *BundleSender) SendBundle(_ context.Context, txs [][]byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return "", b.Err
	}
	b.Bundles = append(b.Bundles, txs)
	return "bundle", nil
}

// Count returns how many bundles were sent.
func (b *BundleSender) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Bundles)
}
