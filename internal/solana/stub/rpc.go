package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-snipe-engine/internal/solana"
)

// ErrNotFound is returned when a transaction or balance is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient and solana.TxFetcher for testing.
// Results are scripted through its fields and setters; calls with side effects are recorded.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]*solana.TokenAmount

	Slot      int64
	Blockhash string

	// SimulateFunc decides the simulation outcome. Nil means success.
	SimulateFunc func(txBase64 string) (*solana.SimulateResult, error)
	// SendFunc decides the send outcome. Nil returns a sequential signature.
	SendFunc func(txBase64 string) (string, error)

	simulated []string
	sent      []string
}

var (
	_ solana.RPCClient = (*RPCClient)(nil)
	_ solana.TxFetcher = (*RPCClient)(nil)
)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]*solana.TokenAmount),
		Blockhash:    "GHtXQBsoZHVnNFa9YevAzFr17DJjgHXk3ycTKD5xD3Zi",
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress returns signatures newest first, honoring Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs := c.Signatures[address]
	if opts == nil {
		return sigs, nil
	}

	start := 0
	if opts.Before != "" {
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}
	out := make([]solana.SignatureInfo, 0, len(sigs))
	for _, s := range sigs[start:] {
		if opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetAccountInfo returns the scripted account or nil if absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetTokenAccountBalance returns the scripted balance.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal, ok := c.Balances[account]
	if !ok {
		return nil, fmt.Errorf("balance %s: %w", account, ErrNotFound)
	}
	return bal, nil
}

// GetSlot returns the scripted slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// GetLatestBlockhash returns the scripted blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &solana.Blockhash{Blockhash: c.Blockhash, LastValidBlockHeight: uint64(c.Slot) + 150}, nil
}

// SimulateTransaction records the transaction and applies SimulateFunc.
// A SimulateFunc that blocks until ctx is done can be used to test timeouts.
func (c *RPCClient) SimulateTransaction(ctx context.Context, txBase64 string) (*solana.SimulateResult, error) {
	c.mu.Lock()
	c.simulated = append(c.simulated, txBase64)
	fn := c.SimulateFunc
	c.mu.Unlock()

	if fn == nil {
		return &solana.SimulateResult{UnitsConsumed: 50_000}, nil
	}
	return runWithContext(ctx, func() (*solana.SimulateResult, error) { return fn(txBase64) })
}

// SendTransaction records the transaction and applies SendFunc.
func (c *RPCClient) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	c.mu.Lock()
	c.sent = append(c.sent, txBase64)
	n := len(c.sent)
	fn := c.SendFunc
	c.mu.Unlock()

	if fn == nil {
		return fmt.Sprintf("sig-%d", n), nil
	}
	type res struct {
		sig string
		err error
	}
	done := make(chan res, 1)
	go func() {
		sig, err := fn(txBase64)
		done <- res{sig, err}
	}()
	select {
	case r := <-done:
		return r.sig, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func runWithContext(ctx context.Context, fn func() (*solana.SimulateResult, error)) (*solana.SimulateResult, error) {
	type res struct {
		r   *solana.SimulateResult
		err error
	}
	done := make(chan res, 1)
	go func() {
		r, err := fn()
		done <- res{r, err}
	}()
	select {
	case r := <-done:
		return r.r, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Simulated returns every transaction passed to SimulateTransaction.
func (c *RPCClient) Simulated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.simulated...)
}

// Sent returns every transaction passed to SendTransaction.
func (c *RPCClient) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures sets signatures for an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetAccount sets the account returned by GetAccountInfo.
func (c *RPCClient) SetAccount(address string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[address] = info
}

// SetBalance sets the raw token amount returned for account.
func (c *RPCClient) SetBalance(account, amount string, decimals uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[account] = &solana.TokenAmount{Amount: amount, Decimals: decimals}
}

// SetSimulate replaces SimulateFunc.
func (c *RPCClient) SetSimulate(fn func(txBase64 string) (*solana.SimulateResult, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SimulateFunc = fn
}

// SetSend replaces SendFunc.
func (c *RPCClient) SetSend(fn func(txBase64 string) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendFunc = fn
}

// SetSlot sets the slot returned by GetSlot.
func (c *RPCClient) SetSlot(slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Slot = slot
}
