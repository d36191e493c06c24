package solana

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"
)

// BundleSender submits an ordered group of signed transactions that land atomically.
type BundleSender interface {
	SendBundle(ctx context.Context, txs [][]byte) (string, error)
}

// JitoClient submits bundles to a Jito block engine.
// It shares transport and retry behavior with HTTPClient.
type JitoClient struct {
	rpc *HTTPClient
}

var _ BundleSender = (*JitoClient)(nil)

// MaxBundleSize is the block engine's limit on transactions per bundle.
const MaxBundleSize = 5

// NewJitoClient creates a client for the block engine bundles endpoint,
// e.g. https://mainnet.block-engine.jito.wtf/api/v1/bundles.
func NewJitoClient(endpoint string, opts ...ClientOption) *JitoClient {
	return &JitoClient{rpc: NewHTTPClient(endpoint, opts...)}
}

// SendBundle submits serialized signed transactions as one bundle and returns the bundle id.
// Transactions are base58 encoded on the wire.
func (c *JitoClient) SendBundle(ctx context.Context, txs [][]byte) (string, error) {
	if len(txs) == 0 {
		return "", fmt.Errorf("sendBundle: empty bundle")
	}
	if len(txs) > MaxBundleSize {
		return "", fmt.Errorf("sendBundle: %d transactions exceeds limit %d", len(txs), MaxBundleSize)
	}

	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = base58.Encode(tx)
	}

	var bundleID string
	if err := c.rpc.callOnce(ctx, "sendBundle", []interface{}{encoded}, &bundleID); err != nil {
		return "", fmt.Errorf("sendBundle: %w", err)
	}
	return bundleID, nil
}
