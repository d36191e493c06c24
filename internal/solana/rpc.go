package solana

import "context"

// RPCClient defines the Solana RPC HTTP calls used by the snipe engine.
type RPCClient interface {
	// GetAccountInfo retrieves an account. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenAccountBalance retrieves the token amount held by an SPL token account.
	GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error)

	// GetSlot retrieves the current slot at processed commitment.
	GetSlot(ctx context.Context) (int64, error)

	// GetLatestBlockhash retrieves a recent blockhash for transaction building.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SimulateTransaction dry-runs a base64 wire transaction. Never retried.
	SimulateTransaction(ctx context.Context, txBase64 string) (*SimulateResult, error)

	// SendTransaction submits a base64 wire transaction and returns its signature. Never retried.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
}

// TxFetcher retrieves transactions and signature history, used by pool discovery.
type TxFetcher interface {
	// GetTransaction retrieves a transaction by signature. Returns nil, nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves an account. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
