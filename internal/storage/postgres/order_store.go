package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-snipe-engine/internal/domain"
	"solana-snipe-engine/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

const orderColumns = `
	order_id, user_id, token, state, amount_mode, amount::text, slippage_bps, block_delay,
	compute_unit_limit, compute_unit_price, multi_wallet, disabled, last_error, created_at, updated_at
`

// Insert adds a new order. Returns ErrDuplicateKey if (user_id, token) exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.SnipeOrder) error {
	if o == nil || o.ID == "" || o.Token == "" || !o.State.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO snipe_orders (
			order_id, user_id, token, state, amount_mode, amount, slippage_bps, block_delay,
			compute_unit_limit, compute_unit_price, multi_wallet, disabled, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	p := o.Params
	_, err := s.pool.Exec(ctx, query,
		o.ID,
		o.UserID,
		o.Token,
		string(o.State),
		string(p.AmountMode),
		p.Amount.String(),
		int32(p.SlippageBps),
		int32(p.BlockDelay),
		int32(p.ComputeUnitLimit),
		int64(p.ComputeUnitPrice),
		p.MultiWallet,
		p.Disabled,
		o.LastError,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isCheckViolation(err) {
			return fmt.Errorf("insert order: %w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Get retrieves an order by id. Returns ErrNotFound if not exists.
func (s *OrderStore) Get(ctx context.Context, orderID string) (*domain.SnipeOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM snipe_orders WHERE order_id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetByUserToken retrieves the order for (userID, token). Returns ErrNotFound if not exists.
func (s *OrderStore) GetByUserToken(ctx context.Context, userID int64, token string) (*domain.SnipeOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM snipe_orders WHERE user_id = $1 AND token = $2`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, userID, token))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by user token: %w", err)
	}
	return o, nil
}

// FindActiveOrders returns pending, enabled orders for a token.
func (s *OrderStore) FindActiveOrders(ctx context.Context, token string) ([]*domain.SnipeOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM snipe_orders
		WHERE token = $1 AND state = 'pending' AND NOT disabled
		ORDER BY created_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("find active orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// FindAllActive returns every pending, enabled order.
func (s *OrderStore) FindAllActive(ctx context.Context) ([]*domain.SnipeOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM snipe_orders
		WHERE state = 'pending' AND NOT disabled
		ORDER BY created_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find all active orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// SetState moves an order to state. Returns ErrNotFound if the order does not exist.
func (s *OrderStore) SetState(ctx context.Context, orderID string, state domain.OrderState, lastErr string) error {
	if !state.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE snipe_orders
		SET state = $2, last_error = $3, updated_at = $4
		WHERE order_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, orderID, string(state), lastErr, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Transition moves an order from one state to another in a single conditional update.
// Both EXISTS clauses see the pre-update snapshot, so a moved row still counts as present.
func (s *OrderStore) Transition(ctx context.Context, orderID string, from, to domain.OrderState, lastErr string) (bool, error) {
	if !from.IsValid() || !to.IsValid() {
		return false, storage.ErrInvalidInput
	}

	query := `
		WITH moved AS (
			UPDATE snipe_orders
			SET state = $3, last_error = $4, updated_at = $5
			WHERE order_id = $1 AND state = $2
			RETURNING order_id
		)
		SELECT EXISTS(SELECT 1 FROM moved),
		       EXISTS(SELECT 1 FROM snipe_orders WHERE order_id = $1)
	`

	var moved, exists bool
	err := s.pool.QueryRow(ctx, query, orderID, string(from), string(to), lastErr, time.Now().UnixMilli()).Scan(&moved, &exists)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return moved, nil
}

// Rearm moves an errored order back to pending with new params.
func (s *OrderStore) Rearm(ctx context.Context, orderID string, p domain.SnipeParams) error {
	query := `
		UPDATE snipe_orders
		SET state = 'pending', last_error = '',
		    amount_mode = $2, amount = $3::numeric, slippage_bps = $4, block_delay = $5,
		    compute_unit_limit = $6, compute_unit_price = $7, multi_wallet = $8, disabled = $9,
		    updated_at = $10
		WHERE order_id = $1 AND state = 'error'
	`

	tag, err := s.pool.Exec(ctx, query,
		orderID,
		string(p.AmountMode),
		p.Amount.String(),
		int32(p.SlippageBps),
		int32(p.BlockDelay),
		int32(p.ComputeUnitLimit),
		int64(p.ComputeUnitPrice),
		p.MultiWallet,
		p.Disabled,
		time.Now().UnixMilli(),
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("rearm order: %w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("rearm order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteByUser removes all orders of a user.
func (s *OrderStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM snipe_orders WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete orders by user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanOrder scans a single row into SnipeOrder.
func scanOrder(row pgx.Row) (*domain.SnipeOrder, error) {
	var (
		o                    domain.SnipeOrder
		state, mode, amount  string
		slippage, delay, cul int32
		cup                  int64
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Token,
		&state,
		&mode,
		&amount,
		&slippage,
		&delay,
		&cul,
		&cup,
		&o.Params.MultiWallet,
		&o.Params.Disabled,
		&o.LastError,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Params.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	o.State = domain.OrderState(state)
	o.Params.AmountMode = domain.AmountMode(mode)
	o.Params.SlippageBps = uint32(slippage)
	o.Params.BlockDelay = uint32(delay)
	o.Params.ComputeUnitLimit = uint32(cul)
	o.Params.ComputeUnitPrice = uint64(cup)
	return &o, nil
}

// scanOrders scans multiple rows into SnipeOrder slice.
func scanOrders(rows pgx.Rows) ([]*domain.SnipeOrder, error) {
	var result []*domain.SnipeOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return result, nil
}
