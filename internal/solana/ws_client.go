package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Commitment used for all subscriptions.
	Commitment string
	// Logger receives connection and error events. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        "processed",
	}
}

type subKind int

const (
	subLogs subKind = iota
	subAccount
)

// subscription is one live server-side subscription and its delivery channel.
type subscription struct {
	kind      subKind
	method    string
	params    []interface{}
	address   string
	logsCh    chan LogNotification
	accountCh chan AccountNotification
}

func (s *subscription) unsubscribeMethod() string {
	if s.kind == subAccount {
		return "accountUnsubscribe"
	}
	return "logsUnsubscribe"
}

func (s *subscription) close() {
	if s.logsCh != nil {
		close(s.logsCh)
	}
	if s.accountCh != nil {
		close(s.accountCh)
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	log      logrus.FieldLogger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps the current server subscription ID to its subscription.
	// On reconnect entries are re-keyed; handles returned to callers are stable
	// and translated through handles.
	subs       map[int64]*subscription
	handles    map[int64]int64 // caller handle -> current server subscription ID
	subsMu     sync.RWMutex
	nextHandle atomic.Int64

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// dropped counts account notifications discarded because the consumer lagged.
	dropped atomic.Uint64

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "processed"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		log:         logger.WithField("component", "solana-ws"),
		subs:        make(map[int64]*subscription),
		handles:     make(map[int64]int64),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	sub := &subscription{
		kind:   subLogs,
		method: "logsSubscribe",
		params: []interface{}{
			mentionsFilter,
			map[string]string{"commitment": c.config.Commitment},
		},
		// Large buffer absorbs bursts; delivery blocks rather than drops.
		logsCh: make(chan LogNotification, 10000),
	}

	if _, err := c.register(ctx, sub); err != nil {
		return nil, err
	}
	return sub.logsCh, nil
}

// AccountSubscribe subscribes to changes of address.
func (c *WSClientImpl) AccountSubscribe(ctx context.Context, address string) (int64, <-chan AccountNotification, error) {
	sub := &subscription{
		kind:    subAccount,
		method:  "accountSubscribe",
		address: address,
		params: []interface{}{
			address,
			map[string]string{"encoding": "base64", "commitment": c.config.Commitment},
		},
		accountCh: make(chan AccountNotification, 64),
	}

	handle, err := c.register(ctx, sub)
	if err != nil {
		return 0, nil, err
	}
	return handle, sub.accountCh, nil
}

// Unsubscribe cancels a subscription and closes its channel.
// Unknown handles are ignored.
func (c *WSClientImpl) Unsubscribe(ctx context.Context, handle int64) error {
	c.subsMu.Lock()
	subID, ok := c.handles[handle]
	var sub *subscription
	if ok {
		sub = c.subs[subID]
		delete(c.handles, handle)
		delete(c.subs, subID)
	}
	c.subsMu.Unlock()

	if sub == nil {
		return nil
	}
	sub.close()

	// The server confirms with a bare boolean; nothing waits on it.
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  sub.unsubscribeMethod(),
		Params:  []interface{}{subID},
	}
	if err := c.write(req); err != nil {
		return fmt.Errorf("write unsubscribe: %w", err)
	}
	return nil
}

// register subscribes on the server and records sub under a stable handle.
func (c *WSClientImpl) register(ctx context.Context, sub *subscription) (int64, error) {
	subID, err := c.subscribe(ctx, sub.method, sub.params)
	if err != nil {
		return 0, err
	}

	handle := c.nextHandle.Add(1)
	c.subsMu.Lock()
	c.subs[subID] = sub
	c.handles[handle] = subID
	c.subsMu.Unlock()
	return handle, nil
}

// subscribe sends a subscription request and waits for the server subscription ID.
func (c *WSClientImpl) subscribe(ctx context.Context, method string, params []interface{}) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(req); err != nil {
		forget()
		return 0, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-timer.C:
		forget()
		return 0, fmt.Errorf("%s timeout after %s", method, c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

func (c *WSClientImpl) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Dropped returns the number of account notifications discarded for slow consumers.
func (c *WSClientImpl) Dropped() uint64 {
	return c.dropped.Load()
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// readLoop may be blocked delivering; wait for it before closing channels.
	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		sub.close()
		delete(c.subs, id)
	}
	c.handles = make(map[int64]int64)
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.log.WithError(err).WithField("delay", reconnectDelay).Warn("websocket read failed, reconnecting")
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Retried on the next read error.
		c.log.WithError(err).Warn("websocket reconnect failed")
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-creates every live subscription on the new connection and
// re-keys it under the new server ID. Caller handles stay valid.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	current := make(map[int64]*subscription, len(c.subs))
	for id, sub := range c.subs {
		current[id] = sub
	}
	c.subsMu.RUnlock()

	restored := 0
	for oldSubID, sub := range current {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, err := c.subscribe(ctx, sub.method, sub.params)
		cancel()

		if err != nil {
			c.log.WithError(err).WithField("method", sub.method).Warn("resubscribe failed")
			continue
		}

		c.subsMu.Lock()
		if c.subs[oldSubID] == sub {
			delete(c.subs, oldSubID)
			c.subs[newSubID] = sub
			for handle, id := range c.handles {
				if id == oldSubID {
					c.handles[handle] = newSubID
				}
			}
		}
		c.subsMu.Unlock()
		restored++
	}

	c.log.WithField("subscriptions", restored).Info("websocket reconnected")
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Params != nil {
		switch notif.Method {
		case "logsNotification":
			c.handleLogsNotification(&notif)
			return
		case "accountNotification":
			c.handleAccountNotification(&notif)
			return
		}
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// The pending subscription, if any, times out on its own.
		c.log.WithFields(logrus.Fields{
			"request_id": errResp.ID,
			"code":       errResp.Error.Code,
		}).Warn(errResp.Error.Message)
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

func (c *WSClientImpl) lookup(subID int64) *subscription {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[subID]
}

// handleLogsNotification dispatches log notification to subscriber.
func (c *WSClientImpl) handleLogsNotification(notif *wsNotification) {
	var value wsLogsValue
	if err := json.Unmarshal(notif.Params.Result.Value, &value); err != nil {
		return
	}

	logNotif := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		logNotif.Slot = notif.Params.Result.Context.Slot
	}

	sub := c.lookup(notif.Params.Subscription)
	if sub == nil || sub.logsCh == nil {
		return
	}

	// Block until we can send - never drop log events
	select {
	case sub.logsCh <- logNotif:
	case <-c.done:
	}
}

// handleAccountNotification dispatches an account change to its subscriber.
// A lagging consumer loses the notification; the next change re-triggers it.
func (c *WSClientImpl) handleAccountNotification(notif *wsNotification) {
	var value wsAccountValue
	if err := json.Unmarshal(notif.Params.Result.Value, &value); err != nil {
		return
	}

	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	sub := c.subs[notif.Params.Subscription]
	if sub == nil || sub.accountCh == nil {
		return
	}

	accNotif := AccountNotification{
		Address: sub.address,
		Account: AccountInfo{
			Lamports:   value.Lamports,
			Owner:      value.Owner,
			Executable: value.Executable,
			RentEpoch:  value.RentEpoch,
		},
	}
	if len(value.Data) >= 1 {
		accNotif.Account.Data = value.Data[0]
	}
	if notif.Params.Result.Context != nil {
		accNotif.Slot = notif.Params.Result.Context.Slot
	}

	// Sending under the read lock keeps Unsubscribe from closing the channel mid-send.
	select {
	case sub.accountCh <- accNotif:
	default:
		c.dropped.Add(1)
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces in readLoop, which reconnects.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext      `json:"context"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

type wsAccountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}
