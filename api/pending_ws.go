package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PendingTxHandler is called for every pending transaction hash announced
// by the node.
type PendingTxHandler func(txHash string)

// PendingTxClient subscribes to a node's newPendingTransactions feed over
// WebSocket JSON-RPC and forwards announced hashes to a handler.
type PendingTxClient struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	wsURL          string
	subID          string
	onHash         PendingTxHandler
	reconnectDelay time.Duration

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	hashesSeen int64
	statsMu    sync.RWMutex
}

// NewPendingTxClient creates a pending-transaction subscriber for the
// given WebSocket endpoint.
func NewPendingTxClient(wsURL string, onHash PendingTxHandler) *PendingTxClient {
	return &PendingTxClient{
		wsURL:          wsURL,
		onHash:         onHash,
		reconnectDelay: 2 * time.Second,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start connects and subscribes, then reads notifications until Stop or
// context cancellation.
func (c *PendingTxClient) Start(ctx context.Context) error {
	if c.running {
		return fmt.Errorf("PendingTx client already running")
	}

	if err := c.connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	if err := c.subscribe(); err != nil {
		c.conn.Close()
		return fmt.Errorf("subscription failed: %w", err)
	}

	c.running = true
	go c.readLoop(ctx)

	log.Printf("[PendingWS] Started - watching pending transactions")
	return nil
}

// Stop unsubscribes and closes the connection.
func (c *PendingTxClient) Stop() {
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		if c.subID != "" {
			unsubMsg := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_unsubscribe",
				"params":  []string{c.subID},
				"id":      2,
			}
			c.conn.WriteJSON(unsubMsg)
		}
		c.conn.Close()
	}
	c.connMu.Unlock()

	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
		log.Printf("[PendingWS] Shutdown timeout")
	}
	log.Printf("[PendingWS] Stopped")
}

// HashesSeen reports how many pending hashes have been delivered so far.
func (c *PendingTxClient) HashesSeen() int64 {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.hashesSeen
}

func (c *PendingTxClient) connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(c.wsURL, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	log.Printf("[PendingWS] Connected to node")
	return nil
}

func (c *PendingTxClient) subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	subMsg := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscribe",
		"params":  []interface{}{"newPendingTransactions"},
		"id":      1,
	}
	if err := c.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("subscribe write failed: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("subscribe read failed: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var resp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(msg, &resp); err != nil {
		return fmt.Errorf("subscribe parse failed: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("subscribe error: %s", resp.Error.Message)
	}

	c.subID = resp.Result
	log.Printf("[PendingWS] Subscribed to newPendingTransactions (sub_id=%s)", c.subID)
	return nil
}

func (c *PendingTxClient) readLoop(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Printf("[PendingWS] Read error: %v, reconnecting...", err)
			c.reconnect(ctx)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *PendingTxClient) reconnect(ctx context.Context) {
	log.Printf("[PendingWS] Reconnecting in %s...", c.reconnectDelay)

	// Release the dead connection before dialing a new one.
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-c.stopCh:
		return
	case <-time.After(c.reconnectDelay):
	}

	if err := c.connect(); err != nil {
		log.Printf("[PendingWS] Reconnection failed: %v", err)
		return
	}
	if err := c.subscribe(); err != nil {
		log.Printf("[PendingWS] Resubscription failed: %v", err)
	}
}

func (c *PendingTxClient) handleMessage(data []byte) {
	var notif struct {
		Method string `json:"method"`
		Params struct {
			Subscription string `json:"subscription"`
			Result       string `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &notif); err != nil {
		return
	}
	if notif.Method != "eth_subscription" || notif.Params.Subscription != c.subID {
		return
	}

	txHash := notif.Params.Result
	if txHash == "" {
		return
	}

	c.statsMu.Lock()
	c.hashesSeen++
	count := c.hashesSeen
	c.statsMu.Unlock()

	if count%5000 == 0 {
		log.Printf("[PendingWS] Seen %d pending transactions", count)
	}

	if c.onHash != nil {
		c.onHash(txHash)
	}
}
