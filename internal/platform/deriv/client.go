// Package deriv is a WebSocket JSON client for the upstream binary-options
// trading API. It speaks the request/response protocol (req_id correlated)
// used to authorize an account credential and pull its settled contracts.
package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// callTimeout bounds a single request/response round trip.
	callTimeout = 30 * time.Second

	// profitTablePageSize is the page size for profit-table pagination.
	profitTablePageSize = 500
)

// Client is a WebSocket client for the upstream trading API. One Client holds
// one connection authorized as at most one account at a time; the ingestion
// poller cycles through the roster re-authorizing per account.
type Client struct {
	wsURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	reqID   atomic.Int64
	pending map[int64]chan []byte

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewClient creates a client for the given WebSocket endpoint and application
// id. The app id is carried as a query parameter per the upstream protocol.
func NewClient(wsURL string, appID int) *Client {
	u, err := url.Parse(wsURL)
	if err == nil && appID > 0 {
		q := u.Query()
		q.Set("app_id", strconv.Itoa(appID))
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}
	return &Client{
		wsURL:   wsURL,
		pending: make(map[int64]chan []byte),
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("deriv: client closed")
	}
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("deriv: connect: %w", err)
	}

	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

// Close shuts down the connection and fails all in-flight calls.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// Authorize authenticates the connection as the account owning the given
// bearer token. The token must match the upstream credential format.
func (c *Client) Authorize(ctx context.Context, token string) (AccountInfo, error) {
	raw, err := c.call(ctx, request{Authorize: token})
	if err != nil {
		return AccountInfo{}, fmt.Errorf("deriv: authorize: %w", err)
	}

	var resp authorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AccountInfo{}, fmt.Errorf("deriv: authorize: decode: %w", err)
	}

	return AccountInfo{
		LoginID: resp.Authorize.LoginID,
		Email:   resp.Authorize.Email,
		Name:    resp.Authorize.FullName,
		Balance: resp.Authorize.Balance,
	}, nil
}

// AccountInfo is the identity the upstream reports for an authorized token.
type AccountInfo struct {
	LoginID string
	Email   string
	Name    string
	Balance float64
}

// ProfitTable pulls all settled contracts for the currently authorized
// account since the given time, ascending by purchase time. It paginates
// until the upstream returns a short page.
func (c *Client) ProfitTable(ctx context.Context, accountID string, since time.Time) ([]domain.Trade, error) {
	var trades []domain.Trade
	offset := 0

	for {
		req := request{
			ProfitTable: 1,
			Description: 1,
			Sort:        "ASC",
			Limit:       profitTablePageSize,
			Offset:      offset,
		}
		if !since.IsZero() {
			req.DateFrom = since.Unix()
		}

		raw, err := c.call(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("deriv: profit_table: %w", err)
		}

		var resp profitTableResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("deriv: profit_table: decode: %w", err)
		}

		for _, entry := range resp.ProfitTable.Transactions {
			if t, ok := entry.toDomainTrade(accountID); ok {
				trades = append(trades, t)
			}
		}

		if len(resp.ProfitTable.Transactions) < profitTablePageSize {
			return trades, nil
		}
		offset += profitTablePageSize
	}
}

// Ping verifies the connection is alive at the protocol level.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, request{Ping: 1})
	if err != nil {
		return fmt.Errorf("deriv: ping: %w", err)
	}
	return nil
}

// call sends one request and blocks until the correlated response arrives,
// the context is done, or the call times out.
func (c *Client) call(ctx context.Context, req request) ([]byte, error) {
	req.ReqID = c.reqID.Add(1)

	ch := make(chan []byte, 1)

	c.mu.Lock()
	if c.conn == nil || c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	c.pending[req.ReqID] = ch

	data, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, req.ReqID)
		c.mu.Unlock()
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		delete(c.pending, req.ReqID)
		c.mu.Unlock()
		return nil, fmt.Errorf("write: %w", err)
	}
	c.mu.Unlock()

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
			return nil, fmt.Errorf("upstream %s: %s", env.Error.Code, env.Error.Message)
		}
		return raw, nil
	case <-timer.C:
		c.dropPending(req.ReqID)
		return nil, fmt.Errorf("timed out after %s", callTimeout)
	case <-ctx.Done():
		c.dropPending(req.ReqID)
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	}
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop reads response frames and routes them to the waiting caller by
// req_id. It exits when the connection errors or the client is closed.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue // drop unparseable frames
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ReqID]
		if ok {
			delete(c.pending, env.ReqID)
		}
		c.mu.Unlock()

		if !ok {
			continue
		}
		ch <- raw
	}
}

// pingLoop keeps the WebSocket alive with control-frame pings.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
