package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskhive/taskhive/internal/types"
)

const (
	defaultEventBuffer      = 256
	defaultReconnectBackoff = 10 * time.Second
	rpcWriteTimeout         = 10 * time.Second
)

// Config holds gateway client settings.
type Config struct {
	// URL is the backend websocket endpoint.
	URL string

	// ReconnectBackoff is the delay before a redial attempt after the
	// stream drops (default 10s).
	ReconnectBackoff time.Duration

	// EventBuffer is the per-subscription bounded buffer size (default 256).
	EventBuffer int

	// Token, when set, is sent as a bearer credential on every dial.
	Token string

	Logger zerolog.Logger
}

// frame is the JSON wire unit in both directions.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wireError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// pushParams is the payload of an id-less "change" frame.
type pushParams struct {
	SubscriptionID string `json:"subscription_id"`
	ChangeEvent
}

// Client talks to the backend over a single websocket. It implements
// Gateway and, through its auth RPCs, the session manager's AuthProvider.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	pending      map[string]chan frame
	subs         map[string]*Subscription // keyed by server subscription id
	token        string
	closed       bool
	reconnecting bool

	done chan struct{}
}

var _ Gateway = (*Client)(nil)

// Dial connects to the backend and starts the read loop.
//
// The initial connection failure is returned to the caller rather than
// retried; once connected, stream-level failures trigger the reconnect
// supervisor, which redials after the configured backoff and re-issues
// all active subscriptions.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultReconnectBackoff
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	c := &Client{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "gateway").Logger(),
		pending: make(map[string]chan frame),
		subs:    make(map[string]*Subscription),
		token:   cfg.Token,
		done:    make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, gwErr(KindNetwork, "dial", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	opts := &websocket.DialOptions{}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close shuts the client down. Active subscriptions are closed; in-flight
// requests fail with a network error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	close(c.done)

	for _, sub := range subs {
		sub.Close()
	}

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

// Connected reports whether the websocket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// readLoop pulls frames off one connection until it fails, then hands off
// to the reconnect supervisor.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.onDisconnect(conn, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}

		switch {
		case f.Method == "change":
			c.dispatchChange(f)
		case f.ID != "":
			c.dispatchResponse(f)
		default:
			c.log.Debug().Str("method", f.Method).Msg("ignoring unexpected frame")
		}
	}
}

func (c *Client) dispatchChange(f frame) {
	var push pushParams
	if err := json.Unmarshal(f.Params, &push); err != nil {
		c.log.Warn().Err(err).Msg("dropping undecodable change event")
		return
	}

	c.mu.Lock()
	sub := c.subs[push.SubscriptionID]
	c.mu.Unlock()

	if sub == nil {
		// Race between unsubscribe and an in-flight push; harmless.
		c.log.Debug().Str("subscription", push.SubscriptionID).Msg("change for unknown subscription")
		return
	}

	if !sub.Emit(push.ChangeEvent) {
		c.log.Warn().
			Str("table", string(push.Table)).
			Str("workspace", push.WorkspaceID).
			Int64("dropped", sub.Dropped()).
			Msg("slow consumer, dropped change event")
	}
}

func (c *Client) dispatchResponse(f frame) {
	c.mu.Lock()
	ch := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()

	if ch != nil {
		ch <- f
	}
}

// onDisconnect fails in-flight requests and starts the reconnect
// supervisor, unless the client is closing or a newer connection already
// took over.
func (c *Client) onDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan frame)
	closed := c.closed
	startSupervisor := !closed && !c.reconnecting
	if startSupervisor {
		c.reconnecting = true
	}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	if closed {
		return
	}

	c.log.Warn().Err(cause).Msg("change-feed stream lost")
	if startSupervisor {
		go c.reconnectLoop()
	}
}

// reconnectLoop redials after the backoff until it succeeds or the client
// closes, then re-issues every active subscription. The loop is explicit
// so its state is observable and cancellation is immediate.
func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectBackoff):
		}

		c.log.Info().Str("url", c.cfg.URL).Msg("attempting reconnect")

		ctx, cancel := context.WithTimeout(context.Background(), rpcWriteTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.Error().Err(err).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close(websocket.StatusNormalClosure, "client closing")
			return
		}
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop(conn)
		c.resubscribeAll()

		c.log.Info().Msg("reconnected")
		return
	}
}

// resubscribeAll re-issues the subscribe request for every live
// subscription and remaps the new server-side ids. Events resume from
// current state; missed changes are reconciled by the next snapshot pull.
func (c *Client) resubscribeAll() {
	c.mu.Lock()
	old := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, sub := range old {
		if sub.isClosed() {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), rpcWriteTimeout)
		id, err := c.sendSubscribe(ctx, sub.WorkspaceID(), sub.Table())
		cancel()
		if err != nil {
			c.log.Error().Err(err).
				Str("table", string(sub.Table())).
				Str("workspace", sub.WorkspaceID()).
				Msg("failed to restore subscription")
			continue
		}

		sub.setServerID(id)
		c.mu.Lock()
		c.subs[id] = sub
		c.mu.Unlock()
	}
}

// rpc performs one request/response exchange.
func (c *Client) rpc(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, gwErr(KindDecode, method, err)
	}

	f := frame{
		ID:     uuid.NewString(),
		Method: method,
		Params: raw,
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, gwErr(KindDecode, method, err)
	}

	ch := make(chan frame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, gwErr(KindNetwork, method, fmt.Errorf("not connected"))
	}
	c.pending[f.ID] = ch
	c.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
		return nil, gwErr(KindNetwork, method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
		return nil, gwErr(KindTimeout, method, ctx.Err())

	case <-c.done:
		return nil, gwErr(KindNetwork, method, fmt.Errorf("client closed"))

	case resp, ok := <-ch:
		if !ok {
			return nil, gwErr(KindNetwork, method, fmt.Errorf("connection lost"))
		}
		if resp.Error != nil {
			kind := KindServer
			if resp.Error.Code == http.StatusUnauthorized || resp.Error.Code == http.StatusForbidden {
				kind = KindAuth
			}
			return nil, gwErr(kind, method, resp.Error)
		}
		return resp.Result, nil
	}
}

type scopeParams struct {
	WorkspaceID string      `json:"workspace_id"`
	Table       types.Table `json:"table"`
	ID          string      `json:"id,omitempty"`
}

// FetchAll implements Gateway.
func (c *Client) FetchAll(ctx context.Context, workspaceID string, table types.Table) ([]json.RawMessage, error) {
	result, err := c.rpc(ctx, "fetch_all", scopeParams{WorkspaceID: workspaceID, Table: table})
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, gwErr(KindDecode, "fetch_all", err)
	}
	return records, nil
}

// Fetch implements Gateway.
func (c *Client) Fetch(ctx context.Context, workspaceID string, table types.Table, id string) (json.RawMessage, error) {
	result, err := c.rpc(ctx, "fetch", scopeParams{WorkspaceID: workspaceID, Table: table, ID: id})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type writeParams struct {
	WorkspaceID string      `json:"workspace_id"`
	Table       types.Table `json:"table"`
	Record      any         `json:"record,omitempty"`
	ID          string      `json:"id,omitempty"`
}

// Create implements Gateway.
func (c *Client) Create(ctx context.Context, workspaceID string, table types.Table, record any) error {
	_, err := c.rpc(ctx, "create", writeParams{WorkspaceID: workspaceID, Table: table, Record: record})
	return err
}

// Update implements Gateway.
func (c *Client) Update(ctx context.Context, workspaceID string, table types.Table, record any) error {
	_, err := c.rpc(ctx, "update", writeParams{WorkspaceID: workspaceID, Table: table, Record: record})
	return err
}

// Delete implements Gateway.
func (c *Client) Delete(ctx context.Context, workspaceID string, table types.Table, id string) error {
	_, err := c.rpc(ctx, "delete", writeParams{WorkspaceID: workspaceID, Table: table, ID: id})
	return err
}

func (c *Client) sendSubscribe(ctx context.Context, workspaceID string, table types.Table) (string, error) {
	result, err := c.rpc(ctx, "subscribe", scopeParams{WorkspaceID: workspaceID, Table: table})
	if err != nil {
		return "", err
	}

	var resp struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", gwErr(KindDecode, "subscribe", err)
	}
	if resp.SubscriptionID == "" {
		return "", gwErr(KindDecode, "subscribe", fmt.Errorf("backend returned empty subscription id"))
	}
	return resp.SubscriptionID, nil
}

// Subscribe implements Gateway.
func (c *Client) Subscribe(ctx context.Context, workspaceID string, table types.Table) (*Subscription, error) {
	id, err := c.sendSubscribe(ctx, workspaceID, table)
	if err != nil {
		return nil, err
	}

	sub := NewSubscription(workspaceID, table, c.cfg.EventBuffer)
	sub.setServerID(id)
	sub.closeHook = func() { c.unsubscribe(sub) }

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	c.log.Debug().
		Str("table", string(table)).
		Str("workspace", workspaceID).
		Str("subscription", id).
		Msg("subscribed")

	return sub, nil
}

func (c *Client) unsubscribe(sub *Subscription) {
	id := sub.serverID()

	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()

	// Best effort; the server also reaps dead subscriptions on disconnect.
	ctx, cancel := context.WithTimeout(context.Background(), rpcWriteTimeout)
	defer cancel()
	if _, err := c.rpc(ctx, "unsubscribe", map[string]string{"subscription_id": id}); err != nil {
		c.log.Debug().Err(err).Str("subscription", id).Msg("unsubscribe failed")
	}
}
