package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/types"
)

// fakeBackend is an in-process websocket server speaking the client's
// frame protocol. Tests script its per-method behavior and can push
// change frames or drop the connection at will.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	subSeq   int
	methods  []string
	onMethod map[string]func(f frame) frame
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, onMethod: make(map[string]func(frame) frame)}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		b.serve(conn)
	}))
	t.Cleanup(b.server.Close)

	// Default handlers: subscribe hands out sequential ids, everything
	// else succeeds with an empty result.
	b.onMethod["subscribe"] = func(f frame) frame {
		b.mu.Lock()
		b.subSeq++
		id := fmt.Sprintf("sub-%d", b.subSeq)
		b.mu.Unlock()
		result, _ := json.Marshal(map[string]string{"subscription_id": id})
		return frame{ID: f.ID, Result: result}
	}

	return b
}

func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *fakeBackend) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		b.mu.Lock()
		b.methods = append(b.methods, f.Method)
		handler := b.onMethod[f.Method]
		b.mu.Unlock()

		resp := frame{ID: f.ID, Result: json.RawMessage(`{}`)}
		if handler != nil {
			resp = handler(f)
		}
		out, _ := json.Marshal(resp)
		if err := conn.Write(context.Background(), websocket.MessageText, out); err != nil {
			return
		}
	}
}

func (b *fakeBackend) stub(method string, handler func(frame) frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMethod[method] = handler
}

func (b *fakeBackend) calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (b *fakeBackend) push(subscriptionID string, ev ChangeEvent) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.t.Fatal("no active backend connection")
	}

	params, _ := json.Marshal(pushParams{SubscriptionID: subscriptionID, ChangeEvent: ev})
	out, _ := json.Marshal(frame{Method: "change", Params: params})
	if err := conn.Write(context.Background(), websocket.MessageText, out); err != nil {
		b.t.Fatalf("push failed: %v", err)
	}
}

func (b *fakeBackend) dropConn() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "test drop")
	}
}

func dialTest(t *testing.T, b *fakeBackend, cfg Config) *Client {
	t.Helper()
	cfg.URL = b.url()
	cfg.Logger = zerolog.Nop()
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 50 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDial_FailureReturnedNotRetried(t *testing.T) {
	_, err := Dial(context.Background(), Config{
		URL:    "ws://127.0.0.1:1/nope",
		Logger: zerolog.Nop(),
	})
	require.Error(t, err)

	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindNetwork, gerr.Kind)
}

func TestFetchAll_RoundTrip(t *testing.T) {
	b := newFakeBackend(t)
	b.stub("fetch_all", func(f frame) frame {
		return frame{ID: f.ID, Result: json.RawMessage(`[{"id":"t-1"},{"id":"t-2"}]`)}
	})
	c := dialTest(t, b, Config{})

	records, err := c.FetchAll(context.Background(), "ws-1", types.TableTasks)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRPC_ServerErrorKinds(t *testing.T) {
	b := newFakeBackend(t)
	b.stub("create", func(f frame) frame {
		return frame{ID: f.ID, Error: &wireError{Code: 401, Message: "bad token"}}
	})
	b.stub("delete", func(f frame) frame {
		return frame{ID: f.ID, Error: &wireError{Code: 500, Message: "boom"}}
	})
	c := dialTest(t, b, Config{})

	err := c.Create(context.Background(), "ws-1", types.TableTasks, map[string]string{"id": "t-1"})
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindAuth, gerr.Kind)

	err = c.Delete(context.Background(), "ws-1", types.TableTasks, "t-1")
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindServer, gerr.Kind)
}

func TestSubscribe_DeliversEventsInOrder(t *testing.T) {
	b := newFakeBackend(t)
	c := dialTest(t, b, Config{})

	sub, err := c.Subscribe(context.Background(), "ws-1", types.TableTasks)
	require.NoError(t, err)
	defer sub.Close()

	for i := 1; i <= 3; i++ {
		b.push("sub-1", ChangeEvent{
			Action:      ActionUpdate,
			Table:       types.TableTasks,
			WorkspaceID: "ws-1",
			EntityID:    "t-1",
			Payload:     json.RawMessage(fmt.Sprintf(`{"v":%d}`, i)),
		})
	}

	for i := 1; i <= 3; i++ {
		select {
		case ev := <-sub.Events():
			assert.JSONEq(t, fmt.Sprintf(`{"v":%d}`, i), string(ev.Payload))
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestSubscribe_SlowConsumerDropsOldest(t *testing.T) {
	b := newFakeBackend(t)
	c := dialTest(t, b, Config{EventBuffer: 2})

	sub, err := c.Subscribe(context.Background(), "ws-1", types.TableTasks)
	require.NoError(t, err)
	defer sub.Close()

	// Nobody reads: the buffer holds 2, the third push evicts the first.
	for i := 1; i <= 3; i++ {
		b.push("sub-1", ChangeEvent{
			Action:      ActionUpdate,
			Table:       types.TableTasks,
			WorkspaceID: "ws-1",
			EntityID:    "t-1",
			Payload:     json.RawMessage(fmt.Sprintf(`{"v":%d}`, i)),
		})
	}

	deadline := time.After(2 * time.Second)
	for sub.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("drop counter never incremented")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ev := <-sub.Events()
	assert.JSONEq(t, `{"v":2}`, string(ev.Payload), "oldest event should have been evicted")
	assert.EqualValues(t, 1, sub.Dropped())
}

func TestReconnect_ResubscribesAfterDrop(t *testing.T) {
	b := newFakeBackend(t)
	c := dialTest(t, b, Config{})

	sub, err := c.Subscribe(context.Background(), "ws-1", types.TableTasks)
	require.NoError(t, err)
	defer sub.Close()
	require.Equal(t, 1, b.calls("subscribe"))

	b.dropConn()

	// Supervisor redials after the backoff and re-issues the subscription.
	deadline := time.After(5 * time.Second)
	for b.calls("subscribe") < 2 {
		select {
		case <-deadline:
			t.Fatal("no resubscribe after reconnect")
		case <-time.After(20 * time.Millisecond):
		}
	}

	b.push("sub-2", ChangeEvent{
		Action:      ActionInsert,
		Table:       types.TableTasks,
		WorkspaceID: "ws-1",
		EntityID:    "t-9",
		Payload:     json.RawMessage(`{"id":"t-9"}`),
	})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "t-9", ev.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("event after reconnect not delivered")
	}
}

func TestClose_FailsInflightAndStopsReconnect(t *testing.T) {
	b := newFakeBackend(t)
	c := dialTest(t, b, Config{})

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())

	err := c.Create(context.Background(), "ws-1", types.TableTasks, map[string]string{"id": "t-1"})
	require.Error(t, err)
}
