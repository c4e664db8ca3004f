package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/sdkerr"
)

// wire captures frames written by the correlator.
type wire struct {
	mu     sync.Mutex
	frames chan []byte
	err    error
}

func newWire() *wire {
	return &wire{frames: make(chan []byte, 16)}
}

func (w *wire) send(data []byte) error {
	w.mu.Lock()
	err := w.err
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.frames <- data
	return nil
}

func (w *wire) next(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case data := <-w.frames:
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
	return protocol.Frame{}
}

func requestID(t *testing.T, f protocol.Frame) string {
	t.Helper()
	id, err := f.RequestID()
	if err != nil {
		t.Fatalf("RequestID failed: %v", err)
	}
	return id
}

type callResult struct {
	raw json.RawMessage
	err error
}

func callAsync(c *Correlator, ctx context.Context, p protocol.Params, timeout time.Duration, send SendFunc) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		raw, err := c.Call(ctx, p, timeout, send)
		ch <- callResult{raw, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for call result")
	}
	return callResult{}
}

func TestCorrelator_ResponseResolvesCall(t *testing.T) {
	c := New(nil)
	w := newWire()

	res := callAsync(c, context.Background(), protocol.PingParams{}, time.Second, w.send)
	f := w.next(t)
	if f.Method != protocol.MethodPing {
		t.Errorf("method = %q, want ping", f.Method)
	}

	id := requestID(t, f)
	if err := c.HandleMessage(`{"id":"`+id+`","result":{"ok":true}}`, nil); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	r := waitResult(t, res)
	if r.err != nil {
		t.Fatalf("Call failed: %v", r.err)
	}
	if string(r.raw) != `{"ok":true}` {
		t.Errorf("result = %s", r.raw)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelator_FreshIDPerCall(t *testing.T) {
	c := New(nil)
	w := newWire()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callAsync(c, ctx, protocol.PingParams{}, time.Minute, w.send)
	callAsync(c, ctx, protocol.PingParams{}, time.Minute, w.send)

	a := requestID(t, w.next(t))
	b := requestID(t, w.next(t))
	if a == b || a == "" {
		t.Errorf("ids %q and %q should be distinct and non-empty", a, b)
	}
}

func TestCorrelator_ServerError(t *testing.T) {
	c := New(nil)
	w := newWire()

	res := callAsync(c, context.Background(), protocol.SendParams{ChannelID: "x"}, time.Second, w.send)
	id := requestID(t, w.next(t))
	c.HandleMessage(`{"id":"`+id+`","result":{},"error":{"code":1003,"message":"invalid channel"}}`, nil)

	r := waitResult(t, res)
	var rpcErr *protocol.RPCError
	if !errors.As(r.err, &rpcErr) {
		t.Fatalf("error = %v, want *protocol.RPCError", r.err)
	}
	if rpcErr.Code != 1003 || rpcErr.Message != "invalid channel" {
		t.Errorf("rpc error = %+v", rpcErr)
	}
	if !errors.Is(r.err, sdkerr.ErrServer) {
		t.Error("server error should match sdkerr.ErrServer")
	}
}

func TestCorrelator_Timeout(t *testing.T) {
	c := New(nil)
	w := newWire()

	start := time.Now()
	res := callAsync(c, context.Background(), protocol.ConnectParams{UID: "u"}, 50*time.Millisecond, w.send)
	id := requestID(t, w.next(t))

	r := waitResult(t, res)
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("timed out after %v, want >= 50ms", elapsed)
	}
	if !errors.Is(r.err, sdkerr.ErrTimeout) {
		t.Fatalf("error = %v, want timeout", r.err)
	}
	if !strings.Contains(r.err.Error(), "connect") || !strings.Contains(r.err.Error(), id) {
		t.Errorf("timeout error %q should name method and id", r.err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after timeout", c.Pending())
	}

	// A late response is ignored.
	if err := c.HandleMessage(`{"id":"`+id+`","result":{}}`, nil); err != nil {
		t.Errorf("late response returned error: %v", err)
	}
}

func TestCorrelator_SendFailure(t *testing.T) {
	c := New(nil)
	w := newWire()
	w.err = errors.New("broken pipe")

	_, err := c.Call(context.Background(), protocol.PingParams{}, time.Second, w.send)
	if !errors.Is(err, sdkerr.ErrNetwork) {
		t.Fatalf("error = %v, want network error", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelator_ContextCancel(t *testing.T) {
	c := New(nil)
	w := newWire()
	ctx, cancel := context.WithCancel(context.Background())

	res := callAsync(c, ctx, protocol.PingParams{}, time.Minute, w.send)
	w.next(t)
	cancel()

	r := waitResult(t, res)
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", r.err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelator_CancelAll(t *testing.T) {
	c := New(nil)
	w := newWire()

	var results []<-chan callResult
	for i := 0; i < 5; i++ {
		results = append(results, callAsync(c, context.Background(), protocol.PingParams{}, time.Minute, w.send))
		w.next(t)
	}

	c.CancelAll()

	for _, res := range results {
		r := waitResult(t, res)
		if !errors.Is(r.err, sdkerr.ErrNetwork) || !errors.Is(r.err, sdkerr.ErrConnectionClosed) {
			t.Errorf("error = %v, want network connection closed", r.err)
		}
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelator_CancelAllRacesResponses(t *testing.T) {
	for round := 0; round < 20; round++ {
		c := New(nil)
		w := newWire()

		var (
			outcomes sync.WaitGroup
			mu       sync.Mutex
			resolved int
		)

		ids := make([]string, 0, 10)
		for i := 0; i < 10; i++ {
			outcomes.Add(1)
			go func() {
				defer outcomes.Done()
				c.Call(context.Background(), protocol.PingParams{}, time.Minute, w.send)
				mu.Lock()
				resolved++
				mu.Unlock()
			}()
			ids = append(ids, requestID(t, w.next(t)))
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				c.HandleMessage(`{"id":"`+id+`","result":{}}`, nil)
			}
		}()
		go func() {
			defer wg.Done()
			c.CancelAll()
		}()
		wg.Wait()
		outcomes.Wait()

		if resolved != 10 {
			t.Fatalf("round %d: resolved %d calls, want 10", round, resolved)
		}
		if c.Pending() != 0 {
			t.Fatalf("round %d: Pending() = %d", round, c.Pending())
		}
	}
}

func TestCorrelator_UnknownResponseIgnored(t *testing.T) {
	c := New(nil)
	if err := c.HandleMessage(`{"id":"nope","result":{}}`, nil); err != nil {
		t.Errorf("HandleMessage returned %v, want nil", err)
	}
}

func TestCorrelator_Notification(t *testing.T) {
	c := New(nil)

	var gotMethod string
	var gotParams json.RawMessage
	err := c.HandleMessage(`{"method":"recv","params":{"message_id":"m1"}}`, func(method string, params json.RawMessage) {
		gotMethod = method
		gotParams = params
	})
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if gotMethod != "recv" || string(gotParams) != `{"message_id":"m1"}` {
		t.Errorf("notification = %q %s", gotMethod, gotParams)
	}
}

func TestCorrelator_MalformedFrame(t *testing.T) {
	c := New(nil)
	err := c.HandleMessage(`not json`, func(string, json.RawMessage) {
		t.Error("handler must not be called")
	})
	if !errors.Is(err, sdkerr.ErrProtocol) {
		t.Errorf("error = %v, want protocol error", err)
	}
}

func TestCorrelator_Notify(t *testing.T) {
	c := New(nil)
	w := newWire()

	err := c.Notify(protocol.RecvAckParams{Header: protocol.DefaultHeader(), MessageID: "m1", MessageSeq: 42}, w.send)
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	f := w.next(t)
	if f.HasID() {
		t.Error("notification must not carry an id")
	}
	if f.Method != protocol.MethodRecvAck {
		t.Errorf("method = %q", f.Method)
	}
	var p protocol.RecvAckParams
	if err := json.Unmarshal(f.Params, &p); err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.MessageID != "m1" || p.MessageSeq != 42 {
		t.Errorf("params = %+v", p)
	}
}

func TestInvoke_DecodesResult(t *testing.T) {
	c := New(nil)
	w := newWire()

	type out struct {
		res protocol.SendResult
		err error
	}
	done := make(chan out, 1)
	go func() {
		r, err := Invoke[protocol.SendResult](context.Background(), c, protocol.SendParams{}, time.Second, w.send)
		done <- out{r, err}
	}()

	id := requestID(t, w.next(t))
	c.HandleMessage(`{"id":"`+id+`","result":{"message_id":"m9","message_seq":7}}`, nil)

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("Invoke failed: %v", o.err)
		}
		if o.res.MessageID != "m9" || o.res.MessageSeq != 7 {
			t.Errorf("result = %+v", o.res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Invoke")
	}
}

func TestCorrelator_Observer(t *testing.T) {
	c := New(nil)
	w := newWire()

	observed := make(chan string, 1)
	c.SetObserver(func(method string, elapsed time.Duration, err error) {
		if errors.Is(err, sdkerr.ErrTimeout) {
			observed <- method
		}
	})

	c.Call(context.Background(), protocol.PingParams{}, 10*time.Millisecond, w.send)

	select {
	case m := <-observed:
		if m != protocol.MethodPing {
			t.Errorf("observed method %q", m)
		}
	case <-time.After(time.Second):
		t.Fatal("observer not called")
	}
}
