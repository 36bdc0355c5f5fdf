// Package bridge is the websocket client for the backend bridge
// process. It exposes the two capabilities the rest of the client
// consumes: request/response calls matched by id, and push-topic
// subscriptions delivered as raw JSON snapshots.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/starbridge/internal/observability"
)

const (
	defaultHandshakeTimeout = 4 * time.Second
	defaultWriteTimeout     = 3 * time.Second
	subscriberBuffer        = 64
)

var ErrClosed = errors.New("bridge gateway is closed")

// Config controls how the gateway connects to the bridge process.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Metrics          *observability.Metrics
}

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// Gateway is a connected bridge client. One reader goroutine
// demultiplexes response frames into per-call channels and event frames
// into topic subscribers.
type Gateway struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	metrics      *observability.Metrics

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan callResult
	subs      map[string]map[int]chan json.RawMessage
	nextSubID int
	closed    bool
	closeErr  error
}

// Dial connects to the bridge and starts the reader. The connection is
// released if anything after the dial fails.
func Dial(ctx context.Context, cfg Config) (*Gateway, error) {
	wsURL, err := normalizeURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}

	var header http.Header
	if token := strings.TrimSpace(cfg.Token); token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "dial", Err: fmt.Errorf("%s: %w", resp.Status, err)}
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	g := &Gateway{
		conn:         conn,
		writeTimeout: writeTimeout,
		metrics:      cfg.Metrics,
		pending:      make(map[string]chan callResult),
		subs:         make(map[string]map[int]chan json.RawMessage),
	}
	go g.readLoop()
	return g, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "ws://127.0.0.1:18900"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported bridge url scheme %q", u.Scheme)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Invoke sends a request frame and waits for the matching response.
// The payload is unmarshaled into out; a nil out discards it.
func (g *Gateway) Invoke(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	ch := make(chan callResult, 1)

	g.mu.Lock()
	if g.closed {
		err := g.closeErr
		g.mu.Unlock()
		g.metrics.BridgeRequest(method, "closed")
		return &TransportError{Op: method, Err: err}
	}
	g.pending[id] = ch
	g.mu.Unlock()

	g.metrics.BridgeInflight(1)
	defer g.metrics.BridgeInflight(-1)

	if err := g.writeJSON(request{Type: "req", ID: id, Method: method, Params: params}); err != nil {
		g.dropPending(id)
		g.metrics.BridgeRequest(method, "write_error")
		return &TransportError{Op: method, Err: err}
	}

	select {
	case <-ctx.Done():
		g.dropPending(id)
		g.metrics.BridgeRequest(method, "canceled")
		return &TransportError{Op: method, Err: ctx.Err()}
	case res := <-ch:
		if res.err != nil {
			var rejected *RejectedError
			if errors.As(res.err, &rejected) {
				rejected.Method = method
				g.metrics.BridgeRequest(method, "rejected")
				return rejected
			}
			g.metrics.BridgeRequest(method, "transport_error")
			return &TransportError{Op: method, Err: res.err}
		}
		if out == nil {
			g.metrics.BridgeRequest(method, "ok")
			return nil
		}
		if len(res.payload) == 0 || string(res.payload) == "null" {
			g.metrics.BridgeRequest(method, "ok")
			return nil
		}
		if err := json.Unmarshal(res.payload, out); err != nil {
			g.metrics.BridgeRequest(method, "decode_error")
			return &TransportError{Op: method, Err: fmt.Errorf("decode payload: %w", err)}
		}
		g.metrics.BridgeRequest(method, "ok")
		return nil
	}
}

// Listen subscribes to a push topic. The returned func removes the
// subscription and closes the channel; it is safe to call twice.
func (g *Gateway) Listen(topic string) (<-chan json.RawMessage, func()) {
	topic = strings.TrimSpace(topic)
	ch := make(chan json.RawMessage, subscriberBuffer)

	g.mu.Lock()
	if g.closed || topic == "" {
		g.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	g.nextSubID++
	id := g.nextSubID
	if _, ok := g.subs[topic]; !ok {
		g.subs[topic] = make(map[int]chan json.RawMessage)
	}
	g.subs[topic][id] = ch
	g.mu.Unlock()

	return ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		subs := g.subs[topic]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(g.subs, topic)
		}
	}
}

// Close tears the connection down. Pending calls fail with a
// TransportError and all subscriber channels are closed.
func (g *Gateway) Close() error {
	err := g.conn.Close()
	g.shutdown(ErrClosed)
	return err
}

func (g *Gateway) readLoop() {
	for {
		_, data, err := g.conn.ReadMessage()
		if err != nil {
			g.shutdown(err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			g.metrics.PushDecodeError("frame")
			continue
		}
		switch f.Type {
		case "res":
			g.deliverResponse(f)
		case "event":
			g.deliverEvent(f)
		default:
			// ignore
		}
	}
}

func (g *Gateway) deliverResponse(f frame) {
	g.mu.Lock()
	ch, ok := g.pending[f.ID]
	if ok {
		delete(g.pending, f.ID)
	}
	g.mu.Unlock()
	if !ok {
		return
	}
	if !f.OK {
		rejected := &RejectedError{}
		if f.Error != nil {
			rejected.Code = f.Error.Code
			rejected.Message = f.Error.Message
		}
		ch <- callResult{err: rejected}
		return
	}
	ch <- callResult{payload: f.Payload}
}

func (g *Gateway) deliverEvent(f frame) {
	g.metrics.PushEvent(f.Event)

	// Sends stay under g.mu, the same lock unlisten and shutdown close
	// subscriber channels under, so a channel can never close mid-send.
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.subs[f.Event] {
		select {
		case ch <- f.Payload:
		default:
			// Slow subscriber; drop rather than stall the reader.
			g.metrics.PushDropped(f.Event)
		}
	}
}

func (g *Gateway) shutdown(cause error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.closeErr = cause
	pending := g.pending
	g.pending = make(map[string]chan callResult)
	subs := g.subs
	g.subs = make(map[string]map[int]chan json.RawMessage)
	g.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: cause}
	}
	for _, topic := range subs {
		for _, ch := range topic {
			close(ch)
		}
	}
	_ = g.conn.Close()
}

func (g *Gateway) dropPending(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

func (g *Gateway) writeJSON(payload any) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = g.conn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
	defer g.conn.SetWriteDeadline(time.Time{})
	return g.conn.WriteJSON(payload)
}
