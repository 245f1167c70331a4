// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// BridgeActivity is one set_activity frame received by the fake bridge.
type BridgeActivity struct {
	Type       string `json:"type"`
	Details    string `json:"details"`
	State      string `json:"state"`
	Start      int64  `json:"start,omitempty"`
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

type bridgeFrame struct {
	Op       string          `json:"op"`
	Version  int             `json:"v,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Nonce    uint64          `json:"nonce,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	Activity *BridgeActivity `json:"activity,omitempty"`
}

// FakeBridge is an in-process presence bridge speaking the websocket frame
// protocol. It accepts every handshake unless told otherwise and acks every
// activity with AckCode.
type FakeBridge struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	rejectWith string
	ackCode    string
	handshakes []string
	activities []BridgeActivity
	conns      []*websocket.Conn
}

// NewFakeBridge starts a bridge on a loopback port.
func NewFakeBridge() *FakeBridge {
	b := &FakeBridge{ackCode: "ok"}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// URL returns the ws:// address of the bridge.
func (b *FakeBridge) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/presence"
}

// RejectHandshakes makes later handshakes fail with code, e.g.
// "invalid_credential". An empty code accepts again.
func (b *FakeBridge) RejectHandshakes(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectWith = code
}

// AckWith sets the code returned for later activity frames.
func (b *FakeBridge) AckWith(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ackCode = code
}

// Handshakes returns the client ids seen, in order.
func (b *FakeBridge) Handshakes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.handshakes...)
}

// Activities returns every activity received, in order.
func (b *FakeBridge) Activities() []BridgeActivity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BridgeActivity(nil), b.activities...)
}

// DropConnections closes every open client connection.
func (b *FakeBridge) DropConnections() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close stops the bridge.
func (b *FakeBridge) Close() {
	b.DropConnections()
	b.server.Close()
}

func (b *FakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var hello bridgeFrame
	if err := conn.ReadJSON(&hello); err != nil || hello.Op != "handshake" {
		return
	}

	b.mu.Lock()
	b.handshakes = append(b.handshakes, hello.ClientID)
	reject := b.rejectWith
	if reject == "" {
		b.conns = append(b.conns, conn)
	}
	b.mu.Unlock()

	if reject != "" {
		_ = conn.WriteJSON(bridgeFrame{Op: "error", Code: reject, Message: "handshake rejected"})
		return
	}
	if err := conn.WriteJSON(bridgeFrame{Op: "ready"}); err != nil {
		return
	}

	for {
		var f bridgeFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Op != "set_activity" || f.Activity == nil {
			continue
		}
		b.mu.Lock()
		b.activities = append(b.activities, *f.Activity)
		code := b.ackCode
		b.mu.Unlock()

		if err := conn.WriteJSON(bridgeFrame{Op: "ack", Nonce: f.Nonce, Code: code}); err != nil {
			return
		}
	}
}
