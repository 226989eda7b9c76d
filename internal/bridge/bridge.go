// Package bridge moves the two encoded payloads between devices over a
// single WebSocket round, standing in for the camera scan when both
// peers are terminals. Each side sends exactly one binary message (its
// own payload) and receives exactly one (the peer's). The bridge never
// carries credentials or descriptions; it is not part of the protocol.
package bridge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the listening side of the payload exchange.
type Server struct {
	pin      string
	listener net.Listener
	connCh   chan *websocket.Conn
}

// NewServer creates a payload-exchange server guarded by the given PIN.
func NewServer(pin string) *Server {
	return &Server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// Start begins listening on addr (":0" for a random port). Returns the
// assigned port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start bridge server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/exchange", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first peer; the exchange is strictly two-party.
	select {
	case s.connCh <- conn:
	default:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

// WaitForPeer blocks until a peer connects or ctx is cancelled.
func (s *Server) WaitForPeer(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down the listener, preventing new connections.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// Dial connects to a bridge server. The URL should include the PIN as
// a query parameter, e.g.:
//
//	ws://192.168.1.20:8799/exchange?pin=1234
func Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge server: %w", err)
	}
	return conn, nil
}

// Exchange sends the local payload as one binary message and returns
// the single binary message received from the peer. Symmetric: both
// sides call it with their own payload.
func Exchange(ctx context.Context, conn *websocket.Conn, payload []byte) ([]byte, error) {
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return nil, fmt.Errorf("send payload: %w", err)
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				ch <- result{nil, fmt.Errorf("receive payload: %w", err)}
				return
			}
			if typ == websocket.BinaryMessage {
				ch <- result{data, nil}
				return
			}
		}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

// GeneratePIN returns a random numeric PIN of the given length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
