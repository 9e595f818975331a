package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket stream behavior.
type WSConfig struct {
	ReconnectDelay    time.Duration // initial delay before a reconnect attempt
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSLogStream implements LogStream over gorilla/websocket. It maintains one
// logsSubscribe subscription for a single program and transparently
// reconnects and resubscribes on connection loss.
type WSLogStream struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	program string
	subID   atomic.Int64
	out     chan LogNotification

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSLogStream creates a log stream and connects to the endpoint.
func NewWSLogStream(ctx context.Context, endpoint string, config *WSConfig, logger *log.Logger) (*WSLogStream, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &WSLogStream{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		out:      make(chan LogNotification, 10000),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

func (s *WSLogStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn
	return nil
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Subscribe starts the logsSubscribe subscription for the program.
func (s *WSLogStream) Subscribe(ctx context.Context, program string) (<-chan LogNotification, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("stream closed")
	}
	s.program = program

	if err := s.sendSubscribe(ctx); err != nil {
		return nil, err
	}
	return s.out, nil
}

// sendSubscribe writes the logsSubscribe request for the configured program.
// The confirmation is picked up asynchronously in readLoop.
func (s *WSLogStream) sendSubscribe(ctx context.Context) error {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{s.program}},
			map[string]string{"commitment": "confirmed"},
		},
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection and the notification channel.
func (s *WSLogStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.out)
	return nil
}

// readLoop reads messages and forwards log notifications to the output channel.
func (s *WSLogStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}
			reconnectDelay *= 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = s.config.ReconnectDelay
		s.handleMessage(message)
	}
}

func (s *WSLogStream) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	// Subscription confirmation carries the numeric subscription ID.
	if msg.ID != 0 && msg.Method == "" && msg.Params == nil {
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err == nil {
			s.subID.Store(subID)
		}
		return
	}

	if msg.Method != "logsNotification" || msg.Params == nil {
		return
	}

	n := LogNotification{
		Signature: msg.Params.Result.Value.Signature,
		Slot:      msg.Params.Result.Context.Slot,
		Logs:      msg.Params.Result.Value.Logs,
		Err:       msg.Params.Result.Value.Err,
	}

	select {
	case s.out <- n:
	case <-s.done:
	}
}

// reconnect re-establishes the connection and ressubscribes.
func (s *WSLogStream) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.logger.Printf("WebSocket reconnect failed: %v", err)
		return
	}

	if s.program != "" {
		if err := s.sendSubscribe(ctx); err != nil {
			s.logger.Printf("WebSocket resubscribe failed: %v", err)
			return
		}
	}
	s.logger.Println("WebSocket reconnected and resubscribed")
}

// pingLoop keeps the connection alive.
func (s *WSLogStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// Interface check.
var _ LogStream = (*WSLogStream)(nil)
