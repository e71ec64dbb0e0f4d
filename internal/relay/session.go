package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeDeadline    = 10 * time.Second
	identityTimeout  = 10 * time.Second
	callTimeout      = 10 * time.Second
	maxMessageSize   = MaxSyncSize + 1024*1024 // row frames carry one clip plus envelope
)

// session is one live authenticated relay connection. It is built by dial,
// which blocks until the relay has assigned an identity, and torn down either
// by close or by a read failure, after which disconnected reports true.
type session struct {
	conn *websocket.Conn
	view *View
	log  *slog.Logger

	events chan<- Event

	writeMu sync.Mutex

	seq     atomic.Uint64
	callMu  sync.Mutex
	pending map[uint64]chan string // seq → reducer error ("" = ok)

	disconnected atomic.Bool
	closeOnce    sync.Once
}

// sessionURL derives the websocket endpoint for a database from the
// configured server URL.
func sessionURL(serverURL, database string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/database/" + database + "/session"
	return u.String(), nil
}

// dial connects, authenticates, and subscribes. On success the relay has
// already assigned an identity and the Connected event has been emitted.
func dial(cfg Config, token string, view *View, events chan<- Event) (*session, error) {
	endpoint, err := sessionURL(cfg.ServerURL, cfg.Database)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &session{
		conn:    conn,
		view:    view,
		log:     slog.With("worker", "relay"),
		events:  events,
		pending: make(map[uint64]chan string),
	}

	if err := s.writeMsg(clientMessage{
		Type:     "authenticate",
		Token:    token,
		Database: cfg.Database,
		Username: cfg.Username,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	// The first server message must be the identity assignment.
	_ = conn.SetReadDeadline(time.Now().Add(identityTimeout))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read identity: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if msg.Type != "identity" {
		conn.Close()
		return nil, fmt.Errorf("expected identity message, got %q", msg.Type)
	}

	s.log.Info("connected to relay", "identity", msg.Identity)
	s.emit(Connected{Identity: msg.Identity, Token: msg.Token})

	if err := s.writeMsg(clientMessage{Type: "subscribe"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	go s.readLoop()
	return s, nil
}

func (s *session) emit(ev Event) {
	s.events <- ev
}

func (s *session) writeMsg(msg clientMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// readLoop consumes server messages until the connection fails. Exactly one
// Disconnected event is emitted per session.
func (s *session) readLoop() {
	defer s.markDisconnected("read loop ended")
	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.disconnected.Load() {
				s.log.Warn("relay connection lost", "err", err)
			}
			return
		}
		switch msg.Type {
		case "subscription_applied":
			s.view.Reset(msg.Rows)
			s.log.Info("subscription applied", "rows", len(msg.Rows))
			s.emit(SubscriptionApplied{})
		case "row":
			s.view.Apply(msg.Table, msg.Op, msg.Row)
			if msg.Table == tableCurrentClip && msg.Op != "delete" {
				var clip CurrentClip
				if err := json.Unmarshal(msg.Row, &clip); err != nil {
					s.log.Error("undecodable clip row", "err", err)
					continue
				}
				s.emit(ClipUpdated{Clip: clip})
			}
		case "call_result":
			s.resolveCall(msg.Seq, msg.Error)
		default:
			s.log.Warn("unexpected relay message", "type", msg.Type)
		}
	}
}

func (s *session) markDisconnected(reason string) {
	s.closeOnce.Do(func() {
		s.disconnected.Store(true)
		s.log.Info("relay session ended", "reason", reason)
		s.emit(Disconnected{})
	})
}

// close tears the connection down without emitting Disconnected twice.
func (s *session) close() {
	s.disconnected.Store(true)
	_ = s.conn.Close()
}

// call invokes a reducer fire-and-forget.
func (s *session) call(reducer string, args any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", reducer, err)
	}
	return s.writeMsg(clientMessage{
		Type:    "call",
		Seq:     s.seq.Add(1),
		Reducer: reducer,
		Args:    raw,
	})
}

// callWait invokes a reducer and waits for its call_result.
func (s *session) callWait(reducer string, args any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", reducer, err)
	}
	seq := s.seq.Add(1)
	result := make(chan string, 1)
	s.callMu.Lock()
	s.pending[seq] = result
	s.callMu.Unlock()
	defer func() {
		s.callMu.Lock()
		delete(s.pending, seq)
		s.callMu.Unlock()
	}()

	if err := s.writeMsg(clientMessage{Type: "call", Seq: seq, Reducer: reducer, Args: raw}); err != nil {
		return err
	}
	select {
	case errMsg := <-result:
		if errMsg != "" {
			return fmt.Errorf("%s: %s", reducer, errMsg)
		}
		return nil
	case <-time.After(callTimeout):
		return fmt.Errorf("%s: no result from relay", reducer)
	}
}

func (s *session) resolveCall(seq uint64, errMsg string) {
	s.callMu.Lock()
	ch, ok := s.pending[seq]
	s.callMu.Unlock()
	if ok {
		ch <- errMsg
	} else if errMsg != "" {
		// Fire-and-forget mutation failed server-side.
		s.log.Error("relay mutation failed", "seq", seq, "err", errMsg)
	}
}
