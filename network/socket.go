package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swipechat/models"
)

var (
	// ErrNotConnected indicates an emit while no live connection exists.
	ErrNotConnected = errors.New("network: event channel not connected")
	// ErrSocketClosed indicates use of a socket after Disconnect.
	ErrSocketClosed = errors.New("network: event channel closed")
)

// ConnectionState represents the lifecycle state of the event channel.
type ConnectionState string

const (
	StateIdle          ConnectionState = "IDLE"
	StateConnecting    ConnectionState = "CONNECTING"
	StateReady         ConnectionState = "READY"
	StateDisconnecting ConnectionState = "DISCONNECTING"
	StateDisconnected  ConnectionState = "DISCONNECTED"
)

var defaultReconnectBackoff = []time.Duration{0, time.Second, 5 * time.Second, 15 * time.Second}

// SocketOptions controls runtime behavior of Socket.
type SocketOptions struct {
	URL              string
	Token            string
	Header           http.Header
	Dialer           *websocket.Dialer
	Logger           *zap.Logger
	ReconnectBackoff []time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	SendBuffer       int
	EventBuffer      int
}

// Socket is a reconnecting websocket event channel. Inbound frames are
// delivered on Events in arrival order; after every successful reconnect a
// synthetic models.EventReconnected event is delivered so consumers can
// resynchronize.
type Socket struct {
	url              string
	dialer           *websocket.Dialer
	logger           *zap.Logger
	reconnectBackoff []time.Duration
	writeWait        time.Duration
	pongWait         time.Duration
	pingInterval     time.Duration
	maxMessageSize   int64
	sendBuffer       int

	headerMu sync.RWMutex
	header   http.Header

	events chan models.Event
	errors chan error

	stateMu sync.RWMutex
	state   ConnectionState

	sessionMu sync.Mutex
	session   *wsSession

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool

	closeOnce sync.Once
	closed    chan struct{}
}

type wsSession struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (ws *wsSession) close() {
	ws.once.Do(func() {
		close(ws.done)
		_ = ws.conn.Close()
	})
}

// NewSocket validates options and returns an unconnected socket.
func NewSocket(options SocketOptions) (*Socket, error) {
	if options.URL == "" {
		return nil, errors.New("socket URL is required")
	}

	dialer := options.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultConnectionTimeout,
		}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := options.ReconnectBackoff
	if len(backoff) == 0 {
		backoff = defaultReconnectBackoff
	}
	writeWait := options.WriteWait
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	pongWait := options.PongWait
	if pongWait <= 0 {
		pongWait = DefaultPongWait
	}
	pingInterval := options.PingInterval
	if pingInterval <= 0 || pingInterval >= pongWait {
		pingInterval = (pongWait * 9) / 10
	}
	maxMessageSize := options.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = MaxFrameSize
	}
	sendBuffer := options.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	eventBuffer := options.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}

	header := http.Header{}
	for k, v := range options.Header {
		header[k] = append([]string(nil), v...)
	}
	if options.Token != "" {
		header.Set("Authorization", "Bearer "+options.Token)
	}

	return &Socket{
		url:              options.URL,
		dialer:           dialer,
		logger:           logger.Named("socket"),
		reconnectBackoff: append([]time.Duration(nil), backoff...),
		writeWait:        writeWait,
		pongWait:         pongWait,
		pingInterval:     pingInterval,
		maxMessageSize:   maxMessageSize,
		sendBuffer:       sendBuffer,
		header:           header,
		events:           make(chan models.Event, eventBuffer),
		errors:           make(chan error, 16),
		state:            StateIdle,
		closed:           make(chan struct{}),
	}, nil
}

// Events returns inbound events. The channel is closed after Disconnect.
func (s *Socket) Events() <-chan models.Event {
	return s.events
}

// Errors returns asynchronous connection errors. Errors are dropped when
// nobody is reading.
func (s *Socket) Errors() <-chan error {
	return s.errors
}

// State returns the current connection state.
func (s *Socket) State() ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// SetToken replaces the bearer token used on the next (re)connect.
func (s *Socket) SetToken(token string) {
	s.headerMu.Lock()
	defer s.headerMu.Unlock()
	if token == "" {
		s.header.Del("Authorization")
		return
	}
	s.header.Set("Authorization", "Bearer "+token)
}

// Connect dials the first connection and starts the reconnect supervisor.
// The supervisor runs until Disconnect is called.
func (s *Socket) Connect(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	select {
	case <-s.closed:
		return ErrSocketClosed
	default:
	}
	if s.started {
		return nil
	}

	s.setState(StateConnecting)
	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.supervise(runCtx, conn)

	return nil
}

// Disconnect closes the live connection, stops reconnecting and closes the
// Events channel.
func (s *Socket) Disconnect() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.closeOnce.Do(func() {
		s.setState(StateDisconnecting)
		close(s.closed)
		if s.cancel != nil {
			s.cancel()
		}

		s.sessionMu.Lock()
		session := s.session
		s.sessionMu.Unlock()
		if session != nil {
			deadline := time.Now().Add(s.writeWait)
			_ = session.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			session.close()
		}

		s.wg.Wait()
		s.setState(StateDisconnected)
		close(s.events)
	})
	return nil
}

// Emit encodes payload as a named event and queues it on the live
// connection. It fails fast with ErrNotConnected while disconnected.
func (s *Socket) Emit(ctx context.Context, name string, payload any) error {
	ev, err := models.NewEvent(name, payload)
	if err != nil {
		return err
	}
	frame, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	s.sessionMu.Lock()
	session := s.session
	s.sessionMu.Unlock()
	if session == nil || s.State() != StateReady {
		return ErrNotConnected
	}

	select {
	case session.send <- frame:
		return nil
	case <-session.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	s.headerMu.RLock()
	header := s.header.Clone()
	s.headerMu.RUnlock()

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: http %d: %w", s.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", s.url, err)
	}
	return conn, nil
}

func (s *Socket) supervise(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		err := s.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)
		if err != nil {
			s.logger.Warn("event channel lost", zap.Error(err))
			s.reportError(err)
		}

		conn = s.reconnect(ctx)
		if conn == nil {
			return
		}
		s.deliver(ctx, models.Event{Name: models.EventReconnected})
	}
}

func (s *Socket) reconnect(ctx context.Context) *websocket.Conn {
	for attempt := 0; ; attempt++ {
		delay := s.reconnectBackoff[min(attempt, len(s.reconnectBackoff)-1)]
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
		}

		conn, err := s.dial(ctx)
		if err == nil {
			s.logger.Info("event channel reconnected", zap.Int("attempt", attempt+1))
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Debug("reconnect attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		s.reportError(err)
	}
}

// serve runs one connection until it fails or ctx is cancelled.
func (s *Socket) serve(ctx context.Context, conn *websocket.Conn) error {
	session := &wsSession{
		conn: conn,
		send: make(chan []byte, s.sendBuffer),
		done: make(chan struct{}),
	}

	s.sessionMu.Lock()
	s.session = session
	s.sessionMu.Unlock()
	defer func() {
		s.sessionMu.Lock()
		if s.session == session {
			s.session = nil
		}
		s.sessionMu.Unlock()
		session.close()
	}()

	if ctx.Err() != nil {
		return nil
	}
	s.setState(StateReady)

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- s.writePump(session)
	}()

	readErr := s.readPump(ctx, session)
	session.close()
	if werr := <-writeErr; readErr == nil {
		readErr = werr
	}
	return readErr
}

func (s *Socket) readPump(ctx context.Context, session *wsSession) error {
	conn := session.conn
	conn.SetReadLimit(s.maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-session.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("server closed event channel: %w", err)
			}
			return fmt.Errorf("read frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))

		ev, err := DecodeEvent(payload)
		if err != nil {
			s.logger.Warn("dropping malformed frame", zap.Int("bytes", len(payload)), zap.Error(err))
			continue
		}
		if !s.deliver(ctx, ev) {
			return nil
		}
	}
}

func (s *Socket) writePump(session *wsSession) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	conn := session.conn
	for {
		select {
		case frame := <-session.send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				session.close()
				return fmt.Errorf("write frame: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				session.close()
				return fmt.Errorf("write ping: %w", err)
			}
		case <-session.done:
			return nil
		}
	}
}

// deliver blocks until the event is queued so ordering is preserved. It
// reports false when the socket is shutting down.
func (s *Socket) deliver(ctx context.Context, ev models.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Socket) setState(state ConnectionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *Socket) reportError(err error) {
	select {
	case s.errors <- err:
	default:
	}
}
