package infra

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/presenced/internal/domain"
)

const (
	protocolVersion = 1
	writeTimeout    = 5 * time.Second
)

// Frame ops of the presence bridge protocol.
const (
	opHandshake   = "handshake"
	opReady       = "ready"
	opError       = "error"
	opSetActivity = "set_activity"
	opAck         = "ack"
)

// frame is one JSON message in either direction.
type frame struct {
	Op       string         `json:"op"`
	Version  int            `json:"v,omitempty"`
	ClientID string         `json:"client_id,omitempty"`
	Nonce    uint64         `json:"nonce,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
	Activity *activityFrame `json:"activity,omitempty"`
}

type activityFrame struct {
	Type       string `json:"type"`
	Details    string `json:"details"`
	State      string `json:"state"`
	Start      int64  `json:"start,omitempty"`
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

// WSClientConfig configures the websocket presence client.
type WSClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	RateLimit        int // Updates allowed per RateWindow
	RateWindow       time.Duration
}

// WSClient implements domain.PresenceClient against a local presence bridge
// speaking JSON frames over a websocket.
type WSClient struct {
	config WSClientConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWSClient creates a client. Nothing is dialed until Create.
func NewWSClient(config WSClientConfig, logger *zap.Logger) *WSClient {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 2 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}
	if config.RateWindow <= 0 {
		config.RateWindow = 20 * time.Second
	}
	return &WSClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		logger: logger,
	}
}

// Create dials the bridge and performs the credential handshake. It blocks
// for at most the handshake timeout.
func (c *WSClient) Create(clientID int64) (domain.PresenceSession, domain.ResultCode) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.logger.Debug("bridge dial failed", zap.String("url", c.config.URL), zap.Error(err))
		return nil, dialResult(err)
	}

	deadline := time.Now().Add(c.config.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	hello := frame{Op: opHandshake, Version: protocolVersion, ClientID: strconv.FormatInt(clientID, 10)}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, domain.ResultTransportError
	}

	_ = conn.SetReadDeadline(deadline)
	var reply frame
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		c.logger.Debug("bridge handshake failed", zap.Error(err))
		return nil, domain.ResultServiceUnavailable
	}
	switch reply.Op {
	case opReady:
	case opError:
		conn.Close()
		code := parseResultCode(reply.Code)
		c.logger.Warn("bridge rejected handshake",
			zap.Stringer("result", code), zap.String("message", reply.Message))
		return nil, code
	default:
		conn.Close()
		return nil, domain.ResultTransportError
	}
	_ = conn.SetReadDeadline(time.Time{})

	every := c.config.RateWindow / time.Duration(c.config.RateLimit)
	s := &wsSession{
		conn:       conn,
		limiter:    rate.NewLimiter(rate.Every(every), c.config.RateLimit),
		pending:    make(map[uint64]func(domain.ResultCode)),
		logger:     c.logger,
		readerDone: make(chan struct{}),
	}
	go s.readLoop()
	return s, domain.ResultOK
}

// dialResult maps a dial error to a result code. A refused connection means
// nothing is listening.
func dialResult(err error) domain.ResultCode {
	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || (errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()) {
		return domain.ResultNotRunning
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return domain.ResultApplicationMismatch
	}
	return domain.ResultServiceUnavailable
}

// wsSession is one bridge connection. UpdateActivity, RunCallbacks and Close
// are called from the engine goroutine; readLoop runs on its own and only
// hands acks over through the mutex.
type wsSession struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	logger  *zap.Logger

	nonce   uint64
	outbox  []frame
	pending map[uint64]func(domain.ResultCode)
	closed  bool

	mu         sync.Mutex
	acks       []frame
	readErr    error
	readerDone chan struct{}
}

func (s *wsSession) UpdateActivity(a domain.Activity, done func(domain.ResultCode)) {
	if s.closed {
		return
	}
	s.nonce++
	s.pending[s.nonce] = done
	s.outbox = append(s.outbox, frame{
		Op:    opSetActivity,
		Nonce: s.nonce,
		Activity: &activityFrame{
			Type:       a.Type.String(),
			Details:    a.Details,
			State:      a.State,
			Start:      a.StartTimestamp,
			LargeImage: a.LargeImageKey,
			LargeText:  a.LargeImageText,
		},
	})
}

// RunCallbacks sends what the rate budget allows, then completes every
// update the bridge has acknowledged.
func (s *wsSession) RunCallbacks() domain.ResultCode {
	if s.closed {
		return domain.ResultInternalError
	}

	s.mu.Lock()
	acks := s.acks
	s.acks = nil
	readErr := s.readErr
	s.mu.Unlock()

	for _, ack := range acks {
		done, ok := s.pending[ack.Nonce]
		if !ok {
			continue
		}
		delete(s.pending, ack.Nonce)
		done(parseResultCode(ack.Code))
	}
	if readErr != nil {
		s.logger.Debug("bridge connection lost", zap.Error(readErr))
		return domain.ResultNotRunning
	}

	for len(s.outbox) > 0 && s.limiter.Allow() {
		f := s.outbox[0]
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteJSON(f); err != nil {
			s.logger.Debug("bridge write failed", zap.Error(err))
			return domain.ResultTransportError
		}
		s.outbox = s.outbox[1:]
	}
	return domain.ResultOK
}

// Close drops the connection and every pending completion.
func (s *wsSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.conn.Close()
	<-s.readerDone
	s.pending = nil
	s.outbox = nil
}

func (s *wsSession) readLoop() {
	defer close(s.readerDone)
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		if f.Op != opAck {
			continue
		}
		s.mu.Lock()
		s.acks = append(s.acks, f)
		s.mu.Unlock()
	}
}

var resultCodes = []domain.ResultCode{
	domain.ResultOK,
	domain.ResultServiceUnavailable,
	domain.ResultInternalError,
	domain.ResultInvalidCredential,
	domain.ResultNotRunning,
	domain.ResultApplicationMismatch,
	domain.ResultTransportError,
	domain.ResultRateLimited,
}

// parseResultCode maps a wire code to a ResultCode. Unknown codes are
// internal errors.
func parseResultCode(s string) domain.ResultCode {
	for _, c := range resultCodes {
		if c.String() == s {
			return c
		}
	}
	return domain.ResultInternalError
}

var _ domain.PresenceClient = (*WSClient)(nil)
var _ domain.PresenceSession = (*wsSession)(nil)
