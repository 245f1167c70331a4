package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// LogClient is a dry-run domain.PresenceClient: updates are logged and
// acknowledged on the next RunCallbacks.
type LogClient struct {
	logger *zap.Logger
}

// NewLogClient creates a dry-run client.
func NewLogClient(logger *zap.Logger) *LogClient {
	return &LogClient{logger: logger}
}

// Create always succeeds.
func (c *LogClient) Create(clientID int64) (domain.PresenceSession, domain.ResultCode) {
	c.logger.Info("dry-run session opened", zap.Int64("client_id", clientID))
	return &logSession{logger: c.logger}, domain.ResultOK
}

type logSession struct {
	logger  *zap.Logger
	pending []func(domain.ResultCode)
	closed  bool
}

func (s *logSession) UpdateActivity(a domain.Activity, done func(domain.ResultCode)) {
	if s.closed {
		return
	}
	s.logger.Info("activity",
		zap.Stringer("type", a.Type),
		zap.String("details", a.Details),
		zap.String("state", a.State),
		zap.Int64("start", a.StartTimestamp))
	s.pending = append(s.pending, done)
}

func (s *logSession) RunCallbacks() domain.ResultCode {
	if s.closed {
		return domain.ResultInternalError
	}
	pending := s.pending
	s.pending = nil
	for _, done := range pending {
		done(domain.ResultOK)
	}
	return domain.ResultOK
}

func (s *logSession) Close() {
	if !s.closed {
		s.logger.Info("dry-run session closed")
	}
	s.closed = true
	s.pending = nil
}

var _ domain.PresenceClient = (*LogClient)(nil)
