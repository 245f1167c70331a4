package usecase

import (
	"time"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// mockSession implements domain.PresenceSession for testing
type mockSession struct {
	updates      []domain.Activity
	pending      []func(domain.ResultCode)
	runResults   []domain.ResultCode // consumed one per RunCallbacks, then OK
	completeWith domain.ResultCode
	runCalls     int
	closeCalls   int
}

func (s *mockSession) UpdateActivity(a domain.Activity, done func(domain.ResultCode)) {
	s.updates = append(s.updates, a)
	s.pending = append(s.pending, done)
}

func (s *mockSession) RunCallbacks() domain.ResultCode {
	s.runCalls++
	code := domain.ResultOK
	if len(s.runResults) > 0 {
		code = s.runResults[0]
		s.runResults = s.runResults[1:]
	}
	pending := s.pending
	s.pending = nil
	for _, done := range pending {
		done(s.completeWith)
	}
	return code
}

func (s *mockSession) Close() {
	s.closeCalls++
}

// mockClient implements domain.PresenceClient for testing
type mockClient struct {
	createCode   domain.ResultCode
	firstRunCode domain.ResultCode
	completeWith domain.ResultCode
	createdIDs   []int64
	sessions     []*mockSession
}

func (c *mockClient) Create(clientID int64) (domain.PresenceSession, domain.ResultCode) {
	c.createdIDs = append(c.createdIDs, clientID)
	if c.createCode != domain.ResultOK {
		return nil, c.createCode
	}
	s := &mockSession{completeWith: c.completeWith}
	if c.firstRunCode != domain.ResultOK {
		s.runResults = []domain.ResultCode{c.firstRunCode}
	}
	c.sessions = append(c.sessions, s)
	return s, domain.ResultOK
}

// published returns every update except each session's default activity.
func (c *mockClient) published() []domain.Activity {
	var out []domain.Activity
	for _, s := range c.sessions {
		if len(s.updates) > 1 {
			out = append(out, s.updates[1:]...)
		}
	}
	return out
}

func (c *mockClient) lastSession() *mockSession {
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

// fakeClock is a manually advanced domain.Clock
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// mockGameState implements domain.GameState for testing
type mockGameState struct {
	context      domain.UIContext
	player       *domain.Player
	reconnecting bool
}

func (s *mockGameState) Context() domain.UIContext { return s.context }
func (s *mockGameState) Player() *domain.Player    { return s.player }
func (s *mockGameState) Reconnecting() bool        { return s.reconnecting }
