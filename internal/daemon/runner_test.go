package daemon

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
	"github.com/eliteGoblin/presenced/internal/usecase"
)

// recordingClient acks every update on the next callback run
type recordingClient struct {
	mu         sync.Mutex
	activities []domain.Activity
	closed     int
}

type recordingSession struct {
	client  *recordingClient
	pending []func(domain.ResultCode)
}

func (c *recordingClient) Create(int64) (domain.PresenceSession, domain.ResultCode) {
	return &recordingSession{client: c}, domain.ResultOK
}

func (c *recordingClient) snapshot() ([]domain.Activity, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Activity(nil), c.activities...), c.closed
}

func (s *recordingSession) UpdateActivity(a domain.Activity, done func(domain.ResultCode)) {
	s.client.mu.Lock()
	s.client.activities = append(s.client.activities, a)
	s.client.mu.Unlock()
	s.pending = append(s.pending, done)
}

func (s *recordingSession) RunCallbacks() domain.ResultCode {
	pending := s.pending
	s.pending = nil
	for _, done := range pending {
		done(domain.ResultOK)
	}
	return domain.ResultOK
}

func (s *recordingSession) Close() {
	s.client.mu.Lock()
	s.client.closed++
	s.client.mu.Unlock()
}

// fakeState is a StateSource with a fixed context
type fakeState struct {
	mu         sync.Mutex
	context    domain.UIContext
	refreshErr error
	refreshes  int
}

func (s *fakeState) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.refreshErr
}

func (s *fakeState) Context() domain.UIContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

func (s *fakeState) Player() *domain.Player { return nil }
func (s *fakeState) Reconnecting() bool     { return false }

// memoryStatus is an in-memory StatusRecorder
type memoryStatus struct {
	mu      sync.Mutex
	last    *domain.PresenceStatus
	writes  int
	cleared bool
}

func (m *memoryStatus) Write(s domain.PresenceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &s
	m.writes++
	return nil
}

func (m *memoryStatus) Read() (*domain.PresenceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *memoryStatus) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	return nil
}

func (m *memoryStatus) Path() string { return "memory" }

type stubProcesses struct{}

func (stubProcesses) FindByName(string) ([]int, error) { return nil, nil }
func (stubProcesses) IsRunning(int) bool               { return true }
func (stubProcesses) GetCurrentPID() int               { return os.Getpid() }

type runnerFixture struct {
	client *recordingClient
	state  *fakeState
	status *memoryStatus
	prefs  chan domain.DisplayPreferences
	runner *Runner
}

func newRunnerFixture(prefs domain.DisplayPreferences) *runnerFixture {
	client := &recordingClient{}
	state := &fakeState{context: domain.ContextMainMenu}
	engine := usecase.NewEngine(usecase.EngineConfig{
		Connection:  usecase.ConnectionConfig{ClientID: "1071527161049124914", LargeImageKey: "icon"},
		Preferences: prefs,
		IdleIndex:   usecase.DefaultIdleExpressionIndex,
	}, client, state, nil, zap.NewNop())

	f := &runnerFixture{
		client: client,
		state:  state,
		status: &memoryStatus{},
		prefs:  make(chan domain.DisplayPreferences, 1),
	}
	f.runner = NewRunner(RunnerConfig{
		TickInterval:   5 * time.Millisecond,
		StatusInterval: 50 * time.Millisecond,
		AppVersion:     "test",
	}, engine, state, f.status, f.prefs, stubProcesses{}, zap.NewNop())
	return f
}

// start runs the runner and returns a stop func yielding Run's error.
func (f *runnerFixture) start() func() error {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.runner.Run(ctx) }()
	return func() error {
		cancel()
		return <-errCh
	}
}

func visible() domain.DisplayPreferences {
	p := domain.DefaultPreferences()
	p.ShowStatus = true
	p.ShowDetails = true
	return p
}

func TestNewRunner_DefaultIntervals(t *testing.T) {
	r := NewRunner(RunnerConfig{AppVersion: "test"}, nil, &fakeState{}, nil, nil, stubProcesses{}, zap.NewNop())

	assert.Equal(t, DefaultTickInterval, r.config.TickInterval)
	assert.Equal(t, DefaultStatusInterval, r.config.StatusInterval)
}

func TestRunner_PublishesAndRecordsStatus(t *testing.T) {
	f := newRunnerFixture(visible())
	stop := f.start()

	require.Eventually(t, func() bool {
		acts, _ := f.client.snapshot()
		return len(acts) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s, _ := f.status.Read()
		return s != nil && s.Connected && s.Activity == "in_main_menu"
	}, 2*time.Second, 5*time.Millisecond)

	err := stop()
	assert.ErrorIs(t, err, context.Canceled)

	acts, closed := f.client.snapshot()
	assert.Len(t, acts, 2, "default activity then one main menu report")
	assert.Equal(t, "In Main Menu", acts[1].Details)
	assert.Equal(t, 1, closed)
	assert.True(t, f.status.cleared)

	s, _ := f.status.Read()
	assert.Equal(t, os.Getpid(), s.PID)
	assert.Equal(t, "test", s.AppVersion)
}

func TestRunner_AppliesReloadedPreferences(t *testing.T) {
	f := newRunnerFixture(visible())
	stop := f.start()
	defer stop()

	require.Eventually(t, func() bool {
		acts, _ := f.client.snapshot()
		return len(acts) == 2
	}, 2*time.Second, 5*time.Millisecond)

	next := visible()
	next.ShowStatus = false
	f.prefs <- next

	require.Eventually(t, func() bool {
		acts, _ := f.client.snapshot()
		return len(acts) == 3 && acts[2].Type == domain.ActivityNone && acts[2].Details == ""
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s, _ := f.status.Read()
		return s != nil && !s.Preferences.ShowStatus
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunner_DisableDisconnects(t *testing.T) {
	f := newRunnerFixture(visible())
	stop := f.start()
	defer stop()

	require.Eventually(t, func() bool {
		s, _ := f.status.Read()
		return s != nil && s.Connected
	}, 2*time.Second, 5*time.Millisecond)

	next := visible()
	next.ShowGame = false
	f.prefs <- next

	require.Eventually(t, func() bool {
		_, closed := f.client.snapshot()
		s, _ := f.status.Read()
		return closed == 1 && s != nil && !s.Connected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunner_StateRefreshErrorKeepsTicking(t *testing.T) {
	f := newRunnerFixture(visible())
	f.state.refreshErr = errors.New("half-written file")
	stop := f.start()

	require.Eventually(t, func() bool {
		f.state.mu.Lock()
		defer f.state.mu.Unlock()
		return f.state.refreshes > 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ignoreCanceled(stop()))

	acts, _ := f.client.snapshot()
	assert.NotEmpty(t, acts, "engine still ran")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
