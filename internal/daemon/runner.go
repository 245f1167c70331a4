// Package daemon runs the presence engine against the host state.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
	"github.com/eliteGoblin/presenced/internal/usecase"
)

// StateSource is a GameState that must be refreshed before each read.
type StateSource interface {
	domain.GameState
	Refresh() error
}

// Intervals used when RunnerConfig leaves them unset.
const (
	DefaultTickInterval   = 500 * time.Millisecond
	DefaultStatusInterval = 5 * time.Second
)

// RunnerConfig holds runner configuration.
type RunnerConfig struct {
	TickInterval   time.Duration // How often state is evaluated and callbacks pumped
	StatusInterval time.Duration // How often the status file is rewritten regardless of changes
	AppVersion     string
}

// Runner owns the engine goroutine. Every engine call happens inside Run.
type Runner struct {
	config    RunnerConfig
	engine    *usecase.Engine
	state     StateSource
	status    domain.StatusRecorder
	prefs     <-chan domain.DisplayPreferences
	processes domain.ProcessManager
	logger    *zap.Logger

	startedAt     time.Time
	lastConnected bool
	lastActivity  domain.ActivityType
	lastStateErr  string
}

// NewRunner creates a runner. prefs delivers preference changes from config
// reloads and may be nil. status may be nil. Unset intervals take the
// package defaults.
func NewRunner(
	config RunnerConfig,
	engine *usecase.Engine,
	state StateSource,
	status domain.StatusRecorder,
	prefs <-chan domain.DisplayPreferences,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *Runner {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = DefaultStatusInterval
	}
	return &Runner{
		config:    config,
		engine:    engine,
		state:     state,
		status:    status,
		prefs:     prefs,
		processes: pm,
		logger:    logger,
	}
}

// Run ticks the engine until ctx is canceled, then disconnects and clears
// the status file.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = time.Now()
	r.logger.Info("presence daemon started",
		zap.Int("pid", r.processes.GetCurrentPID()),
		zap.Duration("tick", r.config.TickInterval))

	r.tick()
	r.writeStatus()

	tickTicker := time.NewTicker(r.config.TickInterval)
	statusTicker := time.NewTicker(r.config.StatusInterval)
	defer func() {
		tickTicker.Stop()
		statusTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("presence daemon stopping")
			r.engine.Close()
			if r.status != nil {
				if err := r.status.Clear(); err != nil {
					r.logger.Warn("failed to clear status", zap.Error(err))
				}
			}
			return ctx.Err()

		case <-tickTicker.C:
			r.tick()
			if r.engine.IsConnected() != r.lastConnected || r.engine.CurrentActivity() != r.lastActivity {
				r.writeStatus()
			}

		case <-statusTicker.C:
			r.writeStatus()

		case p, ok := <-r.prefs:
			if !ok {
				r.prefs = nil // nil channel blocks forever
				continue
			}
			r.logger.Info("applying reloaded preferences")
			r.engine.ApplyPreferences(p)
			r.writeStatus()
		}
	}
}

// tick refreshes the host state and runs one engine cycle.
func (r *Runner) tick() {
	if err := r.state.Refresh(); err != nil {
		// Only log when the failure changes, the file is polled every tick.
		if msg := err.Error(); msg != r.lastStateErr {
			r.logger.Warn("failed to refresh host state", zap.Error(err))
			r.lastStateErr = msg
		}
	} else {
		r.lastStateErr = ""
	}
	r.engine.Tick()
}

func (r *Runner) writeStatus() {
	r.lastConnected = r.engine.IsConnected()
	r.lastActivity = r.engine.CurrentActivity()
	if r.status == nil {
		return
	}
	err := r.status.Write(domain.PresenceStatus{
		PID:               r.processes.GetCurrentPID(),
		Connected:         r.lastConnected,
		Activity:          r.lastActivity.String(),
		CredentialSuspect: r.engine.CredentialSuspect(),
		Preferences:       r.engine.Preferences(),
		StartedAt:         r.startedAt,
		UpdatedAt:         time.Now(),
		AppVersion:        r.config.AppVersion,
	})
	if err != nil {
		r.logger.Warn("failed to write status", zap.Error(err))
	}
}
