package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// DefaultIdleExpressionIndex is the expression the server uses for AFK.
const DefaultIdleExpressionIndex = 21

// EngineConfig is the engine's construction-time configuration.
type EngineConfig struct {
	Connection  ConnectionConfig
	Preferences domain.DisplayPreferences
	IdleIndex   int
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Engine is the presence engine: one instance per process, driven by a
// single goroutine calling Tick.
type Engine struct {
	prefs    *domain.DisplayPreferences
	snapshot *domain.ActivitySnapshot
	conn     *ConnectionManager
	detector *ChangeDetector
	state    domain.GameState
	idle     int
	logger   *zap.Logger
}

// NewEngine creates a disconnected engine. The first Pump connects.
func NewEngine(
	config EngineConfig,
	client domain.PresenceClient,
	state domain.GameState,
	clock domain.Clock,
	logger *zap.Logger,
) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	prefs := config.Preferences
	snapshot := domain.NewActivitySnapshot()

	logger.Info("presence preferences loaded",
		zap.Bool("show_game", prefs.ShowGame),
		zap.Bool("show_status", prefs.ShowStatus),
		zap.Bool("show_details", prefs.ShowDetails),
		zap.Bool("show_first_name", prefs.ShowFirstName),
		zap.Bool("show_age", prefs.ShowAge))

	conn := NewConnectionManager(config.Connection, client, &prefs, &snapshot, clock, logger.Named("connection"))
	return &Engine{
		prefs:    &prefs,
		snapshot: &snapshot,
		conn:     conn,
		detector: NewChangeDetector(&snapshot, &prefs, conn, logger.Named("detector")),
		state:    state,
		idle:     config.IdleIndex,
		logger:   logger,
	}
}

// Tick evaluates the current state, then pumps the connection.
func (e *Engine) Tick() {
	e.Evaluate()
	e.Pump()
}

// Evaluate publishes the current state if it changed since the last update.
func (e *Engine) Evaluate() bool {
	return e.detector.Evaluate(ComposeInput{
		Context:      e.state.Context(),
		Player:       e.state.Player(),
		Reconnecting: e.state.Reconnecting(),
		IdleIndex:    e.idle,
		Preferences:  *e.prefs,
	})
}

// Pump delivers async results and reconnects when allowed.
func (e *Engine) Pump() { e.conn.Pump() }

// Close disconnects. The engine must not be used afterwards.
func (e *Engine) Close() { e.conn.Disconnect() }

// IsConnected reports whether the presence session is healthy.
func (e *Engine) IsConnected() bool { return e.conn.IsConnected() }

// CurrentActivity returns the activity type last sent.
func (e *Engine) CurrentActivity() domain.ActivityType { return e.conn.CurrentActivity() }

// CredentialSuspect reports whether the client id is still unproven.
func (e *Engine) CredentialSuspect() bool { return e.conn.CredentialSuspect() }

// Preferences returns a copy of the preferences in effect.
func (e *Engine) Preferences() domain.DisplayPreferences { return *e.prefs }

// SetShowGame toggles the master switch, connecting or disconnecting now.
func (e *Engine) SetShowGame(v bool) {
	e.logger.Info("preference changed", zap.String("key", "show_game"), zap.Bool("value", v))
	e.prefs.ShowGame = v
	if !v {
		e.conn.Disconnect()
		return
	}
	if !e.conn.IsConnected() {
		e.conn.Connect()
	}
}

// SetShowStatus toggles whether any status text is shown.
func (e *Engine) SetShowStatus(v bool) { e.set("show_status", &e.prefs.ShowStatus, v) }

// SetShowDetails toggles whether the state line is shown.
func (e *Engine) SetShowDetails(v bool) { e.set("show_details", &e.prefs.ShowDetails, v) }

// SetShowFirstName toggles full names versus family names.
func (e *Engine) SetShowFirstName(v bool) { e.set("show_first_name", &e.prefs.ShowFirstName, v) }

// SetShowAge toggles the age in details.
func (e *Engine) SetShowAge(v bool) { e.set("show_age", &e.prefs.ShowAge, v) }

// ApplyPreferences calls the setter of every preference that differs from p.
func (e *Engine) ApplyPreferences(p domain.DisplayPreferences) {
	cur := *e.prefs
	if p.ShowStatus != cur.ShowStatus {
		e.SetShowStatus(p.ShowStatus)
	}
	if p.ShowDetails != cur.ShowDetails {
		e.SetShowDetails(p.ShowDetails)
	}
	if p.ShowFirstName != cur.ShowFirstName {
		e.SetShowFirstName(p.ShowFirstName)
	}
	if p.ShowAge != cur.ShowAge {
		e.SetShowAge(p.ShowAge)
	}
	// Last, so a reconnect sees the other values already applied.
	if p.ShowGame != cur.ShowGame {
		e.SetShowGame(p.ShowGame)
	}
}

func (e *Engine) set(key string, field *bool, v bool) {
	if *field == v {
		return
	}
	e.logger.Info("preference changed", zap.String("key", key), zap.Bool("value", v))
	*field = v
}
