package domain

import "time"

// PresenceClient opens sessions against the external presence service.
// Implementation: websocket bridge client, or the logging dry-run client.
type PresenceClient interface {
	// Create opens a session for the numeric application credential.
	// It must not block beyond a short, bounded handshake.
	Create(clientID int64) (PresenceSession, ResultCode)
}

// PresenceSession is an open session handle.
type PresenceSession interface {
	// UpdateActivity enqueues an activity update. done is invoked with the
	// outcome from inside a later RunCallbacks call, never on another goroutine.
	UpdateActivity(activity Activity, done func(ResultCode))

	// RunCallbacks flushes pending work and dispatches ready completions.
	// A non-OK result means the session is no longer usable.
	RunCallbacks() ResultCode

	// Close releases the session. Pending completions are dropped.
	Close()
}

// GameState is the read-only view of the host application.
type GameState interface {
	// Context returns the page currently shown.
	Context() UIContext

	// Player returns the local player, or nil when there is none.
	Player() *Player

	// Reconnecting reports whether the host is reconnecting to its server.
	Reconnecting() bool
}

// Clock abstracts time for reconnect cooldowns.
type Clock interface {
	Now() time.Time
}

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// SecretStore provides encrypted persistent storage for secrets such as the
// presence client credential.
type SecretStore interface {
	GetSecret(key string) (string, error)
	SetSecret(key, value string) error
	Close() error
}

// PreferenceStore persists preference overrides made from the CLI.
type PreferenceStore interface {
	// LoadPreferences overlays stored overrides onto base.
	LoadPreferences(base DisplayPreferences) (DisplayPreferences, error)

	// SetPreference stores one override by its config key.
	SetPreference(key string, value bool) error
}

// StatusRecorder persists the daemon's externally visible state.
type StatusRecorder interface {
	Write(status PresenceStatus) error
	Read() (*PresenceStatus, error)
	Clear() error
	Path() string
}
