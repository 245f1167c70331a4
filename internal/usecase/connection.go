package usecase

import (
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// DefaultReconnectCooldown is the minimum gap between reconnect attempts.
const DefaultReconnectCooldown = 10 * time.Second

// ConnectionConfig holds the session parameters read from configuration.
type ConnectionConfig struct {
	ClientID          string        // Numeric credential, base 10
	LargeImageKey     string        // Passed through to the client
	LargeImageText    string        // Passed through to the client
	ReconnectCooldown time.Duration // Default 10s
	StartedAt         time.Time     // Shown as the activity start time
}

// completion is a finished update waiting to be handled by the pump.
type completion struct {
	generation uint64
	requestID  uint64
	activity   domain.ActivityType
	code       domain.ResultCode
}

// ConnectionManager owns the presence session and its reconnect policy.
// It is not safe for concurrent use; every call must come from one goroutine.
type ConnectionManager struct {
	config   ConnectionConfig
	client   domain.PresenceClient
	prefs    *domain.DisplayPreferences
	snapshot *domain.ActivitySnapshot
	clock    domain.Clock
	logger   *zap.Logger

	session           domain.PresenceSession
	healthy           bool
	currentActivity   domain.ActivityType
	lastReconnect     time.Time
	credentialInvalid bool

	// generation changes whenever a session is created or released, so
	// completions issued under an old session can be told apart.
	generation    uint64
	nextRequestID uint64
	completions   []completion

	activity domain.Activity
}

// NewConnectionManager creates a disconnected manager. prefs and snapshot
// are shared with the engine and read on every call.
func NewConnectionManager(
	config ConnectionConfig,
	client domain.PresenceClient,
	prefs *domain.DisplayPreferences,
	snapshot *domain.ActivitySnapshot,
	clock domain.Clock,
	logger *zap.Logger,
) *ConnectionManager {
	if config.ReconnectCooldown <= 0 {
		config.ReconnectCooldown = DefaultReconnectCooldown
	}
	if config.StartedAt.IsZero() {
		config.StartedAt = clock.Now()
	}
	return &ConnectionManager{
		config:   config,
		client:   client,
		prefs:    prefs,
		snapshot: snapshot,
		clock:    clock,
		logger:   logger,
	}
}

// Connect opens a session and reports the default activity once.
func (m *ConnectionManager) Connect() domain.ResultCode {
	if !m.prefs.ShowGame {
		m.logger.Warn("presence disabled, not connecting",
			zap.Stringer("result", domain.ResultApplicationMismatch))
		return domain.ResultApplicationMismatch
	}
	if m.credentialInvalid {
		m.logger.Debug("connect skipped, credential previously classified invalid")
		return domain.ResultInvalidCredential
	}

	clientID, complete := parseClientID(m.config.ClientID)
	if !complete {
		// One attempt is still made; an accepted update clears the flag.
		m.credentialInvalid = true
		m.logger.Warn("client id not fully numeric, allowing a single attempt",
			zap.Int64("parsed", clientID))
	}
	if clientID == 0 || clientID == math.MaxInt64 || clientID == math.MinInt64 {
		m.logger.Error("failed to parse client id",
			zap.Stringer("result", domain.ResultInternalError))
		return domain.ResultInternalError
	}

	if m.session != nil {
		m.release()
	}
	session, code := m.client.Create(clientID)
	if code != domain.ResultOK {
		if m.credentialInvalid && domain.Classify(code) == domain.FailureCredentialFormat {
			m.logger.Error("suspect client id rejected, reconnects disabled",
				zap.Stringer("result", code))
			return code
		}
		m.logFailure("failed to create presence session", code)
		return code
	}
	m.session = session
	m.generation++

	// The default activity shows the game even while status text is hidden.
	m.activity = domain.Activity{
		StartTimestamp: m.config.StartedAt.Unix(),
		LargeImageKey:  NewBoundedText(m.config.LargeImageKey, TextCapacity).String(),
		LargeImageText: NewBoundedText(m.config.LargeImageText, TextCapacity).String(),
	}
	m.issue(m.activity)

	code = m.session.RunCallbacks()
	m.drainCompletions()
	if code != domain.ResultOK {
		m.logFailure("first callback run failed", code)
		m.release()
		return code
	}

	if m.credentialInvalid {
		m.logger.Info("connected with a suspect client id")
	} else {
		m.logger.Info("connected to presence service")
	}
	m.healthy = true
	m.snapshot.ResetForConnect()
	if !m.prefs.ShowStatus {
		// The default activity already is the blank report.
		m.snapshot.RecordBlank(*m.prefs)
	}
	return domain.ResultOK
}

// Disconnect releases the session. Calling it while disconnected is a no-op.
func (m *ConnectionManager) Disconnect() {
	if !m.healthy {
		return
	}
	m.release()
	m.logger.Info("disconnected from presence service")
}

// Publish sends an activity update. It reports whether the update was issued.
func (m *ConnectionManager) Publish(activityType domain.ActivityType, details, state string) bool {
	if !m.prefs.ShowGame {
		return false
	}
	if !m.healthy {
		m.logger.Warn("not connected, skipping activity update",
			zap.Stringer("activity", activityType))
		return false
	}

	m.activity.Type = activityType
	m.activity.Details = m.bound("details", details)
	if m.prefs.ShowDetails {
		m.activity.State = m.bound("state", state)
	} else {
		// Blank rather than omit, so a previous state is cleared.
		m.activity.State = ""
	}

	m.snapshot.FirstReportDone = true
	m.snapshot.Preferences = *m.prefs
	m.snapshot.ActivityType = activityType
	m.currentActivity = activityType

	m.logger.Info("updating activity",
		zap.Stringer("activity", activityType),
		zap.String("details", m.activity.Details),
		zap.String("state", m.activity.State))
	m.issue(m.activity)
	return true
}

// Pump processes async results, or reconnects when the cooldown allows.
func (m *ConnectionManager) Pump() {
	if !m.prefs.ShowGame {
		return
	}

	if !m.healthy {
		if m.credentialInvalid {
			return
		}
		now := m.clock.Now()
		if now.Sub(m.lastReconnect) > m.config.ReconnectCooldown {
			m.lastReconnect = now
			m.logger.Info("not connected, attempting reconnect")
			m.Connect()
		}
		return
	}

	code := m.session.RunCallbacks()
	m.drainCompletions()
	if code == domain.ResultOK {
		return
	}

	m.release()
	m.logFailure("callback run failed, connection marked unhealthy", code)
}

// logFailure logs a failed client call at the level its failure class
// warrants. Transient failures are retried by the next Pump after the
// cooldown.
func (m *ConnectionManager) logFailure(msg string, code domain.ResultCode) {
	class := domain.Classify(code)
	switch {
	case class.Transient():
		m.logger.Warn(msg, zap.Stringer("result", code),
			zap.Duration("retry_in", m.config.ReconnectCooldown))
	case class == domain.FailureFeatureDisabled:
		m.logger.Info(msg, zap.Stringer("result", code))
	default:
		m.logger.Error(msg, zap.Stringer("result", code))
	}
}

// IsConnected reports whether the session is healthy.
func (m *ConnectionManager) IsConnected() bool { return m.healthy }

// CurrentActivity returns the activity type last sent on this session.
func (m *ConnectionManager) CurrentActivity() domain.ActivityType { return m.currentActivity }

// CredentialSuspect reports whether the client id failed the format check
// and has not yet been proven valid.
func (m *ConnectionManager) CredentialSuspect() bool { return m.credentialInvalid }

// bound fits s into the client's text buffer.
func (m *ConnectionManager) bound(field, s string) string {
	b := NewBoundedText(s, TextCapacity)
	if b.Truncated(s) {
		m.logger.Debug("activity text truncated",
			zap.String("field", field),
			zap.Int("length", len(s)))
	}
	return b.String()
}

// issue hands an update to the session, tagging it with the current generation.
func (m *ConnectionManager) issue(activity domain.Activity) {
	m.nextRequestID++
	pending := completion{
		generation: m.generation,
		requestID:  m.nextRequestID,
		activity:   activity.Type,
	}
	m.session.UpdateActivity(activity, func(code domain.ResultCode) {
		pending.code = code
		m.completions = append(m.completions, pending)
	})
}

// drainCompletions handles queued completions in arrival order.
func (m *ConnectionManager) drainCompletions() {
	queued := m.completions
	m.completions = nil
	for _, c := range queued {
		if c.generation != m.generation {
			m.logger.Debug("discarding completion from a released session",
				zap.Uint64("request_id", c.requestID))
			continue
		}
		m.onActivityUpdate(c)
	}
}

func (m *ConnectionManager) onActivityUpdate(c completion) {
	if domain.Classify(c.code) != domain.FailureNone {
		m.logger.Warn("activity update failed",
			zap.Uint64("request_id", c.requestID),
			zap.Stringer("activity", c.activity),
			zap.Stringer("result", c.code))
		return
	}
	if m.credentialInvalid {
		m.logger.Info("suspect client id was accepted")
		m.credentialInvalid = false
	}
}

// release closes the session and forgets everything tied to it.
func (m *ConnectionManager) release() {
	if m.session != nil {
		m.session.Close()
	}
	m.session = nil
	m.healthy = false
	m.generation++
	m.currentActivity = domain.ActivityNone
}

// parseClientID reads a base-10 integer the way strtoll does: leading
// whitespace, an optional sign, then the longest run of digits, saturating
// on overflow. complete is false when characters remain after the number.
func parseClientID(raw string) (value int64, complete bool) {
	i := 0
	for i < len(raw) && isSpace(raw[i]) {
		i++
	}
	start := i
	if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
		i++
	}
	digits := i
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i == digits {
		// No conversion: the end pointer stays at the start of the input.
		return 0, raw == ""
	}

	// ParseInt already saturates on ErrRange.
	n, _ := strconv.ParseInt(raw[start:i], 10, 64)
	return n, i == len(raw)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
}
