// Package domain contains core presence entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import "time"

// ActivityType identifies what the presence currently reports.
type ActivityType int

const (
	ActivityNone ActivityType = iota
	ActivityLivingLife
	ActivityDisconnected
	ActivityDeathScreen
	ActivityGameLoading
	ActivityWaitingToBeBorn
	ActivityInMainMenu
	ActivityEditingSettings
	ActivityPlayingTutorial
	ActivityConnectionLost
)

var activityNames = map[ActivityType]string{
	ActivityNone:            "none",
	ActivityLivingLife:      "living_life",
	ActivityDisconnected:    "disconnected",
	ActivityDeathScreen:     "death_screen",
	ActivityGameLoading:     "game_loading",
	ActivityWaitingToBeBorn: "waiting_to_be_born",
	ActivityInMainMenu:      "in_main_menu",
	ActivityEditingSettings: "editing_settings",
	ActivityPlayingTutorial: "playing_tutorial",
	ActivityConnectionLost:  "connection_lost",
}

// String returns the snake_case name used in logs and the status file.
func (t ActivityType) String() string {
	if name, ok := activityNames[t]; ok {
		return name
	}
	return "unknown"
}

// UIContext is the page the host application is currently showing.
type UIContext string

const (
	ContextLiving          UIContext = "living"
	ContextDeath           UIContext = "death"
	ContextDisconnected    UIContext = "disconnected"
	ContextLoading         UIContext = "loading"
	ContextWaitingToBeBorn UIContext = "waiting_to_be_born"
	ContextMainMenu        UIContext = "main_menu"
	ContextSettings        UIContext = "settings"
	ContextTutorial        UIContext = "tutorial"
	ContextConnectionLost  UIContext = "connection_lost"
)

// NoExpression marks a player without an active expression.
const NoExpression = -1

// UnknownAge marks an age that has not been reported since the last connect.
const UnknownAge = -1

// Player is the local player's state as exposed by the host application.
type Player struct {
	DisplayName  string // Raw name, may embed +FERTILE+ / +INFERTILE+ markers
	Age          int
	ExpressionID int // NoExpression when none is shown
	Male         bool
}

// GenderLetter returns the single-letter gender tag shown in details.
func (p Player) GenderLetter() byte {
	if p.Male {
		return 'M'
	}
	return 'F'
}

// DisplayPreferences are the user's privacy switches.
type DisplayPreferences struct {
	ShowGame      bool `json:"show_game" yaml:"enabled"`
	ShowStatus    bool `json:"show_status" yaml:"show_status"`
	ShowDetails   bool `json:"show_details" yaml:"show_details"`
	ShowFirstName bool `json:"show_first_name" yaml:"show_first_name"`
	ShowAge       bool `json:"show_age" yaml:"show_age"`
}

// DefaultPreferences favors privacy: status and details stay hidden.
func DefaultPreferences() DisplayPreferences {
	return DisplayPreferences{
		ShowGame:      true,
		ShowStatus:    false,
		ShowDetails:   false,
		ShowFirstName: true,
		ShowAge:       true,
	}
}

// Activity is the payload handed to the presence client.
type Activity struct {
	Type           ActivityType
	Details        string
	State          string
	StartTimestamp int64 // Unix seconds
	LargeImageKey  string
	LargeImageText string
}

// ActivitySnapshot records what was last published successfully.
type ActivitySnapshot struct {
	ActivityType    ActivityType
	Preferences     DisplayPreferences
	NameLength      int
	DisplayedAge    int
	WasInfertile    bool
	WasIdle         bool
	FirstReportDone bool
}

// PresenceStatus is the daemon's externally visible state, persisted for
// the status command.
type PresenceStatus struct {
	PID               int                `json:"pid"`
	Connected         bool               `json:"connected"`
	Activity          string             `json:"activity"`
	CredentialSuspect bool               `json:"credential_suspect,omitempty"`
	Preferences       DisplayPreferences `json:"preferences"`
	StartedAt         time.Time          `json:"started_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	AppVersion        string             `json:"app_version,omitempty"`
}

// NewActivitySnapshot returns a snapshot with nothing reported yet.
func NewActivitySnapshot() ActivitySnapshot {
	return ActivitySnapshot{DisplayedAge: UnknownAge}
}

// ResetForConnect forces the next evaluation to publish after a (re)connect.
func (s *ActivitySnapshot) ResetForConnect() {
	s.FirstReportDone = false
	s.DisplayedAge = UnknownAge
}

// RecordBlank marks the blank activity as reported under prefs, matching
// what publishing it through the detector would record.
func (s *ActivitySnapshot) RecordBlank(prefs DisplayPreferences) {
	*s = ActivitySnapshot{
		ActivityType:    ActivityNone,
		Preferences:     prefs,
		DisplayedAge:    UnknownAge,
		FirstReportDone: true,
	}
	if prefs.ShowAge {
		s.DisplayedAge = 0
	}
}
