package usecase

import (
	"fmt"
	"strings"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// Candidate is a freshly composed activity plus the inputs that decide
// whether it is worth publishing.
type Candidate struct {
	Type    domain.ActivityType
	Details string
	State   string

	NameLength int
	Age        int
	Infertile  bool
	Idle       bool
}

// ComposeInput is everything the composer reads.
type ComposeInput struct {
	Context      domain.UIContext
	Player       *domain.Player
	Reconnecting bool
	IdleIndex    int
	Preferences  domain.DisplayPreferences
}

var staticDetails = map[domain.UIContext]struct {
	activity domain.ActivityType
	details  string
}{
	domain.ContextDisconnected:   {domain.ActivityDisconnected, "DISCONNECTED!"},
	domain.ContextLoading:        {domain.ActivityGameLoading, "Loading Game..."},
	domain.ContextMainMenu:       {domain.ActivityInMainMenu, "In Main Menu"},
	domain.ContextSettings:       {domain.ActivityEditingSettings, "Editing Settings"},
	domain.ContextConnectionLost: {domain.ActivityConnectionLost, "DISCONNECTED!"},
}

// Compose maps the host state to a candidate activity. ok is false when the
// context cannot be described (unknown page, or no player while living).
// Compose ignores ShowStatus; the detector blanks the candidate itself.
func Compose(in ComposeInput) (Candidate, bool) {
	switch in.Context {
	case domain.ContextLiving:
		if in.Player == nil {
			return Candidate{}, false
		}
		return composeLiving(*in.Player, in.IdleIndex, in.Preferences), true

	case domain.ContextDeath:
		if in.Player == nil {
			return Candidate{Type: domain.ActivityDeathScreen, Details: "Died"}, true
		}
		return composeDeath(*in.Player, in.IdleIndex, in.Preferences), true

	case domain.ContextWaitingToBeBorn:
		details := "Waiting to be born..."
		if in.Reconnecting {
			details = "Reconnecting!..."
		}
		return Candidate{Type: domain.ActivityWaitingToBeBorn, Details: details}, true

	case domain.ContextTutorial:
		c := Candidate{Type: domain.ActivityPlayingTutorial, Details: "Playing Tutorial"}
		if isIdle(in.Player, in.IdleIndex) {
			c.Idle = true
			c.State = "[IDLE]"
		}
		return c, true
	}

	if s, ok := staticDetails[in.Context]; ok {
		return Candidate{Type: s.activity, Details: s.details}, true
	}
	return Candidate{}, false
}

func composeLiving(p domain.Player, idleIndex int, prefs domain.DisplayPreferences) Candidate {
	name := SanitizeName(p.DisplayName, InfertileMarker, FertileMarker)
	idle := isIdle(&p, idleIndex)

	var b strings.Builder
	fmt.Fprintf(&b, "Living Life, [%c]", p.GenderLetter())
	if prefs.ShowAge {
		fmt.Fprintf(&b, " Age %d", p.Age)
	}
	if name.Infertile {
		b.WriteString(" [INF]")
	}
	if idle {
		b.WriteString(" [IDLE]")
	}

	return Candidate{
		Type:       domain.ActivityLivingLife,
		Details:    b.String(),
		State:      stateText(name.Name, prefs.ShowFirstName),
		NameLength: len(p.DisplayName),
		Age:        p.Age,
		Infertile:  name.Infertile,
		Idle:       idle,
	}
}

func composeDeath(p domain.Player, idleIndex int, prefs domain.DisplayPreferences) Candidate {
	name := SanitizeName(p.DisplayName, FertileMarker, InfertileMarker)
	idle := isIdle(&p, idleIndex)

	var b strings.Builder
	b.WriteString("Died")
	if prefs.ShowAge {
		fmt.Fprintf(&b, " At Age %d", p.Age)
	}
	fmt.Fprintf(&b, " [%c]", p.GenderLetter())
	if idle {
		b.WriteString(" [IDLE(on death)]")
	}

	return Candidate{
		Type:       domain.ActivityDeathScreen,
		Details:    b.String(),
		State:      stateText(name.Name, prefs.ShowFirstName),
		NameLength: len(p.DisplayName),
		Age:        p.Age,
		Infertile:  name.Infertile,
		Idle:       idle,
	}
}

// stateText hides the first name (and any title before it) unless allowed.
func stateText(name string, showFirstName bool) string {
	if !showFirstName {
		fields := strings.Fields(name)
		if len(fields) > 1 {
			return fmt.Sprintf("In The %s Family", fields[len(fields)-1])
		}
		return name
	}
	if name == Placeholder {
		return Placeholder
	}
	return "As " + name
}

func isIdle(p *domain.Player, idleIndex int) bool {
	return p != nil && p.ExpressionID != domain.NoExpression && p.ExpressionID == idleIndex
}
