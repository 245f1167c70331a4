package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
)

// Publisher is the part of ConnectionManager the detector drives.
type Publisher interface {
	IsConnected() bool
	Publish(activityType domain.ActivityType, details, state string) bool
}

// ChangeDetector publishes a candidate only when it differs from what was
// last sent, since the presence service rate-limits updates.
type ChangeDetector struct {
	snapshot  *domain.ActivitySnapshot
	prefs     *domain.DisplayPreferences
	publisher Publisher
	logger    *zap.Logger
}

// NewChangeDetector creates a detector over the shared snapshot.
func NewChangeDetector(
	snapshot *domain.ActivitySnapshot,
	prefs *domain.DisplayPreferences,
	publisher Publisher,
	logger *zap.Logger,
) *ChangeDetector {
	return &ChangeDetector{
		snapshot:  snapshot,
		prefs:     prefs,
		publisher: publisher,
		logger:    logger,
	}
}

// Dirty reports whether c must be published.
func (d *ChangeDetector) Dirty(c Candidate) bool {
	s := d.snapshot
	return c.Type != s.ActivityType ||
		*d.prefs != s.Preferences ||
		!s.FirstReportDone ||
		c.NameLength != s.NameLength ||
		(d.prefs.ShowAge && c.Age != s.DisplayedAge) ||
		c.Infertile != s.WasInfertile ||
		c.Idle != s.WasIdle
}

// Evaluate composes the current state and publishes it when dirty.
// It reports whether an update was issued.
func (d *ChangeDetector) Evaluate(in ComposeInput) bool {
	if !d.prefs.ShowGame {
		return false
	}
	if !d.publisher.IsConnected() {
		d.logger.Debug("not connected, skipping evaluation")
		return false
	}

	var c Candidate
	if d.prefs.ShowStatus {
		var ok bool
		if c, ok = Compose(in); !ok {
			d.logger.Debug("nothing to report for context", zap.String("context", string(in.Context)))
			return false
		}
	} else {
		// Status hidden: report one blank activity, clearing what was shown.
		c = Candidate{Type: domain.ActivityNone}
	}

	if !d.Dirty(c) {
		return false
	}
	if !d.publisher.Publish(c.Type, c.Details, c.State) {
		return false
	}

	d.snapshot.NameLength = c.NameLength
	if d.prefs.ShowAge {
		d.snapshot.DisplayedAge = c.Age
	}
	d.snapshot.WasInfertile = c.Infertile
	d.snapshot.WasIdle = c.Idle
	return true
}
