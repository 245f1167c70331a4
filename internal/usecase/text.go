// Package usecase contains the presence engine: composition, change
// detection, and connection management.
package usecase

import (
	"strings"
	"unicode/utf8"
)

// TextCapacity is the client's text buffer size, including the terminator.
const TextCapacity = 128

// Placeholder is the canonical name for a player without a usable name.
const Placeholder = "NAMELESS"

// Name markers the server embeds in display names.
const (
	InfertileMarker = "+INFERTILE+"
	FertileMarker   = "+FERTILE+"
)

// BoundedText is a string that fits a fixed-capacity client buffer.
type BoundedText struct {
	value string
}

// NewBoundedText copies s, truncated so that it fits capacity bytes
// including the terminator. Truncation never splits a UTF-8 sequence.
func NewBoundedText(s string, capacity int) BoundedText {
	return BoundedText{value: truncate(s, capacity-1)}
}

// String returns the stored text.
func (b BoundedText) String() string { return b.value }

// Truncated reports whether s would be cut when bounded.
func (b BoundedText) Truncated(s string) bool { return len(s) > len(b.value) }

// truncate returns the longest prefix of s of at most max bytes that ends
// on a rune boundary.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SanitizedName is a display name with its markers removed.
type SanitizedName struct {
	Name      string // Trimmed name, or Placeholder
	Infertile bool
	Fertile   bool
}

// SanitizeName strips every marker occurrence in the given order until none
// remain, then trims surrounding whitespace. Applying it to its own output
// yields the same name.
func SanitizeName(raw string, order ...string) SanitizedName {
	if len(order) == 0 {
		order = []string{InfertileMarker, FertileMarker}
	}

	var result SanitizedName
	name := raw
	for {
		changed := false
		for _, marker := range order {
			if !strings.Contains(name, marker) {
				continue
			}
			name = strings.ReplaceAll(name, marker, "")
			changed = true
			switch marker {
			case InfertileMarker:
				result.Infertile = true
			case FertileMarker:
				result.Fertile = true
			}
		}
		if !changed {
			break
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = Placeholder
	}
	result.Name = name
	return result
}
