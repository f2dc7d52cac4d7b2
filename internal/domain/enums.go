package domain

import (
	"fmt"
	"strings"
)

// Format is the constructed format an event was played under, derived
// from the event's free-text description.
type Format string

const (
	FormatStandard  Format = "Standard"
	FormatModern    Format = "Modern"
	FormatPioneer   Format = "Pioneer"
	FormatVintage   Format = "Vintage"
	FormatLegacy    Format = "Legacy"
	FormatPauper    Format = "Pauper"
	FormatLimited   Format = "Limited"
	FormatPremodern Format = "Premodern"
)

var formats = []Format{
	FormatStandard,
	FormatModern,
	FormatPioneer,
	FormatVintage,
	FormatLegacy,
	FormatPauper,
	FormatLimited,
}

// ParseFormat derives the format from an event description by substring
// scan. Premodern events are hosted under another format's client
// banner, so "Premodern" wins before the generic scan (which would
// otherwise match "Modern" inside it, or the host format's token).
func ParseFormat(description string) (Format, error) {
	if strings.Contains(description, string(FormatPremodern)) {
		return FormatPremodern, nil
	}
	for _, f := range formats {
		if strings.Contains(description, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("no known format in description %q", description)
}

// Kind is the event's tournament structure.
type Kind string

const (
	KindLeague      Kind = "League"
	KindPreliminary Kind = "Preliminary"
	KindChallenge   Kind = "Challenge"
	KindShowcase    Kind = "Showcase"
	KindQualifier   Kind = "Qualifier"
)

var kinds = []Kind{
	KindLeague,
	KindPreliminary,
	KindChallenge,
	KindShowcase,
	KindQualifier,
}

// ParseKind derives the event kind from its description. "Last Chance"
// events are qualifiers that never carry the literal token.
func ParseKind(description string) (Kind, error) {
	if strings.Contains(description, "Last Chance") {
		return KindQualifier, nil
	}
	for _, k := range kinds {
		if strings.Contains(description, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("no known event kind in description %q", description)
}

// Result is a match or game outcome relative to one player.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// Mirrors reports whether two results are a consistent view of the same
// match from opposite sides.
func Mirrors(a, b Result) bool {
	switch a {
	case ResultWin:
		return b == ResultLoss
	case ResultLoss:
		return b == ResultWin
	case ResultDraw:
		return b == ResultDraw
	}
	return false
}
