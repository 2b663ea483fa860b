package domain

import (
	"fmt"
	"strings"
)

// Scale is the numeric severity convention of a data source.
type Scale string

const (
	// ScaleAuto guesses the scale from the value's magnitude.
	ScaleAuto Scale = "auto"
	// ScaleOrdinal is the 1-5 triage scale of the older backend.
	ScaleOrdinal Scale = "ordinal"
	// ScalePercent is the 0-100 score of the newer backend.
	ScalePercent Scale = "percent"
)

// ParseScale validates a configured scale name. Empty means auto.
func ParseScale(s string) (Scale, error) {
	switch Scale(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScaleAuto:
		return ScaleAuto, nil
	case ScaleOrdinal:
		return ScaleOrdinal, nil
	case ScalePercent:
		return ScalePercent, nil
	default:
		return "", fmt.Errorf("unknown severity scale %q", s)
	}
}

// ScoreKind tags how a Score value must be read.
type ScoreKind int

const (
	ScoreOrdinal ScoreKind = iota + 1
	ScorePercent
)

// Score is a severity value tagged with its scale.
type Score struct {
	Kind  ScoreKind
	Value float64
}

// Tag binds a raw value to this scale. Under ScaleAuto, values in (0,5]
// are read as ordinal and everything else as percent.
func (s Scale) Tag(v float64) Score {
	switch s {
	case ScaleOrdinal:
		return Score{Kind: ScoreOrdinal, Value: v}
	case ScalePercent:
		return Score{Kind: ScorePercent, Value: v}
	default:
		if v > 0 && v <= 5 {
			return Score{Kind: ScoreOrdinal, Value: v}
		}
		return Score{Kind: ScorePercent, Value: v}
	}
}

// Priority classifies the score:
//   - ordinal: >=3 high, >=2 medium, else low
//   - percent: >=80 high, >=40 medium, else low
func (s Score) Priority() Priority {
	high, medium := 80.0, 40.0
	if s.Kind == ScoreOrdinal {
		high, medium = 3, 2
	}
	switch {
	case s.Value >= high:
		return PriorityHigh
	case s.Value >= medium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// severityLabels maps textual scores seen in demo and legacy payloads.
var severityLabels = map[string]Priority{
	"grave":    PriorityHigh,
	"critico":  PriorityHigh,
	"alta":     PriorityHigh,
	"high":     PriorityHigh,
	"moderato": PriorityMedium,
	"media":    PriorityMedium,
	"medium":   PriorityMedium,
	"lieve":    PriorityLow,
	"bassa":    PriorityLow,
	"low":      PriorityLow,
}

func priorityFromLabel(v any) (Priority, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	p, ok := severityLabels[strings.ToLower(strings.TrimSpace(s))]
	return p, ok
}
