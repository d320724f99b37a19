package generic

import (
	"fmt"
)

// =============================================================================
// DISCIPLINE LEVEL
// =============================================================================

type DisciplineLevel string

const (
	LevelCoaching       DisciplineLevel = "COACHING"
	LevelVerbalWarning  DisciplineLevel = "VERBAL_WARNING"
	LevelWrittenWarning DisciplineLevel = "WRITTEN_WARNING"
	LevelFinalWarning   DisciplineLevel = "FINAL_WARNING"
	LevelTermination    DisciplineLevel = "TERMINATION"
)

func (l DisciplineLevel) IsValid() bool {
	for _, r := range EscalationLadder {
		if r.Level == l {
			return true
		}
	}
	return false
}

func (l DisciplineLevel) String() string { return string(l) }

func ParseDisciplineLevel(s string) (DisciplineLevel, error) {
	level := DisciplineLevel(s)
	if !level.IsValid() {
		return "", fmt.Errorf("invalid discipline level: %s", s)
	}
	return level, nil
}

// =============================================================================
// ESCALATION LADDER - The one definition of the breakpoints
// =============================================================================

// Rung is one step of the escalation ladder.
type Rung struct {
	Level       DisciplineLevel
	MinPoints   int
	Action      string
	Description string
}

// EscalationLadder is ordered by MinPoints. LevelFor, Crossed and
// DefaultThresholds are all derived from it.
var EscalationLadder = []Rung{
	{LevelCoaching, 0, "Coaching", "Informal coaching conversation documented by the supervisor."},
	{LevelVerbalWarning, 6, "Verbal Warning", "Documented verbal warning reviewed with the employee."},
	{LevelWrittenWarning, 10, "Written Warning", "Formal written warning placed in the personnel file."},
	{LevelFinalWarning, 14, "Final Warning", "Final written warning; any further violation may end employment."},
	{LevelTermination, 18, "Termination", "Termination review with HR and administration."},
}

// LevelFor maps a point total to its escalation level. Pure and total:
// anything below the first breakpoint (including negatives) is COACHING.
func LevelFor(points int) DisciplineLevel {
	level := EscalationLadder[0].Level
	for _, r := range EscalationLadder {
		if points >= r.MinPoints {
			level = r.Level
		}
	}
	return level
}

// Thresholds returns the escalation breakpoints above the base level: 6, 10, 14, 18.
func Thresholds() []int {
	out := make([]int, 0, len(EscalationLadder)-1)
	for _, r := range EscalationLadder[1:] {
		out = append(out, r.MinPoints)
	}
	return out
}

// Crossed returns, in ascending order, every threshold t with before < t <= after.
// Thresholds already reached before the action are never reported, and every
// threshold traversed by a single jump is.
func Crossed(before, after int) []int {
	crossed := []int{}
	for _, t := range Thresholds() {
		if before < t && t <= after {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// RungFor returns the ladder rung for a level.
func RungFor(level DisciplineLevel) (Rung, bool) {
	for _, r := range EscalationLadder {
		if r.Level == level {
			return r, true
		}
	}
	return Rung{}, false
}

// DefaultThresholds builds the reference threshold table from the ladder.
// The last row has no upper bound.
func DefaultThresholds() []DisciplineThreshold {
	out := make([]DisciplineThreshold, len(EscalationLadder))
	for i, r := range EscalationLadder {
		t := DisciplineThreshold{
			Level:       r.Level,
			Minimum:     r.MinPoints,
			Action:      r.Action,
			Description: r.Description,
			SortOrder:   i + 1,
		}
		if i+1 < len(EscalationLadder) {
			max := EscalationLadder[i+1].MinPoints - 1
			t.Maximum = &max
		}
		out[i] = t
	}
	return out
}
