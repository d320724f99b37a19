/*
catalog.go - Violation catalog reference data

PURPOSE:
  Violation categories (severity tier + default point value) and the
  discipline threshold table. Both are seeded once and read-only at runtime.

THRESHOLD TABLE INVARIANT:
  Rows sorted by Minimum must cover every non-negative integer with no gaps
  and no overlaps: the first row starts at 0, each row starts one past the
  previous row's Maximum, and only the last row is unbounded. Each row must
  also agree with the EscalationLadder breakpoint for its level, so the
  frozen classifier and the live table cannot drift apart.

  The table is validated at seed time only. The classifier used to freeze a
  record's level never reads it.

SEE ALSO:
  - ladder.go: The breakpoints the table must agree with
  - factory/catalog.go: TOML seed files
  - standing.go: Live reporting against the seeded table
*/
package generic

import (
	"fmt"
	"sort"
)

// =============================================================================
// VIOLATION CATEGORY
// =============================================================================

type ViolationCategory struct {
	ID            CategoryID
	Name          string
	Severity      SeverityTier
	DefaultPoints int
	SortOrder     int
	Note          string
}

// BypassesPoints is true for IMMEDIATE_TERMINATION categories. They carry
// zero points and take no point override.
func (c ViolationCategory) BypassesPoints() bool {
	return c.Severity == SeverityImmediateTermination
}

func (c ViolationCategory) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: category id is required", ErrInvalidCatalog)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: category %s: name is required", ErrInvalidCatalog, c.ID)
	}
	if !c.Severity.IsValid() {
		return fmt.Errorf("%w: category %s: invalid severity %q", ErrInvalidCatalog, c.ID, c.Severity)
	}
	if c.DefaultPoints < 0 {
		return fmt.Errorf("%w: category %s: default points must be >= 0", ErrInvalidCatalog, c.ID)
	}
	if c.BypassesPoints() && c.DefaultPoints != 0 {
		return fmt.Errorf("%w: category %s: immediate-termination categories carry 0 points", ErrInvalidCatalog, c.ID)
	}
	return nil
}

// ValidateCategories checks every category and rejects duplicate IDs.
func ValidateCategories(categories []ViolationCategory) error {
	seen := make(map[CategoryID]bool)
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate category id %s", ErrInvalidCatalog, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// SortCategories orders by SortOrder, then name.
func SortCategories(categories []ViolationCategory) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].SortOrder != categories[j].SortOrder {
			return categories[i].SortOrder < categories[j].SortOrder
		}
		return categories[i].Name < categories[j].Name
	})
}

// =============================================================================
// DISCIPLINE THRESHOLD
// =============================================================================

type DisciplineThreshold struct {
	Level       DisciplineLevel
	Minimum     int
	Maximum     *int // nil = unbounded
	Action      string
	Description string
	SortOrder   int
}

func (t DisciplineThreshold) Contains(points int) bool {
	if points < t.Minimum {
		return false
	}
	return t.Maximum == nil || points <= *t.Maximum
}

// ValidateThresholds enforces the coverage invariant and ladder agreement.
func ValidateThresholds(thresholds []DisciplineThreshold) error {
	if len(thresholds) == 0 {
		return fmt.Errorf("%w: threshold table is empty", ErrInvalidCatalog)
	}

	sorted := append([]DisciplineThreshold(nil), thresholds...)
	SortThresholds(sorted)

	if sorted[0].Minimum != 0 {
		return fmt.Errorf("%w: thresholds must start at 0, first row starts at %d", ErrInvalidCatalog, sorted[0].Minimum)
	}

	for i, t := range sorted {
		rung, ok := RungFor(t.Level)
		if !ok {
			return fmt.Errorf("%w: unknown discipline level %q", ErrInvalidCatalog, t.Level)
		}
		if rung.MinPoints != t.Minimum {
			return fmt.Errorf("%w: %s starts at %d, escalation ladder says %d",
				ErrInvalidCatalog, t.Level, t.Minimum, rung.MinPoints)
		}

		last := i == len(sorted)-1
		if t.Maximum == nil {
			if !last {
				return fmt.Errorf("%w: only the last threshold may be unbounded (%s)", ErrInvalidCatalog, t.Level)
			}
			continue
		}
		if *t.Maximum < t.Minimum {
			return fmt.Errorf("%w: %s maximum %d is below minimum %d", ErrInvalidCatalog, t.Level, *t.Maximum, t.Minimum)
		}
		if last {
			return fmt.Errorf("%w: last threshold %s must be unbounded", ErrInvalidCatalog, t.Level)
		}
		if next := sorted[i+1].Minimum; next != *t.Maximum+1 {
			if next <= *t.Maximum {
				return fmt.Errorf("%w: %s overlaps %s", ErrInvalidCatalog, t.Level, sorted[i+1].Level)
			}
			return fmt.Errorf("%w: gap between %d and %d", ErrInvalidCatalog, *t.Maximum, next)
		}
	}
	return nil
}

func SortThresholds(thresholds []DisciplineThreshold) {
	sort.SliceStable(thresholds, func(i, j int) bool {
		return thresholds[i].Minimum < thresholds[j].Minimum
	})
}

// ThresholdFor finds the row containing points.
func ThresholdFor(thresholds []DisciplineThreshold, points int) (DisciplineThreshold, bool) {
	for _, t := range thresholds {
		if t.Contains(points) {
			return t, true
		}
	}
	return DisciplineThreshold{}, false
}
