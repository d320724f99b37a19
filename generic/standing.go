package generic

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STANDING - Where an employee sits on the threshold table
// =============================================================================

// Standing is the employee's position at asOf: the current row of the seeded
// threshold table, the next row, and how far along the current row they are.
type Standing struct {
	EmployeeID   EmployeeID
	AsOf         TimePoint
	Window       Period
	Points       int
	Threshold    DisciplineThreshold
	Next         *DisciplineThreshold
	PointsToNext int

	// Progress is the share of the current row already used, 0-100 with two
	// decimals. 100 once the last row is reached.
	Progress decimal.Decimal
}

// StandingFor places a total on a threshold table. An empty table falls back
// to the ladder's defaults.
func StandingFor(total WindowTotal, asOf TimePoint, thresholds []DisciplineThreshold) Standing {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds()
	}
	sorted := append([]DisciplineThreshold(nil), thresholds...)
	SortThresholds(sorted)

	st := Standing{
		EmployeeID: total.EmployeeID,
		AsOf:       asOf,
		Window:     total.Window,
		Points:     total.Points,
		Progress:   decimal.NewFromInt(100),
	}

	idx := 0
	for i, t := range sorted {
		if total.Points >= t.Minimum {
			idx = i
		}
	}
	st.Threshold = sorted[idx]

	if idx+1 < len(sorted) {
		next := sorted[idx+1]
		st.Next = &next
		st.PointsToNext = next.Minimum - total.Points

		span := next.Minimum - st.Threshold.Minimum
		if span > 0 {
			used := total.Points - st.Threshold.Minimum
			if used < 0 {
				used = 0
			}
			st.Progress = decimal.NewFromInt(int64(used)).
				Div(decimal.NewFromInt(int64(span))).
				Mul(decimal.NewFromInt(100)).
				Round(2)
		}
	}
	return st
}

// Standing reports the employee's position against the seeded table.
func (m *Manager) Standing(ctx context.Context, actor Actor, employeeID EmployeeID, asOf TimePoint) (*Standing, error) {
	if err := m.authorizeEmployee(ctx, actor, employeeID, "view discipline standing"); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = DateOf(m.now())
	}

	total, err := m.Points.Window(ctx, employeeID, asOf, "")
	if err != nil {
		return nil, err
	}
	thresholds, err := m.Store.ListThresholds(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list discipline thresholds")
	}

	st := StandingFor(total, asOf, thresholds)
	return &st, nil
}

// =============================================================================
// CATALOG OPERATIONS
// =============================================================================

// SeedCatalog validates and stores the categories and the threshold table.
// Elevated roles only. Nil thresholds keep the stored table.
func (m *Manager) SeedCatalog(ctx context.Context, actor Actor, categories []ViolationCategory, thresholds []DisciplineThreshold) (*Effects, error) {
	if !actor.Role.IsElevated() {
		return nil, &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "seed the violation catalog"}
	}
	if err := ValidateCategories(categories); err != nil {
		return nil, err
	}
	if thresholds != nil {
		if err := ValidateThresholds(thresholds); err != nil {
			return nil, err
		}
	}

	err := m.Store.WithTx(ctx, func(s Store) error {
		if err := s.SaveCategories(ctx, categories); err != nil {
			return goerr.Wrap(err, "failed to save violation categories", goerr.V("count", len(categories)))
		}
		if thresholds != nil {
			if err := s.SaveThresholds(ctx, thresholds); err != nil {
				return goerr.Wrap(err, "failed to save discipline thresholds", goerr.V("count", len(thresholds)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Effects{Audit: []AuditRequest{{
		Action:  AuditCatalogSeeded,
		ActorID: actor.ID,
		At:      m.now(),
		Detail: map[string]any{
			"categories": len(categories),
			"thresholds": len(thresholds),
		},
	}}}, nil
}

// ListCategories returns the catalog in display order.
func (m *Manager) ListCategories(ctx context.Context) ([]ViolationCategory, error) {
	categories, err := m.Store.ListCategories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list violation categories")
	}
	SortCategories(categories)
	return categories, nil
}

// ListThresholds returns the seeded table, or the ladder defaults if nothing
// has been seeded yet.
func (m *Manager) ListThresholds(ctx context.Context) ([]DisciplineThreshold, error) {
	thresholds, err := m.Store.ListThresholds(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list discipline thresholds")
	}
	if len(thresholds) == 0 {
		return DefaultThresholds(), nil
	}
	SortThresholds(thresholds)
	return thresholds, nil
}
