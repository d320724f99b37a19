/*
points.go - Rolling-window point calculator

PURPOSE:
  Answers "how many points does this employee have right now?"

KEY INSIGHT:
  There is no stored running total. Every call re-reads the employee's
  records and sums effective points, the same way the resource ledger
  replays transactions instead of keeping a balance column. Voiding a past
  record or adjusting its points is reflected on the very next read with no
  reconciliation step.

WINDOW:
  [asOf - 90 days, asOf], both ends inclusive. Voided records never count.

EXCLUSION:
  An optional record ID is skipped, which answers "what was the total right
  before this record was added".

SEE ALSO:
  - time.go: RollingWindow
  - lifecycle.go: Uses CurrentPoints for the before/after totals
*/
package generic

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// =============================================================================
// POINT CALCULATOR
// =============================================================================

type PointCalculator struct {
	Records RecordReader
}

func NewPointCalculator(records RecordReader) *PointCalculator {
	return &PointCalculator{Records: records}
}

// WindowTotal is the total plus the records that produced it.
type WindowTotal struct {
	EmployeeID EmployeeID
	Window     Period
	Points     int
	Records    []CorrectiveAction
}

// CurrentPoints sums the effective points of the employee's non-voided records
// dated inside the rolling window ending at asOf. Pass "" for exclude to count
// every record.
func (pc *PointCalculator) CurrentPoints(ctx context.Context, employeeID EmployeeID, asOf TimePoint, exclude RecordID) (int, error) {
	total, err := pc.Window(ctx, employeeID, asOf, exclude)
	if err != nil {
		return 0, err
	}
	return total.Points, nil
}

// Window returns the total together with the contributing records.
func (pc *PointCalculator) Window(ctx context.Context, employeeID EmployeeID, asOf TimePoint, exclude RecordID) (WindowTotal, error) {
	window := RollingWindow(asOf)

	records, err := pc.Records.LoadByEmployee(ctx, employeeID, window.Start, window.End)
	if err != nil {
		return WindowTotal{}, goerr.Wrap(err, "failed to load corrective actions",
			goerr.V("employee_id", employeeID), goerr.V("window", window.String()))
	}

	points, counted := SumPoints(records, window, exclude)
	return WindowTotal{
		EmployeeID: employeeID,
		Window:     window,
		Points:     points,
		Records:    counted,
	}, nil
}

// SumPoints is the pure core of the calculator. Stores may return more than
// the window; the window and status are re-checked here.
func SumPoints(records []CorrectiveAction, window Period, exclude RecordID) (int, []CorrectiveAction) {
	total := 0
	var counted []CorrectiveAction
	for _, r := range records {
		if exclude != "" && r.ID == exclude {
			continue
		}
		if !r.CountsToward(window) {
			continue
		}
		total += r.EffectivePoints()
		counted = append(counted, r)
	}
	return total, counted
}
