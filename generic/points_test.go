package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/generic/store"
)

func record(id string, date generic.TimePoint, points int) generic.CorrectiveAction {
	return generic.CorrectiveAction{
		ID:             generic.RecordID(id),
		EmployeeID:     "emp-1",
		HouseID:        "maple",
		CategoryID:     "late",
		ViolationDate:  date,
		PointsAssigned: points,
		Status:         generic.StatusPendingSignature,
	}
}

// =============================================================================
// ROLLING WINDOW
// =============================================================================

func TestRollingWindow_InclusiveBoundary(t *testing.T) {
	asOf := generic.NewTimePoint(2025, time.June, 30)
	window := generic.RollingWindow(asOf)

	assert.Equal(t, "2025-04-01", window.Start.String())
	assert.True(t, window.Contains(generic.NewTimePoint(2025, time.April, 1)), "day 90 counts")
	assert.False(t, window.Contains(generic.NewTimePoint(2025, time.March, 31)), "day 91 does not")
	assert.True(t, window.Contains(asOf))
	assert.False(t, window.Contains(asOf.AddDays(1)))
}

func TestSumPoints(t *testing.T) {
	asOf := generic.NewTimePoint(2025, time.June, 30)
	window := generic.RollingWindow(asOf)

	adjusted := record("adjusted", asOf.AddDays(-10), 7)
	two := 2
	adjusted.PointsAdjusted = &two

	voided := record("voided", asOf.AddDays(-5), 10)
	voided.Status = generic.StatusVoided

	records := []generic.CorrectiveAction{
		record("edge", asOf.AddDays(-90), 3),
		record("outside", asOf.AddDays(-91), 5),
		adjusted,
		voided,
		record("today", asOf, 1),
	}

	total, counted := generic.SumPoints(records, window, "")
	assert.Equal(t, 3+2+1, total)
	assert.Len(t, counted, 3)

	// WHEN: Excluding a record
	total, _ = generic.SumPoints(records, window, "edge")
	assert.Equal(t, 3, total)
}

func TestPointCalculator_ReflectsVoidOnNextRead(t *testing.T) {
	// GIVEN: Two records in the window
	ctx := context.Background()
	mem := store.NewMemory()
	asOf := generic.NewTimePoint(2025, time.June, 30)
	first := record("r1", asOf.AddDays(-3), 5)
	second := record("r2", asOf.AddDays(-1), 4)
	require.NoError(t, mem.InsertRecord(ctx, first))
	require.NoError(t, mem.InsertRecord(ctx, second))

	calc := generic.NewPointCalculator(mem)
	points, err := calc.CurrentPoints(ctx, "emp-1", asOf, "")
	require.NoError(t, err)
	assert.Equal(t, 9, points)

	// WHEN: One is voided
	first.Status = generic.StatusVoided
	require.NoError(t, mem.UpdateRecord(ctx, first))

	// THEN: The very next read drops it, no recompute step
	points, err = calc.CurrentPoints(ctx, "emp-1", asOf, "")
	require.NoError(t, err)
	assert.Equal(t, 4, points)
}

func TestPointCalculator_RecordsAgeOut(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	dated := generic.NewTimePoint(2025, time.January, 10)
	require.NoError(t, mem.InsertRecord(ctx, record("r1", dated, 6)))

	calc := generic.NewPointCalculator(mem)

	points, err := calc.CurrentPoints(ctx, "emp-1", dated.AddDays(90), "")
	require.NoError(t, err)
	assert.Equal(t, 6, points)

	points, err = calc.CurrentPoints(ctx, "emp-1", dated.AddDays(91), "")
	require.NoError(t, err)
	assert.Equal(t, 0, points)
}

func TestPointCalculator_NoRecords(t *testing.T) {
	calc := generic.NewPointCalculator(store.NewMemory())
	points, err := calc.CurrentPoints(context.Background(), "nobody", generic.Today(), "")
	require.NoError(t, err)
	assert.Zero(t, points)
}
