/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Catalog and roster are seeded
	- Records land with the expected status and frozen level
	- Rolling totals match the story the scenario tells

These tests double as integration tests of the manager against SQLite.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/generic"
)

func points(t *testing.T, ts *testServer, emp generic.EmployeeID) *generic.WindowTotal {
	t.Helper()
	total, err := ts.handler.Manager.History(context.Background(), hrActor, emp, generic.DateOf(testNow))
	require.NoError(t, err)
	return total
}

func TestScenario_CleanSlate(t *testing.T) {
	ts := setupTestServer(t, "clean-slate")
	ctx := context.Background()

	employees, err := ts.handler.Store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, 4)

	categories, err := ts.handler.Manager.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 15)

	audit, err := ts.handler.Store.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditCatalogSeeded}})
	require.NoError(t, err)
	assert.Len(t, audit, 1)

	assert.Empty(t, ts.mailer.SentMessages(), "scenarios never send email")
}

func TestScenario_Escalation(t *testing.T) {
	// GIVEN: The escalation scenario
	ts := setupTestServer(t, "escalation")

	// THEN: Jordan Lee sits at 12 and each record froze the level it produced
	total := points(t, ts, "emp-jlee")
	assert.Equal(t, 12, total.Points)
	require.Len(t, total.Records, 3)

	levels := map[int]generic.DisciplineLevel{}
	for _, r := range total.Records {
		levels[r.EffectivePoints()] = r.DisciplineLevel
	}
	assert.Equal(t, generic.LevelCoaching, levels[3])
	assert.Equal(t, generic.LevelVerbalWarning, levels[4])
	assert.Equal(t, generic.LevelWrittenWarning, levels[5])

	notes, err := ts.handler.Store.ListNotifications(context.Background(), "admin-rdiaz", false)
	require.NoError(t, err)
	var thresholds []int
	for _, n := range notes {
		thresholds = append(thresholds, n.Threshold)
	}
	assert.ElementsMatch(t, []int{6, 10}, thresholds)
}

func TestScenario_WindowAging(t *testing.T) {
	ts := setupTestServer(t, "window-aging")

	total := points(t, ts, "emp-sortiz")
	assert.Equal(t, 1, total.Points)
	require.Len(t, total.Records, 1)
	assert.Equal(t, generic.CategoryID("late-arrival"), total.Records[0].CategoryID)

	rec := ts.do(t, http.MethodGet, "/api/corrective-actions?employee_id=emp-sortiz", &hrActor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListResponse](t, rec).Records, 2, "the aged-out record stays in history")
}

func TestScenario_VoidAndSign(t *testing.T) {
	ts := setupTestServer(t, "void-and-sign")

	total := points(t, ts, "emp-tnguyen")
	assert.Equal(t, 3, total.Points)
	require.Len(t, total.Records, 1)
	assert.Equal(t, generic.StatusAcknowledged, total.Records[0].Status)

	result, err := ts.handler.Manager.List(context.Background(), hrActor, generic.ListFilter{
		EmployeeID: "emp-tnguyen",
		Status:     generic.StatusVoided,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, generic.LevelVerbalWarning, result.Records[0].DisciplineLevel)
}

func TestScenario_TerminationTrack(t *testing.T) {
	ts := setupTestServer(t, "termination-track")

	total := points(t, ts, "emp-cbrooks")
	assert.Equal(t, 16, total.Points)
	assert.Equal(t, generic.LevelFinalWarning, generic.LevelFor(total.Points))

	standing, err := ts.handler.Manager.Standing(context.Background(), hrActor, "emp-cbrooks", generic.DateOf(testNow))
	require.NoError(t, err)
	require.NotNil(t, standing.Next)
	assert.Equal(t, generic.LevelTermination, standing.Next.Level)
	assert.Equal(t, 2, standing.PointsToNext)
}

func TestScenario_LoadViaAPI(t *testing.T) {
	ts := setupTestServer(t, "clean-slate")

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", nil, LoadScenarioRequest{ScenarioID: "full-house"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "full-house", decode[ScenarioDTO](t, rec).ID)

	assert.Equal(t, 12, points(t, ts, "emp-jlee").Points)
	assert.Equal(t, 16, points(t, ts, "emp-cbrooks").Points)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", nil, LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	employees, err := ts.handler.Store.ListEmployees(context.Background())
	require.NoError(t, err)
	assert.Empty(t, employees)
}
