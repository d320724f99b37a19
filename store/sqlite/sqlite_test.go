package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/store/sqlite"
)

var asOf = generic.NewTimePoint(2025, time.June, 30)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveEmployee(ctx, generic.Employee{ID: "emp-1", Name: "Jordan Lee", Email: "jordan@example.org", HouseID: "maple"}))
	require.NoError(t, store.SaveEmployee(ctx, generic.Employee{ID: "emp-2", Name: "Sam Ortiz", HouseID: "birch"}))
	require.NoError(t, store.SaveCategories(ctx, []generic.ViolationCategory{
		{ID: "late", Name: "Late arrival", Severity: generic.SeverityMinor, DefaultPoints: 2, SortOrder: 1},
		{ID: "neglect", Name: "Neglect of care duties", Severity: generic.SeveritySerious, DefaultPoints: 7, SortOrder: 2},
	}))
	return store
}

func newRecord(id string, emp generic.EmployeeID, house generic.HouseID, cat generic.CategoryID, date generic.TimePoint, points int) generic.CorrectiveAction {
	created := time.Date(2025, time.June, 30, 9, 0, 0, 0, time.UTC)
	return generic.CorrectiveAction{
		ID:                     generic.RecordID(id),
		EmployeeID:             emp,
		IssuedBy:               "mgr-1",
		HouseID:                house,
		CategoryID:             cat,
		ViolationDate:          date,
		Description:            "Documented by shift supervisor.",
		PointsAssigned:         points,
		DisciplineLevel:        generic.LevelFor(points),
		CorrectiveExpectations: []string{"Arrive on time", "Call ahead"},
		Consequences:           generic.DefaultConsequences,
		Status:                 generic.StatusPendingSignature,
		CreatedAt:              created,
		UpdatedAt:              created,
	}
}

func TestRecord_RoundTripWithSignatures(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	pip := asOf.AddDays(14)
	r := newRecord("r1", "emp-1", "maple", "late", asOf, 2)
	r.ViolationTime = "07:45"
	r.PIPRequired = true
	r.PIPDate = &pip
	r.Signatures = []generic.Signature{{
		ID: "s1", RecordID: "r1", Role: generic.SignerSupervisor, SignerID: "mgr-1",
		Payload: "data:image/png;base64,AAA", SignedAt: r.CreatedAt,
	}}
	require.NoError(t, store.InsertRecord(ctx, r))

	got, err := store.GetRecord(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-06-30", got.ViolationDate.String())
	assert.Equal(t, "07:45", got.ViolationTime)
	assert.Equal(t, []string{"Arrive on time", "Call ahead"}, got.CorrectiveExpectations)
	require.NotNil(t, got.PIPDate)
	assert.Equal(t, "2025-07-14", got.PIPDate.String())
	assert.Nil(t, got.PointsAdjusted)
	require.Len(t, got.Signatures, 1)
	assert.Equal(t, generic.SignerSupervisor, got.Signatures[0].Role)
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt))

	missing, err := store.GetRecord(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateRecord_NeverRewritesFrozenColumns(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	r := newRecord("r1", "emp-1", "maple", "neglect", asOf, 7)
	require.NoError(t, store.InsertRecord(ctx, r))

	// WHEN: An update carries different points_assigned and level
	four := 4
	r.PointsAssigned = 99
	r.DisciplineLevel = generic.LevelTermination
	r.PointsAdjusted = &four
	r.AdjustmentReason = "reviewed"
	require.NoError(t, store.UpdateRecord(ctx, r))

	// THEN: Only the mutable columns changed
	got, err := store.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.PointsAssigned)
	assert.Equal(t, generic.LevelVerbalWarning, got.DisciplineLevel)
	require.NotNil(t, got.PointsAdjusted)
	assert.Equal(t, 4, got.EffectivePoints())

	// Unknown record
	err = store.UpdateRecord(ctx, newRecord("ghost", "emp-1", "maple", "late", asOf, 2))
	assert.True(t, errors.Is(err, generic.ErrRecordNotFound))
}

func TestLoadByEmployee_InclusiveRange(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	window := generic.RollingWindow(asOf)

	require.NoError(t, store.InsertRecord(ctx, newRecord("edge", "emp-1", "maple", "late", window.Start, 2)))
	require.NoError(t, store.InsertRecord(ctx, newRecord("old", "emp-1", "maple", "late", window.Start.AddDays(-1), 2)))
	require.NoError(t, store.InsertRecord(ctx, newRecord("today", "emp-1", "maple", "neglect", asOf, 7)))
	require.NoError(t, store.InsertRecord(ctx, newRecord("other", "emp-2", "birch", "late", asOf, 2)))

	records, err := store.LoadByEmployee(ctx, "emp-1", window.Start, window.End)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, generic.RecordID("edge"), records[0].ID)
	assert.Equal(t, generic.RecordID("today"), records[1].ID)

	calc := generic.NewPointCalculator(store)
	points, err := calc.CurrentPoints(ctx, "emp-1", asOf, "")
	require.NoError(t, err)
	assert.Equal(t, 9, points)
}

func TestQueryRecords_ScopeFirst(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	maple := newRecord("maple", "emp-1", "maple", "neglect", asOf.AddDays(-2), 7)
	birch := newRecord("birch", "emp-2", "birch", "late", asOf, 2)
	birch.IssuedBy = "coord-1"
	require.NoError(t, store.InsertRecord(ctx, maple))
	require.NoError(t, store.InsertRecord(ctx, birch))

	query := func(f generic.RecordFilter) []generic.RecordID {
		t.Helper()
		records, err := store.QueryRecords(ctx, f)
		require.NoError(t, err)
		var ids []generic.RecordID
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		return ids
	}

	all := generic.Scope{Unrestricted: true}
	assert.Equal(t, []generic.RecordID{"birch", "maple"}, query(generic.RecordFilter{Scope: all}))
	assert.Equal(t, []generic.RecordID{"maple"}, query(generic.RecordFilter{Scope: generic.Scope{Houses: []generic.HouseID{"maple"}}}))
	assert.Equal(t, []generic.RecordID{"birch"}, query(generic.RecordFilter{Scope: generic.Scope{IssuedBy: "coord-1"}}))
	assert.Empty(t, query(generic.RecordFilter{Scope: generic.Scope{}}))

	// Filters narrow, never widen
	assert.Empty(t, query(generic.RecordFilter{Scope: generic.Scope{Houses: []generic.HouseID{"maple"}}, EmployeeID: "emp-2"}))
	assert.Equal(t, []generic.RecordID{"maple"}, query(generic.RecordFilter{Scope: all, Severity: generic.SeveritySerious}))
	from := asOf.AddDays(-1)
	assert.Equal(t, []generic.RecordID{"birch"}, query(generic.RecordFilter{Scope: all, From: &from}))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	// GIVEN: A transaction that inserts then fails
	err := store.WithTx(ctx, func(s generic.Store) error {
		if err := s.InsertRecord(ctx, newRecord("r1", "emp-1", "maple", "late", asOf, 2)); err != nil {
			return err
		}
		got, err := s.GetRecord(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got, "visible inside the transaction")
		return errors.New("boom")
	})
	require.Error(t, err)

	// THEN: Nothing was committed
	got, err := store.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertRecord_BadSignatureRollsBackRecord(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	r := newRecord("r1", "emp-1", "maple", "late", asOf, 2)
	sig := generic.Signature{ID: "dup", RecordID: "r1", Role: generic.SignerWitness, SignerID: "x", Payload: "p", SignedAt: r.CreatedAt}
	r.Signatures = []generic.Signature{sig, sig}

	require.Error(t, store.InsertRecord(ctx, r))
	got, err := store.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCatalogAndThresholds(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveThresholds(ctx, generic.DefaultThresholds()))
	thresholds, err := store.ListThresholds(ctx)
	require.NoError(t, err)
	require.NoError(t, generic.ValidateThresholds(thresholds))
	assert.Nil(t, thresholds[len(thresholds)-1].Maximum)

	// Saving again replaces the table
	require.NoError(t, store.SaveThresholds(ctx, generic.DefaultThresholds()[:1]))
	thresholds, err = store.ListThresholds(ctx)
	require.NoError(t, err)
	assert.Len(t, thresholds, 1)

	c, err := store.GetCategory(ctx, "neglect")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, generic.SeveritySerious, c.Severity)

	c, err = store.GetCategory(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.SaveUser(ctx, generic.User{ID: "hr-1", Name: "Pat Quinn", Role: generic.RoleHR}))
	require.NoError(t, store.SaveUser(ctx, generic.User{ID: "admin-1", Name: "Robin Diaz", Role: generic.RoleAdmin}))
	require.NoError(t, store.SaveUser(ctx, generic.User{ID: "mgr-1", Name: "Alex Kim", Role: generic.RoleHouseManager}))

	users, err := store.ListUsersByRole(ctx, generic.RoleAdmin, generic.RoleHR)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, generic.ActorID("admin-1"), users[0].ID)

	e, err := store.GetEmployee(ctx, "emp-2")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, generic.HouseID("birch"), e.HouseID)

	employees, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, 2)
}

func TestAuditNotificationsOutbox(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendAudit(ctx, generic.AuditEntry{
		ID: "a1", Timestamp: now, ActorID: "hr-1", Action: generic.AuditActionCreated,
		EntityID: "r1", Payload: map[string]any{"after": 12},
	}))
	entries, err := store.QueryAudit(ctx, generic.AuditFilter{EntityID: "r1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 12, entries[0].Payload["after"])

	require.NoError(t, store.SaveNotification(ctx, generic.Notification{
		ID: "n1", RecipientID: "hr-1", EmployeeID: "emp-1", RecordID: "r1",
		Threshold: 10, Level: generic.LevelWrittenWarning, Message: "m", CreatedAt: now,
	}))
	list, err := store.ListNotifications(ctx, "hr-1", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, store.MarkNotificationRead(ctx, "n1", now))
	list, err = store.ListNotifications(ctx, "hr-1", true)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.EnqueueEmail(ctx, generic.OutboundEmail{
		ID: "e1", To: "jordan@example.org", Subject: "s", Text: "t", CreatedAt: now, NextAttemptAt: now,
	}))
	pending, err := store.PendingEmails(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkEmailFailed(ctx, "e1", "timeout", now.Add(time.Minute)))
	pending, err = store.PendingEmails(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "not due yet")

	pending, err = store.PendingEmails(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, store.MarkEmailSent(ctx, "e1", now.Add(time.Minute)))
	pending, err = store.PendingEmails(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
