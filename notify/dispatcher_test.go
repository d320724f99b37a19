package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/generic/store"
	"github.com/warp/discipline-engine/notify"
)

var now = time.Date(2025, time.June, 30, 15, 0, 0, 0, time.UTC)

func newDispatcher(t *testing.T, sink notify.Sink, mailer notify.Mailer) *notify.Dispatcher {
	t.Helper()
	renderer, err := notify.NewRenderer("https://portal.example.org/")
	require.NoError(t, err)
	d := notify.NewDispatcher(sink, mailer, renderer)
	d.Now = func() time.Time { return now }
	return d
}

func sampleEffects() generic.Effects {
	return generic.Effects{
		Audit: []generic.AuditRequest{{
			Action:   generic.AuditActionCreated,
			EntityID: "rec-1",
			ActorID:  "hr-1",
			At:       now,
			Detail:   map[string]any{"points": 7},
		}},
		Notifications: []generic.NotificationRequest{
			{RecipientID: "hr-1", EmployeeID: "emp-1", RecordID: "rec-1", Threshold: 6, Level: generic.LevelVerbalWarning, Points: 7, Message: "Jordan Lee reached 7"},
			{RecipientID: "admin-1", EmployeeID: "emp-1", RecordID: "rec-1", Threshold: 6, Level: generic.LevelVerbalWarning, Points: 7, Message: "Jordan Lee reached 7"},
		},
		Emails: []generic.EmailRequest{{
			To:           "jordan@example.org",
			EmployeeName: "Jordan Lee",
			RecordID:     "rec-1",
			CategoryName: "Neglect of care duties",
			Severity:     generic.SeveritySerious,
			Points:       7,
			Level:        generic.LevelVerbalWarning,
		}},
	}
}

func TestDeliver_AllEffects(t *testing.T) {
	ctx := context.Background()
	sink := store.NewMemory()
	mailer := notify.NewConsoleMailer()

	report := newDispatcher(t, sink, mailer).Deliver(ctx, sampleEffects())

	assert.Empty(t, report.Warnings)
	assert.Equal(t, 1, report.Audited)
	assert.Equal(t, 2, report.Notified)
	assert.Equal(t, 1, report.Emailed)

	audit, err := sink.QueryAudit(ctx, generic.AuditFilter{EntityID: "rec-1"})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, generic.AuditActionCreated, audit[0].Action)
	assert.NotEmpty(t, audit[0].ID)

	notes, err := sink.ListNotifications(ctx, "admin-1", true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, 6, notes[0].Threshold)

	sent := mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "jordan@example.org", sent[0].To)
	assert.Contains(t, sent[0].Text, "https://portal.example.org/corrective-actions/rec-1/sign")
	assert.Contains(t, sent[0].HTML, "Verbal Warning")

	pending, err := sink.PendingEmails(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeliver_FailedEmailIsQueued(t *testing.T) {
	// GIVEN: A mail transport that is down
	ctx := context.Background()
	sink := store.NewMemory()
	mailer := notify.NewConsoleMailer()
	mailer.SetFail(errors.New("connection refused"))

	// WHEN: Effects are delivered
	report := newDispatcher(t, sink, mailer).Deliver(ctx, sampleEffects())

	// THEN: The rest still lands and the email waits in the outbox
	assert.Equal(t, 1, report.Audited)
	assert.Equal(t, 2, report.Notified)
	assert.Equal(t, 0, report.Emailed)
	assert.Equal(t, 1, report.Queued)
	require.Len(t, report.Warnings, 1)
	assert.ErrorIs(t, report.Warnings[0], generic.ErrCollaborator)
	assert.Len(t, report.WarningMessages(), 1)

	due, err := sink.PendingEmails(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, due, "not due before the retry delay")

	due, err = sink.PendingEmails(ctx, now.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, "connection refused", due[0].LastError)
	assert.Equal(t, generic.RecordID("rec-1"), due[0].RecordID)
}

type brokenAudit struct {
	*store.Memory
}

func (brokenAudit) AppendAudit(context.Context, generic.AuditEntry) error {
	return errors.New("disk full")
}

func TestDeliver_AuditFailureDoesNotStopTheRest(t *testing.T) {
	sink := brokenAudit{Memory: store.NewMemory()}
	mailer := notify.NewConsoleMailer()

	report := newDispatcher(t, sink, mailer).Deliver(context.Background(), sampleEffects())

	assert.Equal(t, 0, report.Audited)
	assert.Equal(t, 2, report.Notified)
	assert.Equal(t, 1, report.Emailed)
	require.Len(t, report.Warnings, 1)
	assert.ErrorIs(t, report.Warnings[0], generic.ErrCollaborator)
}

func TestDeliver_CreateOutcome(t *testing.T) {
	// GIVEN: An employee at 5 points
	ctx := context.Background()
	s := store.NewTxMemory()
	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{ID: "emp-1", Name: "Jordan Lee", Email: "jordan@example.org", HouseID: "maple"}))
	require.NoError(t, s.SaveUser(ctx, generic.User{ID: "hr-1", Name: "Pat Quinn", Role: generic.RoleHR}))
	require.NoError(t, s.SaveUser(ctx, generic.User{ID: "admin-1", Name: "Robin Diaz", Role: generic.RoleAdmin}))
	require.NoError(t, s.SaveCategories(ctx, []generic.ViolationCategory{
		{ID: "no-show", Name: "No call / no show", Severity: generic.SeverityModerate, DefaultPoints: 5, SortOrder: 1},
		{ID: "neglect", Name: "Neglect of care duties", Severity: generic.SeveritySerious, DefaultPoints: 7, SortOrder: 2},
	}))
	mgr := generic.NewManager(s)
	mgr.Now = func() time.Time { return now }
	hr := generic.Actor{ID: "hr-1", Role: generic.RoleHR}
	today := generic.DateOf(now)

	dispatcher := newDispatcher(t, s, notify.NewConsoleMailer())
	first, err := mgr.Create(ctx, hr, generic.CreateInput{EmployeeID: "emp-1", CategoryID: "no-show", ViolationDate: today.AddDays(-10), Description: "Missed shift."})
	require.NoError(t, err)
	dispatcher.Deliver(ctx, first.Effects)

	// WHEN: A 7-point record takes them to 12
	second, err := mgr.Create(ctx, hr, generic.CreateInput{EmployeeID: "emp-1", CategoryID: "neglect", ViolationDate: today, Description: "Left resident unattended."})
	require.NoError(t, err)
	report := dispatcher.Deliver(ctx, second.Effects)

	// THEN: Both recipients hear about 6 and 10
	assert.Equal(t, 4, report.Notified)
	for _, recipient := range []generic.ActorID{"hr-1", "admin-1"} {
		notes, err := s.ListNotifications(ctx, recipient, false)
		require.NoError(t, err)
		var thresholds []int
		for _, n := range notes {
			thresholds = append(thresholds, n.Threshold)
		}
		assert.ElementsMatch(t, []int{6, 10}, thresholds, recipient)
	}

	audit, err := s.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditActionCreated}})
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}
