/*
dispatcher.go - Delivers the effects returned by the lifecycle manager

PURPOSE:
  The engine commits a record and hands back Effects. The dispatcher writes
  audit rows and in-app notifications and sends the sign-off email. It runs
  after the commit, so a failure here never undoes a record: it comes back
  as a warning and, for email, the message is parked in the outbox.

USAGE:
  outcome, err := manager.Create(ctx, actor, in)
  report := dispatcher.Deliver(ctx, outcome.Effects)
  for _, w := range report.Warnings { ... }

SEE ALSO:
  - generic/effects.go: Effect request types
  - outbox.go: Retries emails that failed here
*/
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/logging"
)

// Sink is everything the dispatcher writes to. Both stores implement it.
type Sink interface {
	generic.AuditLog
	generic.NotificationStore
	generic.EmailOutbox
}

type Dispatcher struct {
	Sink     Sink
	Mailer   Mailer
	Renderer *Renderer

	// RetryDelay is how long a failed email waits in the outbox before
	// the first retry.
	RetryDelay time.Duration

	Now func() time.Time
}

func NewDispatcher(sink Sink, mailer Mailer, renderer *Renderer) *Dispatcher {
	return &Dispatcher{
		Sink:       sink,
		Mailer:     mailer,
		Renderer:   renderer,
		RetryDelay: time.Minute,
		Now:        time.Now,
	}
}

// Report summarizes one delivery.
type Report struct {
	Audited  int
	Notified int
	Emailed  int
	Queued   int

	// Warnings wrap generic.ErrCollaborator.
	Warnings []error
}

func (r Report) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

func (r *Report) warn(ctx context.Context, err error, msg string, kv ...any) {
	wrapped := goerr.Wrap(generic.ErrCollaborator, msg, goerr.V("cause", err.Error()))
	r.Warnings = append(r.Warnings, wrapped)
	args := append([]any{"effect_error", err.Error()}, kv...)
	logging.From(ctx).Warn(msg, args...)
}

// Deliver attempts every effect and never stops at the first failure.
func (d *Dispatcher) Deliver(ctx context.Context, effects generic.Effects) Report {
	var report Report
	now := d.Now().UTC()

	for _, a := range effects.Audit {
		at := a.At
		if at.IsZero() {
			at = now
		}
		entry := generic.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: at,
			ActorID:   a.ActorID,
			Action:    a.Action,
			EntityID:  string(a.EntityID),
			Payload:   a.Detail,
		}
		if err := d.Sink.AppendAudit(ctx, entry); err != nil {
			report.warn(ctx, err, "audit write failed", "record_id", a.EntityID, "action", a.Action)
			continue
		}
		report.Audited++
	}

	for _, n := range effects.Notifications {
		note := generic.Notification{
			ID:          uuid.NewString(),
			RecipientID: n.RecipientID,
			EmployeeID:  n.EmployeeID,
			RecordID:    n.RecordID,
			Threshold:   n.Threshold,
			Level:       n.Level,
			Message:     n.Message,
			CreatedAt:   now,
		}
		if err := d.Sink.SaveNotification(ctx, note); err != nil {
			report.warn(ctx, err, "notification write failed", "record_id", n.RecordID, "recipient_id", n.RecipientID)
			continue
		}
		report.Notified++
	}

	for _, e := range effects.Emails {
		d.sendEmail(ctx, e, now, &report)
	}

	return report
}

func (d *Dispatcher) sendEmail(ctx context.Context, req generic.EmailRequest, now time.Time, report *Report) {
	msg, err := d.Renderer.Render(req, now)
	if err != nil {
		report.warn(ctx, err, "email render failed", "record_id", req.RecordID)
		return
	}

	sendErr := d.Mailer.Send(ctx, msg)
	if sendErr == nil {
		report.Emailed++
		return
	}

	msg.Attempts = 1
	msg.LastError = sendErr.Error()
	msg.NextAttemptAt = now.Add(d.RetryDelay)
	if err := d.Sink.EnqueueEmail(ctx, msg); err != nil {
		report.warn(ctx, err, "email outbox write failed", "record_id", req.RecordID, "email_id", msg.ID)
		return
	}
	report.Queued++
	report.warn(ctx, sendErr, "email delivery failed, queued for retry", "record_id", req.RecordID, "email_id", msg.ID)
}
