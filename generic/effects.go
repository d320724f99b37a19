package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// EFFECTS - Side-effect requests returned to the caller
// =============================================================================
//
// The engine never sends mail or writes audit rows itself. Each operation
// returns the requests below and the notify package (or any other caller)
// delivers them after the write has committed.

// AuditRequest asks the audit collaborator to record an action.
type AuditRequest struct {
	Action   AuditAction
	EntityID RecordID
	ActorID  ActorID
	At       time.Time
	Detail   map[string]any
}

// NotificationRequest is one in-app notification for one recipient about one
// crossed threshold.
type NotificationRequest struct {
	RecipientID ActorID
	EmployeeID  EmployeeID
	RecordID    RecordID
	Threshold   int
	Level       DisciplineLevel
	Points      int
	Message     string
}

// EmailRequest asks for the employee sign-off email.
type EmailRequest struct {
	To           string
	EmployeeName string
	RecordID     RecordID
	CategoryName string
	Severity     SeverityTier
	Points       int
	Level        DisciplineLevel
}

type Effects struct {
	Audit         []AuditRequest
	Notifications []NotificationRequest
	Emails        []EmailRequest
}

func (e Effects) IsEmpty() bool {
	return len(e.Audit) == 0 && len(e.Notifications) == 0 && len(e.Emails) == 0
}

// notificationsFor fans crossed thresholds out to every recipient.
func notificationsFor(record CorrectiveAction, employee Employee, after int, crossed []int, recipients []User) []NotificationRequest {
	var out []NotificationRequest
	for _, threshold := range crossed {
		level := LevelFor(threshold)
		for _, u := range recipients {
			out = append(out, NotificationRequest{
				RecipientID: u.ID,
				EmployeeID:  record.EmployeeID,
				RecordID:    record.ID,
				Threshold:   threshold,
				Level:       level,
				Points:      after,
				Message: fmt.Sprintf("%s reached %d discipline points (%s threshold at %d).",
					displayName(employee), after, level, threshold),
			})
		}
	}
	return out
}

func displayName(e Employee) string {
	if e.Name != "" {
		return e.Name
	}
	return string(e.ID)
}
