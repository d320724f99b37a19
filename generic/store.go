/*
store.go - Persistence interfaces for the discipline engine

PURPOSE:
  Defines the interface between the engine and the relational store.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  CatalogStore: Violation categories and the threshold table (seeded once)
  RecordReader: Read side used by the point calculator
  RecordStore:  Corrective actions and their signatures
  Directory:    Employees and notification recipients
  TxStore:      Atomic multi-row writes (record + signatures)
  AuditLog:     Append-only audit trail written by the notify dispatcher

NO HARD DELETES:
  There is no Delete on RecordStore. Voiding is a status update and the
  record stays in history.

NIL RESULTS:
  Single-row getters return (nil, nil) when the row does not exist, the same
  way the employee and policy getters always have. The engine maps that to
  the matching not-found sentinel.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// CATALOG
// =============================================================================

type CatalogStore interface {
	// SaveCategories upserts categories by ID.
	SaveCategories(ctx context.Context, categories []ViolationCategory) error

	// SaveThresholds replaces the threshold table.
	SaveThresholds(ctx context.Context, thresholds []DisciplineThreshold) error

	GetCategory(ctx context.Context, id CategoryID) (*ViolationCategory, error)
	ListCategories(ctx context.Context) ([]ViolationCategory, error)
	ListThresholds(ctx context.Context) ([]DisciplineThreshold, error)
}

// =============================================================================
// RECORDS
// =============================================================================

type RecordReader interface {
	// LoadByEmployee returns the employee's records with ViolationDate in
	// [from, to], voided ones included, ordered by ViolationDate.
	LoadByEmployee(ctx context.Context, employeeID EmployeeID, from, to TimePoint) ([]CorrectiveAction, error)
}

type RecordStore interface {
	RecordReader

	// InsertRecord persists a new record together with its Signatures.
	InsertRecord(ctx context.Context, record CorrectiveAction) error

	// UpdateRecord overwrites the mutable columns of an existing record.
	// Signatures are not touched.
	UpdateRecord(ctx context.Context, record CorrectiveAction) error

	AddSignature(ctx context.Context, sig Signature) error

	// GetRecord returns the record with its signatures.
	GetRecord(ctx context.Context, id RecordID) (*CorrectiveAction, error)

	// QueryRecords applies filter.Scope first, then the other fields.
	// Results are ordered newest violation first.
	QueryRecords(ctx context.Context, filter RecordFilter) ([]CorrectiveAction, error)
}

// =============================================================================
// DIRECTORY - Employee/identity collaborator
// =============================================================================

type Directory interface {
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// ListUsersByRole returns users holding any of the given roles.
	ListUsersByRole(ctx context.Context, roles ...Role) ([]User, error)
}

// =============================================================================
// COMBINED & TRANSACTIONAL STORE
// =============================================================================

type Store interface {
	CatalogStore
	RecordStore
	Directory
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from records, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditActionCreated      AuditAction = "corrective_action_created"
	AuditActionUpdated      AuditAction = "corrective_action_updated"
	AuditActionVoided       AuditAction = "corrective_action_voided"
	AuditActionSigned       AuditAction = "corrective_action_signed"
	AuditActionAcknowledged AuditAction = "corrective_action_acknowledged"
	AuditCatalogSeeded      AuditAction = "catalog_seeded"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   ActorID
	Action    AuditAction
	EntityID  string
	Payload   map[string]any
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityID string
	ActorID  ActorID
	Actions  []AuditAction
}

// =============================================================================
// DIRECTORY ADMINISTRATION - Used by seeding and the employees endpoint
// =============================================================================

type DirectoryWriter interface {
	SaveEmployee(ctx context.Context, e Employee) error
	SaveUser(ctx context.Context, u User) error
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// NOTIFICATIONS & EMAIL OUTBOX - Written by the notify dispatcher
// =============================================================================

// Notification is a delivered in-app notification.
type Notification struct {
	ID          string
	RecipientID ActorID
	EmployeeID  EmployeeID
	RecordID    RecordID
	Threshold   int
	Level       DisciplineLevel
	Message     string
	CreatedAt   time.Time
	ReadAt      *time.Time
}

type NotificationStore interface {
	SaveNotification(ctx context.Context, n Notification) error

	// ListNotifications returns the recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipient ActorID, unreadOnly bool) ([]Notification, error)

	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
}

// OutboundEmail is a rendered message waiting in the outbox.
type OutboundEmail struct {
	ID            string
	To            string
	ToName        string
	Subject       string
	Text          string
	HTML          string
	RecordID      RecordID
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	SentAt        *time.Time
}

// EmailOutbox keeps emails whose first delivery failed so they can be retried.
type EmailOutbox interface {
	EnqueueEmail(ctx context.Context, msg OutboundEmail) error

	// PendingEmails returns unsent messages due at or before now, oldest first.
	PendingEmails(ctx context.Context, now time.Time, limit int) ([]OutboundEmail, error)

	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	MarkEmailFailed(ctx context.Context, id string, reason string, next time.Time) error
}
