/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (Store, TxStore, DirectoryWriter,
  AuditLog, NotificationStore, EmailOutbox) using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  generic.TxStore:           Catalog, corrective actions, signatures, directory
  generic.DirectoryWriter:   Employee and user upserts
  generic.AuditLog:          Append-only audit trail
  generic.NotificationStore: In-app threshold notifications
  generic.EmailOutbox:       Emails waiting for (re)delivery

NO HARD DELETES:
  There is no DELETE on corrective_actions outside Reset. Voiding is an
  UPDATE of status/voided_* columns. points_assigned and discipline_level
  are written once by INSERT and never appear in an UPDATE.

SCOPE FIRST:
  QueryRecords builds the actor's Scope into the leading WHERE clause. The
  optional filters are ANDed after it and can only narrow the result.

KEY TABLES:
  corrective_actions:            The disciplinary records
  corrective_action_signatures:  Supervisor/witness/employee signatures
  violation_categories:          Seeded catalog
  discipline_thresholds:         Seeded threshold table
  employees, users:              Directory
  audit_log, notifications,
  email_outbox:                  Written after the fact by the notify package

INDEXES:
  - idx_ca_employee_date: Rolling-window sum (hot path)
  - idx_ca_house / idx_ca_issued_by: Scope predicates

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The transactional view reads and
  writes through the *sql.Tx only and never takes the mutex, since WithTx
  already holds it.

DATES:
  violation_date and pip_date are stored as YYYY-MM-DD so that string
  comparison is date comparison. Timestamps are fixed-width RFC3339 in UTC.

USAGE:
  store, err := sqlite.New("./data/discipline.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  manager := generic.NewManager(store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/discipline-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate database", goerr.V("path", dbPath))
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Directory
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		house_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	-- Catalog (seeded, read-only at runtime)
	CREATE TABLE IF NOT EXISTS violation_categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		severity TEXT NOT NULL,
		default_points INTEGER NOT NULL CHECK (default_points >= 0),
		sort_order INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS discipline_thresholds (
		level TEXT PRIMARY KEY,
		minimum INTEGER NOT NULL,
		maximum INTEGER,
		action TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL
	);

	-- Corrective actions
	CREATE TABLE IF NOT EXISTS corrective_actions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		issued_by TEXT NOT NULL,
		house_id TEXT NOT NULL DEFAULT '',
		category_id TEXT NOT NULL REFERENCES violation_categories(id),
		violation_date TEXT NOT NULL,
		violation_time TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		mitigating_circumstances TEXT NOT NULL DEFAULT '',
		points_assigned INTEGER NOT NULL CHECK (points_assigned >= 0),
		points_adjusted INTEGER CHECK (points_adjusted IS NULL OR points_adjusted >= 0),
		adjustment_reason TEXT NOT NULL DEFAULT '',
		discipline_level TEXT NOT NULL,
		corrective_expectations TEXT NOT NULL DEFAULT '[]',
		consequences TEXT NOT NULL DEFAULT '',
		pip_required BOOLEAN NOT NULL DEFAULT FALSE,
		pip_date TEXT,
		status TEXT NOT NULL,
		acknowledged_at TEXT,
		voided_by TEXT NOT NULL DEFAULT '',
		voided_at TEXT,
		void_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Rolling-window sum (hot path)
	CREATE INDEX IF NOT EXISTS idx_ca_employee_date
		ON corrective_actions(employee_id, violation_date);
	CREATE INDEX IF NOT EXISTS idx_ca_house
		ON corrective_actions(house_id);
	CREATE INDEX IF NOT EXISTS idx_ca_issued_by
		ON corrective_actions(issued_by);
	CREATE INDEX IF NOT EXISTS idx_ca_status
		ON corrective_actions(status);

	CREATE TABLE IF NOT EXISTS corrective_action_signatures (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES corrective_actions(id),
		role TEXT NOT NULL,
		signer_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		signed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signatures_record
		ON corrective_action_signatures(record_id);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);

	-- In-app notifications
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		record_id TEXT NOT NULL,
		threshold INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL,
		read_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_id, created_at DESC);

	-- Email outbox
	CREATE TABLE IF NOT EXISTS email_outbox (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		recipient_name TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL,
		text_body TEXT NOT NULL,
		html_body TEXT NOT NULL DEFAULT '',
		record_id TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		next_attempt_at TEXT NOT NULL,
		sent_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON email_outbox(next_attempt_at) WHERE sent_at IS NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DIRECTORY (generic.Directory, generic.DirectoryWriter)
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e generic.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, email, house_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			house_id = excluded.house_id
	`
	_, err := s.db.ExecContext(ctx, query, e.ID, e.Name, e.Email, e.HouseID, formatTime(time.Now()))
	if err != nil {
		return goerr.Wrap(err, "failed to save employee", goerr.V("employee_id", e.ID))
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, u generic.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.Role, formatTime(time.Now()))
	if err != nil {
		return goerr.Wrap(err, "failed to save user", goerr.V("user_id", u.ID))
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

// ListEmployees returns all employees.
func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, house_id FROM employees ORDER BY name")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list employees")
	}
	defer rows.Close()

	var employees []generic.Employee
	for rows.Next() {
		var e generic.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.HouseID); err != nil {
			return nil, goerr.Wrap(err, "failed to scan employee")
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *Store) ListUsersByRole(ctx context.Context, roles ...generic.Role) ([]generic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsersByRole(ctx, s.db, roles)
}

func getEmployee(ctx context.Context, q queryer, id generic.EmployeeID) (*generic.Employee, error) {
	var e generic.Employee
	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, house_id FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Email, &e.HouseID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get employee", goerr.V("employee_id", id))
	}
	return &e, nil
}

func listUsersByRole(ctx context.Context, q queryer, roles []generic.Role) ([]generic.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = string(r)
	}
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, email, role FROM users WHERE role IN ("+placeholders(len(roles))+") ORDER BY id", args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list users by role")
	}
	defer rows.Close()

	var users []generic.User
	for rows.Next() {
		var u generic.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, goerr.Wrap(err, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// CATALOG (generic.CatalogStore)
// =============================================================================

func (s *Store) SaveCategories(ctx context.Context, categories []generic.ViolationCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error { return saveCategories(ctx, tx, categories) })
}

func (s *Store) SaveThresholds(ctx context.Context, thresholds []generic.DisciplineThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error { return saveThresholds(ctx, tx, thresholds) })
}

func (s *Store) GetCategory(ctx context.Context, id generic.CategoryID) (*generic.ViolationCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCategory(ctx, s.db, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]generic.ViolationCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCategories(ctx, s.db)
}

func (s *Store) ListThresholds(ctx context.Context) ([]generic.DisciplineThreshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listThresholds(ctx, s.db)
}

func saveCategories(ctx context.Context, q queryer, categories []generic.ViolationCategory) error {
	query := `
		INSERT INTO violation_categories (id, name, severity, default_points, sort_order, note)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			severity = excluded.severity,
			default_points = excluded.default_points,
			sort_order = excluded.sort_order,
			note = excluded.note
	`
	for _, c := range categories {
		if _, err := q.ExecContext(ctx, query, c.ID, c.Name, c.Severity, c.DefaultPoints, c.SortOrder, c.Note); err != nil {
			return goerr.Wrap(err, "failed to save violation category", goerr.V("category_id", c.ID))
		}
	}
	return nil
}

func saveThresholds(ctx context.Context, q queryer, thresholds []generic.DisciplineThreshold) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM discipline_thresholds"); err != nil {
		return goerr.Wrap(err, "failed to clear discipline thresholds")
	}
	query := `
		INSERT INTO discipline_thresholds (level, minimum, maximum, action, description, sort_order)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, t := range thresholds {
		if _, err := q.ExecContext(ctx, query, t.Level, t.Minimum, nullInt(t.Maximum), t.Action, t.Description, t.SortOrder); err != nil {
			return goerr.Wrap(err, "failed to save discipline threshold", goerr.V("level", t.Level))
		}
	}
	return nil
}

func getCategory(ctx context.Context, q queryer, id generic.CategoryID) (*generic.ViolationCategory, error) {
	var c generic.ViolationCategory
	err := q.QueryRowContext(ctx,
		"SELECT id, name, severity, default_points, sort_order, note FROM violation_categories WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Severity, &c.DefaultPoints, &c.SortOrder, &c.Note)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get violation category", goerr.V("category_id", id))
	}
	return &c, nil
}

func listCategories(ctx context.Context, q queryer) ([]generic.ViolationCategory, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, severity, default_points, sort_order, note FROM violation_categories ORDER BY sort_order, name")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list violation categories")
	}
	defer rows.Close()

	var categories []generic.ViolationCategory
	for rows.Next() {
		var c generic.ViolationCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Severity, &c.DefaultPoints, &c.SortOrder, &c.Note); err != nil {
			return nil, goerr.Wrap(err, "failed to scan violation category")
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func listThresholds(ctx context.Context, q queryer) ([]generic.DisciplineThreshold, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT level, minimum, maximum, action, description, sort_order FROM discipline_thresholds ORDER BY minimum")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list discipline thresholds")
	}
	defer rows.Close()

	var thresholds []generic.DisciplineThreshold
	for rows.Next() {
		var (
			t       generic.DisciplineThreshold
			maximum sql.NullInt64
		)
		if err := rows.Scan(&t.Level, &t.Minimum, &maximum, &t.Action, &t.Description, &t.SortOrder); err != nil {
			return nil, goerr.Wrap(err, "failed to scan discipline threshold")
		}
		if maximum.Valid {
			v := int(maximum.Int64)
			t.Maximum = &v
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, rows.Err()
}

// =============================================================================
// CORRECTIVE ACTIONS (generic.RecordStore)
// =============================================================================

const recordColumns = `
	ca.id, ca.employee_id, ca.issued_by, ca.house_id, ca.category_id,
	ca.violation_date, ca.violation_time, ca.description, ca.mitigating_circumstances,
	ca.points_assigned, ca.points_adjusted, ca.adjustment_reason, ca.discipline_level,
	ca.corrective_expectations, ca.consequences, ca.pip_required, ca.pip_date,
	ca.status, ca.acknowledged_at, ca.voided_by, ca.voided_at, ca.void_reason,
	ca.created_at, ca.updated_at`

// InsertRecord persists a record and its initial signatures atomically.
func (s *Store) InsertRecord(ctx context.Context, record generic.CorrectiveAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error { return insertRecord(ctx, tx, record) })
}

func (s *Store) UpdateRecord(ctx context.Context, record generic.CorrectiveAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRecord(ctx, s.db, record)
}

func (s *Store) AddSignature(ctx context.Context, sig generic.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSignature(ctx, s.db, sig)
}

func (s *Store) GetRecord(ctx context.Context, id generic.RecordID) (*generic.CorrectiveAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(ctx, s.db, id)
}

// LoadByEmployee returns the employee's records dated in [from, to].
func (s *Store) LoadByEmployee(ctx context.Context, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]generic.CorrectiveAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadByEmployee(ctx, s.db, employeeID, from, to)
}

// QueryRecords applies the scope first, then the optional filters.
func (s *Store) QueryRecords(ctx context.Context, filter generic.RecordFilter) ([]generic.CorrectiveAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, filter)
}

func insertRecord(ctx context.Context, q queryer, r generic.CorrectiveAction) error {
	expectations, err := json.Marshal(nonNil(r.CorrectiveExpectations))
	if err != nil {
		return goerr.Wrap(err, "failed to encode corrective expectations")
	}

	query := `
		INSERT INTO corrective_actions
		(id, employee_id, issued_by, house_id, category_id,
		 violation_date, violation_time, description, mitigating_circumstances,
		 points_assigned, points_adjusted, adjustment_reason, discipline_level,
		 corrective_expectations, consequences, pip_required, pip_date,
		 status, acknowledged_at, voided_by, voided_at, void_reason,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		r.ID, r.EmployeeID, r.IssuedBy, r.HouseID, r.CategoryID,
		r.ViolationDate.String(), r.ViolationTime, r.Description, r.MitigatingCircumstances,
		r.PointsAssigned, nullInt(r.PointsAdjusted), r.AdjustmentReason, r.DisciplineLevel,
		string(expectations), r.Consequences, r.PIPRequired, nullDate(r.PIPDate),
		r.Status, nullTime(r.AcknowledgedAt), r.VoidedBy, nullTime(r.VoidedAt), r.VoidReason,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert corrective action", goerr.V("record_id", r.ID))
	}

	for _, sig := range r.Signatures {
		if err := insertSignature(ctx, q, sig); err != nil {
			return err
		}
	}
	return nil
}

// updateRecord never touches points_assigned or discipline_level.
func updateRecord(ctx context.Context, q queryer, r generic.CorrectiveAction) error {
	expectations, err := json.Marshal(nonNil(r.CorrectiveExpectations))
	if err != nil {
		return goerr.Wrap(err, "failed to encode corrective expectations")
	}

	query := `
		UPDATE corrective_actions SET
			description = ?, mitigating_circumstances = ?,
			points_adjusted = ?, adjustment_reason = ?,
			corrective_expectations = ?, consequences = ?,
			pip_required = ?, pip_date = ?,
			status = ?, acknowledged_at = ?,
			voided_by = ?, voided_at = ?, void_reason = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		r.Description, r.MitigatingCircumstances,
		nullInt(r.PointsAdjusted), r.AdjustmentReason,
		string(expectations), r.Consequences,
		r.PIPRequired, nullDate(r.PIPDate),
		r.Status, nullTime(r.AcknowledgedAt),
		r.VoidedBy, nullTime(r.VoidedAt), r.VoidReason,
		formatTime(r.UpdatedAt),
		r.ID,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update corrective action", goerr.V("record_id", r.ID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(generic.ErrRecordNotFound, "cannot update", goerr.V("record_id", r.ID))
	}
	return nil
}

func insertSignature(ctx context.Context, q queryer, sig generic.Signature) error {
	query := `
		INSERT INTO corrective_action_signatures
		(id, record_id, role, signer_id, payload, ip_address, user_agent, signed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		sig.ID, sig.RecordID, sig.Role, sig.SignerID, sig.Payload,
		sig.IPAddress, sig.UserAgent, formatTime(sig.SignedAt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert signature", goerr.V("record_id", sig.RecordID), goerr.V("role", sig.Role))
	}
	return nil
}

func getRecord(ctx context.Context, q queryer, id generic.RecordID) (*generic.CorrectiveAction, error) {
	row := q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM corrective_actions ca WHERE ca.id = ?", id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get corrective action", goerr.V("record_id", id))
	}

	records := []generic.CorrectiveAction{r}
	if err := attachSignatures(ctx, q, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

func loadByEmployee(ctx context.Context, q queryer, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]generic.CorrectiveAction, error) {
	query := "SELECT " + recordColumns + `
		FROM corrective_actions ca
		WHERE ca.employee_id = ? AND ca.violation_date >= ? AND ca.violation_date <= ?
		ORDER BY ca.violation_date ASC, ca.created_at ASC`

	return queryRecordRows(ctx, q, query, employeeID, from.String(), to.String())
}

func queryRecords(ctx context.Context, q queryer, filter generic.RecordFilter) ([]generic.CorrectiveAction, error) {
	scope, args := scopeClause(filter.Scope)
	where := []string{scope}

	if filter.EmployeeID != "" {
		where = append(where, "ca.employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		where = append(where, "ca.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		where = append(where, "vc.severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.From != nil {
		where = append(where, "ca.violation_date >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		where = append(where, "ca.violation_date <= ?")
		args = append(args, filter.To.String())
	}

	query := "SELECT " + recordColumns + `
		FROM corrective_actions ca
		LEFT JOIN violation_categories vc ON vc.id = ca.category_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ca.violation_date DESC, ca.created_at DESC`

	records, err := queryRecordRows(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if err := attachSignatures(ctx, q, records); err != nil {
		return nil, err
	}
	return records, nil
}

// scopeClause renders the visibility predicate. An empty restricted scope
// matches nothing.
func scopeClause(scope generic.Scope) (string, []any) {
	if scope.Unrestricted {
		return "1 = 1", nil
	}

	var (
		parts []string
		args  []any
	)
	if len(scope.Houses) > 0 {
		parts = append(parts, "ca.house_id IN ("+placeholders(len(scope.Houses))+")")
		for _, h := range scope.Houses {
			args = append(args, string(h))
		}
	}
	if scope.IssuedBy != "" {
		parts = append(parts, "ca.issued_by = ?")
		args = append(args, string(scope.IssuedBy))
	}
	if len(parts) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func queryRecordRows(ctx context.Context, q queryer, query string, args ...any) ([]generic.CorrectiveAction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query corrective actions")
	}
	defer rows.Close()

	var records []generic.CorrectiveAction
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan corrective action")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(sc rowScanner) (generic.CorrectiveAction, error) {
	var (
		r                                 generic.CorrectiveAction
		violationDate, expectations       string
		createdAt, updatedAt              string
		pointsAdjusted                    sql.NullInt64
		pipDate, acknowledgedAt, voidedAt sql.NullString
	)
	err := sc.Scan(
		&r.ID, &r.EmployeeID, &r.IssuedBy, &r.HouseID, &r.CategoryID,
		&violationDate, &r.ViolationTime, &r.Description, &r.MitigatingCircumstances,
		&r.PointsAssigned, &pointsAdjusted, &r.AdjustmentReason, &r.DisciplineLevel,
		&expectations, &r.Consequences, &r.PIPRequired, &pipDate,
		&r.Status, &acknowledgedAt, &r.VoidedBy, &voidedAt, &r.VoidReason,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return r, err
	}

	r.ViolationDate, _ = generic.ParseDate(violationDate)
	if pointsAdjusted.Valid {
		v := int(pointsAdjusted.Int64)
		r.PointsAdjusted = &v
	}
	if expectations != "" {
		if err := json.Unmarshal([]byte(expectations), &r.CorrectiveExpectations); err != nil {
			return r, goerr.Wrap(err, "failed to decode corrective expectations", goerr.V("record_id", r.ID))
		}
	}
	r.PIPDate = parseNullDate(pipDate)
	r.AcknowledgedAt = parseNullTime(acknowledgedAt)
	r.VoidedAt = parseNullTime(voidedAt)
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return r, nil
}

// attachSignatures loads signatures for all records in one query.
func attachSignatures(ctx context.Context, q queryer, records []generic.CorrectiveAction) error {
	if len(records) == 0 {
		return nil
	}
	index := make(map[generic.RecordID]int, len(records))
	args := make([]any, len(records))
	for i, r := range records {
		index[r.ID] = i
		args[i] = string(r.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, record_id, role, signer_id, payload, ip_address, user_agent, signed_at
		FROM corrective_action_signatures
		WHERE record_id IN (`+placeholders(len(records))+`)
		ORDER BY signed_at ASC, rowid ASC`, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to query signatures")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sig      generic.Signature
			signedAt string
		)
		if err := rows.Scan(&sig.ID, &sig.RecordID, &sig.Role, &sig.SignerID, &sig.Payload,
			&sig.IPAddress, &sig.UserAgent, &signedAt); err != nil {
			return goerr.Wrap(err, "failed to scan signature")
		}
		sig.SignedAt, _ = time.Parse(timeLayout, signedAt)
		i := index[sig.RecordID]
		records[i].Signatures = append(records[i].Signatures, sig)
	}
	return rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

// inTx runs fn in a database transaction. The caller holds the write lock.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// txStore is the view handed to WithTx callbacks. Every call goes through tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveCategories(ctx context.Context, categories []generic.ViolationCategory) error {
	return saveCategories(ctx, ts.tx, categories)
}

func (ts *txStore) SaveThresholds(ctx context.Context, thresholds []generic.DisciplineThreshold) error {
	return saveThresholds(ctx, ts.tx, thresholds)
}

func (ts *txStore) GetCategory(ctx context.Context, id generic.CategoryID) (*generic.ViolationCategory, error) {
	return getCategory(ctx, ts.tx, id)
}

func (ts *txStore) ListCategories(ctx context.Context) ([]generic.ViolationCategory, error) {
	return listCategories(ctx, ts.tx)
}

func (ts *txStore) ListThresholds(ctx context.Context) ([]generic.DisciplineThreshold, error) {
	return listThresholds(ctx, ts.tx)
}

func (ts *txStore) InsertRecord(ctx context.Context, record generic.CorrectiveAction) error {
	return insertRecord(ctx, ts.tx, record)
}

func (ts *txStore) UpdateRecord(ctx context.Context, record generic.CorrectiveAction) error {
	return updateRecord(ctx, ts.tx, record)
}

func (ts *txStore) AddSignature(ctx context.Context, sig generic.Signature) error {
	return insertSignature(ctx, ts.tx, sig)
}

func (ts *txStore) GetRecord(ctx context.Context, id generic.RecordID) (*generic.CorrectiveAction, error) {
	return getRecord(ctx, ts.tx, id)
}

func (ts *txStore) LoadByEmployee(ctx context.Context, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]generic.CorrectiveAction, error) {
	return loadByEmployee(ctx, ts.tx, employeeID, from, to)
}

func (ts *txStore) QueryRecords(ctx context.Context, filter generic.RecordFilter) ([]generic.CorrectiveAction, error) {
	return queryRecords(ctx, ts.tx, filter)
}

func (ts *txStore) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListUsersByRole(ctx context.Context, roles ...generic.Role) ([]generic.User, error) {
	return listUsersByRole(ctx, ts.tx, roles)
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return goerr.Wrap(err, "failed to encode audit payload", goerr.V("audit_id", entry.ID))
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, formatTime(entry.Timestamp), entry.ActorID, entry.Action, entry.EntityID, string(payload),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to append audit entry", goerr.V("audit_id", entry.ID))
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1 = 1"}
	var args []any
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		where = append(where, "action IN ("+placeholders(len(filter.Actions))+")")
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, actor_id, action, entity_id, payload_json
		FROM audit_log WHERE `+strings.Join(where, " AND ")+`
		ORDER BY timestamp ASC, rowid ASC`, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query audit log")
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                  generic.AuditEntry
			timestamp, payload string
		)
		if err := rows.Scan(&e.ID, &timestamp, &e.ActorID, &e.Action, &e.EntityID, &payload); err != nil {
			return nil, goerr.Wrap(err, "failed to scan audit entry")
		}
		e.Timestamp, _ = time.Parse(timeLayout, timestamp)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, goerr.Wrap(err, "failed to decode audit payload", goerr.V("audit_id", e.ID))
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// NOTIFICATIONS (generic.NotificationStore interface)
// =============================================================================

func (s *Store) SaveNotification(ctx context.Context, n generic.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, employee_id, record_id, threshold, level, message, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.EmployeeID, n.RecordID, n.Threshold, n.Level, n.Message,
		formatTime(n.CreatedAt), nullTime(n.ReadAt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to save notification", goerr.V("recipient_id", n.RecipientID))
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, recipient generic.ActorID, unreadOnly bool) ([]generic.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, recipient_id, employee_id, record_id, threshold, level, message, created_at, read_at
		FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, recipient)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notifications", goerr.V("recipient_id", recipient))
	}
	defer rows.Close()

	var out []generic.Notification
	for rows.Next() {
		var (
			n         generic.Notification
			createdAt string
			readAt    sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.EmployeeID, &n.RecordID, &n.Threshold,
			&n.Level, &n.Message, &createdAt, &readAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan notification")
		}
		n.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		n.ReadAt = parseNullTime(readAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read_at = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return goerr.Wrap(err, "failed to mark notification read", goerr.V("notification_id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(generic.ErrNotFound, "notification", goerr.V("notification_id", id))
	}
	return nil
}

// =============================================================================
// EMAIL OUTBOX (generic.EmailOutbox interface)
// =============================================================================

func (s *Store) EnqueueEmail(ctx context.Context, msg generic.OutboundEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_outbox
		(id, recipient, recipient_name, subject, text_body, html_body, record_id,
		 attempts, last_error, created_at, next_attempt_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.To, msg.ToName, msg.Subject, msg.Text, msg.HTML, msg.RecordID,
		msg.Attempts, msg.LastError, formatTime(msg.CreatedAt), formatTime(msg.NextAttemptAt), nullTime(msg.SentAt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to enqueue email", goerr.V("email_id", msg.ID))
	}
	return nil
}

func (s *Store) PendingEmails(ctx context.Context, now time.Time, limit int) ([]generic.OutboundEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, recipient_name, subject, text_body, html_body, record_id,
		       attempts, last_error, created_at, next_attempt_at
		FROM email_outbox
		WHERE sent_at IS NULL AND next_attempt_at <= ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`, formatTime(now), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query email outbox")
	}
	defer rows.Close()

	var out []generic.OutboundEmail
	for rows.Next() {
		var (
			msg                  generic.OutboundEmail
			createdAt, nextAfter string
		)
		if err := rows.Scan(&msg.ID, &msg.To, &msg.ToName, &msg.Subject, &msg.Text, &msg.HTML, &msg.RecordID,
			&msg.Attempts, &msg.LastError, &createdAt, &nextAfter); err != nil {
			return nil, goerr.Wrap(err, "failed to scan outbound email")
		}
		msg.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		msg.NextAttemptAt, _ = time.Parse(timeLayout, nextAfter)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE email_outbox SET sent_at = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return goerr.Wrap(err, "failed to mark email sent", goerr.V("email_id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(generic.ErrNotFound, "outbound email", goerr.V("email_id", id))
	}
	return nil
}

func (s *Store) MarkEmailFailed(ctx context.Context, id string, reason string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE email_outbox SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		WHERE id = ?`, reason, formatTime(next), id)
	if err != nil {
		return goerr.Wrap(err, "failed to mark email failed", goerr.V("email_id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(generic.ErrNotFound, "outbound email", goerr.V("email_id", id))
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"corrective_action_signatures", "corrective_actions",
		"notifications", "email_outbox", "audit_log",
		"employees", "users", "violation_categories", "discipline_thresholds",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return goerr.Wrap(err, "failed to reset table", goerr.V("table", table))
		}
	}
	return nil
}

// Helper functions

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDate(d *generic.TimePoint) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseNullDate(s sql.NullString) *generic.TimePoint {
	if !s.Valid {
		return nil
	}
	d, err := generic.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
