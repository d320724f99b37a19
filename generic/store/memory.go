// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/warp/discipline-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================
//
// All data lives in a memoryState. Memory guards it with a RWMutex; the
// transactional view works on the state directly because WithTx already
// holds the write lock.

type Memory struct {
	mu sync.RWMutex
	memoryState
}

type memoryState struct {
	employees     map[generic.EmployeeID]generic.Employee
	users         map[generic.ActorID]generic.User
	categories    map[generic.CategoryID]generic.ViolationCategory
	thresholds    []generic.DisciplineThreshold
	records       map[generic.RecordID]generic.CorrectiveAction
	audit         []generic.AuditEntry
	notifications []generic.Notification
	outbox        []generic.OutboundEmail
}

func newMemoryState() memoryState {
	return memoryState{
		employees:  make(map[generic.EmployeeID]generic.Employee),
		users:      make(map[generic.ActorID]generic.User),
		categories: make(map[generic.CategoryID]generic.ViolationCategory),
		records:    make(map[generic.RecordID]generic.CorrectiveAction),
	}
}

func NewMemory() *Memory {
	return &Memory{memoryState: newMemoryState()}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e generic.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) SaveUser(_ context.Context, u generic.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployee(id), nil
}

func (m *Memory) ListUsersByRole(_ context.Context, roles ...generic.Role) ([]generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersByRole(roles), nil
}

func (s *memoryState) getEmployee(id generic.EmployeeID) *generic.Employee {
	e, ok := s.employees[id]
	if !ok {
		return nil
	}
	return &e
}

func (s *memoryState) listUsersByRole(roles []generic.Role) []generic.User {
	var out []generic.User
	for _, u := range s.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveCategories(_ context.Context, categories []generic.ViolationCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCategories(categories)
	return nil
}

func (m *Memory) SaveThresholds(_ context.Context, thresholds []generic.DisciplineThreshold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveThresholds(thresholds)
	return nil
}

func (m *Memory) GetCategory(_ context.Context, id generic.CategoryID) (*generic.ViolationCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCategory(id), nil
}

func (m *Memory) ListCategories(_ context.Context) ([]generic.ViolationCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCategories(), nil
}

func (m *Memory) ListThresholds(_ context.Context) ([]generic.DisciplineThreshold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]generic.DisciplineThreshold(nil), m.thresholds...), nil
}

func (s *memoryState) saveCategories(categories []generic.ViolationCategory) {
	for _, c := range categories {
		s.categories[c.ID] = c
	}
}

func (s *memoryState) saveThresholds(thresholds []generic.DisciplineThreshold) {
	s.thresholds = append([]generic.DisciplineThreshold(nil), thresholds...)
	generic.SortThresholds(s.thresholds)
}

func (s *memoryState) getCategory(id generic.CategoryID) *generic.ViolationCategory {
	c, ok := s.categories[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *memoryState) listCategories() []generic.ViolationCategory {
	out := make([]generic.ViolationCategory, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	generic.SortCategories(out)
	return out
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) InsertRecord(_ context.Context, record generic.CorrectiveAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRecord(record)
}

func (m *Memory) UpdateRecord(_ context.Context, record generic.CorrectiveAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRecord(record)
}

func (m *Memory) AddSignature(_ context.Context, sig generic.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addSignature(sig)
}

func (m *Memory) GetRecord(_ context.Context, id generic.RecordID) (*generic.CorrectiveAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRecord(id), nil
}

func (m *Memory) LoadByEmployee(_ context.Context, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]generic.CorrectiveAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadByEmployee(employeeID, from, to), nil
}

func (m *Memory) QueryRecords(_ context.Context, filter generic.RecordFilter) ([]generic.CorrectiveAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryRecords(filter), nil
}

func (s *memoryState) insertRecord(record generic.CorrectiveAction) error {
	if _, exists := s.records[record.ID]; exists {
		return goerr.New("corrective action already exists", goerr.V("record_id", record.ID))
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *memoryState) updateRecord(record generic.CorrectiveAction) error {
	existing, ok := s.records[record.ID]
	if !ok {
		return goerr.Wrap(generic.ErrRecordNotFound, "cannot update", goerr.V("record_id", record.ID))
	}
	next := record.Clone()
	next.Signatures = existing.Signatures
	s.records[record.ID] = next
	return nil
}

func (s *memoryState) addSignature(sig generic.Signature) error {
	rec, ok := s.records[sig.RecordID]
	if !ok {
		return goerr.Wrap(generic.ErrRecordNotFound, "cannot add signature", goerr.V("record_id", sig.RecordID))
	}
	rec.Signatures = append(append([]generic.Signature(nil), rec.Signatures...), sig)
	s.records[sig.RecordID] = rec
	return nil
}

func (s *memoryState) getRecord(id generic.RecordID) *generic.CorrectiveAction {
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	c := rec.Clone()
	return &c
}

func (s *memoryState) loadByEmployee(employeeID generic.EmployeeID, from, to generic.TimePoint) []generic.CorrectiveAction {
	var out []generic.CorrectiveAction
	for _, r := range s.records {
		if r.EmployeeID != employeeID {
			continue
		}
		if from.BeforeOrEqual(r.ViolationDate) && r.ViolationDate.BeforeOrEqual(to) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ViolationDate.Equal(out[j].ViolationDate) {
			return out[i].ViolationDate.Before(out[j].ViolationDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memoryState) queryRecords(filter generic.RecordFilter) []generic.CorrectiveAction {
	var out []generic.CorrectiveAction
	for _, r := range s.records {
		var severity generic.SeverityTier
		if c, ok := s.categories[r.CategoryID]; ok {
			severity = c.Severity
		}
		if filter.Matches(r, severity) {
			out = append(out, r.Clone())
		}
	}
	generic.SortNewestFirst(out)
	return out
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.AuditEntry
	for _, e := range m.audit {
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func containsAction(actions []generic.AuditAction, a generic.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// =============================================================================
// NOTIFICATIONS & OUTBOX
// =============================================================================

func (m *Memory) SaveNotification(_ context.Context, n generic.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, recipient generic.ActorID, unreadOnly bool) ([]generic.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.RecipientID != recipient || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].ReadAt = &at
			return nil
		}
	}
	return goerr.Wrap(generic.ErrNotFound, "notification", goerr.V("notification_id", id))
}

func (m *Memory) EnqueueEmail(_ context.Context, msg generic.OutboundEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, msg)
	return nil
}

func (m *Memory) PendingEmails(_ context.Context, now time.Time, limit int) ([]generic.OutboundEmail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.OutboundEmail
	for _, msg := range m.outbox {
		if msg.SentAt != nil || msg.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkEmailSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.findEmail(id)
	if msg == nil {
		return goerr.Wrap(generic.ErrNotFound, "outbound email", goerr.V("email_id", id))
	}
	msg.SentAt = &at
	return nil
}

func (m *Memory) MarkEmailFailed(_ context.Context, id string, reason string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.findEmail(id)
	if msg == nil {
		return goerr.Wrap(generic.ErrNotFound, "outbound email", goerr.V("email_id", id))
	}
	msg.Attempts++
	msg.LastError = reason
	msg.NextAttemptAt = next
	return nil
}

func (s *memoryState) findEmail(id string) *generic.OutboundEmail {
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			return &s.outbox[i]
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{state: &tm.memoryState}); err != nil {
		tm.memoryState = snapshot
		return err
	}
	return nil
}

// snapshot copies everything a transaction can write.
func (tm *TxMemory) snapshot() memoryState {
	s := tm.memoryState
	s.categories = make(map[generic.CategoryID]generic.ViolationCategory, len(tm.categories))
	for k, v := range tm.categories {
		s.categories[k] = v
	}
	s.records = make(map[generic.RecordID]generic.CorrectiveAction, len(tm.records))
	for k, v := range tm.records {
		s.records[k] = v.Clone()
	}
	s.thresholds = append([]generic.DisciplineThreshold(nil), tm.thresholds...)
	return s
}

// txMemoryView implements generic.Store against the locked state.
type txMemoryView struct {
	state *memoryState
}

func (tv *txMemoryView) SaveCategories(_ context.Context, categories []generic.ViolationCategory) error {
	tv.state.saveCategories(categories)
	return nil
}

func (tv *txMemoryView) SaveThresholds(_ context.Context, thresholds []generic.DisciplineThreshold) error {
	tv.state.saveThresholds(thresholds)
	return nil
}

func (tv *txMemoryView) GetCategory(_ context.Context, id generic.CategoryID) (*generic.ViolationCategory, error) {
	return tv.state.getCategory(id), nil
}

func (tv *txMemoryView) ListCategories(_ context.Context) ([]generic.ViolationCategory, error) {
	return tv.state.listCategories(), nil
}

func (tv *txMemoryView) ListThresholds(_ context.Context) ([]generic.DisciplineThreshold, error) {
	return append([]generic.DisciplineThreshold(nil), tv.state.thresholds...), nil
}

func (tv *txMemoryView) InsertRecord(_ context.Context, record generic.CorrectiveAction) error {
	return tv.state.insertRecord(record)
}

func (tv *txMemoryView) UpdateRecord(_ context.Context, record generic.CorrectiveAction) error {
	return tv.state.updateRecord(record)
}

func (tv *txMemoryView) AddSignature(_ context.Context, sig generic.Signature) error {
	return tv.state.addSignature(sig)
}

func (tv *txMemoryView) GetRecord(_ context.Context, id generic.RecordID) (*generic.CorrectiveAction, error) {
	return tv.state.getRecord(id), nil
}

func (tv *txMemoryView) LoadByEmployee(_ context.Context, employeeID generic.EmployeeID, from, to generic.TimePoint) ([]generic.CorrectiveAction, error) {
	return tv.state.loadByEmployee(employeeID, from, to), nil
}

func (tv *txMemoryView) QueryRecords(_ context.Context, filter generic.RecordFilter) ([]generic.CorrectiveAction, error) {
	return tv.state.queryRecords(filter), nil
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	return tv.state.getEmployee(id), nil
}

func (tv *txMemoryView) ListUsersByRole(_ context.Context, roles ...generic.Role) ([]generic.User, error) {
	return tv.state.listUsersByRole(roles), nil
}
