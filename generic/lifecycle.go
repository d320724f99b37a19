/*
lifecycle.go - Corrective action lifecycle

PURPOSE:
  Owns creation, edit-gating, signatures and status transitions of
  disciplinary records, and orchestrates the point calculator, the level
  classifier and the threshold detector.

STATE MACHINE:
  ┌───────────────────┐  employee signs   ┌──────────────┐
  │ PENDING_SIGNATURE │ ────────────────▶ │ ACKNOWLEDGED │  (terminal)
  └───────────────────┘                   └──────────────┘
            │  elevated role voids        ┌──────────────┐
            └───────────────────────────▶ │    VOIDED    │  (terminal, 0 points)
                                          └──────────────┘

CREATE FLOW:
  1. Validate required input (nothing touches storage on failure)
  2. Resolve employee and category (not found is an error, never ignored)
  3. before = CurrentPoints(employee, today)
  4. after  = before + new points (when the violation is inside the window)
  5. Freeze LevelFor(after) onto the record
  6. Persist record + initial signatures in one transaction
  7. Return before/after, Crossed(before, after) and the Effects to deliver

CONCURRENCY:
  Create holds a per-employee lock for steps 3-6 so concurrent submissions
  in one process cannot report the same threshold twice. Separate processes
  sharing a database can still race on the before total.

SEE ALSO:
  - points.go, ladder.go: The pure parts
  - access.go: Scope applied to every read and write
  - effects.go: What the caller must deliver afterwards
*/
package generic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	Store  TxStore
	Points *PointCalculator

	// Now is the clock. Tests pin it.
	Now func() time.Time

	locks employeeLocks
}

func NewManager(store TxStore) *Manager {
	return &Manager{
		Store:  store,
		Points: NewPointCalculator(store),
		Now:    time.Now,
	}
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

// Outcome is the result of Create.
type Outcome struct {
	Record            CorrectiveAction
	Before            int
	After             int
	ThresholdsCrossed []int

	// ImmediateTermination is set for IMMEDIATE_TERMINATION categories, which
	// bypass the point system. The caller decides what to do with it.
	ImmediateTermination bool

	Effects Effects
}

// Change is the result of Edit, Void and Sign.
type Change struct {
	Record  CorrectiveAction
	Effects Effects
}

// =============================================================================
// CREATE
// =============================================================================

type CreateInput struct {
	EmployeeID              EmployeeID
	CategoryID              CategoryID
	HouseID                 HouseID // defaults to the employee's house
	ViolationDate           TimePoint
	ViolationTime           string
	Description             string
	MitigatingCircumstances string

	// PointsOverride replaces the category default as PointsAssigned.
	PointsOverride *int
	OverrideReason string

	CorrectiveExpectations []string
	Consequences           string
	PIPRequired            bool
	PIPDate                *TimePoint

	// Signatures captured at issue time: SUPERVISOR and WITNESS only.
	Signatures []Signature
}

func (in CreateInput) validate() error {
	if in.EmployeeID == "" {
		return missing("employee_id")
	}
	if in.CategoryID == "" {
		return missing("category_id")
	}
	if in.ViolationDate.IsZero() {
		return missing("violation_date")
	}
	if strings.TrimSpace(in.Description) == "" {
		return missing("description")
	}
	if in.ViolationTime != "" {
		if _, err := time.Parse("15:04", in.ViolationTime); err != nil {
			return &ValidationError{Field: "violation_time", Reason: "must be HH:MM"}
		}
	}
	if in.PointsOverride != nil && *in.PointsOverride < 0 {
		return &ValidationError{Field: "points_override", Reason: "must be >= 0"}
	}
	for _, sig := range in.Signatures {
		if err := sig.validate(); err != nil {
			return err
		}
		if sig.Role == SignerEmployee {
			return &ValidationError{Field: "signature.role", Reason: "the employee signs after the record is issued"}
		}
	}
	return nil
}

// Create issues a new corrective action.
func (m *Manager) Create(ctx context.Context, actor Actor, in CreateInput) (*Outcome, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	scope, err := ScopeFor(actor, "issue corrective actions")
	if err != nil {
		return nil, err
	}

	now := m.now()
	today := DateOf(now)
	if in.ViolationDate.After(today) {
		return nil, &ValidationError{Field: "violation_date", Reason: "cannot be in the future"}
	}

	employee, err := m.Store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get employee", goerr.V("employee_id", in.EmployeeID))
	}
	if employee == nil {
		return nil, goerr.Wrap(ErrEmployeeNotFound, "cannot issue corrective action", goerr.V("employee_id", in.EmployeeID))
	}

	category, err := m.Store.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get violation category", goerr.V("category_id", in.CategoryID))
	}
	if category == nil {
		return nil, goerr.Wrap(ErrCategoryNotFound, "cannot issue corrective action", goerr.V("category_id", in.CategoryID))
	}
	if category.BypassesPoints() && in.PointsOverride != nil {
		return nil, &ValidationError{Field: "points_override", Reason: "immediate-termination categories bypass the point system"}
	}

	newPoints := category.DefaultPoints
	if in.PointsOverride != nil {
		newPoints = *in.PointsOverride
	}

	consequences := strings.TrimSpace(in.Consequences)
	if consequences == "" {
		consequences = DefaultConsequences
	}
	house := in.HouseID
	if house == "" {
		house = employee.HouseID
	}

	record := CorrectiveAction{
		ID:                      RecordID(uuid.NewString()),
		EmployeeID:              in.EmployeeID,
		IssuedBy:                actor.ID,
		HouseID:                 house,
		CategoryID:              in.CategoryID,
		ViolationDate:           in.ViolationDate,
		ViolationTime:           in.ViolationTime,
		Description:             strings.TrimSpace(in.Description),
		MitigatingCircumstances: strings.TrimSpace(in.MitigatingCircumstances),
		PointsAssigned:          newPoints,
		CorrectiveExpectations:  compactStrings(in.CorrectiveExpectations),
		Consequences:            consequences,
		PIPRequired:             in.PIPRequired,
		PIPDate:                 in.PIPDate,
		Status:                  StatusPendingSignature,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if !scope.CanIssue(employee.HouseID, house) {
		return nil, &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "issue corrective actions for house " + string(employee.HouseID)}
	}
	for _, sig := range in.Signatures {
		sig.ID = SignatureID(uuid.NewString())
		sig.RecordID = record.ID
		if sig.SignedAt.IsZero() {
			sig.SignedAt = now
		}
		record.Signatures = append(record.Signatures, sig)
	}

	unlock := m.locks.lock(in.EmployeeID)
	defer unlock()

	before, err := m.Points.CurrentPoints(ctx, in.EmployeeID, today, "")
	if err != nil {
		return nil, err
	}
	contribution := 0
	if RollingWindow(today).Contains(in.ViolationDate) {
		contribution = newPoints
	}
	after := before + contribution
	record.DisciplineLevel = LevelFor(after)
	crossed := Crossed(before, after)

	var recipients []User
	if len(crossed) > 0 {
		recipients, err = m.Store.ListUsersByRole(ctx, RoleAdmin, RoleHR)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list notification recipients")
		}
	}

	err = m.Store.WithTx(ctx, func(s Store) error {
		if err := s.InsertRecord(ctx, record); err != nil {
			return goerr.Wrap(err, "failed to insert corrective action", goerr.V("record_id", record.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail := map[string]any{
		"employee_id":        string(record.EmployeeID),
		"category_id":        string(record.CategoryID),
		"violation_date":     record.ViolationDate.String(),
		"points":             newPoints,
		"before":             before,
		"after":              after,
		"discipline_level":   string(record.DisciplineLevel),
		"thresholds_crossed": crossed,
	}
	if in.PointsOverride != nil {
		detail["points_override"] = *in.PointsOverride
		detail["override_reason"] = in.OverrideReason
	}

	effects := Effects{
		Audit: []AuditRequest{{
			Action:   AuditActionCreated,
			EntityID: record.ID,
			ActorID:  actor.ID,
			At:       now,
			Detail:   detail,
		}},
		Notifications: notificationsFor(record, *employee, after, crossed, recipients),
	}
	if employee.Email != "" {
		effects.Emails = append(effects.Emails, EmailRequest{
			To:           employee.Email,
			EmployeeName: displayName(*employee),
			RecordID:     record.ID,
			CategoryName: category.Name,
			Severity:     category.Severity,
			Points:       newPoints,
			Level:        record.DisciplineLevel,
		})
	}

	return &Outcome{
		Record:               record.Clone(),
		Before:               before,
		After:                after,
		ThresholdsCrossed:    crossed,
		ImmediateTermination: category.BypassesPoints(),
		Effects:              effects,
	}, nil
}

// =============================================================================
// EDIT
// =============================================================================

// Patch lists the editable fields. Nil means unchanged. DisciplineLevel,
// PointsAssigned and Status are deliberately absent.
type Patch struct {
	Description             *string
	MitigatingCircumstances *string
	PointsAdjusted          *int
	AdjustmentReason        *string
	ClearAdjustment         bool
	CorrectiveExpectations  *[]string
	Consequences            *string
	PIPRequired             *bool
	PIPDate                 *TimePoint
	ClearPIPDate            bool
}

func (p Patch) IsEmpty() bool {
	return p.Description == nil && p.MitigatingCircumstances == nil &&
		p.PointsAdjusted == nil && p.AdjustmentReason == nil && !p.ClearAdjustment &&
		p.CorrectiveExpectations == nil && p.Consequences == nil &&
		p.PIPRequired == nil && p.PIPDate == nil && !p.ClearPIPDate
}

func (p Patch) validate() error {
	if p.IsEmpty() {
		return &ValidationError{Field: "patch", Reason: "no editable fields supplied"}
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return missing("description")
	}
	if p.PointsAdjusted != nil && *p.PointsAdjusted < 0 {
		return &ValidationError{Field: "points_adjusted", Reason: "must be >= 0"}
	}
	if p.PointsAdjusted != nil && (p.AdjustmentReason == nil || strings.TrimSpace(*p.AdjustmentReason) == "") {
		return missing("adjustment_reason")
	}
	if p.ClearAdjustment && p.PointsAdjusted != nil {
		return &ValidationError{Field: "points_adjusted", Reason: "cannot set and clear the adjustment together"}
	}
	return nil
}

// apply returns the names of the fields it changed.
func (p Patch) apply(r *CorrectiveAction) []string {
	var changed []string
	if p.Description != nil {
		r.Description = strings.TrimSpace(*p.Description)
		changed = append(changed, "description")
	}
	if p.MitigatingCircumstances != nil {
		r.MitigatingCircumstances = strings.TrimSpace(*p.MitigatingCircumstances)
		changed = append(changed, "mitigating_circumstances")
	}
	if p.ClearAdjustment {
		r.PointsAdjusted = nil
		r.AdjustmentReason = ""
		changed = append(changed, "points_adjusted", "adjustment_reason")
	}
	if p.PointsAdjusted != nil {
		v := *p.PointsAdjusted
		r.PointsAdjusted = &v
		changed = append(changed, "points_adjusted")
	}
	if p.AdjustmentReason != nil {
		r.AdjustmentReason = strings.TrimSpace(*p.AdjustmentReason)
		changed = append(changed, "adjustment_reason")
	}
	if p.CorrectiveExpectations != nil {
		r.CorrectiveExpectations = compactStrings(*p.CorrectiveExpectations)
		changed = append(changed, "corrective_expectations")
	}
	if p.Consequences != nil {
		r.Consequences = strings.TrimSpace(*p.Consequences)
		if r.Consequences == "" {
			r.Consequences = DefaultConsequences
		}
		changed = append(changed, "consequences")
	}
	if p.PIPRequired != nil {
		r.PIPRequired = *p.PIPRequired
		changed = append(changed, "pip_required")
	}
	if p.ClearPIPDate {
		r.PIPDate = nil
		changed = append(changed, "pip_date")
	}
	if p.PIPDate != nil {
		v := *p.PIPDate
		r.PIPDate = &v
		changed = append(changed, "pip_date")
	}
	return changed
}

// Edit patches a record. Allowed for elevated roles, or for the issuer while
// the record is PENDING_SIGNATURE. Finalized records are never edited.
// Changing PointsAdjusted affects future totals only; the frozen level stays.
func (m *Manager) Edit(ctx context.Context, actor Actor, id RecordID, patch Patch) (*Change, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	scope, err := ScopeFor(actor, "edit corrective actions")
	if err != nil {
		return nil, err
	}

	now := m.now()
	var (
		updated CorrectiveAction
		changed []string
	)
	err = m.Store.WithTx(ctx, func(s Store) error {
		rec, err := getVisible(ctx, s, scope, actor, id, "edit corrective action")
		if err != nil {
			return err
		}
		if rec.Status.IsFinal() {
			return &StateError{RecordID: id, Status: rec.Status, Op: "edit"}
		}
		if !actor.Role.IsElevated() && !(rec.IssuedBy == actor.ID && rec.Status == StatusPendingSignature) {
			return &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "edit a corrective action issued by someone else"}
		}

		next := rec.Clone()
		changed = patch.apply(&next)
		if next.PointsAdjusted != nil && next.AdjustmentReason == "" {
			return missing("adjustment_reason")
		}
		next.UpdatedAt = now

		if err := s.UpdateRecord(ctx, next); err != nil {
			return goerr.Wrap(err, "failed to update corrective action", goerr.V("record_id", id))
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail := map[string]any{
		"employee_id":      string(updated.EmployeeID),
		"fields":           changed,
		"effective_points": updated.EffectivePoints(),
	}
	return &Change{
		Record: updated.Clone(),
		Effects: Effects{Audit: []AuditRequest{{
			Action: AuditActionUpdated, EntityID: id, ActorID: actor.ID, At: now, Detail: detail,
		}}},
	}, nil
}

// =============================================================================
// VOID
// =============================================================================

// Void marks a pending record VOIDED. Elevated roles only. The record stays in
// history and stops counting toward every future total.
func (m *Manager) Void(ctx context.Context, actor Actor, id RecordID, reason string) (*Change, error) {
	if !actor.Role.IsElevated() {
		return nil, &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "void corrective actions"}
	}

	now := m.now()
	var voided CorrectiveAction
	err := m.Store.WithTx(ctx, func(s Store) error {
		rec, err := s.GetRecord(ctx, id)
		if err != nil {
			return goerr.Wrap(err, "failed to get corrective action", goerr.V("record_id", id))
		}
		if rec == nil {
			return goerr.Wrap(ErrRecordNotFound, "cannot void corrective action", goerr.V("record_id", id))
		}
		if rec.Status.IsFinal() {
			return &StateError{RecordID: id, Status: rec.Status, Op: "void"}
		}

		next := rec.Clone()
		next.Status = StatusVoided
		next.VoidedBy = actor.ID
		next.VoidedAt = &now
		next.VoidReason = strings.TrimSpace(reason)
		next.UpdatedAt = now
		if err := s.UpdateRecord(ctx, next); err != nil {
			return goerr.Wrap(err, "failed to void corrective action", goerr.V("record_id", id))
		}
		voided = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Change{
		Record: voided.Clone(),
		Effects: Effects{Audit: []AuditRequest{{
			Action:   AuditActionVoided,
			EntityID: id,
			ActorID:  actor.ID,
			At:       now,
			Detail: map[string]any{
				"employee_id":    string(voided.EmployeeID),
				"points_removed": voided.EffectivePoints(),
				"reason":         voided.VoidReason,
			},
		}}},
	}, nil
}

// =============================================================================
// SIGN
// =============================================================================

// Sign attaches a signature. SUPERVISOR and WITNESS signatures leave the
// status alone; the EMPLOYEE signature acknowledges the record, which makes
// it final. Employees may sign their own records; elevated roles may record
// an employee signature captured on paper.
func (m *Manager) Sign(ctx context.Context, actor Actor, id RecordID, sig Signature) (*Change, error) {
	if err := sig.validate(); err != nil {
		return nil, err
	}

	now := m.now()
	var signed CorrectiveAction
	err := m.Store.WithTx(ctx, func(s Store) error {
		rec, err := s.GetRecord(ctx, id)
		if err != nil {
			return goerr.Wrap(err, "failed to get corrective action", goerr.V("record_id", id))
		}
		if rec == nil {
			return goerr.Wrap(ErrRecordNotFound, "cannot sign corrective action", goerr.V("record_id", id))
		}

		self := string(actor.ID) == string(rec.EmployeeID)
		if sig.Role == SignerEmployee {
			if !self && !actor.Role.IsElevated() {
				return &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "sign on behalf of the employee"}
			}
			sig.SignerID = string(rec.EmployeeID)
		} else {
			scope, err := ScopeFor(actor, "countersign corrective actions")
			if err != nil {
				return err
			}
			if !scope.Allows(*rec) {
				return &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "countersign this corrective action"}
			}
		}
		if rec.Status.IsFinal() {
			return &StateError{RecordID: id, Status: rec.Status, Op: "sign"}
		}

		sig.ID = SignatureID(uuid.NewString())
		sig.RecordID = id
		if sig.SignedAt.IsZero() {
			sig.SignedAt = now
		}
		if err := s.AddSignature(ctx, sig); err != nil {
			return goerr.Wrap(err, "failed to add signature", goerr.V("record_id", id))
		}

		next := rec.Clone()
		next.Signatures = append(next.Signatures, sig)
		next.UpdatedAt = now
		if sig.Role == SignerEmployee {
			next.Status = StatusAcknowledged
			next.AcknowledgedAt = &now
		}
		if err := s.UpdateRecord(ctx, next); err != nil {
			return goerr.Wrap(err, "failed to update corrective action", goerr.V("record_id", id))
		}
		signed = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := AuditActionSigned
	if signed.Status == StatusAcknowledged {
		action = AuditActionAcknowledged
	}
	return &Change{
		Record: signed.Clone(),
		Effects: Effects{Audit: []AuditRequest{{
			Action:   action,
			EntityID: id,
			ActorID:  actor.ID,
			At:       now,
			Detail: map[string]any{
				"employee_id": string(signed.EmployeeID),
				"signer_role": string(sig.Role),
				"signer_id":   sig.SignerID,
				"ip_address":  sig.IPAddress,
			},
		}}},
	}, nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// Get returns one record with its signatures. The employee may always read
// their own records; everyone else goes through the scope.
func (m *Manager) Get(ctx context.Context, actor Actor, id RecordID) (*CorrectiveAction, error) {
	rec, err := m.Store.GetRecord(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get corrective action", goerr.V("record_id", id))
	}
	if rec == nil {
		return nil, goerr.Wrap(ErrRecordNotFound, "cannot read corrective action", goerr.V("record_id", id))
	}
	if string(actor.ID) == string(rec.EmployeeID) {
		return rec, nil
	}
	scope, err := ScopeFor(actor, "view corrective actions")
	if err != nil {
		return nil, err
	}
	if !scope.Allows(*rec) {
		return nil, &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "view this corrective action"}
	}
	return rec, nil
}

// ListFilter narrows a listing. The actor's scope is always applied first.
type ListFilter struct {
	EmployeeID EmployeeID
	Status     ActionStatus
	Severity   SeverityTier
	From       *TimePoint
	To         *TimePoint
}

// ListResult carries the current rolling total of every listed employee,
// and the window records feeding it, so the caller can show each record next
// to the standing it feeds.
type ListResult struct {
	Records       []CorrectiveAction
	CurrentPoints map[EmployeeID]int

	// History holds the window records behind CurrentPoints that the actor
	// may see, newest first. The total itself always counts every record.
	History map[EmployeeID][]CorrectiveAction
	AsOf    TimePoint
}

func (m *Manager) List(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error) {
	scope, err := ScopeFor(actor, "list corrective actions")
	if err != nil {
		return nil, err
	}

	records, err := m.Store.QueryRecords(ctx, RecordFilter{
		Scope:      scope,
		EmployeeID: filter.EmployeeID,
		Status:     filter.Status,
		Severity:   filter.Severity,
		From:       filter.From,
		To:         filter.To,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query corrective actions")
	}

	asOf := DateOf(m.now())
	points := make(map[EmployeeID]int)
	history := make(map[EmployeeID][]CorrectiveAction)
	for _, r := range records {
		if _, done := points[r.EmployeeID]; done {
			continue
		}
		total, err := m.Points.Window(ctx, r.EmployeeID, asOf, "")
		if err != nil {
			return nil, err
		}
		points[r.EmployeeID] = total.Points

		visible := make([]CorrectiveAction, 0, len(total.Records))
		for _, w := range total.Records {
			if scope.Allows(w) {
				visible = append(visible, w)
			}
		}
		SortNewestFirst(visible)
		history[r.EmployeeID] = visible
	}

	return &ListResult{Records: records, CurrentPoints: points, History: history, AsOf: asOf}, nil
}

// History returns the rolling window feeding the employee's total at asOf.
func (m *Manager) History(ctx context.Context, actor Actor, employeeID EmployeeID, asOf TimePoint) (*WindowTotal, error) {
	if err := m.authorizeEmployee(ctx, actor, employeeID, "view discipline history"); err != nil {
		return nil, err
	}
	total, err := m.Points.Window(ctx, employeeID, asOf, "")
	if err != nil {
		return nil, err
	}
	return &total, nil
}

// authorizeEmployee allows the employee themself, unrestricted scopes, and
// scopes holding the employee's house.
func (m *Manager) authorizeEmployee(ctx context.Context, actor Actor, employeeID EmployeeID, op string) error {
	employee, err := m.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return goerr.Wrap(err, "failed to get employee", goerr.V("employee_id", employeeID))
	}
	if employee == nil {
		return goerr.Wrap(ErrEmployeeNotFound, "cannot "+op, goerr.V("employee_id", employeeID))
	}
	if string(actor.ID) == string(employeeID) {
		return nil
	}
	scope, err := ScopeFor(actor, op)
	if err != nil {
		return err
	}
	if scope.Unrestricted || (employee.HouseID != "" && scope.HasHouse(employee.HouseID)) {
		return nil
	}
	return &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: op}
}

func getVisible(ctx context.Context, s Store, scope Scope, actor Actor, id RecordID, op string) (*CorrectiveAction, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get corrective action", goerr.V("record_id", id))
	}
	if rec == nil {
		return nil, goerr.Wrap(ErrRecordNotFound, "cannot "+op, goerr.V("record_id", id))
	}
	if !scope.Allows(*rec) {
		return nil, &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: op}
	}
	return rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SortNewestFirst orders records by violation date descending, then creation.
func SortNewestFirst(records []CorrectiveAction) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ViolationDate.Equal(records[j].ViolationDate) {
			return records[i].ViolationDate.After(records[j].ViolationDate)
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// employeeLocks is a keyed mutex, one entry per employee with a Create in flight.
type employeeLocks struct {
	mu    sync.Mutex
	locks map[EmployeeID]*employeeLock
}

type employeeLock struct {
	mu   sync.Mutex
	refs int
}

func (l *employeeLocks) lock(id EmployeeID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[EmployeeID]*employeeLock)
	}
	el := l.locks[id]
	if el == nil {
		el = &employeeLock{}
		l.locks[id] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()
	return func() {
		el.mu.Unlock()
		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
