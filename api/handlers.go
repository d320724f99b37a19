/*
handlers.go - HTTP API handlers for the discipline point engine

PURPOSE:
  Exposes the lifecycle manager via REST API. Handles HTTP request/response,
  JSON serialization, actor resolution, and delegates to generic.Manager.
  Effects returned by the manager are handed to the notify dispatcher after
  the write commits.

ENDPOINTS:
  Catalog:
    GET    /api/catalog/categories             Violation categories
    GET    /api/catalog/thresholds             Threshold table

  Corrective actions:
    GET    /api/corrective-actions             List (employee_id, status, severity, from, to)
    POST   /api/corrective-actions             Issue
    GET    /api/corrective-actions/{id}        Get with signatures
    PATCH  /api/corrective-actions/{id}        Edit
    POST   /api/corrective-actions/{id}/void   Void (ADMIN, HR)
    POST   /api/corrective-actions/{id}/signatures  Sign

  Employees:
    GET    /api/employees                      Directory (scoped)
    POST   /api/employees                      Directory entry (ADMIN, HR)
    GET    /api/employees/{id}/points          Rolling window history
    GET    /api/employees/{id}/standing        Live standing against the table

  Notifications & audit:
    GET    /api/notifications                  Current user's notifications
    POST   /api/notifications/{id}/read        Mark read
    GET    /api/audit                          Audit trail (ADMIN, HR)

ACTOR RESOLUTION:
  Identity is an external collaborator. The gateway in front of this
  service sets X-Actor-ID, X-Actor-Role and X-Actor-Houses (comma
  separated). Requests without an actor get 401.

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"}:
  - 400: Validation errors, invalid input
  - 401: No actor
  - 403: Role or scope forbids the operation
  - 404: Employee, category or record not found
  - 409: Record is finalized
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/logging"
	"github.com/warp/discipline-engine/notify"
	"github.com/warp/discipline-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Manager    *generic.Manager
	Dispatcher *notify.Dispatcher

	now func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. dispatcher may be nil, in which case effects
// are dropped (useful for read-only tooling).
func NewHandler(store *sqlite.Store, dispatcher *notify.Dispatcher) *Handler {
	return &Handler{
		Store:      store,
		Manager:    generic.NewManager(store),
		Dispatcher: dispatcher,
		now:        time.Now,
	}
}

// SetClock pins the clock used by the manager, the dispatcher and the
// handlers' "today" defaults.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
	h.Manager.Now = now
	if h.Dispatcher != nil {
		h.Dispatcher.Now = now
	}
}

func (h *Handler) today() generic.TimePoint {
	return generic.DateOf(h.now().UTC())
}

func (h *Handler) deliver(ctx context.Context, effects generic.Effects) []string {
	if h.Dispatcher == nil || effects.IsEmpty() {
		return nil
	}
	return h.Dispatcher.Deliver(ctx, effects).WarningMessages()
}

// =============================================================================
// ACTOR RESOLUTION
// =============================================================================

const (
	HeaderActorID     = "X-Actor-ID"
	HeaderActorRole   = "X-Actor-Role"
	HeaderActorHouses = "X-Actor-Houses"
)

type actorKey struct{}

// ActorFromRequest reads the actor headers.
func ActorFromRequest(r *http.Request) (generic.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if id == "" {
		return generic.Actor{}, &generic.ValidationError{Field: HeaderActorID, Reason: "is required"}
	}
	role, err := generic.ParseRole(r.Header.Get(HeaderActorRole))
	if err != nil {
		return generic.Actor{}, err
	}
	actor := generic.Actor{ID: generic.ActorID(id), Role: role}
	for _, h := range strings.Split(r.Header.Get(HeaderActorHouses), ",") {
		if h = strings.TrimSpace(h); h != "" {
			actor.Houses = append(actor.Houses, generic.HouseID(h))
		}
	}
	return actor, nil
}

// RequireActor rejects requests without a resolvable actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := ActorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Missing or invalid actor", err)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) generic.Actor {
	actor, _ := ctx.Value(actorKey{}).(generic.Actor)
	return actor
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Manager.ListCategories(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, toCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.Manager.ListThresholds(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]ThresholdDTO, 0, len(thresholds))
	for _, t := range thresholds {
		dtos = append(dtos, toThresholdDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CORRECTIVE ACTION HANDLERS
// =============================================================================

// ListCorrectiveActions returns the records visible to the actor.
// GET /api/corrective-actions?employee_id=&status=&severity=&from=&to=
func (h *Handler) ListCorrectiveActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.ListFilter{EmployeeID: generic.EmployeeID(q.Get("employee_id"))}

	if s := q.Get("status"); s != "" {
		status, err := generic.ParseActionStatus(strings.ToUpper(s))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		filter.Status = status
	}
	if s := q.Get("severity"); s != "" {
		severity, err := generic.ParseSeverityTier(strings.ToUpper(s))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid severity", err)
			return
		}
		filter.Severity = severity
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from"), "from"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if filter.To, err = optionalDate(q.Get("to"), "to"); err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.Manager.List(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	points := make(map[string]int, len(result.CurrentPoints))
	for emp, p := range result.CurrentPoints {
		points[string(emp)] = p
	}
	history := make(map[string][]CorrectiveActionDTO, len(result.History))
	for emp, records := range result.History {
		history[string(emp)] = toCorrectiveActionDTOs(records)
	}
	writeJSON(w, http.StatusOK, ListResponse{
		AsOf:          result.AsOf.String(),
		Records:       toCorrectiveActionDTOs(result.Records),
		CurrentPoints: points,
		History:       history,
	})
}

// CreateCorrectiveAction issues a new record.
// POST /api/corrective-actions
func (h *Handler) CreateCorrectiveAction(w http.ResponseWriter, r *http.Request) {
	var req CreateCorrectiveActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := toCreateInput(req, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	outcome, err := h.Manager.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if outcome.ImmediateTermination {
		logging.From(r.Context()).Warn("immediate termination category issued",
			"record_id", outcome.Record.ID, "employee_id", outcome.Record.EmployeeID)
	}

	writeJSON(w, http.StatusCreated, CreateResponse{
		Record:               toCorrectiveActionDTO(outcome.Record),
		PointsBefore:         outcome.Before,
		PointsAfter:          outcome.After,
		ThresholdsCrossed:    outcome.ThresholdsCrossed,
		ImmediateTermination: outcome.ImmediateTermination,
		Warnings:             h.deliver(r.Context(), outcome.Effects),
	})
}

func (h *Handler) GetCorrectiveAction(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))

	rec, err := h.Manager.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectiveActionDTO(*rec))
}

// UpdateCorrectiveAction edits a pending record.
// PATCH /api/corrective-actions/{id}
func (h *Handler) UpdateCorrectiveAction(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))

	var req UpdateCorrectiveActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	patch, err := toPatch(req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	change, err := h.Manager.Edit(r.Context(), actorFrom(r.Context()), id, patch)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeChange(w, r, change)
}

// VoidCorrectiveAction voids a pending record.
// POST /api/corrective-actions/{id}/void
func (h *Handler) VoidCorrectiveAction(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))

	var req VoidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	change, err := h.Manager.Void(r.Context(), actorFrom(r.Context()), id, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeChange(w, r, change)
}

// SignCorrectiveAction attaches a signature.
// POST /api/corrective-actions/{id}/signatures
func (h *Handler) SignCorrectiveAction(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))
	actor := actorFrom(r.Context())

	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	signerID := req.SignerID
	if signerID == "" {
		signerID = string(actor.ID)
	}
	sig := generic.Signature{
		Role:      generic.SignerRole(strings.ToUpper(req.Role)),
		SignerID:  signerID,
		Payload:   req.Payload,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}

	change, err := h.Manager.Sign(r.Context(), actor, id, sig)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeChange(w, r, change)
}

func (h *Handler) writeChange(w http.ResponseWriter, r *http.Request, change *generic.Change) {
	writeJSON(w, http.StatusOK, ChangeResponse{
		Record:   toCorrectiveActionDTO(change.Record),
		Warnings: h.deliver(r.Context(), change.Effects),
	})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns the employees the actor can see.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	scope, scopeErr := generic.ScopeFor(actor, "list employees")
	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		visible := string(e.ID) == string(actor.ID) ||
			(scopeErr == nil && (scope.Unrestricted || scope.HasHouse(e.HouseID)))
		if !visible {
			continue
		}
		dtos = append(dtos, EmployeeDTO{ID: string(e.ID), Name: e.Name, Email: e.Email, HouseID: string(e.HouseID)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee adds or replaces a directory entry.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.Role.IsElevated() {
		writeDomainError(w, r, &generic.PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "edit the employee directory"})
		return
	}

	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	emp := generic.Employee{
		ID:      generic.EmployeeID(req.ID),
		Name:    req.Name,
		Email:   req.Email,
		HouseID: generic.HouseID(req.HouseID),
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, EmployeeDTO{ID: req.ID, Name: req.Name, Email: req.Email, HouseID: req.HouseID})
}

// GetPoints returns the rolling window behind the employee's total.
// GET /api/employees/{id}/points?as_of=YYYY-MM-DD
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	emp := generic.EmployeeID(chi.URLParam(r, "id"))
	asOf, err := h.asOf(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	total, err := h.Manager.History(r.Context(), actorFrom(r.Context()), emp, asOf)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	generic.SortNewestFirst(total.Records)
	writeJSON(w, http.StatusOK, PointsDTO{
		EmployeeID:    string(emp),
		AsOf:          asOf.String(),
		WindowStart:   total.Window.Start.String(),
		WindowEnd:     total.Window.End.String(),
		CurrentPoints: total.Points,
		Level:         string(generic.LevelFor(total.Points)),
		Records:       toCorrectiveActionDTOs(total.Records),
	})
}

// GetStanding returns where the employee sits on the threshold table.
// GET /api/employees/{id}/standing?as_of=YYYY-MM-DD
func (h *Handler) GetStanding(w http.ResponseWriter, r *http.Request) {
	emp := generic.EmployeeID(chi.URLParam(r, "id"))
	asOf, err := h.asOf(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	standing, err := h.Manager.Standing(r.Context(), actorFrom(r.Context()), emp, asOf)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStandingDTO(*standing))
}

func (h *Handler) asOf(r *http.Request) (generic.TimePoint, error) {
	d, err := optionalDate(r.URL.Query().Get("as_of"), "as_of")
	if err != nil {
		return generic.TimePoint{}, err
	}
	if d == nil {
		return h.today(), nil
	}
	return *d, nil
}

// =============================================================================
// NOTIFICATION & AUDIT HANDLERS
// =============================================================================

// ListNotifications returns the actor's notifications, newest first. Elevated
// roles may read another user's with ?user_id=.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	recipient := actor.ID
	if u := r.URL.Query().Get("user_id"); u != "" && generic.ActorID(u) != actor.ID {
		if !actor.Role.IsElevated() {
			writeDomainError(w, r, &generic.PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "read another user's notifications"})
			return
		}
		recipient = generic.ActorID(u)
	}
	unread := r.URL.Query().Get("unread") == "true"

	notes, err := h.Store.ListNotifications(r.Context(), recipient, unread)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]NotificationDTO, 0, len(notes))
	for _, n := range notes {
		dtos = append(dtos, toNotificationDTO(n))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead marks one of the actor's notifications read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	id := chi.URLParam(r, "id")

	notes, err := h.Store.ListNotifications(r.Context(), actor.ID, false)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	owned := false
	for _, n := range notes {
		if n.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, http.StatusNotFound, "Notification not found", nil)
		return
	}

	if err := h.Store.MarkNotificationRead(r.Context(), id, h.now().UTC()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAudit returns the audit trail for one record or actor.
// GET /api/audit?entity_id=&actor_id=
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.Role.IsElevated() {
		writeDomainError(w, r, &generic.PermissionError{ActorID: actor.ID, Role: actor.Role, Op: "read the audit trail"})
		return
	}

	entries, err := h.Store.QueryAudit(r.Context(), generic.AuditFilter{
		EntityID: r.URL.Query().Get("entity_id"),
		ActorID:  generic.ActorID(r.URL.Query().Get("actor_id")),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	type auditDTO struct {
		ID        string         `json:"id"`
		Timestamp string         `json:"timestamp"`
		ActorID   string         `json:"actor_id"`
		Action    string         `json:"action"`
		EntityID  string         `json:"entity_id"`
		Payload   map[string]any `json:"payload"`
	}
	dtos := make([]auditDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, auditDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			ActorID:   string(e.ActorID),
			Action:    string(e.Action),
			EntityID:  e.EntityID,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST CONVERSION
// =============================================================================

func optionalDate(s, field string) (*generic.TimePoint, error) {
	if s == "" {
		return nil, nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return nil, &generic.ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return &d, nil
}

func toCreateInput(req CreateCorrectiveActionRequest, r *http.Request) (generic.CreateInput, error) {
	in := generic.CreateInput{
		EmployeeID:              generic.EmployeeID(req.EmployeeID),
		CategoryID:              generic.CategoryID(req.CategoryID),
		HouseID:                 generic.HouseID(req.HouseID),
		ViolationTime:           req.ViolationTime,
		Description:             req.Description,
		MitigatingCircumstances: req.MitigatingCircumstances,
		PointsOverride:          req.PointsOverride,
		OverrideReason:          req.OverrideReason,
		CorrectiveExpectations:  req.CorrectiveExpectations,
		Consequences:            req.Consequences,
		PIPRequired:             req.PIPRequired,
	}

	if req.ViolationDate != "" {
		d, err := optionalDate(req.ViolationDate, "violation_date")
		if err != nil {
			return in, err
		}
		in.ViolationDate = *d
	}
	pip, err := optionalDate(req.PIPDate, "pip_date")
	if err != nil {
		return in, err
	}
	in.PIPDate = pip

	for _, s := range req.Signatures {
		in.Signatures = append(in.Signatures, generic.Signature{
			Role:      generic.SignerRole(strings.ToUpper(s.Role)),
			SignerID:  s.SignerID,
			Payload:   s.Payload,
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		})
	}
	return in, nil
}

func toPatch(req UpdateCorrectiveActionRequest) (generic.Patch, error) {
	patch := generic.Patch{
		Description:             req.Description,
		MitigatingCircumstances: req.MitigatingCircumstances,
		PointsAdjusted:          req.PointsAdjusted,
		AdjustmentReason:        req.AdjustmentReason,
		ClearAdjustment:         req.ClearAdjustment,
		CorrectiveExpectations:  req.CorrectiveExpectations,
		Consequences:            req.Consequences,
		PIPRequired:             req.PIPRequired,
		ClearPIPDate:            req.ClearPIPDate,
	}
	if req.PIPDate != nil {
		d, err := optionalDate(*req.PIPDate, "pip_date")
		if err != nil {
			return patch, err
		}
		patch.PIPDate = d
	}
	return patch, nil
}

// clientIP prefers the address set by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest, "Invalid request"
	case generic.IsPermission(err):
		return http.StatusForbidden, "Forbidden"
	case generic.IsNotFound(err):
		return http.StatusNotFound, "Not found"
	case generic.IsState(err):
		return http.StatusConflict, "Invalid state"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.From(r.Context()).Error("request failed", append(logging.ErrAttrs(err), "path", r.URL.Path)...)
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}
