/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in generic/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Catalog:
    CategoryDTO, ThresholdDTO

  Corrective actions:
    CorrectiveActionDTO, SignatureDTO, CreateCorrectiveActionRequest,
    UpdateCorrectiveActionRequest, VoidRequest, SignRequest,
    CreateResponse, ChangeResponse, ListResponse

  Employees:
    EmployeeDTO, CreateEmployeeRequest, PointsDTO, StandingDTO

  Notifications:
    NotificationDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  DTOs are pure data carriers. Dates are parsed in toCreateInput/toPatch; every
  other rule lives in the lifecycle manager.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/lifecycle.go: CreateInput, Patch
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/discipline-engine/generic"
)

// =============================================================================
// CATALOG
// =============================================================================

type CategoryDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Severity      string `json:"severity"`
	DefaultPoints int    `json:"default_points"`
	SortOrder     int    `json:"sort_order"`
	Note          string `json:"note,omitempty"`
}

type ThresholdDTO struct {
	Level       string `json:"level"`
	Min         int    `json:"min_points"`
	Max         *int   `json:"max_points"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

func toCategoryDTO(c generic.ViolationCategory) CategoryDTO {
	return CategoryDTO{
		ID:            string(c.ID),
		Name:          c.Name,
		Severity:      string(c.Severity),
		DefaultPoints: c.DefaultPoints,
		SortOrder:     c.SortOrder,
		Note:          c.Note,
	}
}

func toThresholdDTO(t generic.DisciplineThreshold) ThresholdDTO {
	return ThresholdDTO{
		Level:       string(t.Level),
		Min:         t.Minimum,
		Max:         t.Maximum,
		Action:      t.Action,
		Description: t.Description,
	}
}

// =============================================================================
// CORRECTIVE ACTIONS
// =============================================================================

type SignatureDTO struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	SignerID string `json:"signer_id"`
	SignedAt string `json:"signed_at"`
}

// CorrectiveActionDTO represents a record in API responses. The signature
// payload itself is never echoed back.
type CorrectiveActionDTO struct {
	ID                      string         `json:"id"`
	EmployeeID              string         `json:"employee_id"`
	IssuedBy                string         `json:"issued_by"`
	HouseID                 string         `json:"house_id,omitempty"`
	CategoryID              string         `json:"category_id"`
	ViolationDate           string         `json:"violation_date"`
	ViolationTime           string         `json:"violation_time,omitempty"`
	Description             string         `json:"description"`
	MitigatingCircumstances string         `json:"mitigating_circumstances,omitempty"`
	PointsAssigned          int            `json:"points_assigned"`
	PointsAdjusted          *int           `json:"points_adjusted"`
	AdjustmentReason        string         `json:"adjustment_reason,omitempty"`
	EffectivePoints         int            `json:"effective_points"`
	DisciplineLevel         string         `json:"discipline_level"`
	CorrectiveExpectations  []string       `json:"corrective_expectations"`
	Consequences            string         `json:"consequences"`
	PIPRequired             bool           `json:"pip_required"`
	PIPDate                 *string        `json:"pip_date"`
	Status                  string         `json:"status"`
	AcknowledgedAt          *string        `json:"acknowledged_at"`
	VoidedBy                string         `json:"voided_by,omitempty"`
	VoidedAt                *string        `json:"voided_at"`
	VoidReason              string         `json:"void_reason,omitempty"`
	CreatedAt               string         `json:"created_at"`
	UpdatedAt               string         `json:"updated_at"`
	Signatures              []SignatureDTO `json:"signatures"`
}

func toCorrectiveActionDTO(a generic.CorrectiveAction) CorrectiveActionDTO {
	dto := CorrectiveActionDTO{
		ID:                      string(a.ID),
		EmployeeID:              string(a.EmployeeID),
		IssuedBy:                string(a.IssuedBy),
		HouseID:                 string(a.HouseID),
		CategoryID:              string(a.CategoryID),
		ViolationDate:           a.ViolationDate.String(),
		ViolationTime:           a.ViolationTime,
		Description:             a.Description,
		MitigatingCircumstances: a.MitigatingCircumstances,
		PointsAssigned:          a.PointsAssigned,
		PointsAdjusted:          a.PointsAdjusted,
		AdjustmentReason:        a.AdjustmentReason,
		EffectivePoints:         a.EffectivePoints(),
		DisciplineLevel:         string(a.DisciplineLevel),
		CorrectiveExpectations:  a.CorrectiveExpectations,
		Consequences:            a.Consequences,
		PIPRequired:             a.PIPRequired,
		Status:                  string(a.Status),
		AcknowledgedAt:          timeString(a.AcknowledgedAt),
		VoidedBy:                string(a.VoidedBy),
		VoidedAt:                timeString(a.VoidedAt),
		VoidReason:              a.VoidReason,
		CreatedAt:               a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:               a.UpdatedAt.Format(time.RFC3339),
		Signatures:              make([]SignatureDTO, 0, len(a.Signatures)),
	}
	if dto.CorrectiveExpectations == nil {
		dto.CorrectiveExpectations = []string{}
	}
	if a.PIPDate != nil {
		s := a.PIPDate.String()
		dto.PIPDate = &s
	}
	for _, s := range a.Signatures {
		dto.Signatures = append(dto.Signatures, SignatureDTO{
			ID:       string(s.ID),
			Role:     string(s.Role),
			SignerID: s.SignerID,
			SignedAt: s.SignedAt.Format(time.RFC3339),
		})
	}
	return dto
}

func toCorrectiveActionDTOs(records []generic.CorrectiveAction) []CorrectiveActionDTO {
	out := make([]CorrectiveActionDTO, 0, len(records))
	for _, r := range records {
		out = append(out, toCorrectiveActionDTO(r))
	}
	return out
}

// SignatureInput is a signature captured on the form.
type SignatureInput struct {
	Role     string `json:"role"`
	SignerID string `json:"signer_id"`
	Payload  string `json:"payload"`
}

// CreateCorrectiveActionRequest is the request to issue a corrective action.
type CreateCorrectiveActionRequest struct {
	EmployeeID              string           `json:"employee_id"`
	CategoryID              string           `json:"category_id"`
	HouseID                 string           `json:"house_id"`
	ViolationDate           string           `json:"violation_date"`
	ViolationTime           string           `json:"violation_time"`
	Description             string           `json:"description"`
	MitigatingCircumstances string           `json:"mitigating_circumstances"`
	PointsOverride          *int             `json:"points_override"`
	OverrideReason          string           `json:"override_reason"`
	CorrectiveExpectations  []string         `json:"corrective_expectations"`
	Consequences            string           `json:"consequences"`
	PIPRequired             bool             `json:"pip_required"`
	PIPDate                 string           `json:"pip_date"`
	Signatures              []SignatureInput `json:"signatures"`
}

// UpdateCorrectiveActionRequest carries only the fields to change.
// "clear_adjustment": true drops an earlier adjustment.
type UpdateCorrectiveActionRequest struct {
	Description             *string   `json:"description"`
	MitigatingCircumstances *string   `json:"mitigating_circumstances"`
	PointsAdjusted          *int      `json:"points_adjusted"`
	AdjustmentReason        *string   `json:"adjustment_reason"`
	ClearAdjustment         bool      `json:"clear_adjustment"`
	CorrectiveExpectations  *[]string `json:"corrective_expectations"`
	Consequences            *string   `json:"consequences"`
	PIPRequired             *bool     `json:"pip_required"`
	PIPDate                 *string   `json:"pip_date"`
	ClearPIPDate            bool      `json:"clear_pip_date"`
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

type SignRequest struct {
	Role     string `json:"role"`
	SignerID string `json:"signer_id"`
	Payload  string `json:"payload"`
}

// CreateResponse is returned by POST /api/corrective-actions.
type CreateResponse struct {
	Record               CorrectiveActionDTO `json:"record"`
	PointsBefore         int                 `json:"points_before"`
	PointsAfter          int                 `json:"points_after"`
	ThresholdsCrossed    []int               `json:"thresholds_crossed"`
	ImmediateTermination bool                `json:"immediate_termination"`
	Warnings             []string            `json:"warnings,omitempty"`
}

// ChangeResponse is returned by edit, void and sign.
type ChangeResponse struct {
	Record   CorrectiveActionDTO `json:"record"`
	Warnings []string            `json:"warnings,omitempty"`
}

type ListResponse struct {
	AsOf          string                `json:"as_of"`
	Records       []CorrectiveActionDTO `json:"records"`
	CurrentPoints map[string]int        `json:"current_points"`

	// History is the rolling window behind each current total.
	History map[string][]CorrectiveActionDTO `json:"history"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	HouseID string `json:"house_id,omitempty"`
}

type CreateEmployeeRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	HouseID string `json:"house_id"`
}

// PointsDTO is the rolling-window history behind an employee's total.
type PointsDTO struct {
	EmployeeID    string                `json:"employee_id"`
	AsOf          string                `json:"as_of"`
	WindowStart   string                `json:"window_start"`
	WindowEnd     string                `json:"window_end"`
	CurrentPoints int                   `json:"current_points"`
	Level         string                `json:"level"`
	Records       []CorrectiveActionDTO `json:"records"`
}

type StandingDTO struct {
	EmployeeID   string          `json:"employee_id"`
	AsOf         string          `json:"as_of"`
	Points       int             `json:"points"`
	Threshold    ThresholdDTO    `json:"threshold"`
	Next         *ThresholdDTO   `json:"next_threshold"`
	PointsToNext int             `json:"points_to_next"`
	Progress     decimal.Decimal `json:"progress_percent"`
}

func toStandingDTO(st generic.Standing) StandingDTO {
	dto := StandingDTO{
		EmployeeID:   string(st.EmployeeID),
		AsOf:         st.AsOf.String(),
		Points:       st.Points,
		Threshold:    toThresholdDTO(st.Threshold),
		PointsToNext: st.PointsToNext,
		Progress:     st.Progress,
	}
	if st.Next != nil {
		next := toThresholdDTO(*st.Next)
		dto.Next = &next
	}
	return dto
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationDTO struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	RecordID   string  `json:"record_id"`
	Threshold  int     `json:"threshold"`
	Level      string  `json:"level"`
	Message    string  `json:"message"`
	CreatedAt  string  `json:"created_at"`
	ReadAt     *string `json:"read_at"`
}

func toNotificationDTO(n generic.Notification) NotificationDTO {
	return NotificationDTO{
		ID:         n.ID,
		EmployeeID: string(n.EmployeeID),
		RecordID:   string(n.RecordID),
		Threshold:  n.Threshold,
		Level:      string(n.Level),
		Message:    n.Message,
		CreatedAt:  n.CreatedAt.Format(time.RFC3339),
		ReadAt:     timeString(n.ReadAt),
	}
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
