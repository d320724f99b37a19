package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

type ActionStatus string

const (
	StatusPendingSignature ActionStatus = "PENDING_SIGNATURE"
	StatusAcknowledged     ActionStatus = "ACKNOWLEDGED"
	StatusVoided           ActionStatus = "VOIDED"
)

func (s ActionStatus) IsValid() bool {
	switch s {
	case StatusPendingSignature, StatusAcknowledged, StatusVoided:
		return true
	default:
		return false
	}
}

// IsFinal is true for the terminal, immutable states.
func (s ActionStatus) IsFinal() bool {
	return s == StatusAcknowledged || s == StatusVoided
}

func (s ActionStatus) String() string { return string(s) }

func ParseActionStatus(s string) (ActionStatus, error) {
	status := ActionStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid action status: %s", s)
	}
	return status, nil
}

// =============================================================================
// SIGNATURE
// =============================================================================

type SignerRole string

const (
	SignerSupervisor SignerRole = "SUPERVISOR"
	SignerWitness    SignerRole = "WITNESS"
	SignerEmployee   SignerRole = "EMPLOYEE"
)

func (r SignerRole) IsValid() bool {
	switch r {
	case SignerSupervisor, SignerWitness, SignerEmployee:
		return true
	default:
		return false
	}
}

type Signature struct {
	ID        SignatureID
	RecordID  RecordID
	Role      SignerRole
	SignerID  string
	Payload   string // captured signature image/data URL
	IPAddress string
	UserAgent string
	SignedAt  time.Time
}

func (s Signature) validate() error {
	if !s.Role.IsValid() {
		return &ValidationError{Field: "signature.role", Reason: fmt.Sprintf("unknown signer role %q", s.Role)}
	}
	if s.SignerID == "" {
		return missing("signature.signer_id")
	}
	if s.Payload == "" {
		return missing("signature.payload")
	}
	return nil
}

// =============================================================================
// CORRECTIVE ACTION - The disciplinary record
// =============================================================================

// DefaultConsequences is used when the issuer supplies no consequence text.
const DefaultConsequences = "Failure to meet the expectations outlined above may result in " +
	"further disciplinary action, up to and including termination of employment."

type CorrectiveAction struct {
	ID         RecordID
	EmployeeID EmployeeID
	IssuedBy   ActorID
	HouseID    HouseID // empty = not tied to a house
	CategoryID CategoryID

	ViolationDate TimePoint
	ViolationTime string // optional "HH:MM"

	Description             string
	MitigatingCircumstances string

	PointsAssigned   int
	PointsAdjusted   *int
	AdjustmentReason string

	// DisciplineLevel is frozen at creation from the post-action total.
	DisciplineLevel DisciplineLevel

	CorrectiveExpectations []string
	Consequences           string
	PIPRequired            bool
	PIPDate                *TimePoint

	Status         ActionStatus
	AcknowledgedAt *time.Time
	VoidedBy       ActorID
	VoidedAt       *time.Time
	VoidReason     string

	CreatedAt time.Time
	UpdatedAt time.Time

	Signatures []Signature
}

// EffectivePoints is PointsAdjusted when present, else PointsAssigned.
func (a CorrectiveAction) EffectivePoints() int {
	if a.PointsAdjusted != nil {
		return *a.PointsAdjusted
	}
	return a.PointsAssigned
}

// CountsToward reports whether the record contributes to a total over window.
func (a CorrectiveAction) CountsToward(window Period) bool {
	return a.Status != StatusVoided && window.Contains(a.ViolationDate)
}

// HasSignature reports whether a signature of the given role is attached.
func (a CorrectiveAction) HasSignature(role SignerRole) bool {
	for _, s := range a.Signatures {
		if s.Role == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never share slices or pointers with callers.
func (a CorrectiveAction) Clone() CorrectiveAction {
	c := a
	if a.PointsAdjusted != nil {
		v := *a.PointsAdjusted
		c.PointsAdjusted = &v
	}
	if a.PIPDate != nil {
		v := *a.PIPDate
		c.PIPDate = &v
	}
	if a.AcknowledgedAt != nil {
		v := *a.AcknowledgedAt
		c.AcknowledgedAt = &v
	}
	if a.VoidedAt != nil {
		v := *a.VoidedAt
		c.VoidedAt = &v
	}
	if a.CorrectiveExpectations != nil {
		c.CorrectiveExpectations = append([]string(nil), a.CorrectiveExpectations...)
	}
	if a.Signatures != nil {
		c.Signatures = append([]Signature(nil), a.Signatures...)
	}
	return c
}
