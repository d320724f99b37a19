/*
Package generic provides the employee discipline point engine.

PURPOSE:
  Disciplinary records ("corrective actions") carry points. An employee's
  standing is the sum of effective points over a trailing 90-day window,
  classified into one of five escalation levels. The engine creates records,
  freezes the level at creation, reports which escalation thresholds a new
  violation crossed, and governs the record lifecycle
  (PENDING_SIGNATURE -> ACKNOWLEDGED | VOIDED).

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: type-safe IDs for employees, actors, records, categories
  - SeverityTier: catalog severity of a violation category
  - Employee / User: directory entries consumed from the employee collaborator

DESIGN PRINCIPLES:
  1. Derive, don't cache: totals are always recomputed from the record set
  2. Frozen history: a record's discipline level never changes after creation
  3. No delivery side effects: the engine returns Effects, callers deliver them
  4. Visibility first: the access scope is applied before any other filter

SEE ALSO:
  - ladder.go: Escalation levels and thresholds (single source of truth)
  - points.go: Rolling-window point calculator
  - lifecycle.go: Create / Edit / Void / Sign / List
*/
package generic

import (
	"fmt"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type ActorID string
type RecordID string
type CategoryID string
type HouseID string
type SignatureID string

// =============================================================================
// SEVERITY TIER
// =============================================================================

type SeverityTier string

const (
	SeverityMinor                SeverityTier = "MINOR"
	SeverityModerate             SeverityTier = "MODERATE"
	SeveritySerious              SeverityTier = "SERIOUS"
	SeverityCritical             SeverityTier = "CRITICAL"
	SeverityImmediateTermination SeverityTier = "IMMEDIATE_TERMINATION"
)

// AllSeverityTiers returns the tiers from least to most severe.
func AllSeverityTiers() []SeverityTier {
	return []SeverityTier{
		SeverityMinor,
		SeverityModerate,
		SeveritySerious,
		SeverityCritical,
		SeverityImmediateTermination,
	}
}

func (s SeverityTier) IsValid() bool {
	switch s {
	case SeverityMinor,
		SeverityModerate,
		SeveritySerious,
		SeverityCritical,
		SeverityImmediateTermination:
		return true
	default:
		return false
	}
}

func (s SeverityTier) String() string { return string(s) }

func ParseSeverityTier(s string) (SeverityTier, error) {
	tier := SeverityTier(s)
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid severity tier: %s", s)
	}
	return tier, nil
}

// =============================================================================
// DIRECTORY ENTRIES - Owned by the employee/identity collaborator
// =============================================================================

// Employee is the subject of corrective actions.
type Employee struct {
	ID      EmployeeID
	Name    string
	Email   string // empty = no address on file, no email is requested
	HouseID HouseID
}

// User is an application user that may receive threshold notifications.
type User struct {
	ID    ActorID
	Name  string
	Email string
	Role  Role
}
