/*
access.go - Role-aware visibility scope

PURPOSE:
  Turns the current actor (resolved by the identity collaborator) into a
  Scope: a predicate over corrective actions. Every list, get and mutation
  goes through the scope before any other filter is applied.

RULES:
  ADMIN, HR         unrestricted
  HOUSE_MANAGER     records whose house is in the actor's houses
  COORDINATOR       records the actor issued, plus records in the actor's houses
  anything else     no access to this engine

STORES:
  Stores receive the Scope inside RecordFilter and must apply it first.
  The SQLite store turns it into the leading WHERE clause; the memory store
  calls Allows.
*/
package generic

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLES & ACTORS
// =============================================================================

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleHR           Role = "HR"
	RoleHouseManager Role = "HOUSE_MANAGER"
	RoleCoordinator  Role = "COORDINATOR"
	RoleStaff        Role = "STAFF"
)

// IsElevated is true for roles with unrestricted access and void rights.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleHR
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleHR, RoleHouseManager, RoleCoordinator, RoleStaff:
		return r, nil
	default:
		return "", &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", s)}
	}
}

// Actor is the current user as resolved by the identity collaborator.
type Actor struct {
	ID     ActorID
	Role   Role
	Houses []HouseID
}

// =============================================================================
// SCOPE
// =============================================================================

// Scope is the visibility predicate for one actor.
type Scope struct {
	Unrestricted bool
	Houses       []HouseID
	IssuedBy     ActorID // non-empty: records issued by this actor are visible too
}

// ScopeFor builds the scope for an actor. Roles outside the engine get a
// PermissionError.
func ScopeFor(actor Actor, op string) (Scope, error) {
	switch actor.Role {
	case RoleAdmin, RoleHR:
		return Scope{Unrestricted: true}, nil
	case RoleHouseManager:
		return Scope{Houses: dedupeHouses(actor.Houses)}, nil
	case RoleCoordinator:
		return Scope{Houses: dedupeHouses(actor.Houses), IssuedBy: actor.ID}, nil
	default:
		return Scope{}, &PermissionError{ActorID: actor.ID, Role: actor.Role, Op: op}
	}
}

// Allows reports whether a record is visible under the scope.
func (s Scope) Allows(a CorrectiveAction) bool {
	if s.Unrestricted {
		return true
	}
	if s.IssuedBy != "" && a.IssuedBy == s.IssuedBy {
		return true
	}
	return a.HouseID != "" && s.HasHouse(a.HouseID)
}

// CanIssue reports whether a new record may be written for an employee of
// employeeHouse, filed under recordHouse. Scoped roles need both houses in
// scope; authorship of earlier records grants nothing here.
func (s Scope) CanIssue(employeeHouse, recordHouse HouseID) bool {
	if s.Unrestricted {
		return true
	}
	return employeeHouse != "" && s.HasHouse(employeeHouse) && s.HasHouse(recordHouse)
}

func (s Scope) HasHouse(h HouseID) bool {
	for _, sh := range s.Houses {
		if sh == h {
			return true
		}
	}
	return false
}

func dedupeHouses(houses []HouseID) []HouseID {
	seen := make(map[HouseID]bool, len(houses))
	out := make([]HouseID, 0, len(houses))
	for _, h := range houses {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// =============================================================================
// RECORD FILTER
// =============================================================================

// RecordFilter shapes a list query. Scope is mandatory and applied first;
// the remaining fields only ever narrow the result.
type RecordFilter struct {
	Scope      Scope
	EmployeeID EmployeeID
	Status     ActionStatus
	Severity   SeverityTier
	From       *TimePoint
	To         *TimePoint
}

// Matches applies the non-scope filters. Severity needs the record's category,
// resolved by the caller.
func (f RecordFilter) Matches(a CorrectiveAction, severity SeverityTier) bool {
	if !f.Scope.Allows(a) {
		return false
	}
	if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Severity != "" && severity != f.Severity {
		return false
	}
	if f.From != nil && a.ViolationDate.Before(*f.From) {
		return false
	}
	if f.To != nil && a.ViolationDate.After(*f.To) {
		return false
	}
	return true
}
