package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/generic"
)

func TestScopeFor(t *testing.T) {
	maple := record("m", generic.NewTimePoint(2025, time.May, 1), 2)
	maple.IssuedBy = "someone"
	birch := record("b", generic.NewTimePoint(2025, time.May, 1), 2)
	birch.HouseID = "birch"
	birch.IssuedBy = "coord-1"

	t.Run("elevated roles see everything", func(t *testing.T) {
		for _, role := range []generic.Role{generic.RoleAdmin, generic.RoleHR} {
			scope, err := generic.ScopeFor(generic.Actor{ID: "x", Role: role}, "list")
			require.NoError(t, err)
			assert.True(t, scope.Allows(maple))
			assert.True(t, scope.Allows(birch))
		}
	})

	t.Run("house manager sees assigned houses only", func(t *testing.T) {
		scope, err := generic.ScopeFor(generic.Actor{ID: "mgr", Role: generic.RoleHouseManager, Houses: []generic.HouseID{"maple", "maple", ""}}, "list")
		require.NoError(t, err)
		assert.Equal(t, []generic.HouseID{"maple"}, scope.Houses)
		assert.True(t, scope.Allows(maple))
		assert.False(t, scope.Allows(birch))
	})

	t.Run("coordinator sees own records and assigned houses", func(t *testing.T) {
		scope, err := generic.ScopeFor(generic.Actor{ID: "coord-1", Role: generic.RoleCoordinator}, "list")
		require.NoError(t, err)
		assert.True(t, scope.Allows(birch), "issued by the coordinator")
		assert.False(t, scope.Allows(maple))
	})

	t.Run("other roles are denied", func(t *testing.T) {
		_, err := generic.ScopeFor(generic.Actor{ID: "s", Role: generic.RoleStaff}, "list")
		require.Error(t, err)
		assert.True(t, generic.IsPermission(err))

		var perr *generic.PermissionError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, generic.ActorID("s"), perr.ActorID)
	})
}

func TestScope_CanIssue(t *testing.T) {
	tests := []struct {
		name          string
		scope         generic.Scope
		employeeHouse generic.HouseID
		recordHouse   generic.HouseID
		want          bool
	}{
		{"unrestricted files anywhere", generic.Scope{Unrestricted: true}, "birch", "maple", true},
		{"own house", generic.Scope{Houses: []generic.HouseID{"maple"}}, "maple", "maple", true},
		{"employee outside scope", generic.Scope{Houses: []generic.HouseID{"maple"}}, "birch", "maple", false},
		{"record house outside scope", generic.Scope{Houses: []generic.HouseID{"maple"}}, "maple", "birch", false},
		{"both houses assigned", generic.Scope{Houses: []generic.HouseID{"maple", "birch"}}, "birch", "maple", true},
		{"authorship is not a house", generic.Scope{IssuedBy: "coord-1"}, "birch", "birch", false},
		{"employee without a house", generic.Scope{Houses: []generic.HouseID{"maple"}}, "", "maple", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.CanIssue(tt.employeeHouse, tt.recordHouse))
		})
	}
}

func TestRecordFilter_ScopeFirst(t *testing.T) {
	// GIVEN: A filter asking for the birch record by employee
	birch := record("b", generic.NewTimePoint(2025, time.May, 1), 2)
	birch.HouseID = "birch"

	filter := generic.RecordFilter{
		Scope:      generic.Scope{Houses: []generic.HouseID{"maple"}},
		EmployeeID: "emp-1",
	}

	// THEN: The other filters can never widen what the scope hides
	assert.False(t, filter.Matches(birch, generic.SeverityMinor))

	filter.Scope.Houses = append(filter.Scope.Houses, "birch")
	assert.True(t, filter.Matches(birch, generic.SeverityMinor))

	filter.Severity = generic.SeveritySerious
	assert.False(t, filter.Matches(birch, generic.SeverityMinor))
}
