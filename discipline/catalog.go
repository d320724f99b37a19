// Package discipline holds the group-home presets: the standard violation
// catalog and a demo roster used by the seed command and the scenarios.
package discipline

import (
	_ "embed"

	"github.com/warp/discipline-engine/factory"
	"github.com/warp/discipline-engine/generic"
)

//go:embed standard_catalog.toml
var standardCatalogTOML []byte

// StandardCatalogTOML returns the raw standard catalog, e.g. as a starting
// point for a custom --catalog file.
func StandardCatalogTOML() []byte {
	return append([]byte(nil), standardCatalogTOML...)
}

// StandardCatalog parses the embedded catalog.
func StandardCatalog() (*factory.Catalog, error) {
	return factory.NewCatalogFactory().Parse(standardCatalogTOML)
}

// =============================================================================
// DEMO ROSTER
// =============================================================================

const (
	HouseMaple generic.HouseID = "maple-house"
	HouseBirch generic.HouseID = "birch-house"
	HouseCedar generic.HouseID = "cedar-house"
)

// Roster is a directory snapshot: who works where and who may act.
type Roster struct {
	Employees []generic.Employee
	Users     []generic.User

	// Houses maps a manager or coordinator to the houses they cover.
	Houses map[generic.ActorID][]generic.HouseID
}

// Actor resolves a roster user into an engine actor.
func (r Roster) Actor(id generic.ActorID) (generic.Actor, bool) {
	for _, u := range r.Users {
		if u.ID == id {
			return generic.Actor{ID: u.ID, Role: u.Role, Houses: r.Houses[u.ID]}, true
		}
	}
	return generic.Actor{}, false
}

func DemoRoster() Roster {
	return Roster{
		Employees: []generic.Employee{
			{ID: "emp-jlee", Name: "Jordan Lee", Email: "jordan.lee@example.org", HouseID: HouseMaple},
			{ID: "emp-sortiz", Name: "Sam Ortiz", Email: "sam.ortiz@example.org", HouseID: HouseMaple},
			{ID: "emp-tnguyen", Name: "Taylor Nguyen", HouseID: HouseBirch},
			{ID: "emp-cbrooks", Name: "Casey Brooks", Email: "casey.brooks@example.org", HouseID: HouseCedar},
		},
		Users: []generic.User{
			{ID: "admin-rdiaz", Name: "Robin Diaz", Email: "robin.diaz@example.org", Role: generic.RoleAdmin},
			{ID: "hr-pquinn", Name: "Pat Quinn", Email: "pat.quinn@example.org", Role: generic.RoleHR},
			{ID: "mgr-akim", Name: "Alex Kim", Email: "alex.kim@example.org", Role: generic.RoleHouseManager},
			{ID: "coord-mreyes", Name: "Morgan Reyes", Email: "morgan.reyes@example.org", Role: generic.RoleCoordinator},
		},
		Houses: map[generic.ActorID][]generic.HouseID{
			"mgr-akim":     {HouseMaple},
			"coord-mreyes": {HouseBirch, HouseCedar},
		},
	}
}
