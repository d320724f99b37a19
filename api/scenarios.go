/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with the
	standard group-home catalog, the demo roster, and corrective actions
	that show specific engine behavior. Records are dated relative to
	today so the rolling window always looks the same.

AVAILABLE SCENARIOS:

	clean-slate:        Catalog and roster only
	escalation:         Three records walk Jordan Lee past 6 and 10 points
	window-aging:       A 100-day-old record no longer counts
	void-and-sign:      A voided record drops out; an acknowledged one is final
	termination-track:  Casey Brooks crosses the final-warning threshold
	full-house:         Everything above at once

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the standard catalog and the demo roster
 3. Issue records through the lifecycle manager as HR
 4. Deliver audit rows and notifications (never emails)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "escalation"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared handler context
  - discipline/catalog.go: Standard catalog and demo roster
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/logging"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{ID: "clean-slate", Name: "Clean Slate", Description: "Standard catalog and demo roster, no records"},
	{ID: "escalation", Name: "Escalation", Description: "Jordan Lee goes 0 -> 7 -> 12, crossing the verbal and written warning thresholds"},
	{ID: "window-aging", Name: "Window Aging", Description: "Sam Ortiz has a 100-day-old no-show that no longer counts"},
	{ID: "void-and-sign", Name: "Void and Sign", Description: "Taylor Nguyen has a voided record and an acknowledged one"},
	{ID: "termination-track", Name: "Termination Track", Description: "Casey Brooks reaches a final warning at 16 points"},
	{ID: "full-house", Name: "Full House", Description: "All scenarios loaded together"},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"clean-slate":       func(*Handler, context.Context) error { return nil },
	"escalation":        (*Handler).loadEscalation,
	"window-aging":      (*Handler).loadWindowAging,
	"void-and-sign":     (*Handler).loadVoidAndSign,
	"termination-track": (*Handler).loadTerminationTrack,
	"full-house":        (*Handler).loadFullHouse,
}

// demo actors
var (
	demoRoster = discipline.DemoRoster()
	demoHR     = mustActor("hr-pquinn")
	demoAdmin  = mustActor("admin-rdiaz")
)

func mustActor(id generic.ActorID) generic.Actor {
	actor, ok := demoRoster.Actor(id)
	if !ok {
		panic("demo roster has no user " + string(id))
	}
	return actor
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		if generic.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenarioByID is also used by the seed command.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return &generic.ValidationError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if err := h.seedBase(ctx); err != nil {
		return err
	}
	if err := load(h, ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	logging.From(ctx).Info("scenario loaded", "scenario", id)
	return nil
}

func (h *Handler) seedBase(ctx context.Context) error {
	catalog, err := discipline.StandardCatalog()
	if err != nil {
		return err
	}
	seeder := discipline.Seeder{Manager: h.Manager, Directory: h.Store}
	if err := seeder.SeedRoster(ctx, demoRoster); err != nil {
		return err
	}
	effects, err := seeder.SeedCatalog(ctx, demoAdmin, catalog)
	if err != nil {
		return err
	}
	h.deliverQuietly(ctx, *effects)
	return nil
}

// deliverQuietly sends audit rows and notifications but never demo emails.
func (h *Handler) deliverQuietly(ctx context.Context, effects generic.Effects) {
	effects.Emails = nil
	h.deliver(ctx, effects)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) issue(ctx context.Context, emp generic.EmployeeID, cat generic.CategoryID, daysAgo int, description string) (*generic.Outcome, error) {
	outcome, err := h.Manager.Create(ctx, demoHR, generic.CreateInput{
		EmployeeID:    emp,
		CategoryID:    cat,
		ViolationDate: h.today().AddDays(-daysAgo),
		Description:   description,
		CorrectiveExpectations: []string{
			"Review the relevant policy with your supervisor",
			"Follow the house schedule and procedures going forward",
		},
		Signatures: []generic.Signature{{
			Role:     generic.SignerSupervisor,
			SignerID: string(demoHR.ID),
			Payload:  "data:image/png;base64,ZGVtbw==",
		}},
	})
	if err != nil {
		return nil, err
	}
	h.deliverQuietly(ctx, outcome.Effects)
	return outcome, nil
}

func (h *Handler) loadEscalation(ctx context.Context) error {
	steps := []struct {
		cat     generic.CategoryID
		daysAgo int
		note    string
	}{
		{"call-off-short-notice", 60, "Called off 45 minutes before the evening shift."},
		{"medication-documentation", 30, "MAR left unsigned for the 8pm pass."},
		{"insubordination", 5, "Refused the reassigned resident outing after two requests."},
	}
	for _, s := range steps {
		if _, err := h.issue(ctx, "emp-jlee", s.cat, s.daysAgo, s.note); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadWindowAging(ctx context.Context) error {
	if _, err := h.issue(ctx, "emp-sortiz", "no-call-no-show", 100, "Did not report for the overnight shift."); err != nil {
		return err
	}
	_, err := h.issue(ctx, "emp-sortiz", "late-arrival", 20, "Arrived 25 minutes late for the morning shift.")
	return err
}

func (h *Handler) loadVoidAndSign(ctx context.Context) error {
	voided, err := h.issue(ctx, "emp-tnguyen", "medication-error", 10, "Wrong dose recorded at the noon pass.")
	if err != nil {
		return err
	}
	change, err := h.Manager.Void(ctx, demoHR, voided.Record.ID, "Pharmacy label error, not a staff error.")
	if err != nil {
		return err
	}
	h.deliverQuietly(ctx, change.Effects)

	signed, err := h.issue(ctx, "emp-tnguyen", "missed-training", 7, "Missed the quarterly CPR refresher.")
	if err != nil {
		return err
	}
	change, err = h.Manager.Sign(ctx, demoHR, signed.Record.ID, generic.Signature{
		Role:     generic.SignerEmployee,
		SignerID: "emp-tnguyen",
		Payload:  "data:image/png;base64,c2lnbmVk",
	})
	if err != nil {
		return err
	}
	h.deliverQuietly(ctx, change.Effects)
	return nil
}

func (h *Handler) loadTerminationTrack(ctx context.Context) error {
	if _, err := h.issue(ctx, "emp-cbrooks", "falsified-records", 40, "Shift log shows checks that were not performed."); err != nil {
		return err
	}
	_, err := h.issue(ctx, "emp-cbrooks", "sleeping-on-shift", 3, "Found asleep during the 2am bed check.")
	return err
}

func (h *Handler) loadFullHouse(ctx context.Context) error {
	for _, load := range []func(*Handler, context.Context) error{
		(*Handler).loadEscalation,
		(*Handler).loadWindowAging,
		(*Handler).loadVoidAndSign,
		(*Handler).loadTerminationTrack,
	} {
		if err := load(h, ctx); err != nil {
			return err
		}
	}
	return nil
}
