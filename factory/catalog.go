/*
Package factory provides TOML to Go catalog conversion.

PURPOSE:
  Converts a TOML violation catalog into generic.ViolationCategory and
  generic.DisciplineThreshold values. HR edits the catalog file; the seed
  command loads it through this factory and hands it to Manager.SeedCatalog.

TOML SCHEMA:
  [[category]]
  id = "late-arrival"
  name = "Late arrival (15+ minutes)"
  severity = "MINOR"
  points = 2
  sort_order = 10
  note = "Per occurrence"

  [[threshold]]
  level = "VERBAL_WARNING"
  min = 6
  max = 9            # omit on the last row
  action = "Verbal Warning"
  description = "Documented verbal warning"

KEY FEATURES:
  - Unknown keys are rejected
  - Severity and level names are parsed into their typed enums
  - A file without [[threshold]] rows gets the escalation ladder defaults
  - Everything is validated with the same rules the engine applies at seed time

USAGE:
  factory := NewCatalogFactory()
  catalog, err := factory.LoadFile("catalog.toml")
  _, err = manager.SeedCatalog(ctx, actor, catalog.Categories, catalog.Thresholds)

SEE ALSO:
  - generic/catalog.go: Category and threshold types and validation
  - discipline/catalog.go: The standard group-home catalog
*/
package factory

import (
	"bytes"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/warp/discipline-engine/generic"
)

// =============================================================================
// TOML SCHEMA TYPES
// =============================================================================

// CatalogTOML is the file representation of a catalog.
type CatalogTOML struct {
	Categories []CategoryTOML  `toml:"category"`
	Thresholds []ThresholdTOML `toml:"threshold"`
}

type CategoryTOML struct {
	ID        string `toml:"id"`
	Name      string `toml:"name"`
	Severity  string `toml:"severity"`
	Points    int    `toml:"points"`
	SortOrder int    `toml:"sort_order,omitempty"`
	Note      string `toml:"note,omitempty"`
}

type ThresholdTOML struct {
	Level       string `toml:"level"`
	Min         int    `toml:"min"`
	Max         *int   `toml:"max,omitempty"`
	Action      string `toml:"action"`
	Description string `toml:"description,omitempty"`
}

// Catalog is the parsed, validated result.
type Catalog struct {
	Categories []generic.ViolationCategory
	Thresholds []generic.DisciplineThreshold
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

type CatalogFactory struct{}

func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// LoadFile reads and parses a catalog file.
func (f *CatalogFactory) LoadFile(path string) (*Catalog, error) {
	// #nosec G304 - path is provided by CLI flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read catalog file", goerr.V("path", path))
	}
	catalog, err := f.Parse(data)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid catalog file", goerr.V("path", path))
	}
	return catalog, nil
}

// Parse decodes TOML and converts it.
func (f *CatalogFactory) Parse(data []byte) (*Catalog, error) {
	var ct CatalogTOML
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ct); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML catalog")
	}
	return f.FromTOML(ct)
}

// FromTOML converts and validates.
func (f *CatalogFactory) FromTOML(ct CatalogTOML) (*Catalog, error) {
	if len(ct.Categories) == 0 {
		return nil, goerr.Wrap(generic.ErrInvalidCatalog, "catalog has no categories")
	}

	catalog := &Catalog{}
	for i, c := range ct.Categories {
		severity, err := generic.ParseSeverityTier(c.Severity)
		if err != nil {
			return nil, goerr.Wrap(generic.ErrInvalidCatalog, err.Error(), goerr.V("category_id", c.ID))
		}
		sortOrder := c.SortOrder
		if sortOrder == 0 {
			sortOrder = (i + 1) * 10
		}
		catalog.Categories = append(catalog.Categories, generic.ViolationCategory{
			ID:            generic.CategoryID(c.ID),
			Name:          c.Name,
			Severity:      severity,
			DefaultPoints: c.Points,
			SortOrder:     sortOrder,
			Note:          c.Note,
		})
	}
	if err := generic.ValidateCategories(catalog.Categories); err != nil {
		return nil, goerr.Wrap(err, "invalid category")
	}

	if len(ct.Thresholds) == 0 {
		catalog.Thresholds = generic.DefaultThresholds()
		return catalog, nil
	}
	for i, t := range ct.Thresholds {
		level, err := generic.ParseDisciplineLevel(t.Level)
		if err != nil {
			return nil, goerr.Wrap(generic.ErrInvalidCatalog, err.Error(), goerr.V("row", i+1))
		}
		catalog.Thresholds = append(catalog.Thresholds, generic.DisciplineThreshold{
			Level:       level,
			Minimum:     t.Min,
			Maximum:     t.Max,
			Action:      t.Action,
			Description: t.Description,
			SortOrder:   i + 1,
		})
	}
	if err := generic.ValidateThresholds(catalog.Thresholds); err != nil {
		return nil, goerr.Wrap(err, "invalid threshold table")
	}
	generic.SortThresholds(catalog.Thresholds)

	return catalog, nil
}

// Marshal renders a catalog back to TOML, e.g. to export the seeded catalog.
func Marshal(catalog Catalog) ([]byte, error) {
	var ct CatalogTOML
	for _, c := range catalog.Categories {
		ct.Categories = append(ct.Categories, CategoryTOML{
			ID:        string(c.ID),
			Name:      c.Name,
			Severity:  string(c.Severity),
			Points:    c.DefaultPoints,
			SortOrder: c.SortOrder,
			Note:      c.Note,
		})
	}
	for _, t := range catalog.Thresholds {
		ct.Thresholds = append(ct.Thresholds, ThresholdTOML{
			Level:       string(t.Level),
			Min:         t.Minimum,
			Max:         t.Maximum,
			Action:      t.Action,
			Description: t.Description,
		})
	}

	data, err := toml.Marshal(ct)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode catalog")
	}
	return data, nil
}
