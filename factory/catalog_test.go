package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/discipline-engine/factory"
	"github.com/warp/discipline-engine/generic"
)

const minimalCatalog = `
[[category]]
id = "late"
name = "Late arrival"
severity = "MINOR"
points = 2

[[category]]
id = "abuse"
name = "Resident abuse"
severity = "IMMEDIATE_TERMINATION"
points = 0
note = "Bypasses points"
`

func TestParse_DefaultsThresholdsFromLadder(t *testing.T) {
	catalog, err := factory.NewCatalogFactory().Parse([]byte(minimalCatalog))
	require.NoError(t, err)

	require.Len(t, catalog.Categories, 2)
	assert.Equal(t, generic.SeverityMinor, catalog.Categories[0].Severity)
	assert.Equal(t, 10, catalog.Categories[0].SortOrder)
	assert.Equal(t, 20, catalog.Categories[1].SortOrder)
	assert.True(t, catalog.Categories[1].BypassesPoints())

	assert.Equal(t, generic.DefaultThresholds(), catalog.Thresholds)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
[[category]]
id = "late"
name = "Late"
severity = "MINOR"
points = 2
color = "red"
`,
		"bad severity": `
[[category]]
id = "late"
name = "Late"
severity = "MILD"
points = 2
`,
		"no categories": `
[[threshold]]
level = "COACHING"
min = 0
action = "Coaching"
`,
		"threshold gap": minimalCatalog + `
[[threshold]]
level = "COACHING"
min = 0
max = 4
action = "Coaching"

[[threshold]]
level = "VERBAL_WARNING"
min = 6
action = "Verbal"
`,
		"not toml": `this is = = not toml`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := factory.NewCatalogFactory().Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_BadLevelIsInvalidCatalog(t *testing.T) {
	_, err := factory.NewCatalogFactory().Parse([]byte(minimalCatalog + `
[[threshold]]
level = "SUSPENSION"
min = 0
action = "x"
`))
	assert.ErrorIs(t, err, generic.ErrInvalidCatalog)
}

func TestMarshal_RoundTrip(t *testing.T) {
	// GIVEN: A parsed catalog with an explicit threshold table
	original, err := factory.NewCatalogFactory().Parse([]byte(minimalCatalog))
	require.NoError(t, err)

	// WHEN: Exported and loaded back from disk
	data, err := factory.Marshal(*original)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := factory.NewCatalogFactory().LoadFile(path)
	require.NoError(t, err)

	// THEN: Nothing is lost, including the unbounded last row
	assert.Equal(t, original.Categories, loaded.Categories)
	assert.Equal(t, original.Thresholds, loaded.Thresholds)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := factory.NewCatalogFactory().LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
