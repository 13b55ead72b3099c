package match

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotmatch/internal/geo"
)

func knownIDs(ids ...string) func(string) bool {
	set := make(map[string]bool)
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func TestDefaultOverridesLookup(t *testing.T) {
	table := DefaultOverrides()
	known := knownIDs("majanicho", "la-izquierda-del-hierro", "el-cotillo-piedra-playa", "punta-elena", "isla-de-lobos")

	tests := []struct {
		candidate string
		wantID    string
		wantAlias string
		wantOK    bool
	}{
		{candidate: "Playa Machanicho", wantID: "majanicho", wantAlias: "machanicho", wantOK: true},
		{candidate: "El Hierro", wantID: "", wantOK: false},
		{candidate: "El Hiero Left", wantID: "la-izquierda-del-hierro", wantAlias: "el hiero", wantOK: true},
		{candidate: "Playa Ultima - El Cotillo", wantID: "el-cotillo-piedra-playa", wantAlias: "playa ultima - el cotillo", wantOK: true},
		{candidate: "Cotillo Lagoons", wantID: "el-cotillo-piedra-playa", wantAlias: "cotillo", wantOK: true},
		{candidate: "Punta Helena", wantID: "punta-elena", wantAlias: "punta helena", wantOK: true},
		{candidate: "Los Lobos", wantID: "isla-de-lobos", wantAlias: "los lobos", wantOK: true},
		{candidate: "Lobos", wantID: "isla-de-lobos", wantAlias: "los lobos", wantOK: true},
		{candidate: "A", wantOK: false},
		{candidate: "Point", wantOK: false},
		{candidate: "Cho", wantOK: false},
		{candidate: "", wantOK: false},
		{candidate: "?!", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			entry, ok := table.Lookup(tt.candidate, known)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, entry.EntityID)
				assert.Equal(t, tt.wantAlias, entry.Alias)
			}
		})
	}
}

func TestOverrideShortNamesKeepNearbyMatch(t *testing.T) {
	entities := []CanonicalEntity{
		{ID: "a", PrimaryName: "A", Position: geo.Position{Lat: 28.0, Lng: -14.0}},
		{ID: "point", PrimaryName: "Point", Position: geo.Position{Lat: 28.2, Lng: -14.2}},
		{ID: "majanicho", PrimaryName: "Majanicho", Position: geo.Position{Lat: 28.7300, Lng: -13.9400}},
		{ID: "punta-elena", PrimaryName: "Punta Elena", Position: geo.Position{Lat: 28.7, Lng: -13.9}},
	}
	candidates := []CandidateRecord{
		{Name: "A", Position: geo.Position{Lat: 28.0005, Lng: -14.0003}, SourceID: "S1"},
		{Name: "Point", Position: geo.Position{Lat: 28.2004, Lng: -14.2002}, SourceID: "S1"},
	}

	res := NewResolver(ResolverConfig{Overrides: DefaultOverrides()}).ResolveCorrelations(entities, candidates)

	require.Len(t, res.Correlations, 2)
	assert.Equal(t, "a", res.Correlations[0].MatchedID)
	assert.Equal(t, "point", res.Correlations[1].MatchedID)
	for _, c := range res.Correlations {
		assert.Equal(t, MethodScored, c.Method)
		assert.Less(t, c.DistanceKm, 1.0)
	}
}

func TestOverrideOrderFirstMatchWins(t *testing.T) {
	table := NewOverrideTable([]OverrideEntry{
		{Alias: "cotillo", EntityID: "first"},
		{Alias: "piedra playa el cotillo", EntityID: "second"},
	})
	entry, ok := table.Lookup("Piedra Playa El Cotillo", knownIDs("first", "second"))
	require.True(t, ok)
	assert.Equal(t, "first", entry.EntityID)
}

func TestOverrideSkipsUnknownTargets(t *testing.T) {
	table := NewOverrideTable([]OverrideEntry{
		{Alias: "lobos", EntityID: "ghost"},
		{Alias: "los lobos", EntityID: "isla-de-lobos"},
	})
	known := knownIDs("isla-de-lobos")

	entry, ok := table.Lookup("Los Lobos", known)
	require.True(t, ok)
	assert.Equal(t, "isla-de-lobos", entry.EntityID)

	missing := table.MissingTargets(known)
	require.Len(t, missing, 1)
	assert.Equal(t, "ghost", missing[0].EntityID)
}

func TestNewOverrideTableDropsBlankEntries(t *testing.T) {
	table := NewOverrideTable([]OverrideEntry{
		{Alias: " - ", EntityID: "x"},
		{Alias: "valid", EntityID: ""},
		{Alias: "valid", EntityID: "y"},
	})
	assert.Equal(t, 1, table.Len())

	var nilTable *OverrideTable
	_, ok := nilTable.Lookup("anything", nil)
	assert.False(t, ok)
	assert.Zero(t, nilTable.Len())
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	content := `overrides:
  - alias: machanicho
    entity_id: majanicho
  - alias: rocky point
    entity_id: punta-elena
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadOverrides(path)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "machanicho", table.Entries()[0].Alias)
	assert.Equal(t, "punta-elena", table.Entries()[1].EntityID)

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
