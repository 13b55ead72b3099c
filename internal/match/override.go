package match

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-yaml"

	"github.com/spotmatch/internal/normalize"
)

// OverrideEntry maps a known alias or misspelling straight to an entity ID.
type OverrideEntry struct {
	Alias    string `yaml:"alias" json:"alias"`
	EntityID string `yaml:"entity_id" json:"entity_id"`

	key string
}

// OverrideTable is an ordered list of aliases checked before any scoring.
// Order matters: the first matching entry wins.
type OverrideTable struct {
	entries []OverrideEntry
}

// DefaultOverrides returns the curated Fuerteventura alias table. The broad
// "cotillo" alias is kept last so that the more specific entries win.
func DefaultOverrides() *OverrideTable {
	return NewOverrideTable([]OverrideEntry{
		{Alias: "machanicho", EntityID: "majanicho"},
		{Alias: "el hiero", EntityID: "la-izquierda-del-hierro"},
		{Alias: "piedra playa el cotillo", EntityID: "el-cotillo-piedra-playa"},
		{Alias: "playa ultima - el cotillo", EntityID: "el-cotillo-piedra-playa"},
		{Alias: "rocky point", EntityID: "punta-elena"},
		{Alias: "punta helena", EntityID: "punta-elena"},
		{Alias: "los lobos", EntityID: "isla-de-lobos"},
		{Alias: "cotillo", EntityID: "el-cotillo-piedra-playa"},
	})
}

// NewOverrideTable builds a table, dropping entries whose alias normalizes to nothing.
func NewOverrideTable(entries []OverrideEntry) *OverrideTable {
	t := &OverrideTable{}
	for _, e := range entries {
		e.key = normalize.Name(e.Alias, normalize.ModeFallback)
		if e.key == "" || e.EntityID == "" {
			continue
		}
		t.entries = append(t.entries, e)
	}
	return t
}

// overrideFile is the on-disk YAML layout.
type overrideFile struct {
	Overrides []OverrideEntry `yaml:"overrides"`
}

// LoadOverrides reads an override table from a YAML file of the form
//
//	overrides:
//	  - alias: machanicho
//	    entity_id: majanicho
func LoadOverrides(path string) (*OverrideTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read override table %s: %w", path, err)
	}

	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse override table %s: %w", path, err)
	}

	return NewOverrideTable(f.Overrides), nil
}

// Entries returns a copy of the table in lookup order.
func (t *OverrideTable) Entries() []OverrideEntry {
	if t == nil {
		return nil
	}
	out := make([]OverrideEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of usable entries.
func (t *OverrideTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the first entry whose alias contains, or is contained by, the
// candidate's fallback-normalized name and whose target passes known.
// Entries pointing at unknown entities are skipped. A name found inside an
// alias must cover at least half of it, so "a" or "point" never claim
// "machanicho" or "rocky point".
func (t *OverrideTable) Lookup(candidateName string, known func(entityID string) bool) (OverrideEntry, bool) {
	if t == nil {
		return OverrideEntry{}, false
	}

	name := normalize.Name(candidateName, normalize.ModeFallback)
	if name == "" {
		return OverrideEntry{}, false
	}

	for _, e := range t.entries {
		if !aliasMatches(name, e.key) {
			continue
		}
		if known != nil && !known(e.EntityID) {
			continue
		}
		return e, true
	}
	return OverrideEntry{}, false
}

func aliasMatches(name, key string) bool {
	if strings.Contains(name, key) {
		return true
	}
	if !strings.Contains(key, name) {
		return false
	}
	n := utf8.RuneCountInString(name)
	return n >= minContainedRunes && 2*n >= utf8.RuneCountInString(key)
}

// minContainedRunes is the shortest name accepted inside a longer alias.
const minContainedRunes = 3

// MissingTargets lists entries whose entity is not among the known IDs.
func (t *OverrideTable) MissingTargets(known func(entityID string) bool) []OverrideEntry {
	if t == nil || known == nil {
		return nil
	}
	var missing []OverrideEntry
	for _, e := range t.entries {
		if !known(e.EntityID) {
			missing = append(missing, e)
		}
	}
	return missing
}
