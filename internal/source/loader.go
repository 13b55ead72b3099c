// Package source reads candidate lists exported by the map scrapers.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/validation"
)

// Spec names one source file. An empty ID is taken from the file's
// source_info block, then from the file name.
type Spec struct {
	ID   string
	Path string
}

// document is the scraper export layout.
type document struct {
	SourceInfo map[string]interface{} `json:"source_info"`
	SurfSpots  []spot                 `json:"surf_spots"`
}

type spot struct {
	Name        string `json:"name"`
	GPS         *gps   `json:"gps"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// gps accepts numbers or numeric strings; both occur in the exports.
type gps struct {
	Latitude  interface{} `json:"latitude"`
	Longitude interface{} `json:"longitude"`
}

// FileLoader loads candidates from scraper export files in order
type FileLoader struct {
	specs []Spec
}

// NewFileLoader creates a loader over the given files.
func NewFileLoader(specs ...Spec) *FileLoader {
	return &FileLoader{specs: specs}
}

// LoadCandidates reads every file. A file that cannot be read or parsed fails
// the load; a record with unusable coordinates becomes a diagnostic.
func (l *FileLoader) LoadCandidates(ctx context.Context) ([]match.CandidateRecord, []match.Diagnostic, error) {
	candidates := []match.CandidateRecord{}
	var diags []match.Diagnostic

	for _, spec := range l.specs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read source %s: %w", spec.Path, err)
		}

		fallbackID := strings.TrimSuffix(filepath.Base(spec.Path), filepath.Ext(spec.Path))
		c, d, err := Decode(bytes.NewReader(data), spec.ID, fallbackID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse source %s: %w", spec.Path, err)
		}

		debug.Logger().Debug().
			Str("source", spec.Path).
			Int("candidates", len(c)).
			Int("diagnostics", len(d)).
			Msg("loaded source")

		candidates = append(candidates, c...)
		diags = append(diags, d...)
	}

	return candidates, diags, nil
}

// Decode parses one scraper export. sourceID wins over the document's
// source_info; fallbackID is used when neither names the source.
func Decode(r io.Reader, sourceID, fallbackID string) ([]match.CandidateRecord, []match.Diagnostic, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, err
	}

	if sourceID == "" {
		sourceID = infoName(doc.SourceInfo)
	}
	if sourceID == "" {
		sourceID = fallbackID
	}

	candidates := make([]match.CandidateRecord, 0, len(doc.SurfSpots))
	var diags []match.Diagnostic

	for i, s := range doc.SurfSpots {
		if s.GPS == nil {
			diags = append(diags, match.Diagnostic{
				Kind:     match.DiagInvalidCandidate,
				SourceID: sourceID,
				Index:    i,
				Name:     s.Name,
				Reason:   "missing gps",
			})
			continue
		}

		pos, err := validation.ParsePosition(s.GPS.Latitude, s.GPS.Longitude)
		if err != nil {
			diags = append(diags, match.Diagnostic{
				Kind:     match.DiagInvalidCandidate,
				SourceID: sourceID,
				Index:    i,
				Name:     s.Name,
				Reason:   err.Error(),
			})
			continue
		}

		candidates = append(candidates, match.CandidateRecord{
			Name:        strings.TrimSpace(s.Name),
			Position:    pos,
			SourceID:    sourceID,
			Description: s.Description,
			URL:         s.URL,
		})
	}

	return candidates, diags, nil
}

func infoName(info map[string]interface{}) string {
	for _, key := range []string{"site", "website_name"} {
		if v, ok := info[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
