// Package store reads and updates the canonical surf-spot dataset.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/validation"
)

// ErrEntityNotFound is returned when a proposal names an entity the dataset lacks.
var ErrEntityNotFound = errors.New("entity not found")

// coordinatePrecision is the number of decimals written for applied positions.
const coordinatePrecision = 1e7

// dataset layout. Fields not listed here are carried through untouched.
type spotRecord struct {
	ID               string         `json:"id"`
	PrimaryName      string         `json:"primaryName"`
	AlternativeNames []string       `json:"alternativeNames"`
	Location         locationRecord `json:"location"`
}

type locationRecord struct {
	Area        string            `json:"area"`
	Coordinates coordinatesRecord `json:"coordinates"`
}

type coordinatesRecord struct {
	Lat      interface{} `json:"lat"`
	Lng      interface{} `json:"lng"`
	Accuracy string      `json:"accuracy"`
}

// FileStore is a JSON dataset on disk guarded by an advisory lock file
type FileStore struct {
	path        string
	lock        *flock.Flock
	allowReview bool
}

// NewFileStore opens the dataset at path. The file is read on demand.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// AllowReview makes ApplyProposals also write proposals flagged for review.
func (s *FileStore) AllowReview(allow bool) *FileStore {
	s.allowReview = allow
	return s
}

// Path returns the dataset location.
func (s *FileStore) Path() string {
	return s.path
}

// LoadEntities reads every spot in file order. Coordinates that cannot be
// parsed load as NaN so that the resolver reports them.
func (s *FileStore) LoadEntities(ctx context.Context) ([]match.CanonicalEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock dataset %s: %w", s.path, err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", s.path, err)
	}

	var doc struct {
		Spots []spotRecord `json:"spots"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", s.path, err)
	}

	entities := make([]match.CanonicalEntity, 0, len(doc.Spots))
	for _, r := range doc.Spots {
		pos, err := validation.ParsePosition(r.Location.Coordinates.Lat, r.Location.Coordinates.Lng)
		if err != nil {
			debug.Logger().Warn().Str("id", r.ID).Err(err).Msg("unreadable coordinates in dataset")
			pos = geo.Position{Lat: math.NaN(), Lng: math.NaN()}
		}
		entities = append(entities, match.CanonicalEntity{
			ID:               r.ID,
			PrimaryName:      r.PrimaryName,
			AlternativeNames: r.AlternativeNames,
			Position:         pos,
			Accuracy:         match.Accuracy(r.Location.Coordinates.Accuracy),
			Area:             r.Location.Area,
		})
	}

	return entities, nil
}

// ApplyProposals writes proposed positions and accuracy labels into the
// dataset and returns how many were applied. Proposals flagged for review are
// skipped unless AllowReview was set. The file is replaced atomically and is
// left unchanged when any proposal names an unknown entity.
func (s *FileStore) ApplyProposals(ctx context.Context, proposals []match.ConsensusProposal) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := s.lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock dataset %s: %w", s.path, err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read dataset %s: %w", s.path, err)
	}

	var doc object
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse dataset %s: %w", s.path, err)
	}
	rawSpots, _ := doc.get("spots")
	var spots []object
	if err := json.Unmarshal(rawSpots, &spots); err != nil {
		return 0, fmt.Errorf("failed to parse spots in %s: %w", s.path, err)
	}

	index := make(map[string]int, len(spots))
	for i, spot := range spots {
		var id string
		if raw, ok := spot.get("id"); ok && json.Unmarshal(raw, &id) == nil {
			index[id] = i
		}
	}

	applied := 0
	for _, p := range proposals {
		if p.RequiresReview && !s.allowReview {
			debug.Logger().Info().Str("id", p.EntityID).Msg("skipping proposal that requires review")
			continue
		}
		i, ok := index[p.EntityID]
		if !ok {
			return 0, fmt.Errorf("apply proposal for %q: %w", p.EntityID, ErrEntityNotFound)
		}
		if err := applyToSpot(&spots[i], p); err != nil {
			return 0, fmt.Errorf("apply proposal for %q: %w", p.EntityID, err)
		}
		applied++
	}

	if applied == 0 {
		return 0, nil
	}

	if err := doc.set("spots", spots); err != nil {
		return 0, err
	}
	if err := writeAtomic(s.path, doc); err != nil {
		return 0, err
	}
	return applied, nil
}

// applyToSpot rewrites location.coordinates, keeping every other key in place.
func applyToSpot(spot *object, p match.ConsensusProposal) error {
	var location object
	if raw, ok := spot.get("location"); ok {
		if err := json.Unmarshal(raw, &location); err != nil {
			return fmt.Errorf("parse location: %w", err)
		}
	}
	var coordinates object
	if raw, ok := location.get("coordinates"); ok {
		if err := json.Unmarshal(raw, &coordinates); err != nil {
			return fmt.Errorf("parse coordinates: %w", err)
		}
	}

	if err := coordinates.set("lat", round(p.Proposed.Lat)); err != nil {
		return err
	}
	if err := coordinates.set("lng", round(p.Proposed.Lng)); err != nil {
		return err
	}
	if err := coordinates.set("accuracy", string(p.Accuracy)); err != nil {
		return err
	}
	if err := location.set("coordinates", coordinates); err != nil {
		return err
	}
	return spot.set("location", location)
}

func round(v float64) float64 {
	return math.Round(v*coordinatePrecision) / coordinatePrecision
}

// writeAtomic writes v as indented JSON to a temporary file beside path and
// renames it into place.
func writeAtomic(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp dataset: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}
