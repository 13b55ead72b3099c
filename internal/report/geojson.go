package report

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/spotmatch/internal/match"
)

// Feature kinds written to the "kind" property.
const (
	KindCorrelation  = "correlation"
	KindNewDiscovery = "new_discovery"
	KindProposal     = "proposal"
)

// FeatureCollection maps correlations, unmatched candidates and proposals onto
// GeoJSON. Proposals become a line from the stored to the proposed position.
func FeatureCollection(correlations []match.CorrelationRecord, discoveries []match.CandidateRecord, proposals []match.ConsensusProposal) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, c := range correlations {
		f := geojson.NewFeature(c.CandidatePosition.Point())
		f.Properties["kind"] = KindCorrelation
		f.Properties["name"] = c.CandidateName
		f.Properties["source_id"] = c.SourceID
		f.Properties["matched_id"] = c.MatchedID
		f.Properties["matched_name"] = c.MatchedName
		f.Properties["confidence"] = string(c.Confidence)
		f.Properties["method"] = string(c.Method)
		f.Properties["score"] = c.Score
		f.Properties["distance_km"] = c.DistanceKm
		fc.Append(f)
	}

	for _, c := range discoveries {
		f := geojson.NewFeature(c.Position.Point())
		f.Properties["kind"] = KindNewDiscovery
		f.Properties["name"] = c.Name
		f.Properties["source_id"] = c.SourceID
		if c.URL != "" {
			f.Properties["url"] = c.URL
		}
		fc.Append(f)
	}

	for _, p := range proposals {
		f := geojson.NewFeature(orb.LineString{p.Current.Point(), p.Proposed.Point()})
		f.Properties["kind"] = KindProposal
		f.Properties["entity_id"] = p.EntityID
		f.Properties["name"] = p.EntityName
		f.Properties["accuracy"] = string(p.Accuracy)
		f.Properties["variance_m"] = p.VarianceMeters
		f.Properties["improvement_m"] = p.ImprovementMeters
		f.Properties["supporting_matches"] = p.SupportingMatchCount
		f.Properties["requires_review"] = p.RequiresReview
		fc.Append(f)
	}

	return fc
}

// RunFeatures is FeatureCollection over a finished run.
func RunFeatures(run *match.Run) *geojson.FeatureCollection {
	return FeatureCollection(run.Resolution.Correlations, run.Resolution.UnmatchedCandidates, run.Proposals)
}
