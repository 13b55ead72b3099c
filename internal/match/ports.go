package match

import "context"

// SourceLoader supplies candidate records from one or more external sources.
// Per-record problems are returned as diagnostics; the error is reserved for
// failures that make the whole load unusable.
type SourceLoader interface {
	LoadCandidates(ctx context.Context) ([]CandidateRecord, []Diagnostic, error)
}

// CanonicalStore reads the canonical dataset and persists accepted proposals.
type CanonicalStore interface {
	LoadEntities(ctx context.Context) ([]CanonicalEntity, error)
	ApplyProposals(ctx context.Context, proposals []ConsensusProposal) (int, error)
}

// ReportSink receives a finished run.
type ReportSink interface {
	Write(ctx context.Context, run *Run) error
}
