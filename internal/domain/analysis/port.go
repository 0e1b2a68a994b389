package analysis

import (
	"context"
	"encoding/json"
)

// Classifier port: one backend adapter.
// Raw is the optional upstream payload kept for debugging.
type Classifier interface {
	Classify(ctx context.Context, req AnalysisRequest) (NormalizedResult, json.RawMessage, error)
}

// ClassifierFunc adapts a function to Classifier
type ClassifierFunc func(ctx context.Context, req AnalysisRequest) (NormalizedResult, json.RawMessage, error)

func (f ClassifierFunc) Classify(ctx context.Context, req AnalysisRequest) (NormalizedResult, json.RawMessage, error) {
	return f(ctx, req)
}

// Registry maps backend id to its adapter
type Registry map[BackendID]Classifier

// IDs returns the registered ids in sorted order.
func (r Registry) IDs() []BackendID {
	out := make([]BackendID, 0, len(r))
	for id := range r {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// List limits shared by every Repository implementation.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit applies the default and the cap to a List limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Repository port (Result Store). Put is write-once per id.
type Repository interface {
	Put(ctx context.Context, r *CombinedAnalysisResult) error
	Get(ctx context.Context, id AnalysisID) (*CombinedAnalysisResult, error)
	List(ctx context.Context, limit int) ([]*CombinedAnalysisResult, error)
}

// FailureReporter port for the observability collaborator.
// Implementations must not block the caller for long and must not panic.
type FailureReporter interface {
	ReportFailure(ctx context.Context, id AnalysisID, f BackendFailure)
}

// FailureLog reads back what a persistent FailureReporter recorded, newest first.
type FailureLog interface {
	ListByAnalysis(ctx context.Context, id AnalysisID, limit int) ([]BackendFailure, error)
}

// ArchiveStore port (penyimpanan dokumen hasil analisis)
type ArchiveStore interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// MultiReporter fans a failure out to every reporter
type MultiReporter []FailureReporter

func (m MultiReporter) ReportFailure(ctx context.Context, id AnalysisID, f BackendFailure) {
	for _, r := range m {
		if r != nil {
			r.ReportFailure(ctx, id, f)
		}
	}
}

// MarshalDocument serializes a result for stores that keep it as one JSON document.
func MarshalDocument(r *CombinedAnalysisResult) ([]byte, error) {
	return json.Marshal(r)
}

// Canonical returns r in its stored form: one MarshalDocument/UnmarshalDocument
// pass. Raw payloads come back compacted, empty omitempty slices come back nil
// and Context values take their JSON types, so every store returns the same value.
func Canonical(r *CombinedAnalysisResult) (*CombinedAnalysisResult, error) {
	b, err := MarshalDocument(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalDocument(b)
}

// UnmarshalDocument is the inverse of MarshalDocument.
func UnmarshalDocument(b []byte) (*CombinedAnalysisResult, error) {
	var r CombinedAnalysisResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
