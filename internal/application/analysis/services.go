package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/agrivision/internal/application"
	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

// Recorder receives per-call and per-analysis measurements (prometheus in prod).
type Recorder interface {
	ObserveBackend(id domain.BackendID, d time.Duration, kind domain.ErrorKind)
	ObserveAnalysis(status domain.Status, confidence float64)
}

// Service implements the analysis use-cases.
// Safe for concurrent use; one Submit never shares mutable state with another.
type Service struct {
	Registry domain.Registry
	Repo     domain.Repository
	Reporter domain.FailureReporter
	Archive  domain.ArchiveStore // optional
	Failures domain.FailureLog   // optional, falls back to the stored document
	Metrics  Recorder            // optional
	Weights  domain.WeightTable
	Clock    application.Clock
	Logger   *zap.Logger

	// BackendTimeout bounds each branch; 0 means only the caller's ctx applies.
	BackendTimeout time.Duration
	// NewID overrides id generation (tests).
	NewID func() domain.AnalysisID
}

// Submit fans req out to the requested backends, waits for all of them (or
// ctx), builds the combined result and stores it.
//
// Backend failures never fail Submit; only configuration, validation and
// persistence errors do.
func (s *Service) Submit(ctx context.Context, req domain.AnalysisRequest) (*domain.CombinedAnalysisResult, error) {
	if len(s.Registry) == 0 {
		return nil, domain.ErrNotConfigured
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	clock := s.clock()
	start := clock.Now()
	id := s.newID()
	log := s.logger().With(zap.String("analysis_id", string(id)))

	results, failures := s.dispatch(ctx, req)

	normalized := make([]domain.NormalizedResult, 0, len(results))
	for _, r := range results {
		normalized = append(normalized, r.Result)
	}
	consensus := domain.BuildConsensus(normalized)

	draft := &domain.CombinedAnalysisResult{
		ID:              id,
		CreatedAt:       start.UTC(),
		Request:         req,
		Results:         results,
		Failures:        failures,
		Consensus:       consensus,
		Confidence:      domain.WeightedConfidence(results, s.weights()),
		ElapsedMS:       clock.Now().Sub(start).Milliseconds(),
		Recommendations: domain.Synthesize(consensus),
		Status:          domain.StatusFor(len(req.Backends), len(results)),
	}
	// simpan dalam bentuk dokumen supaya semua store mengembalikan nilai yang sama
	out, err := domain.Canonical(draft)
	if err != nil {
		log.Error("failed to encode analysis", zap.Error(err))
		return nil, fmt.Errorf("encode analysis %s: %w", id, err)
	}

	// laporan kegagalan tetap dikirim walau ctx sudah cancel
	reportCtx := context.WithoutCancel(ctx)
	if s.Reporter != nil {
		for _, f := range failures {
			s.Reporter.ReportFailure(reportCtx, id, f)
		}
	}

	s.archive(reportCtx, out, log)

	if err := s.Repo.Put(reportCtx, out); err != nil {
		log.Error("failed to store analysis", zap.Error(err))
		return nil, fmt.Errorf("store analysis %s: %w", id, err)
	}

	if s.Metrics != nil {
		s.Metrics.ObserveAnalysis(out.Status, out.Confidence)
	}
	log.Info("analysis completed",
		zap.String("status", string(out.Status)),
		zap.Int("succeeded", len(results)),
		zap.Int("failed", len(failures)),
		zap.Float64("confidence", out.Confidence),
		zap.Int64("elapsed_ms", out.ElapsedMS),
	)
	return out, nil
}

// Get returns a stored analysis or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id domain.AnalysisID) (*domain.CombinedAnalysisResult, error) {
	return s.Repo.Get(ctx, id)
}

// List returns stored analyses newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*domain.CombinedAnalysisResult, error) {
	return s.Repo.List(ctx, limit)
}

// BackendFailures returns the failures recorded for one analysis. With a
// FailureLog the list comes from it (newest first); without one it is the
// stored document's failures in request order. The analysis must exist.
func (s *Service) BackendFailures(ctx context.Context, id domain.AnalysisID, limit int) ([]domain.BackendFailure, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	limit = domain.ClampLimit(limit)
	if s.Failures != nil {
		return s.Failures.ListByAnalysis(ctx, id, limit)
	}

	if len(a.Failures) > limit {
		return a.Failures[:limit], nil
	}
	return a.Failures, nil
}

// Backends lists the registered backend ids.
func (s *Service) Backends() []domain.BackendID {
	return s.Registry.IDs()
}

// slot holds one branch outcome, indexed by request order
type slot struct {
	done    bool
	result  domain.BackendResult
	failure *domain.BackendFailure
}

// dispatch is the settle-all barrier. On ctx.Done it returns what finished so
// far and records the rest as timed out or cancelled; late branches are discarded.
func (s *Service) dispatch(ctx context.Context, req domain.AnalysisRequest) ([]domain.BackendResult, []domain.BackendFailure) {
	clock := s.clock()
	slots := make([]slot, len(req.Backends))

	var (
		mu     sync.Mutex
		closed bool
		g      errgroup.Group
	)

	for i, id := range req.Backends {
		c, ok := s.Registry[id]
		if !ok {
			slots[i] = slot{done: true, failure: &domain.BackendFailure{
				Backend: id,
				Kind:    domain.KindUnknownBackend,
				Message: fmt.Sprintf("backend %q is not registered", id),
				At:      clock.Now().UTC(),
			}}
			continue
		}

		// each branch gets its own copy so adapters cannot see each other's mutations
		branchReq := req.Clone()
		g.Go(func() error {
			r, f := s.invoke(ctx, id, c, branchReq)
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return nil
			}
			slots[i] = slot{done: true, result: r, failure: f}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	snapshot := make([]slot, len(slots))
	copy(snapshot, slots)
	mu.Unlock()

	var (
		results  []domain.BackendResult
		failures []domain.BackendFailure
	)
	for i, sl := range snapshot {
		switch {
		case !sl.done:
			failures = append(failures, domain.BackendFailure{
				Backend: req.Backends[i],
				Kind:    unfinishedKind(ctx),
				Message: fmt.Sprintf("not finished before the join ended: %v", context.Cause(ctx)),
				At:      clock.Now().UTC(),
			})
		case sl.failure != nil:
			failures = append(failures, *sl.failure)
		default:
			results = append(results, sl.result)
		}
	}
	return results, failures
}

// unfinishedKind: timeout when the caller's deadline passed, cancelled otherwise.
func unfinishedKind(ctx context.Context) domain.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return domain.KindCancelled
}

// invoke runs one adapter with panic isolation and the per-backend timeout.
func (s *Service) invoke(ctx context.Context, id domain.BackendID, c domain.Classifier, req domain.AnalysisRequest) (res domain.BackendResult, fail *domain.BackendFailure) {
	clock := s.clock()
	started := clock.Now()
	if s.BackendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.BackendTimeout)
		defer cancel()
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewBackendError(id, domain.KindPanic, fmt.Errorf("panic: %v", r))
			res = domain.BackendResult{}
		}
		elapsed := clock.Now().Sub(started)
		kind := domain.ErrorKind("")
		if err != nil {
			kind = domain.KindOf(err)
			// logged by the FailureReporter, not here
			fail = &domain.BackendFailure{Backend: id, Kind: kind, Message: err.Error(), At: clock.Now().UTC()}
		}
		if s.Metrics != nil {
			s.Metrics.ObserveBackend(id, elapsed, kind)
		}
	}()

	normalized, raw, err := c.Classify(ctx, req)
	if err == nil && ctx.Err() != nil {
		// adapter ignored ctx; treat the late answer as a timeout/cancel
		err = domain.NewBackendError(id, domain.KindOf(ctx.Err()), ctx.Err())
	}
	if err == nil {
		// hasil harus bisa disimpan sebagai dokumen (NaN, dsb. ditolak)
		if _, mErr := json.Marshal(normalized); mErr != nil {
			err = domain.NewBackendError(id, domain.KindParse, fmt.Errorf("unencodable result: %w", mErr))
		}
	}
	if err != nil {
		var be *domain.BackendError
		if !errors.As(err, &be) {
			err = domain.NewBackendError(id, domain.KindOf(err), err)
		}
		return domain.BackendResult{}, nil
	}
	raw = rawDocument(raw)
	return domain.BackendResult{
		Backend:    id,
		Timestamp:  clock.Now().UTC(),
		DurationMS: clock.Now().Sub(started).Milliseconds(),
		Result:     normalized,
		Raw:        raw,
	}, nil
}

func (s *Service) archive(ctx context.Context, out *domain.CombinedAnalysisResult, log *zap.Logger) {
	if s.Archive == nil {
		return
	}
	body, err := domain.MarshalDocument(out)
	if err != nil {
		log.Warn("failed to encode analysis for archive", zap.Error(err))
		return
	}
	key := fmt.Sprintf("analyses/%s.json", out.ID)
	url, err := s.Archive.Archive(ctx, key, body)
	if err != nil {
		log.Warn("failed to archive analysis", zap.String("key", key), zap.Error(err))
		return
	}
	log.Debug("analysis archived", zap.String("url", url))
}

// rawDocument keeps raw only when it is JSON; anything else is stored as a JSON string.
func rawDocument(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	b, _ := json.Marshal(string(raw))
	return b
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) weights() domain.WeightTable {
	if s.Weights.Weights == nil && s.Weights.Fallback == 0 {
		return domain.DefaultWeights()
	}
	return s.Weights
}

func (s *Service) newID() domain.AnalysisID {
	if s.NewID != nil {
		return s.NewID()
	}
	return domain.AnalysisID(uuid.New().String())
}
