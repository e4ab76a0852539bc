package resolution

import (
	"context"
	"sync"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/scoring"
	"github.com/trialmesh/aster/pkg/tracing"
)

// BatchRecord is one input line of a batch resolution
type BatchRecord struct {
	ExternalKey string           `json:"external_key" validate:"required"`
	SponsorText string           `json:"sponsor_text" validate:"required"`
	Context     *scoring.Context `json:"context,omitempty"`
}

// BatchResult is the per-record outcome of a batch resolution. Exactly one of
// Decision and Error is set.
type BatchResult struct {
	ExternalKey string           `json:"external_key"`
	Decision    *models.Decision `json:"decision,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run
type BatchSummary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Review   int `json:"review"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// ResolveBatch drains records through a bounded worker pool, emitting one
// result per record. A record failure is reported in its result and counted;
// it never aborts the batch. Cancelling the context stops intake while
// in-flight records finish. Emit is called from multiple goroutines but never
// concurrently.
func (s *Service) ResolveBatch(ctx context.Context, runID string, records <-chan BatchRecord, emit func(BatchResult)) (BatchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.ResolveBatch")
	defer span.End()

	run, err := s.NewRun(ctx, runID)
	if err != nil {
		return BatchSummary{}, err
	}
	defer s.Close(context.WithoutCancel(ctx), run)

	var (
		mu      sync.Mutex
		summary BatchSummary
		wg      sync.WaitGroup
	)

	report := func(result BatchResult, mode models.MatchMode) {
		mu.Lock()
		defer mu.Unlock()
		summary.Total++
		switch {
		case result.Error != "":
			summary.Failed++
		case mode == models.MatchModeReview:
			summary.Review++
		case mode == models.MatchModeReject:
			summary.Rejected++
		default:
			summary.Resolved++
		}
		if emit != nil {
			emit(result)
		}
	}

	for i := 0; i < s.opts.BatchWorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case record, ok := <-records:
					if !ok {
						return
					}
					s.resolveBatchRecord(ctx, run, record, report)
				}
			}
		}()
	}

	wg.Wait()
	return summary, ctx.Err()
}

func (s *Service) resolveBatchRecord(ctx context.Context, run *Run, record BatchRecord, report func(BatchResult, models.MatchMode)) {
	dec, err := s.ResolveInRun(ctx, run, ResolveRequest{
		RunID:       run.ID,
		ExternalKey: record.ExternalKey,
		SponsorText: record.SponsorText,
		Context:     record.Context,
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":       run.ID,
			"external_key": record.ExternalKey,
		}).Error("Batch record failed")
		report(BatchResult{ExternalKey: record.ExternalKey, Error: err.Error()}, "")
		return
	}

	report(BatchResult{ExternalKey: record.ExternalKey, Decision: dec}, dec.Mode)
}
