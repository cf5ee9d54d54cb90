package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

// DecaySweeper ages down the recency of memory tensors that have not been
// accessed recently. Each sweep multiplies a stale tensor's recency by its
// stored decay rate and recomputes the composite from the stored
// sub-scores; this is the only operation that mutates a tensor record
// without a full recompute.
type DecaySweeper struct {
	sink       storage.ScoreSink
	staleAfter time.Duration
	now        func() time.Time
}

// NewDecaySweeper creates a sweeper that decays tensors untouched for
// longer than staleAfter. A non-positive staleAfter defaults to 24 hours.
func NewDecaySweeper(sink storage.ScoreSink, staleAfter time.Duration) *DecaySweeper {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &DecaySweeper{sink: sink, staleAfter: staleAfter, now: time.Now}
}

// Run decays every stale memory tensor and returns how many were updated.
// A failure on one tensor is logged and skipped so it cannot block the rest
// of the sweep; listing failures propagate.
func (s *DecaySweeper) Run(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.sink.ListStaleTensors(ctx, now.Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("engine: decay: list stale tensors: %w", err)
	}

	var updated int
	for _, record := range stale {
		rate := record.DecayRate
		if rate <= 0 || rate > 1 {
			rate = types.DefaultDecayRate
		}
		recency := clamp01(record.SubScores[types.ScoreRecency] * rate)
		composite := memoryComposite(
			recency,
			record.SubScores[types.ScoreFrequency],
			record.SubScores[types.ScoreSignificance],
			record.SubScores[types.ScorePersistence],
		)
		if err := s.sink.UpdateTensorRecency(ctx, record.ID, recency, composite, now); err != nil {
			log.Printf("decay sweep: tensor %s: %v", record.ID, err)
			continue
		}
		updated++
	}
	return updated, nil
}
