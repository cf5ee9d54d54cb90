package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"github.com/modelmind/tensorcore/internal/storage"
)

// SweepConfig bounds a batch sweep's pressure on the shared store.
type SweepConfig struct {
	// Concurrency is how many domains are processed at once. Default 4.
	Concurrency int

	// StoreRatePerSec limits how many domain computations start per
	// second. Default 20.
	StoreRatePerSec int
}

// Normalize fills zero fields with defaults.
func (c *SweepConfig) Normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.StoreRatePerSec <= 0 {
		c.StoreRatePerSec = 20
	}
}

// SweepStats summarises one batch sweep.
type SweepStats struct {
	Domains int
	Failed  int
}

// Sweeper runs all five engines over every known domain with bounded
// concurrency. Engines for one domain run in sequence; domains run in
// parallel. One domain's failure is logged and skipped so it cannot abort
// the rest of the batch.
type Sweeper struct {
	store     storage.ResponseStore
	memory    *MemoryEngine
	sentiment *SentimentEngine
	grounding *GroundingEngine
	drift     *DriftEngine
	consensus *ConsensusEngine
	limiter   *rate.Limiter
	cfg       SweepConfig
}

// NewSweeper creates a sweeper over the given engines.
func NewSweeper(store storage.ResponseStore, memory *MemoryEngine, sentiment *SentimentEngine, grounding *GroundingEngine, drift *DriftEngine, consensus *ConsensusEngine, cfg SweepConfig) *Sweeper {
	cfg.Normalize()
	return &Sweeper{
		store:     store,
		memory:    memory,
		sentiment: sentiment,
		grounding: grounding,
		drift:     drift,
		consensus: consensus,
		limiter:   rate.NewLimiter(rate.Limit(cfg.StoreRatePerSec), cfg.StoreRatePerSec),
		cfg:       cfg,
	}
}

// Run computes all signals for every domain. The returned stats count
// domains attempted and domains that failed at least one engine; the error
// is non-nil only when the domain listing itself fails or the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) (SweepStats, error) {
	domains, err := s.store.ListDomains(ctx)
	if err != nil {
		return SweepStats{}, fmt.Errorf("engine: sweep: list domains: %w", err)
	}

	stats := SweepStats{Domains: len(domains)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.Concurrency)

	for _, domain := range domains {
		if err := s.limiter.Wait(ctx); err != nil {
			wg.Wait()
			return stats, fmt.Errorf("engine: sweep: %w", err)
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(domainID, name string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.ComputeDomain(ctx, domainID); err != nil {
				log.Printf("sweep: domain %s (%s): %v", domainID, name, err)
				mu.Lock()
				stats.Failed++
				mu.Unlock()
			}
		}(domain.ID, domain.Name)
	}
	wg.Wait()
	return stats, nil
}

// ComputeDomain runs the five engines for one domain in sequence and
// returns the first failure. Engines are independent; a failure in one
// does not corrupt the others' writes.
func (s *Sweeper) ComputeDomain(ctx context.Context, domainID string) error {
	if _, err := s.memory.Compute(ctx, domainID); err != nil {
		return err
	}
	if _, err := s.sentiment.Compute(ctx, domainID); err != nil {
		return err
	}
	if _, err := s.grounding.Compute(ctx, domainID); err != nil {
		return err
	}
	if _, err := s.drift.Detect(ctx, domainID); err != nil {
		return err
	}
	if _, err := s.consensus.Score(ctx, domainID); err != nil {
		return err
	}
	return nil
}
