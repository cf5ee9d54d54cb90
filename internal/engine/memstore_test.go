package engine

import (
	"context"
	"time"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

// memStore is an in-memory storage.Store for engine tests.
type memStore struct {
	domains   []types.Domain
	responses map[string][]types.Response
	notes     map[string][]types.MemoryNote

	tensors    map[string]*types.TensorRecord
	series     []types.SeriesPoint
	accesses   []time.Time
	anomalies  []*types.SentimentAnomaly
	drift      map[string][]types.DriftResult
	alerts     []*types.DriftAlert
	consensus  map[string][]types.ConsensusScore
	agreements map[string]*types.ModelAgreement
	insights   []*types.ConsensusInsight

	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		responses:  make(map[string][]types.Response),
		notes:      make(map[string][]types.MemoryNote),
		tensors:    make(map[string]*types.TensorRecord),
		drift:      make(map[string][]types.DriftResult),
		consensus:  make(map[string][]types.ConsensusScore),
		agreements: make(map[string]*types.ModelAgreement),
	}
}

func tensorKey(domainID string, tensorType types.TensorType) string {
	return domainID + "/" + string(tensorType)
}

func (s *memStore) ListDomains(ctx context.Context) ([]types.Domain, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.domains, nil
}

func (s *memStore) ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []types.Response
	for _, r := range s.responses[domainID] {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListMemoryNotes(ctx context.Context, domainID string, limit int) ([]types.MemoryNote, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	notes := s.notes[domainID]
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

func (s *memStore) UpsertTensor(ctx context.Context, record *types.TensorRecord) error {
	copied := *record
	s.tensors[tensorKey(record.DomainID, record.TensorType)] = &copied
	return nil
}

func (s *memStore) GetTensor(ctx context.Context, domainID string, tensorType types.TensorType) (*types.TensorRecord, error) {
	record, ok := s.tensors[tensorKey(domainID, tensorType)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *memStore) ListStaleTensors(ctx context.Context, olderThan time.Time) ([]types.TensorRecord, error) {
	var out []types.TensorRecord
	for _, record := range s.tensors {
		if record.TensorType == types.TensorMemory && record.LastAccessedAt.Before(olderThan) {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (s *memStore) UpdateTensorRecency(ctx context.Context, id string, recency, composite float64, accessedAt time.Time) error {
	for _, record := range s.tensors {
		if record.ID == id {
			record.SubScores[types.ScoreRecency] = recency
			record.Composite = composite
			record.LastAccessedAt = accessedAt
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) AppendSeriesPoint(ctx context.Context, point types.SeriesPoint) error {
	s.series = append(s.series, point)
	return nil
}

func (s *memStore) ListSeriesPoints(ctx context.Context, domainID string, tensorType types.TensorType, since time.Time) ([]types.SeriesPoint, error) {
	var out []types.SeriesPoint
	for _, p := range s.series {
		if p.DomainID == domainID && p.TensorType == tensorType && !p.At.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) AppendAccessPattern(ctx context.Context, domainID string, at time.Time) error {
	s.accesses = append(s.accesses, at)
	return nil
}

func (s *memStore) RecordAnomaly(ctx context.Context, anomaly *types.SentimentAnomaly) error {
	s.anomalies = append(s.anomalies, anomaly)
	return nil
}

func (s *memStore) AppendDriftResult(ctx context.Context, result *types.DriftResult) error {
	// Newest first, matching the storage contract.
	s.drift[result.DomainID] = append([]types.DriftResult{*result}, s.drift[result.DomainID]...)
	return nil
}

func (s *memStore) ListDriftResults(ctx context.Context, domainID string, limit int) ([]types.DriftResult, error) {
	results := s.drift[domainID]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *memStore) CreateAlert(ctx context.Context, alert *types.DriftAlert) error {
	copied := *alert
	s.alerts = append(s.alerts, &copied)
	return nil
}

func (s *memStore) AcknowledgeAlert(ctx context.Context, id string) error {
	for _, alert := range s.alerts {
		if alert.ID == id {
			if alert.AcknowledgedAt == nil {
				now := time.Now()
				alert.AcknowledgedAt = &now
			}
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) ResolveAlert(ctx context.Context, id string) error {
	for _, alert := range s.alerts {
		if alert.ID == id {
			if alert.ResolvedAt == nil {
				now := time.Now()
				alert.ResolvedAt = &now
			}
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) AppendConsensusScore(ctx context.Context, score *types.ConsensusScore) error {
	s.consensus[score.DomainID] = append([]types.ConsensusScore{*score}, s.consensus[score.DomainID]...)
	return nil
}

func (s *memStore) ListConsensusScores(ctx context.Context, domainID string, limit int) ([]types.ConsensusScore, error) {
	scores := s.consensus[domainID]
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

func (s *memStore) UpsertModelAgreement(ctx context.Context, agreement *types.ModelAgreement) error {
	copied := *agreement
	s.agreements[agreement.DomainID+"/"+agreement.ModelA+"/"+agreement.ModelB] = &copied
	return nil
}

func (s *memStore) CreateInsight(ctx context.Context, insight *types.ConsensusInsight) error {
	copied := *insight
	s.insights = append(s.insights, &copied)
	return nil
}

func (s *memStore) Close() error { return nil }
