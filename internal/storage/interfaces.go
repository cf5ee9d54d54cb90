// Package storage provides composable storage interfaces for the tensorcore
// system.
//
// The layer is split along the core's two external contracts: ResponseStore
// is the inbound corpus supplier and ScoreSink receives computed scores and
// alerts. Engines take these interfaces as constructor arguments and never
// perform DDL; schema management belongs to the MigrationManager, run once
// at process start.
package storage

import (
	"context"
	"time"

	"github.com/modelmind/tensorcore/pkg/types"
)

// ResponseStore supplies the response corpus and auxiliary memory notes for
// a domain. All methods are read-only.
type ResponseStore interface {
	// ListDomains returns every domain known to the store, for sweep
	// enumeration. Ordered by most recently updated first.
	ListDomains(ctx context.Context) ([]types.Domain, error)

	// ListResponses returns the responses for a domain created at or after
	// since, ordered by creation time ascending.
	ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error)

	// ListMemoryNotes returns up to limit of the most recent memory notes
	// for a domain, newest first.
	ListMemoryNotes(ctx context.Context, domainID string, limit int) ([]types.MemoryNote, error)
}

// ScoreSink persists computed tensors, drift results, consensus scores,
// alerts and insights.
//
// UpsertTensor must be atomic and last-writer-wins at the storage layer;
// engines rely on that guarantee instead of taking locks.
type ScoreSink interface {
	// UpsertTensor writes the current tensor record for the record's
	// (domain, tensor type) pair, replacing any previous record.
	UpsertTensor(ctx context.Context, record *types.TensorRecord) error

	// GetTensor returns the current tensor record for a (domain, tensor
	// type) pair. Returns ErrNotFound when none has been computed yet.
	GetTensor(ctx context.Context, domainID string, tensorType types.TensorType) (*types.TensorRecord, error)

	// ListStaleTensors returns memory tensor records whose last access is
	// strictly before olderThan. Used by the decay sweep.
	ListStaleTensors(ctx context.Context, olderThan time.Time) ([]types.TensorRecord, error)

	// UpdateTensorRecency overwrites the recency sub-score and composite of
	// an existing tensor record and stamps accessedAt. This is the only
	// operation that mutates a tensor record without a full recompute.
	UpdateTensorRecency(ctx context.Context, id string, recency, composite float64, accessedAt time.Time) error

	// AppendSeriesPoint appends one observation to a tensor's time series.
	AppendSeriesPoint(ctx context.Context, point types.SeriesPoint) error

	// ListSeriesPoints returns series observations for a (domain, tensor
	// type) pair at or after since, oldest first.
	ListSeriesPoints(ctx context.Context, domainID string, tensorType types.TensorType, since time.Time) ([]types.SeriesPoint, error)

	// AppendAccessPattern records one read-through access of a domain's
	// memory tensor.
	AppendAccessPattern(ctx context.Context, domainID string, at time.Time) error

	// RecordAnomaly appends a sentiment anomaly record.
	RecordAnomaly(ctx context.Context, anomaly *types.SentimentAnomaly) error

	// AppendDriftResult appends one drift detection result.
	AppendDriftResult(ctx context.Context, result *types.DriftResult) error

	// ListDriftResults returns up to limit of the most recent drift results
	// for a domain, newest first.
	ListDriftResults(ctx context.Context, domainID string, limit int) ([]types.DriftResult, error)

	// CreateAlert persists a new drift alert.
	CreateAlert(ctx context.Context, alert *types.DriftAlert) error

	// AcknowledgeAlert stamps acknowledged_at on an alert. Returns
	// ErrNotFound if the alert does not exist. Acknowledging twice is a
	// no-op that preserves the original timestamp.
	AcknowledgeAlert(ctx context.Context, id string) error

	// ResolveAlert stamps resolved_at on an alert. Same semantics as
	// AcknowledgeAlert.
	ResolveAlert(ctx context.Context, id string) error

	// AppendConsensusScore appends one consensus scoring result.
	AppendConsensusScore(ctx context.Context, score *types.ConsensusScore) error

	// ListConsensusScores returns up to limit of the most recent consensus
	// scores for a domain, newest first.
	ListConsensusScores(ctx context.Context, domainID string, limit int) ([]types.ConsensusScore, error)

	// UpsertModelAgreement writes an agreement matrix entry for an
	// unordered model pair, latest wins.
	UpsertModelAgreement(ctx context.Context, agreement *types.ModelAgreement) error

	// CreateInsight persists a consensus insight.
	CreateInsight(ctx context.Context, insight *types.ConsensusInsight) error
}

// Store combines both contracts over one backing database.
// The sqlite and postgres backends implement it.
type Store interface {
	ResponseStore
	ScoreSink

	// Close releases any resources held by the store.
	Close() error
}
