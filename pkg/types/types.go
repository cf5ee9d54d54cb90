// Package types defines the shared domain model for the tensorcore system.
//
// The core ingests timestamped responses that independent language models
// produced about a subject ("domain") and reduces them to bounded numeric
// signals. Everything in this package is a plain data type: engines consume
// Responses and MemoryNotes read-only and write tensor, drift and consensus
// records through the storage layer.
package types

import (
	"errors"
	"time"
)

// ErrInvalidScore indicates a score outside the [0,1] range.
var ErrInvalidScore = errors.New("score must be within [0,1]")

// Alert priorities for memory notes and drift alerts, lowest to highest.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// NoteTypeSynthesis marks notes produced by cross-response synthesis.
// Synthesis notes carry extra weight in the memory significance score.
const NoteTypeSynthesis = "synthesis"

// Domain is a subject under analysis. Domains are created by the crawler
// layer and are read-only to the core.
type Domain struct {
	// ID uniquely identifies the domain.
	ID string

	// Name is the display name of the subject.
	Name string

	// Cohort groups peer domains for comparison.
	Cohort string

	// CreatedAt is when the domain was first registered.
	CreatedAt time.Time
}

// Response is one model's answer about one domain at one time.
// Responses are immutable once created; they are produced by the external
// response supplier and consumed read-only by all five engines.
type Response struct {
	// ID uniquely identifies the response.
	ID string

	// DomainID references the domain the response is about.
	DomainID string

	// Model is the name of the language model that produced the response.
	Model string

	// PromptType identifies which prompt template elicited the response.
	PromptType string

	// Content is the free-text response body.
	Content string

	// Fingerprint is a content-similarity hash. Two responses with equal
	// fingerprints are treated as identical by the agreement scorers.
	Fingerprint string

	// Confidence is the model's self-reported confidence in [0,1].
	Confidence float64

	// Embedding is an optional fixed-length vector. When present its length
	// must equal the system-wide embedding dimension.
	Embedding []float64

	// ResponseTimeMs is the provider latency for this response.
	ResponseTimeMs int

	// CreatedAt is when the response was collected.
	CreatedAt time.Time
}

// MemoryNote is a derived annotation about a domain. Notes are produced by
// the analysis layer and are read-only inputs to the memory and sentiment
// engines.
type MemoryNote struct {
	// ID uniquely identifies the note.
	ID string

	// DomainID references the annotated domain.
	DomainID string

	// Type classifies the note (e.g. "analysis", "synthesis").
	Type string

	// Content is the free-text note body.
	Content string

	// Patterns lists semantic patterns detected in the corpus. The drift
	// detector compares pattern confidence between time windows.
	Patterns []string

	// Relationships holds loosely structured key/value findings.
	Relationships map[string]string

	// Confidence is the note's confidence in [0,1].
	Confidence float64

	// Effectiveness measures how useful the note proved in [0,1].
	Effectiveness float64

	// AlertPriority is one of the Priority* constants.
	AlertPriority string

	// AccessCount is the number of times the note has been read back.
	AccessCount int

	// LastAccessedAt is when the note was last read, if ever.
	LastAccessedAt *time.Time

	// CreatedAt is when the note was created.
	CreatedAt time.Time
}

// HighPriority reports whether the note carries high or critical priority.
func (n *MemoryNote) HighPriority() bool {
	return n.AlertPriority == PriorityHigh || n.AlertPriority == PriorityCritical
}
