package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero_uses_default", 0, storage.DefaultListLimit},
		{"negative_uses_default", -5, storage.DefaultListLimit},
		{"in_range_passes", 25, 25},
		{"above_max_clamps", 10000, storage.MaxListLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, storage.NormalizeLimit(tc.limit))
		})
	}
}

// failingStore always errors, to exercise the breaker trip path.
type failingStore struct {
	calls int
}

func (f *failingStore) ListDomains(ctx context.Context) ([]types.Domain, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func (f *failingStore) ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func (f *failingStore) ListMemoryNotes(ctx context.Context, domainID string, limit int) ([]types.MemoryNote, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerStoreTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &failingStore{}
	store := storage.NewBreakerStoreWithConfig(inner, storage.BreakerConfig{
		MaxFailures:          3,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.ListResponses(ctx, "dom-1", time.Time{})
		require.Error(t, err)
		require.NotErrorIs(t, err, storage.ErrCircuitOpen)
	}

	// The circuit is now open: the inner store must not be called again.
	before := inner.calls
	_, err := store.ListResponses(ctx, "dom-1", time.Time{})
	assert.ErrorIs(t, err, storage.ErrCircuitOpen)
	assert.Equal(t, before, inner.calls)
	assert.Equal(t, "open", store.State())
}

func TestBreakerStorePassesThroughSuccesses(t *testing.T) {
	store := storage.NewBreakerStore(okStore{})

	domains, err := store.ListDomains(context.Background())
	require.NoError(t, err)
	assert.Len(t, domains, 1)
	assert.Equal(t, "closed", store.State())
}

// okStore returns a single canned domain.
type okStore struct{}

func (okStore) ListDomains(ctx context.Context) ([]types.Domain, error) {
	return []types.Domain{{ID: "dom-1", Name: "example"}}, nil
}

func (okStore) ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error) {
	return nil, nil
}

func (okStore) ListMemoryNotes(ctx context.Context, domainID string, limit int) ([]types.MemoryNote, error) {
	return nil, nil
}

func TestBreakerStoreHonorsContextCancellation(t *testing.T) {
	store := storage.NewBreakerStore(okStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ListDomains(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
