package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMarkProcessed(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	e := NewEntry("credential", "UNI-2024-AAA111", "credential.created", []byte(`{}`))
	require.NoError(t, s.Append(ctx, e))

	require.NoError(t, s.MarkProcessed(ctx, e.ID, time.Now()))
	assert.Error(t, s.MarkProcessed(ctx, e.ID, time.Now()), "second mark must fail")

	got, err := s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryFetchReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	e := NewEntry("credential", "UNI-2024-AAA111", "credential.created", []byte(`{}`))
	require.NoError(t, s.Append(ctx, e))

	got, err := s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	now := time.Now()
	got[0].ProcessedAt = &now

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInMemoryRejectsNil(t *testing.T) {
	assert.Error(t, NewInMemory().Append(context.Background(), nil))
}
