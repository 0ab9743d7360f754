package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"ragsql/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexEmbedder encodes the input number in the vector and finishes later
// inputs first, so completion order is the reverse of submission order.
type indexEmbedder struct {
	n        int
	inFlight atomic.Int32
	peak     atomic.Int32
	failAt   int
	dimAt    int
}

func (e *indexEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cur := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if cur <= p || e.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	i, err := strconv.Atoi(text)
	if err != nil {
		return nil, err
	}
	select {
	case <-time.After(time.Duration(e.n-i) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.failAt >= 0 && i == e.failAt {
		return nil, errors.New("model unavailable")
	}
	if e.dimAt >= 0 && i == e.dimAt {
		return []float32{float32(i), 0, 0}, nil
	}
	return []float32{float32(i), 1}, nil
}

func inputs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestEmbedBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid call keeps input order", func(t *testing.T) {
		e := &indexEmbedder{n: 20, failAt: -1, dimAt: -1}
		b := NewBatchEmbedder(e, 4)

		got, err := b.EmbedBatch(ctx, inputs(20))
		require.NoError(t, err, "Expected EmbedBatch to not return an error")
		require.Len(t, got, 20)
		for i, v := range got {
			assert.Equal(t, float32(i), v[0], "result %d belongs to another input", i)
		}
		assert.LessOrEqual(t, e.peak.Load(), int32(4), "Expected at most 4 concurrent calls")
	})

	t.Run("Empty batch", func(t *testing.T) {
		b := NewBatchEmbedder(&indexEmbedder{failAt: -1, dimAt: -1}, 4)
		got, err := b.EmbedBatch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Failure is attributed to its index and rejects the batch", func(t *testing.T) {
		e := &indexEmbedder{n: 10, failAt: 6, dimAt: -1}
		b := NewBatchEmbedder(e, 4)

		got, err := b.EmbedBatch(ctx, inputs(10))
		require.Error(t, err)
		assert.Nil(t, got)

		var embErr *types.EmbeddingError
		require.True(t, errors.As(err, &embErr), "Expected an EmbeddingError, got %T", err)
		assert.Equal(t, 6, embErr.Index)
	})

	t.Run("Mixed dimensions are a misalignment", func(t *testing.T) {
		e := &indexEmbedder{n: 5, failAt: -1, dimAt: 3}
		b := NewBatchEmbedder(e, 2)

		_, err := b.EmbedBatch(ctx, inputs(5))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrIndexMisalignment)

		var mis *types.IndexMisalignmentError
		require.True(t, errors.As(err, &mis))
		assert.Equal(t, 3, mis.Index)
	})
}

func TestCheckAlignment(t *testing.T) {
	t.Run("Short result", func(t *testing.T) {
		err := checkAlignment(3, [][]float32{{1}, {2}})
		assert.ErrorIs(t, err, types.ErrIndexMisalignment)
		assert.Contains(t, err.Error(), "expected 3 results, got 2")
	})

	t.Run("Missing slot", func(t *testing.T) {
		err := checkAlignment(3, [][]float32{{1}, nil, {3}})
		var mis *types.IndexMisalignmentError
		require.True(t, errors.As(err, &mis))
		assert.Equal(t, 1, mis.Index)
	})

	t.Run("Valid call", func(t *testing.T) {
		assert.NoError(t, checkAlignment(2, [][]float32{{1, 2}, {3, 4}}))
	})
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder("ollama", "http://localhost:11434", "mxbai-embed-large", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)

	_, err = NewEmbedder("openai", "", "text-embedding-3-small", "", 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewEmbedder("hugging", "", "", "", 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Contains(t, err.Error(), fmt.Sprintf("%q", "hugging"))
}
