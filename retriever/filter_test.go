package retriever

import (
	"testing"

	"ragsql/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultCalibration = types.Calibration{
	Metric:    types.MetricL2,
	Model:     "mxbai-embed-large",
	Threshold: 20.0,
}

func chunk(content string, dist float64) types.RetrievedChunk {
	return types.RetrievedChunk{
		Content:  content,
		Metadata: types.ChunkMetadata{Source: "sun.pdf"},
		Distance: dist,
	}
}

func TestNewFilter(t *testing.T) {
	t.Run("Valid call with matching metric", func(t *testing.T) {
		f, err := NewFilter(defaultCalibration, types.MetricL2)
		require.NoError(t, err)
		assert.Equal(t, 20.0, f.Calibration().Threshold)
	})

	t.Run("Metric mismatch is a configuration error", func(t *testing.T) {
		_, err := NewFilter(defaultCalibration, types.MetricCosine)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})

	t.Run("Non-positive threshold is a configuration error", func(t *testing.T) {
		cal := defaultCalibration
		cal.Threshold = 0
		_, err := NewFilter(cal, types.MetricL2)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})
}

func TestFilterApply(t *testing.T) {
	f, err := NewFilter(defaultCalibration, types.MetricL2)
	require.NoError(t, err)

	t.Run("Close chunk with lexical overlap is kept", func(t *testing.T) {
		chunks := []types.RetrievedChunk{chunk("The Sun is a dynamic star with a hot corona.", 5.0)}
		got := f.Apply("Is the corona of the Sun hot?", chunks)
		require.Len(t, got, 1)
		assert.Equal(t, chunks[0], got[0])
	})

	t.Run("Distance above threshold is rejected", func(t *testing.T) {
		chunks := []types.RetrievedChunk{chunk("The Sun is a dynamic star with a hot corona.", 25.0)}
		assert.Empty(t, f.Apply("Is the corona of the Sun hot?", chunks))
	})

	t.Run("Distance equal to threshold is rejected", func(t *testing.T) {
		chunks := []types.RetrievedChunk{chunk("corona", 20.0)}
		assert.Empty(t, f.Apply("corona", chunks))
	})

	t.Run("No shared term rejects the whole set", func(t *testing.T) {
		chunks := []types.RetrievedChunk{
			chunk("Mercury has no moons.", 3.0),
			chunk("Venus rotates backwards.", 4.0),
		}
		assert.Empty(t, f.Apply("How hot is the corona?", chunks))
	})

	t.Run("One overlapping chunk keeps every close chunk", func(t *testing.T) {
		chunks := []types.RetrievedChunk{
			chunk("Mercury has no moons.", 3.0),
			chunk("The CORONA is very hot.", 4.0),
			chunk("Far away text about the corona.", 30.0),
		}
		got := f.Apply("How hot is the corona?", chunks)
		require.Len(t, got, 2)
		assert.Equal(t, "Mercury has no moons.", got[0].Content)
	})

	t.Run("Query with only short words is rejected", func(t *testing.T) {
		chunks := []types.RetrievedChunk{chunk("it is the sun", 1.0)}
		assert.Empty(t, f.Apply("is it the sun", chunks))
	})

	t.Run("Applying twice gives the same result", func(t *testing.T) {
		chunks := []types.RetrievedChunk{
			chunk("Solar wind streams outward.", 2.0),
			chunk("Sunspots are cooler regions.", 8.0),
			chunk("Solar flares release energy.", 21.0),
		}
		q := "What is the solar wind?"
		once := f.Apply(q, chunks)
		twice := f.Apply(q, once)
		assert.Equal(t, once, twice)
		assert.Len(t, once, 2)
	})
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"what", "mass", "jupiter"}, QueryTerms("What is the mass of Jupiter?"))
	assert.Equal(t, []string{"étoile"}, QueryTerms("Une Étoile"))
	assert.Empty(t, QueryTerms("a is to"))
}
