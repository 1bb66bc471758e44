package reduce

import (
	"testing"

	"cytosort/pkg/errdefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPCADeterministic(t *testing.T) {
	samples := mat.NewDense(4, 3, []float64{
		2.5, 2.4, 0.5,
		0.5, 0.7, 2.2,
		2.2, 2.9, 1.9,
		1.9, 2.2, 3.1,
	})

	first, err := PCA(samples, 0.95)
	require.NoError(t, err)
	second, err := PCA(samples, 0.95)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(first, second, 1e-12), "repeated PCA on identical input must match")
}

func TestPCARetainsVariance(t *testing.T) {
	// Points on a line through 3D space: one component carries all the
	// variance, so one column suffices at any retention level.
	samples := mat.NewDense(5, 3, []float64{
		0, 0, 0,
		1, 2, 3,
		2, 4, 6,
		3, 6, 9,
		4, 8, 12,
	})

	reduced, err := PCA(samples, 0.95)
	require.NoError(t, err)

	n, d := reduced.Dims()
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, d)
}

func TestPCAKeepsAllComponentsWhenNeeded(t *testing.T) {
	// Isotropic square: both directions carry equal variance, so
	// retaining 95% needs both components.
	samples := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	})

	reduced, err := PCA(samples, 0.95)
	require.NoError(t, err)

	_, d := reduced.Dims()
	assert.Equal(t, 2, d)
}

func TestPCADegenerateInput(t *testing.T) {
	t.Run("SingleSample", func(t *testing.T) {
		samples := mat.NewDense(1, 4, []float64{1, 2, 3, 4})
		out, err := PCA(samples, 0.95)
		require.NoError(t, err)
		assert.True(t, mat.Equal(samples, out), "single sample passes through unchanged")
	})

	t.Run("SingleColumn", func(t *testing.T) {
		samples := mat.NewDense(3, 1, []float64{1, 2, 3})
		out, err := PCA(samples, 0.95)
		require.NoError(t, err)
		assert.True(t, mat.Equal(samples, out), "single column passes through unchanged")
	})
}

func TestPCAInvalidVariance(t *testing.T) {
	samples := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_, err := PCA(samples, 0)
	assert.ErrorIs(t, err, errdefs.ErrConfig)

	_, err = PCA(samples, 1.5)
	assert.ErrorIs(t, err, errdefs.ErrConfig)
}

func TestMatrixFromVectors(t *testing.T) {
	t.Run("PacksRows", func(t *testing.T) {
		m, err := MatrixFromVectors([][]float32{{1, 2}, {3, 4}})
		require.NoError(t, err)

		n, d := m.Dims()
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, d)
		assert.Equal(t, 3.0, m.At(1, 0))
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := MatrixFromVectors(nil)
		assert.ErrorIs(t, err, errdefs.ErrInsufficientData)
	})

	t.Run("RaggedRows", func(t *testing.T) {
		_, err := MatrixFromVectors([][]float32{{1, 2}, {3}})
		assert.ErrorIs(t, err, errdefs.ErrConfig)
	})
}
