// Package reduce projects feature vectors to a lower-dimensional space
// with principal-component analysis.
package reduce

import (
	"fmt"

	"cytosort/pkg/errdefs"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultVariance is the fraction of variance retained when the caller
// does not specify one.
const DefaultVariance = 0.95

// PCA fits a principal-component projection on the given sample matrix
// (rows = samples) and returns the projected coordinates, keeping the
// minimum number of components whose cumulative variance reaches the
// requested fraction.
//
// The projection is deterministic for identical input. When the input has
// at most one sample or one variable there is nothing to reduce and a copy
// of the input is returned unchanged.
func PCA(samples *mat.Dense, varianceToRetain float64) (*mat.Dense, error) {
	if varianceToRetain <= 0 || varianceToRetain > 1 {
		return nil, errdefs.NewConfigError("variance", fmt.Sprintf("fraction %v outside (0, 1]", varianceToRetain))
	}

	n, d := samples.Dims()
	if n <= 1 || d <= 1 {
		out := mat.NewDense(n, d, nil)
		out.Copy(samples)
		return out, nil
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(samples, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed")
	}

	vars := pc.VarsTo(nil)
	total := 0.0
	for _, v := range vars {
		total += v
	}

	keep := len(vars)
	if total > 0 {
		cumulative := 0.0
		for i, v := range vars {
			cumulative += v
			if cumulative/total >= varianceToRetain {
				keep = i + 1
				break
			}
		}
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	centered := centerColumns(samples)
	var projected mat.Dense
	projected.Mul(centered, vecs.Slice(0, d, 0, keep))
	return &projected, nil
}

// centerColumns subtracts the column mean from every element.
func centerColumns(samples *mat.Dense) *mat.Dense {
	n, d := samples.Dims()
	out := mat.NewDense(n, d, nil)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, samples)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			out.Set(i, j, col[i]-mean)
		}
	}
	return out
}

// MatrixFromVectors packs per-image feature vectors into a sample matrix,
// one row per vector. All vectors must share the same length.
func MatrixFromVectors(vectors [][]float32) (*mat.Dense, error) {
	if len(vectors) == 0 {
		return nil, errdefs.NewInsufficientDataError("reduce", 0, 1)
	}
	d := len(vectors[0])
	data := make([]float64, 0, len(vectors)*d)
	for i, vec := range vectors {
		if len(vec) != d {
			return nil, errdefs.NewConfigError("vectors", fmt.Sprintf("row %d has length %d, want %d", i, len(vec), d))
		}
		for _, v := range vec {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(vectors), d, data), nil
}
