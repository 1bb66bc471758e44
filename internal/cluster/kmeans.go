// Package cluster partitions reduced feature vectors into labeled groups
// and maintains the image-to-label assignment table.
package cluster

import (
	"fmt"

	"cytosort/pkg/errdefs"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Params holds the clustering hyperparameters. All counts must be positive.
type Params struct {
	K             int
	MaxIterations int
	Restarts      int
}

// Validate checks the hyperparameter ranges.
func (p Params) Validate() error {
	if p.K < 1 {
		return errdefs.NewConfigError("k", fmt.Sprintf("must be positive, got %d", p.K))
	}
	if p.MaxIterations < 1 {
		return errdefs.NewConfigError("max_iterations", fmt.Sprintf("must be positive, got %d", p.MaxIterations))
	}
	if p.Restarts < 1 {
		return errdefs.NewConfigError("restarts", fmt.Sprintf("must be positive, got %d", p.Restarts))
	}
	return nil
}

// KMeans clusters the sample rows into p.K groups by iterative centroid
// relaxation, running p.Restarts independent initializations and keeping
// the lowest-inertia run. Returns one 0-indexed label per row and the
// inertia of the winning run. Label values carry no ordering guarantee
// across invocations.
func KMeans(samples *mat.Dense, p Params) ([]int, float64, error) {
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}

	n, d := samples.Dims()
	if n < p.K {
		return nil, 0, errdefs.NewInsufficientDataError("cluster", n, p.K)
	}

	data := gocv.NewMatWithSize(n, d, gocv.MatTypeCV32F)
	defer data.Close()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			data.SetFloatAt(i, j, float32(samples.At(i, j)))
		}
	}

	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()

	criteria := gocv.NewTermCriteria(gocv.MaxIter+gocv.EPS, p.MaxIterations, 1e-4)
	inertia := gocv.KMeans(data, p.K, &labels, criteria, p.Restarts, gocv.KMeansPPCenters, &centers)

	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(labels.GetIntAt(i, 0))
	}
	return out, inertia, nil
}
