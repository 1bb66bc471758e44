package cluster

import (
	"fmt"

	"cytosort/pkg/errdefs"

	"gonum.org/v1/gonum/mat"
)

// kneeTolerance is the minimum normalized chord distance for a point to
// count as a knee. Curves flatter than this have no usable elbow.
const kneeTolerance = 0.01

// AutoK selects the number of clusters with the elbow method: cluster for
// k = 1..maxK, record the inertia of each run and pick the knee of the
// convex-decreasing curve. When no clear knee exists (flat or
// non-decreasing curve), fallbackK is returned instead.
func AutoK(samples *mat.Dense, maxK, maxIterations, restarts, fallbackK int) (int, error) {
	if maxK < 1 {
		return 0, errdefs.NewConfigError("max_k", fmt.Sprintf("must be positive, got %d", maxK))
	}
	if fallbackK < 1 {
		return 0, errdefs.NewConfigError("fallback_k", fmt.Sprintf("must be positive, got %d", fallbackK))
	}

	n, _ := samples.Dims()
	if n < maxK {
		return 0, errdefs.NewInsufficientDataError("auto-k", n, maxK)
	}

	inertias := make([]float64, maxK)
	for k := 1; k <= maxK; k++ {
		_, inertia, err := KMeans(samples, Params{K: k, MaxIterations: maxIterations, Restarts: restarts})
		if err != nil {
			return 0, err
		}
		inertias[k-1] = inertia
	}

	if k, ok := kneePoint(inertias); ok {
		return k, nil
	}
	return fallbackK, nil
}

// kneePoint locates the knee of a convex-decreasing curve: the index of
// maximum perpendicular distance from the chord between the first and
// last point, after normalizing both axes to [0,1]. Returns the k value
// (index + 1) and whether a usable knee was found.
func kneePoint(inertias []float64) (int, bool) {
	m := len(inertias)
	if m < 3 {
		return 0, false
	}

	first, last := inertias[0], inertias[m-1]
	span := first - last
	if span <= 0 {
		// Not a decreasing curve; no elbow exists.
		return 0, false
	}

	// Distance of each normalized point from the normalized chord, which
	// runs from (0, 1) to (1, 0).
	bestIdx, bestDist := 0, 0.0
	for i := 1; i < m-1; i++ {
		x := float64(i) / float64(m-1)
		y := (inertias[i] - last) / span
		dist := (1 - x - y) / sqrt2
		if dist > bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	if bestDist < kneeTolerance {
		return 0, false
	}
	return bestIdx + 1, true
}

const sqrt2 = 1.41421356237309504880
