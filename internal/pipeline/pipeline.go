// Package pipeline orchestrates batch runs of the analysis core:
// feature extraction, reduction and clustering on one side, segmentation
// and morphometry on the other.
//
// Extraction and segmentation are embarrassingly parallel across images
// and run on a bounded worker pool. Per-image failures are collected and
// reported; they never abort the rest of the batch and never substitute
// silent zero results. Clustering, split and merge mutate the shared
// assignment table and are serialized by the pipeline.
package pipeline

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"cytosort/internal/cluster"
	"cytosort/internal/extract"
	"cytosort/internal/imaging"
	"cytosort/internal/morpho"
	"cytosort/internal/reduce"
	"cytosort/internal/segment"
	"cytosort/pkg/errdefs"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ImageError records one per-image failure inside a batch.
type ImageError struct {
	Path string
	Err  error
}

// Pipeline runs batch analysis operations. Image paths double as image
// identifiers in the assignment table.
type Pipeline struct {
	extractor *extract.Extractor
	log       *zap.Logger
	workers   int

	// opMu enforces single-writer discipline over the assignment table:
	// one sort, split or merge completes fully before the next begins.
	opMu       sync.Mutex
	assignment *cluster.Assignment
}

// New creates a pipeline around an extractor. workers bounds the batch
// pool; values below 1 select the number of CPUs. The extractor may be
// nil when only segmentation and morphometry are used.
func New(extractor *extract.Extractor, log *zap.Logger, workers int) *Pipeline {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		extractor:  extractor,
		log:        log,
		workers:    workers,
		assignment: cluster.NewAssignment(),
	}
}

// Assignment exposes the image-to-label table.
func (p *Pipeline) Assignment() *cluster.Assignment { return p.assignment }

// ExtractBatch extracts one feature vector per readable image. Unreadable
// or failing images are reported in the returned slice and skipped; the
// rest of the batch continues. Cancelling the context stops the batch
// between images.
func (p *Pipeline) ExtractBatch(ctx context.Context, paths []string) (map[string][]float32, []ImageError, error) {
	vectors := make(map[string][]float32, len(paths))
	var failures []ImageError
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := p.extractor.Extract(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warn("skipping image", zap.String("path", path), zap.Error(err))
				failures = append(failures, ImageError{Path: path, Err: err})
				return nil
			}
			vectors[path] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	p.log.Info("feature extraction finished",
		zap.Int("extracted", len(vectors)),
		zap.Int("skipped", len(failures)),
		zap.String("model", p.extractor.Model().Name),
	)
	return vectors, failures, nil
}

// SortOptions configures a full sort run.
type SortOptions struct {
	Variance float64 // PCA variance fraction to retain; 0 selects the default
	Params   cluster.Params
	AutoK    bool
	MaxK     int // Upper bound for auto-k; Params.K is the fallback
}

// Sort runs extract, reduce and cluster over the batch and replaces the
// assignment table wholesale. Returns the per-image extraction failures.
func (p *Pipeline) Sort(ctx context.Context, paths []string, opts SortOptions) ([]ImageError, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}

	vectors, failures, err := p.ExtractBatch(ctx, paths)
	if err != nil {
		return failures, err
	}

	ids, reduced, err := p.reduceVectors(vectors, opts.Variance)
	if err != nil {
		return failures, err
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	params := opts.Params
	if opts.AutoK {
		k, err := cluster.AutoK(reduced, opts.MaxK, params.MaxIterations, params.Restarts, params.K)
		if err != nil {
			return failures, err
		}
		p.log.Info("auto-k selected", zap.Int("k", k), zap.Int("max_k", opts.MaxK))
		params.K = k
	}

	labels, inertia, err := cluster.KMeans(reduced, params)
	if err != nil {
		return failures, err
	}
	if err := p.assignment.SetAll(ids, labels); err != nil {
		return failures, err
	}

	p.log.Info("clustering finished",
		zap.Int("images", len(ids)),
		zap.Int("k", params.K),
		zap.Float64("inertia", inertia),
	)
	return failures, nil
}

// Split re-extracts the members of one label, re-reduces and re-clusters
// them into nSub sub-clusters, retiring the original label. The whole
// relabeling is applied atomically.
func (p *Pipeline) Split(ctx context.Context, label, nSub int, params cluster.Params) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	members := p.assignment.Members(label)
	if len(members) == 0 {
		return errdefs.NewStateError("split", "label has no members")
	}
	if len(members) < nSub {
		return errdefs.NewStateError("split", "fewer members than requested sub-clusters")
	}

	vectors, failures, err := p.ExtractBatch(ctx, members)
	if err != nil {
		return err
	}
	// A split must cover every member, so a single failed extraction
	// aborts it rather than leaving members under a retired label.
	if len(failures) > 0 {
		return failures[0].Err
	}

	ids, reduced, err := p.reduceVectors(vectors, 0)
	if err != nil {
		return err
	}

	params.K = nSub
	subLabels, _, err := cluster.KMeans(reduced, params)
	if err != nil {
		return err
	}
	if err := p.assignment.ApplySplit(label, ids, subLabels); err != nil {
		return err
	}

	p.log.Info("cluster split", zap.Int("label", label), zap.Int("sub_clusters", nSub), zap.Int("members", len(ids)))
	return nil
}

// Merge combines two or more labels into one fresh label.
func (p *Pipeline) Merge(labels ...int) (int, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	newLabel, err := p.assignment.Merge(labels...)
	if err != nil {
		return 0, err
	}
	p.log.Info("clusters merged", zap.Ints("sources", labels), zap.Int("label", newLabel))
	return newLabel, nil
}

// reduceVectors orders the vector map by path and projects it with PCA.
func (p *Pipeline) reduceVectors(vectors map[string][]float32, variance float64) ([]string, *mat.Dense, error) {
	if len(vectors) == 0 {
		return nil, nil, errdefs.NewInsufficientDataError("sort", 0, 1)
	}
	if variance == 0 {
		variance = reduce.DefaultVariance
	}

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]float32, len(ids))
	for i, id := range ids {
		rows[i] = vectors[id]
	}
	samples, err := reduce.MatrixFromVectors(rows)
	if err != nil {
		return nil, nil, err
	}
	reduced, err := reduce.PCA(samples, variance)
	if err != nil {
		return nil, nil, err
	}
	return ids, reduced, nil
}

// SegmentBatch segments every readable image with one method and
// parameter set, for preview or full runs. Per-image failures are
// collected and skipped.
func (p *Pipeline) SegmentBatch(ctx context.Context, paths []string, method segment.Method, param1, param2 float64) (map[string]*imaging.Mask, []ImageError, error) {
	masks := make(map[string]*imaging.Mask, len(paths))
	var failures []ImageError
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mask, err := segment.Segment(path, method, param1, param2)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warn("skipping image", zap.String("path", path), zap.Error(err))
				failures = append(failures, ImageError{Path: path, Err: err})
				return nil
			}
			masks[path] = mask
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	p.log.Info("segmentation finished",
		zap.String("method", method.String()),
		zap.Int("segmented", len(masks)),
		zap.Int("skipped", len(failures)),
	)
	return masks, failures, nil
}

// AttributesBatch computes the 14 morphometric descriptors for each
// image/mask pair.
func (p *Pipeline) AttributesBatch(ctx context.Context, masks map[string]*imaging.Mask, minAreaRatio float64) (map[string]morpho.Attributes, []ImageError, error) {
	if minAreaRatio == 0 {
		minAreaRatio = morpho.DefaultMinAreaRatio
	}

	attrs := make(map[string]morpho.Attributes, len(masks))
	var failures []ImageError
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for path, mask := range masks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := morpho.ExtractAttributes(path, mask, minAreaRatio)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warn("skipping image", zap.String("path", path), zap.Error(err))
				failures = append(failures, ImageError{Path: path, Err: err})
				return nil
			}
			attrs[path] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return attrs, failures, nil
}
