// Command cytosort runs the image analysis pipeline: embedding-based
// sorting, segmentation and morphometry over a directory of images.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cytosort/internal/cluster"
	"cytosort/internal/config"
	"cytosort/internal/export"
	"cytosort/internal/extract"
	"cytosort/internal/logger"
	"cytosort/internal/pipeline"
	"cytosort/internal/segment"
	"cytosort/internal/version"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (optional)")
	mode := flag.String("mode", "sort", "Operation: sort, segment or attrs")
	dir := flag.String("dir", "", "Directory of images to analyze")
	out := flag.String("out", "", "Output file (JSON for sort/attrs, CSV for attrs with .csv)")
	model := flag.String("model", "", "Embedding model name (overrides config)")
	k := flag.Int("k", 0, "Number of clusters (overrides config)")
	autoK := flag.Bool("auto-k", false, "Select k with the elbow method")
	method := flag.String("method", "", "Segmentation method: otsu, adaptive or watershed (overrides config)")
	p1 := flag.Float64("p1", -1, "First segmentation parameter (overrides config)")
	p2 := flag.Float64("p2", -1, "Second segmentation parameter (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cytosort %s (%s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		return
	}
	if *dir == "" {
		fmt.Println("Usage: cytosort -dir <images> [-mode sort|segment|attrs] [-out <file>]")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	applyOverrides(&cfg, *model, *k, *autoK, *method, *p1, *p2)

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	images, err := listImages(*dir)
	if err != nil {
		log.Fatal("Failed to list images", zap.Error(err))
	}
	if len(images) == 0 {
		log.Fatal("No images found", zap.String("dir", *dir))
	}
	log.Info("Starting analysis",
		zap.String("version", version.Version),
		zap.String("mode", *mode),
		zap.Int("images", len(images)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "sort":
		err = runSort(ctx, cfg, log, images, *out)
	case "segment", "attrs":
		err = runSegment(ctx, cfg, log, images, *out, *mode == "attrs")
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal("Analysis failed", zap.Error(err))
	}
}

// applyOverrides copies non-empty flag values over the loaded config.
func applyOverrides(cfg *config.Config, model string, k int, autoK bool, method string, p1, p2 float64) {
	if model != "" {
		cfg.Extraction.Model = model
	}
	if k > 0 {
		cfg.Clustering.K = k
	}
	if autoK {
		cfg.Clustering.AutoK = true
	}
	if method != "" {
		cfg.Segmentation.Method = method
	}
	if p1 >= 0 {
		cfg.Segmentation.Param1 = p1
	}
	if p2 >= 0 {
		cfg.Segmentation.Param2 = p2
	}
}

// listImages collects the raster images directly under dir.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}
	return images, nil
}

func newPipeline(cfg config.Config, log *zap.Logger) (*pipeline.Pipeline, error) {
	registry := extract.NewRegistry(cfg.Extraction.WeightsDir)
	for _, m := range cfg.Extraction.Models {
		registry.Register(extract.ModelSpec{
			Name:        m.Name,
			WeightsFile: m.Weights,
			Dim:         m.Dim,
			InputSize:   m.InputSize,
		})
	}
	target, err := extract.ParseTarget(cfg.Extraction.Target)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.NewExtractor(registry, cfg.Extraction.Model, target)
	if err != nil {
		return nil, err
	}
	return pipeline.New(extractor, log, cfg.Workers), nil
}

func runSort(ctx context.Context, cfg config.Config, log *zap.Logger, images []string, out string) error {
	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}

	failures, err := p.Sort(ctx, images, pipeline.SortOptions{
		Variance: cfg.Clustering.Variance,
		Params: cluster.Params{
			K:             cfg.Clustering.K,
			MaxIterations: cfg.Clustering.MaxIterations,
			Restarts:      cfg.Clustering.Restarts,
		},
		AutoK: cfg.Clustering.AutoK,
		MaxK:  cfg.Clustering.MaxK,
	})
	if err != nil {
		return err
	}
	for _, f := range failures {
		log.Warn("Image skipped", zap.String("path", f.Path), zap.Error(f.Err))
	}

	for _, label := range p.Assignment().Labels() {
		fmt.Printf("cluster %d: %d images\n", label, len(p.Assignment().Members(label)))
	}
	if out != "" {
		return export.WriteAssignment(out, p.Assignment().Snapshot())
	}
	return nil
}

func runSegment(ctx context.Context, cfg config.Config, log *zap.Logger, images []string, out string, withAttrs bool) error {
	method, err := segment.ParseMethod(cfg.Segmentation.Method)
	if err != nil {
		return err
	}

	// Segmentation needs no embedding model; run without an extractor.
	p := pipeline.New(nil, log, cfg.Workers)
	masks, failures, err := p.SegmentBatch(ctx, images, method, cfg.Segmentation.Param1, cfg.Segmentation.Param2)
	if err != nil {
		return err
	}
	for _, f := range failures {
		log.Warn("Image skipped", zap.String("path", f.Path), zap.Error(f.Err))
	}

	for path, mask := range masks {
		fmt.Printf("%s: %d foreground px\n", path, mask.Area())
	}
	if !withAttrs {
		return nil
	}

	attrs, attrFailures, err := p.AttributesBatch(ctx, masks, cfg.Segmentation.MinAreaRatio)
	if err != nil {
		return err
	}
	for _, f := range attrFailures {
		log.Warn("Image skipped", zap.String("path", f.Path), zap.Error(f.Err))
	}
	if out == "" {
		out = "attributes.json"
	}
	if strings.HasSuffix(out, ".csv") {
		return export.WriteCSV(out, attrs)
	}
	return export.WriteJSON(out, attrs)
}
