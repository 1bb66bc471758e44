// Package extract runs pretrained embedding models over images, producing
// fixed-length feature vectors.
package extract

import (
	"os"
	"path/filepath"
	"strings"

	"cytosort/pkg/errdefs"
)

// ModelSpec describes one embedding model in the registry.
type ModelSpec struct {
	Name        string
	WeightsFile string
	Dim         int // Length of the flattened output vector
	InputSize   int // Square input edge in pixels
}

// Registry maps model names to their weights location and output dimension.
type Registry struct {
	weightsDir string
	models     map[string]ModelSpec
}

// defaultInputSize applies to every model family except mobilevit,
// which expects 256x256 inputs.
func defaultInputSize(name string) int {
	if strings.Contains(name, "mobilevit") {
		return 256
	}
	return 224
}

// NewRegistry creates a registry with the built-in model set, resolving
// weights files relative to weightsDir.
func NewRegistry(weightsDir string) *Registry {
	r := &Registry{
		weightsDir: weightsDir,
		models:     make(map[string]ModelSpec),
	}
	for _, m := range []ModelSpec{
		{Name: "dinov2s", WeightsFile: "dinov2_small.onnx", Dim: 384},
		{Name: "dinov2b", WeightsFile: "dinov2_base.onnx", Dim: 384},
		{Name: "hiera_huge", WeightsFile: "hiera_huge.onnx", Dim: 384},
		{Name: "mobilenetv3s", WeightsFile: "mobilenetv3_small_extractor.onnx", Dim: 1024},
		{Name: "mobilenetv3l", WeightsFile: "mobilenetv3_large_extractor.onnx", Dim: 1280},
	} {
		m.InputSize = defaultInputSize(m.Name)
		r.models[m.Name] = m
	}
	return r
}

// Register adds or replaces a model entry. An InputSize of zero selects
// the default for the model family.
func (r *Registry) Register(m ModelSpec) {
	if m.InputSize == 0 {
		m.InputSize = defaultInputSize(m.Name)
	}
	r.models[strings.ToLower(m.Name)] = m
}

// Names returns the registered model names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

// Lookup returns the spec for a model name (case-insensitive).
func (r *Registry) Lookup(name string) (ModelSpec, error) {
	m, ok := r.models[strings.ToLower(name)]
	if !ok {
		return ModelSpec{}, errdefs.NewConfigError("model", "unknown model name "+name)
	}
	return m, nil
}

// WeightsPath returns the on-disk weights path for a model, verifying that
// the file exists.
func (r *Registry) WeightsPath(name string) (string, error) {
	m, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.weightsDir, m.WeightsFile)
	if _, err := os.Stat(path); err != nil {
		return "", errdefs.WrapConfigError("model", "weights not found at "+path, err)
	}
	return path, nil
}
