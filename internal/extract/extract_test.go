package extract

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"cytosort/pkg/errdefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fakeSession returns a fixed-length vector and records call counts.
type fakeSession struct {
	dim    int
	calls  int
	closed bool
}

func (s *fakeSession) Forward(blob gocv.Mat) ([]float32, error) {
	s.calls++
	vec := make([]float32, s.dim)
	for i := range vec {
		vec[i] = float32(i)
	}
	return vec, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry("resources")

	cases := []struct {
		name string
		dim  int
	}{
		{"dinov2s", 384},
		{"dinov2b", 384},
		{"hiera_huge", 384},
		{"mobilenetv3s", 1024},
		{"mobilenetv3l", 1280},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := r.Lookup(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.dim, spec.Dim)
			assert.Equal(t, 224, spec.InputSize)
		})
	}

	assert.Len(t, r.Names(), 5)
}

func TestRegistryLookupCaseInsensitive(t *testing.T) {
	r := NewRegistry("resources")

	spec, err := r.Lookup("DinoV2S")
	require.NoError(t, err)
	assert.Equal(t, "dinov2s", spec.Name)
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry("resources")

	_, err := r.Lookup("resnet50")
	assert.ErrorIs(t, err, errdefs.ErrConfig)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry("resources")
	r.Register(ModelSpec{Name: "mobilevit_xs", WeightsFile: "mobilevit_xs.onnx", Dim: 384})

	spec, err := r.Lookup("mobilevit_xs")
	require.NoError(t, err)
	assert.Equal(t, 256, spec.InputSize, "mobilevit family defaults to 256px inputs")
}

func TestWeightsPathMissingFile(t *testing.T) {
	r := NewRegistry(t.TempDir())

	_, err := r.WeightsPath("dinov2s")
	assert.ErrorIs(t, err, errdefs.ErrConfig)
}

func TestWeightsPathExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dinov2_small.onnx"), []byte("weights"), 0o644))

	r := NewRegistry(dir)
	path, err := r.WeightsPath("dinov2s")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dinov2_small.onnx"), path)
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"", "cpu"} {
		target, err := ParseTarget(s)
		require.NoError(t, err)
		assert.Equal(t, TargetCPU, target)
	}
	for _, s := range []string{"cuda", "gpu"} {
		target, err := ParseTarget(s)
		require.NoError(t, err)
		assert.Equal(t, TargetCUDA, target)
	}

	_, err := ParseTarget("tpu")
	assert.ErrorIs(t, err, errdefs.ErrConfig)
}

func TestExtractProducesRegisteredDim(t *testing.T) {
	path := writeTestPNG(t, t.TempDir(), "cell.png", 64, 48)

	session := &fakeSession{dim: 384}
	e := NewExtractorWithSession(ModelSpec{Name: "dinov2s", Dim: 384, InputSize: 224}, session)

	vec, err := e.Extract(path)
	require.NoError(t, err)
	assert.Len(t, vec, 384)
	assert.Equal(t, 1, session.calls)
}

func TestExtractDimensionMismatch(t *testing.T) {
	path := writeTestPNG(t, t.TempDir(), "cell.png", 32, 32)

	session := &fakeSession{dim: 100}
	e := NewExtractorWithSession(ModelSpec{Name: "dinov2s", Dim: 384, InputSize: 224}, session)

	_, err := e.Extract(path)
	assert.ErrorIs(t, err, errdefs.ErrExtraction)
}

func TestExtractUnreadableImage(t *testing.T) {
	session := &fakeSession{dim: 384}
	e := NewExtractorWithSession(ModelSpec{Name: "dinov2s", Dim: 384, InputSize: 224}, session)

	_, err := e.Extract("no-such-file.png")
	assert.ErrorIs(t, err, errdefs.ErrExtraction)
	assert.ErrorIs(t, err, errdefs.ErrImageLoad)

	var extractErr *errdefs.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "no-such-file.png", extractErr.Path)
	assert.Equal(t, "dinov2s", extractErr.Model)
}

func TestExtractorClose(t *testing.T) {
	session := &fakeSession{dim: 384}
	e := NewExtractorWithSession(ModelSpec{Name: "dinov2s", Dim: 384}, session)

	require.NoError(t, e.Close())
	assert.True(t, session.closed)
}
