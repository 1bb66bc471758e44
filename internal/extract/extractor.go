package extract

import (
	"image"

	"cytosort/internal/imaging"
	"cytosort/pkg/errdefs"

	"gocv.io/x/gocv"
)

// Extractor produces one fixed-length feature vector per image using a
// registered embedding model.
type Extractor struct {
	spec    ModelSpec
	session Session
}

// NewExtractor looks up the model, loads its weights and prepares an
// inference session on the requested target.
func NewExtractor(registry *Registry, modelName string, target Target) (*Extractor, error) {
	spec, err := registry.Lookup(modelName)
	if err != nil {
		return nil, err
	}
	weightsPath, err := registry.WeightsPath(modelName)
	if err != nil {
		return nil, err
	}
	session, err := OpenSession(weightsPath, target)
	if err != nil {
		return nil, err
	}
	return &Extractor{spec: spec, session: session}, nil
}

// NewExtractorWithSession wires an extractor to an existing session. Used
// when the caller manages session lifetime, and by tests.
func NewExtractorWithSession(spec ModelSpec, session Session) *Extractor {
	return &Extractor{spec: spec, session: session}
}

// Model returns the spec of the model backing this extractor.
func (e *Extractor) Model() ModelSpec { return e.spec }

// Close releases the inference session.
func (e *Extractor) Close() error { return e.session.Close() }

// Extract decodes the image, preprocesses it to the model's input layout
// and runs one forward pass. The returned vector has length Model().Dim.
func (e *Extractor) Extract(imagePath string) ([]float32, error) {
	img, err := imaging.Decode(imagePath)
	if err != nil {
		return nil, errdefs.NewExtractionError(imagePath, e.spec.Name, err)
	}

	blob, err := e.preprocess(img)
	if err != nil {
		return nil, errdefs.NewExtractionError(imagePath, e.spec.Name, err)
	}
	defer blob.Close()

	vec, err := e.session.Forward(blob)
	if err != nil {
		return nil, errdefs.NewExtractionError(imagePath, e.spec.Name, err)
	}
	if len(vec) != e.spec.Dim {
		return nil, errdefs.NewExtractionError(imagePath, e.spec.Name,
			errdefs.NewConfigError("model", "output length does not match registered dimension"))
	}
	return vec, nil
}

// preprocess converts a decoded image to the model input blob: 3-channel
// RGB, square resize to the model input size, pixel values scaled to
// [0,1], channel-first layout with a batch dimension of 1.
func (e *Extractor) preprocess(img image.Image) (gocv.Mat, error) {
	rgb, err := imaging.ToRGBMat(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer rgb.Close()

	size := image.Pt(e.spec.InputSize, e.spec.InputSize)
	blob := gocv.BlobFromImage(rgb, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), false, false)
	if blob.Empty() {
		blob.Close()
		return gocv.NewMat(), errdefs.NewConfigError("preprocess", "empty input blob")
	}
	return blob, nil
}
