package extract

import (
	"fmt"
	"sync"

	"cytosort/pkg/errdefs"

	"gocv.io/x/gocv"
)

// Target selects the execution backend for model inference.
type Target int

const (
	TargetCPU Target = iota
	TargetCUDA
)

// ParseTarget maps a configuration string to a Target.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "", "cpu":
		return TargetCPU, nil
	case "cuda", "gpu":
		return TargetCUDA, nil
	default:
		return TargetCPU, errdefs.NewConfigError("target", "unknown execution target "+s)
	}
}

// Session runs one forward pass of an embedding model. Implementations
// need not be safe for concurrent use; the extractor serializes calls.
type Session interface {
	// Forward runs inference on an NCHW float32 blob and returns the
	// flattened output.
	Forward(blob gocv.Mat) ([]float32, error)
	Close() error
}

// dnnSession backs Session with an OpenCV DNN network loaded from ONNX
// weights.
type dnnSession struct {
	mu  sync.Mutex
	net gocv.Net
}

// OpenSession loads ONNX weights and prepares a network on the requested
// execution target.
func OpenSession(weightsPath string, target Target) (Session, error) {
	net := gocv.ReadNetFromONNX(weightsPath)
	if net.Empty() {
		return nil, errdefs.WrapConfigError("model", "cannot load weights from "+weightsPath, nil)
	}

	backend := gocv.NetBackendDefault
	dnnTarget := gocv.NetTargetCPU
	if target == TargetCUDA {
		backend = gocv.NetBackendCUDA
		dnnTarget = gocv.NetTargetCUDA
	}
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("set inference backend: %w", err)
	}
	if err := net.SetPreferableTarget(dnnTarget); err != nil {
		net.Close()
		return nil, fmt.Errorf("set inference target: %w", err)
	}

	return &dnnSession{net: net}, nil
}

// Forward runs one inference pass and copies the flattened output.
func (s *dnnSession) Forward(blob gocv.Mat) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, fmt.Errorf("inference produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read inference output: %w", err)
	}
	vec := make([]float32, len(data))
	copy(vec, data)
	return vec, nil
}

func (s *dnnSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
