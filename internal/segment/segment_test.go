package segment

import (
	"image"
	"image/color"
	"testing"

	"cytosort/internal/imaging"
	"cytosort/pkg/errdefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// solidSquare builds a w x h 3-channel image filled with bg, with a
// filled square of fg drawn over the given rectangle.
func solidSquare(w, h int, bg, fg color.RGBA, rect image.Rectangle) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0), h, w, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, rect, fg, -1)
	return img
}

func maskEqual(t *testing.T, a, b *imaging.Mask) {
	t.Helper()
	require.Equal(t, a.Width(), b.Width())
	require.Equal(t, a.Height(), b.Height())
	for y := 0; y < a.Height(); y++ {
		for x := 0; x < a.Width(); x++ {
			if a.At(x, y) != b.At(x, y) {
				t.Fatalf("masks differ at (%d, %d)", x, y)
			}
		}
	}
}

func TestParseMethod(t *testing.T) {
	for name, want := range map[string]Method{
		"otsu": MethodOtsu, "Adaptive": MethodAdaptive, "WATERSHED": MethodWatershed,
	} {
		got, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMethod("magic")
	assert.ErrorIs(t, err, errdefs.ErrConfig)
}

func TestParameterValidation(t *testing.T) {
	img := solidSquare(50, 50, color.RGBA{}, color.RGBA{R: 255, G: 255, B: 255, A: 255}, image.Rect(20, 20, 30, 30))
	defer img.Close()

	cases := []struct {
		name   string
		method Method
		p1, p2 float64
	}{
		{"OtsuRatioTooHigh", MethodOtsu, 1.5, 10},
		{"OtsuRatioNegative", MethodOtsu, -0.1, 10},
		{"OtsuNegativeSize", MethodOtsu, 0.5, -1},
		{"AdaptiveEvenBlock", MethodAdaptive, 4, 2},
		{"AdaptiveTinyBlock", MethodAdaptive, 1, 2},
		{"WatershedZeroThreshold", MethodWatershed, 0, 3},
		{"WatershedEvenKernel", MethodWatershed, 0.7, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SegmentMat(img, tc.method, tc.p1, tc.p2)
			assert.ErrorIs(t, err, errdefs.ErrConfig)
		})
	}
}

func TestSegmentUnreadableImage(t *testing.T) {
	_, err := Segment("does-not-exist.png", MethodOtsu, 0.5, 10)
	assert.ErrorIs(t, err, errdefs.ErrImageLoad)
}

func TestSegmentDeterministic(t *testing.T) {
	img := solidSquare(80, 80, color.RGBA{}, color.RGBA{R: 255, G: 255, B: 255, A: 255}, image.Rect(30, 30, 50, 50))
	defer img.Close()

	cases := []struct {
		name   string
		method Method
		p1, p2 float64
	}{
		{"Otsu", MethodOtsu, 0.5, 10},
		{"Adaptive", MethodAdaptive, 35, 10},
		{"Watershed", MethodWatershed, 0.7, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, err := SegmentMat(img, tc.method, tc.p1, tc.p2)
			require.NoError(t, err)
			second, err := SegmentMat(img, tc.method, tc.p1, tc.p2)
			require.NoError(t, err)
			maskEqual(t, first, second)
		})
	}
}

func TestOtsuCenterComponentRemoved(t *testing.T) {
	// Dark object on a light background: Otsu selects the bright
	// near-center region, which becomes the removed region, leaving the
	// dark square as foreground.
	img := solidSquare(100, 100,
		color.RGBA{R: 255, G: 255, B: 255, A: 255},
		color.RGBA{A: 255},
		image.Rect(40, 40, 59, 59),
	)
	defer img.Close()

	mask, err := SegmentMat(img, MethodOtsu, 1.0, 1)
	require.NoError(t, err)

	assert.Equal(t, 100, mask.Width())
	assert.Equal(t, 100, mask.Height())
	// Foreground is the 20x20 square, give or take blur at the edges.
	assert.InDelta(t, 400, float64(mask.Area()), 60)
	assert.Equal(t, uint8(1), mask.At(50, 50))
	assert.Equal(t, uint8(0), mask.At(5, 5))
}

func TestOtsuMinComponentSize(t *testing.T) {
	// A bright region smaller than the minimum component size is not
	// selected for removal, so the whole frame stays foreground.
	img := solidSquare(100, 100,
		color.RGBA{A: 255},
		color.RGBA{R: 255, G: 255, B: 255, A: 255},
		image.Rect(48, 48, 52, 52),
	)
	defer img.Close()

	mask, err := SegmentMat(img, MethodOtsu, 1.0, 5000)
	require.NoError(t, err)
	assert.Equal(t, 100*100, mask.Area())
}

func TestAdaptiveProducesBinaryMask(t *testing.T) {
	img := solidSquare(60, 60, color.RGBA{A: 255}, color.RGBA{R: 200, G: 200, B: 200, A: 255}, image.Rect(20, 20, 40, 40))
	defer img.Close()

	mask, err := SegmentMat(img, MethodAdaptive, 15, 5)
	require.NoError(t, err)
	assert.Equal(t, 60, mask.Width())
	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			assert.LessOrEqual(t, mask.At(x, y), uint8(1))
		}
	}
}

func TestWatershedFindsForeground(t *testing.T) {
	img := solidSquare(100, 100, color.RGBA{A: 255}, color.RGBA{R: 255, G: 255, B: 255, A: 255}, image.Rect(35, 35, 65, 65))
	defer img.Close()

	mask, err := SegmentMat(img, MethodWatershed, 0.7, 3)
	require.NoError(t, err)

	// The bright square is recovered as a watershed region.
	assert.Greater(t, mask.Area(), 400)
	assert.Less(t, mask.Area(), 2500)
	assert.Equal(t, uint8(1), mask.At(50, 50))
}
