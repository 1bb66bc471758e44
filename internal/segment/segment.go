// Package segment produces binary foreground masks with one of three
// interchangeable thresholding strategies. Each call is stateless, so a
// caller can preview a method on a small sample and then apply the same
// parameters to a full batch.
package segment

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"cytosort/internal/imaging"
	"cytosort/pkg/errdefs"

	"gocv.io/x/gocv"
)

// blurKernel is the Gaussian blur kernel shared by the Otsu and watershed
// paths.
var blurKernel = image.Pt(5, 5)

// Method selects the segmentation strategy.
type Method int

const (
	MethodOtsu Method = iota
	MethodAdaptive
	MethodWatershed
)

func (m Method) String() string {
	switch m {
	case MethodOtsu:
		return "otsu"
	case MethodAdaptive:
		return "adaptive"
	case MethodWatershed:
		return "watershed"
	default:
		return "unknown"
	}
}

// ParseMethod maps a method name to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "otsu":
		return MethodOtsu, nil
	case "adaptive":
		return MethodAdaptive, nil
	case "watershed":
		return MethodWatershed, nil
	default:
		return 0, errdefs.NewConfigError("method", "unknown segmentation method "+s)
	}
}

// validate checks the two numeric parameters against the ranges the
// selected method requires.
func validate(method Method, param1, param2 float64) error {
	switch method {
	case MethodOtsu:
		if param1 < 0 || param1 > 1 {
			return errdefs.NewConfigError("max_distance_ratio", fmt.Sprintf("%v outside [0, 1]", param1))
		}
		if param2 < 0 {
			return errdefs.NewConfigError("min_component_size", fmt.Sprintf("%v is negative", param2))
		}
	case MethodAdaptive:
		block := int(param1)
		if block < 3 || block%2 == 0 {
			return errdefs.NewConfigError("block_size", fmt.Sprintf("%v is not an odd integer >= 3", param1))
		}
	case MethodWatershed:
		if param1 <= 0 || param1 > 1 {
			return errdefs.NewConfigError("foreground_threshold", fmt.Sprintf("%v outside (0, 1]", param1))
		}
		kernel := int(param2)
		if kernel < 1 || kernel%2 == 0 {
			return errdefs.NewConfigError("kernel_size", fmt.Sprintf("%v is not an odd integer >= 1", param2))
		}
	default:
		return errdefs.NewConfigError("method", fmt.Sprintf("unknown method %d", method))
	}
	return nil
}

// Segment reads an image from disk and produces its binary mask. The
// meaning of param1 and param2 depends on the method:
//
//	Otsu:      param1 = max centroid distance from center as a fraction
//	           of the image diagonal, param2 = min component size in px
//	Adaptive:  param1 = neighborhood block size (odd, >= 3),
//	           param2 = constant subtracted from the local mean
//	Watershed: param1 = sure-foreground distance threshold (0, 1],
//	           param2 = morphological kernel size (odd)
func Segment(imagePath string, method Method, param1, param2 float64) (*imaging.Mask, error) {
	if err := validate(method, param1, param2); err != nil {
		return nil, err
	}
	img, err := imaging.ReadColorMat(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return SegmentMat(img, method, param1, param2)
}

// SegmentMat produces a binary mask from an already-loaded 3-channel image.
func SegmentMat(img gocv.Mat, method Method, param1, param2 float64) (*imaging.Mask, error) {
	if err := validate(method, param1, param2); err != nil {
		return nil, err
	}

	switch method {
	case MethodOtsu:
		return otsuMask(img, param1, int(param2)), nil
	case MethodAdaptive:
		return adaptiveMask(img, int(param1), float32(param2)), nil
	default:
		return watershedMask(img, param1, int(param2)), nil
	}
}

// grayOf converts a 3-channel image to grayscale.
func grayOf(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if img.Channels() == 1 {
		img.CopyTo(&gray)
		return gray
	}
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gray
}

// otsuMask blurs, applies a global Otsu threshold, labels connected
// components and keeps those whose centroid lies within
// maxDistanceRatio * diagonal of the image center and whose pixel count
// reaches minComponentSize. The kept components are treated as the
// removed region: the returned mask is the inverse of their union.
func otsuMask(img gocv.Mat, maxDistanceRatio float64, minComponentSize int) *imaging.Mask {
	gray := grayOf(img)
	defer gray.Close()

	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(gray, &blur, blurKernel, 0, 0, gocv.BorderDefault)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(blur, &bin, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	count := gocv.ConnectedComponentsWithStats(bin, &labels, &stats, &centroids)

	h, w := gray.Rows(), gray.Cols()
	centerX, centerY := float64(w)/2, float64(h)/2
	diagonal := math.Sqrt(float64(w*w + h*h))
	maxDistance := maxDistanceRatio * diagonal

	// Component 0 is the background label.
	keep := make(map[int32]bool)
	for i := 1; i < count; i++ {
		size := int(stats.GetIntAt(i, 4))
		if size < minComponentSize {
			continue
		}
		cx := centroids.GetDoubleAt(i, 0)
		cy := centroids.GetDoubleAt(i, 1)
		dist := math.Hypot(cx-centerX, cy-centerY)
		if dist <= maxDistance {
			keep[int32(i)] = true
		}
	}

	// Selected components form the removed region; foreground is the rest.
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !keep[labels.GetIntAt(y, x)] {
				pix[y*w+x] = 1
			}
		}
	}
	return imaging.MaskFromPix(w, h, pix)
}

// adaptiveMask thresholds against a Gaussian-weighted local mean computed
// over blockSize neighborhoods, with constant c subtracted.
func adaptiveMask(img gocv.Mat, blockSize int, c float32) *imaging.Mask {
	gray := grayOf(img)
	defer gray.Close()

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.AdaptiveThreshold(gray, &bin, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, blockSize, c)

	return imaging.MaskFromMat(bin)
}

// watershedMask separates touching objects: Otsu threshold for the rough
// mask, dilation for sure background, a thresholded distance transform
// for sure foreground, then watershed over the labeled unknown region.
// Foreground is every watershed region beyond the background label.
func watershedMask(img gocv.Mat, foregroundThreshold float64, kernelSize int) *imaging.Mask {
	gray := grayOf(img)
	defer gray.Close()

	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(gray, &blur, blurKernel, 0, 0, gocv.BorderDefault)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(blur, &thresh, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernelSize, kernelSize))
	defer kernel.Close()
	sureBg := gocv.NewMat()
	defer sureBg.Close()
	gocv.DilateWithParams(thresh, &sureBg, kernel, image.Pt(-1, -1), 3, gocv.BorderConstant, color.RGBA{})

	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(thresh, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	_, maxDist, _, _ := gocv.MinMaxLoc(dist)

	fgFloat := gocv.NewMat()
	defer fgFloat.Close()
	gocv.Threshold(dist, &fgFloat, float32(foregroundThreshold)*maxDist, 255, gocv.ThresholdBinary)
	sureFg := gocv.NewMat()
	defer sureFg.Close()
	fgFloat.ConvertTo(&sureFg, gocv.MatTypeCV8U)

	unknown := gocv.NewMat()
	defer unknown.Close()
	gocv.Subtract(sureBg, sureFg, &unknown)

	markers := gocv.NewMat()
	defer markers.Close()
	gocv.ConnectedComponents(sureFg, &markers)

	// Shift markers so the sure background is 1, and zero the unknown
	// region for watershed to flood.
	h, w := gray.Rows(), gray.Cols()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := markers.GetIntAt(y, x) + 1
			if unknown.GetUCharAt(y, x) == 255 {
				v = 0
			}
			markers.SetIntAt(y, x, v)
		}
	}

	gocv.Watershed(img, &markers)

	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if markers.GetIntAt(y, x) > 1 {
				pix[y*w+x] = 1
			}
		}
	}
	return imaging.MaskFromPix(w, h, pix)
}
