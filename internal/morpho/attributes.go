// Package morpho computes quantitative shape and intensity descriptors
// from an image and its segmentation mask.
package morpho

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"cytosort/internal/imaging"
	"cytosort/pkg/errdefs"
	"cytosort/pkg/geometry"

	"gocv.io/x/gocv"
)

// DefaultMinAreaRatio is the default contour noise-rejection threshold as
// a fraction of the image area.
const DefaultMinAreaRatio = 0.05

// Attributes holds the 14 morphometric descriptors of one image/mask
// pair. The zero value is the valid "no detectable object" result; Map
// always exposes all 14 keys.
type Attributes struct {
	Area            float64 `json:"area"`
	Perimeter       float64 `json:"perimeter"`
	Eccentricity    float64 `json:"eccentricity"`
	Solidity        float64 `json:"solidity"`
	AspectRatio     float64 `json:"aspect_ratio"`
	Circularity     float64 `json:"circularity"`
	MajorAxisLength float64 `json:"major_axis_length"`
	MinorAxisLength float64 `json:"minor_axis_length"`
	MeanIntensity   float64 `json:"mean_intensity"`
	StdIntensity    float64 `json:"std_intensity"`
	Compactness     float64 `json:"compactness"`
	Convexity       float64 `json:"convexity"`
	Curl            float64 `json:"curl"`
	Volume          float64 `json:"volume"`
}

// Keys lists the descriptor names in a stable order.
var Keys = []string{
	"area", "perimeter", "eccentricity", "solidity", "aspect_ratio",
	"circularity", "major_axis_length", "minor_axis_length",
	"mean_intensity", "std_intensity", "compactness", "convexity",
	"curl", "volume",
}

// Map returns all 14 descriptors as a fixed-key map. Downstream
// aggregation depends on every key being present.
func (a Attributes) Map() map[string]float64 {
	return map[string]float64{
		"area":              a.Area,
		"perimeter":         a.Perimeter,
		"eccentricity":      a.Eccentricity,
		"solidity":          a.Solidity,
		"aspect_ratio":      a.AspectRatio,
		"circularity":       a.Circularity,
		"major_axis_length": a.MajorAxisLength,
		"minor_axis_length": a.MinorAxisLength,
		"mean_intensity":    a.MeanIntensity,
		"std_intensity":     a.StdIntensity,
		"compactness":       a.Compactness,
		"convexity":         a.Convexity,
		"curl":              a.Curl,
		"volume":            a.Volume,
	}
}

// ExtractAttributes reads the image from disk and computes descriptors
// against the given mask.
func ExtractAttributes(imagePath string, mask *imaging.Mask, minAreaRatio float64) (Attributes, error) {
	img, err := imaging.ReadColorMat(imagePath)
	if err != nil {
		return Attributes{}, err
	}
	defer img.Close()
	return ExtractAttributesMat(img, mask, minAreaRatio)
}

// ExtractAttributesMat computes descriptors from an already-loaded
// 3-channel image and its mask. Contours covering less than
// minAreaRatio of the image area are rejected as noise; when no contour
// survives, the zero-filled Attributes value is returned. All surviving
// contours are pooled as one combined region.
func ExtractAttributesMat(img gocv.Mat, mask *imaging.Mask, minAreaRatio float64) (Attributes, error) {
	if img.Cols() != mask.Width() || img.Rows() != mask.Height() {
		return Attributes{}, errdefs.NewConfigError("mask",
			fmt.Sprintf("mask %dx%d does not match image %dx%d",
				mask.Width(), mask.Height(), img.Cols(), img.Rows()))
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	maskMat := mask.ToMat()
	defer maskMat.Close()

	contours := gocv.FindContours(maskMat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	imageArea := float64(img.Cols() * img.Rows())
	minContourArea := minAreaRatio * imageArea

	valid := gocv.NewPointsVector()
	defer valid.Close()
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) > minContourArea {
			valid.Append(c)
		}
	}
	if valid.Size() == 0 {
		return Attributes{}, nil
	}

	var attrs Attributes
	var allPoints []image.Point
	for i := 0; i < valid.Size(); i++ {
		c := valid.At(i)
		attrs.Area += gocv.ContourArea(c)
		attrs.Perimeter += gocv.ArcLength(c, true)
		allPoints = append(allPoints, c.ToPoints()...)
	}

	hullPts := make([]geometry.Point2D, len(allPoints))
	for i, p := range allPoints {
		hullPts[i] = geometry.Point2D{X: float64(p.X), Y: float64(p.Y)}
	}
	hull := geometry.ConvexHull(hullPts)
	hullArea := geometry.PolygonArea(hull)
	if hullArea != 0 {
		attrs.Solidity = attrs.Area / hullArea
	}

	pooled := gocv.NewPointVectorFromPoints(allPoints)
	defer pooled.Close()

	// Ellipse fitting needs at least 5 boundary points.
	if len(allPoints) >= 5 {
		ellipse := gocv.FitEllipse(pooled)
		major := math.Max(float64(ellipse.Width), float64(ellipse.Height))
		minor := math.Min(float64(ellipse.Width), float64(ellipse.Height))
		attrs.MajorAxisLength = major
		attrs.MinorAxisLength = minor
		if major != 0 {
			attrs.Eccentricity = math.Sqrt(1 - (minor/major)*(minor/major))
		}
	}

	box := gocv.BoundingRect(pooled)
	attrs.AspectRatio = geometry.RectInt{
		X: box.Min.X, Y: box.Min.Y, Width: box.Dx(), Height: box.Dy(),
	}.AspectRatio()

	if attrs.Perimeter != 0 {
		attrs.Circularity = 4 * math.Pi * attrs.Area / (attrs.Perimeter * attrs.Perimeter)
	}

	attrs.MeanIntensity, attrs.StdIntensity = maskedIntensity(gray, valid)

	if attrs.Area != 0 {
		attrs.Compactness = (attrs.Perimeter * attrs.Perimeter) / (4 * math.Pi * attrs.Area)
		attrs.Curl = attrs.Perimeter / (2 * math.Sqrt(math.Pi*attrs.Area))
	}
	if hullPerimeter := geometry.PolygonPerimeter(hull); hullPerimeter != 0 {
		attrs.Convexity = attrs.Perimeter / hullPerimeter
	}

	// Approximate volume of a sphere whose diameter is perimeter / pi.
	diameter := attrs.Perimeter / math.Pi
	attrs.Volume = (4.0 / 3.0) * math.Pi * math.Pow(diameter/2, 3)

	return attrs, nil
}

// maskedIntensity fills the valid contours into a combined mask and
// returns the mean and standard deviation of the grayscale pixels inside.
func maskedIntensity(gray gocv.Mat, valid gocv.PointsVector) (mean, std float64) {
	combined := gocv.NewMatWithSize(gray.Rows(), gray.Cols(), gocv.MatTypeCV8U)
	defer combined.Close()
	for i := 0; i < valid.Size(); i++ {
		gocv.DrawContours(&combined, valid, i, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	}

	var sum, sumSq float64
	var n int
	for y := 0; y < gray.Rows(); y++ {
		for x := 0; x < gray.Cols(); x++ {
			if combined.GetUCharAt(y, x) == 0 {
				continue
			}
			v := float64(gray.GetUCharAt(y, x))
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
