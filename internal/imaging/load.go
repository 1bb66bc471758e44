// Package imaging provides image decoding and the binary mask type shared
// by the segmentation and morphometry packages.
package imaging

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"cytosort/pkg/errdefs"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Decode reads and decodes a raster image (PNG, JPEG, BMP, TIFF) from disk.
func Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errdefs.NewImageLoadError(path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errdefs.NewImageLoadError(path, err)
	}
	return img, nil
}

// ReadColorMat reads an image from disk as a 3-channel BGR Mat. Grayscale
// sources are expanded and alpha channels dropped by the color read.
// The caller owns the returned Mat and must Close it.
func ReadColorMat(path string) (gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), errdefs.NewImageLoadError(path, nil)
	}
	return mat, nil
}

// ToRGBMat converts a decoded image to a 3-channel RGB Mat. Grayscale
// images are expanded to three channels and alpha is dropped.
// The caller owns the returned Mat and must Close it.
func ToRGBMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	return mat, nil
}
