package imaging

import (
	"gocv.io/x/gocv"
)

// Mask is a binary foreground mask with the same dimensions as its source
// image. Pixels are 0 (background) or 1 (foreground). A Mask is immutable
// after creation: re-running segmentation produces a new Mask, never a
// partial update of an existing one.
type Mask struct {
	width  int
	height int
	pix    []uint8
}

// NewMask creates an all-zero mask of the given dimensions.
func NewMask(width, height int) *Mask {
	return &Mask{
		width:  width,
		height: height,
		pix:    make([]uint8, width*height),
	}
}

// MaskFromPix creates a mask from a row-major pixel buffer. Any nonzero
// value is treated as foreground. The buffer is copied.
func MaskFromPix(width, height int, pix []uint8) *Mask {
	m := NewMask(width, height)
	for i, v := range pix {
		if v != 0 {
			m.pix[i] = 1
		}
	}
	return m
}

// MaskFromMat creates a mask from a single-channel Mat. Any nonzero pixel
// is treated as foreground.
func MaskFromMat(mat gocv.Mat) *Mask {
	h, w := mat.Rows(), mat.Cols()
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mat.GetUCharAt(y, x) != 0 {
				m.pix[y*w+x] = 1
			}
		}
	}
	return m
}

// Width returns the mask width in pixels.
func (m *Mask) Width() int { return m.width }

// Height returns the mask height in pixels.
func (m *Mask) Height() int { return m.height }

// At returns 1 if the pixel at (x, y) is foreground.
func (m *Mask) At(x, y int) uint8 {
	return m.pix[y*m.width+x]
}

// Area returns the number of foreground pixels.
func (m *Mask) Area() int {
	n := 0
	for _, v := range m.pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// ToMat returns the mask as a single-channel 8-bit Mat with foreground
// pixels set to 255. The caller owns the returned Mat and must Close it.
func (m *Mask) ToMat() gocv.Mat {
	mat := gocv.NewMatWithSize(m.height, m.width, gocv.MatTypeCV8U)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if m.pix[y*m.width+x] != 0 {
				mat.SetUCharAt(y, x, 255)
			}
		}
	}
	return mat
}
