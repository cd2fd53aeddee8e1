package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// HSVRange is an inclusive lower/upper bound in OpenCV HSV space
type HSVRange struct {
	Lower [3]int
	Upper [3]int
}

func (r HSVRange) scalars() (gocv.Scalar, gocv.Scalar) {
	return gocv.NewScalar(float64(r.Lower[0]), float64(r.Lower[1]), float64(r.Lower[2]), 0),
		gocv.NewScalar(float64(r.Upper[0]), float64(r.Upper[1]), float64(r.Upper[2]), 0)
}

// ColorValidator accepts a match when enough pixels inside it fall in
// either of two HSV ranges. Two ranges cover red hues wrapping around 0/180.
type ColorValidator struct {
	Ranges    [2]HSVRange
	MinPixels int

	hsv   gocv.Mat
	mask1 gocv.Mat
	mask2 gocv.Mat
	mask  gocv.Mat
}

func NewColorValidator(a, b HSVRange, minPixels int) *ColorValidator {
	return &ColorValidator{
		Ranges:    [2]HSVRange{a, b},
		MinPixels: minPixels,
		hsv:       gocv.NewMat(),
		mask1:     gocv.NewMat(),
		mask2:     gocv.NewMat(),
		mask:      gocv.NewMat(),
	}
}

// Validate counts in-range pixels inside rect of the full BGR frame
func (v *ColorValidator) Validate(frame gocv.Mat, rect image.Rectangle) (bool, int) {
	rect = rect.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if rect.Empty() {
		return v.MinPixels <= 0, 0
	}

	region := frame.Region(rect)
	defer region.Close()

	gocv.CvtColor(region, &v.hsv, gocv.ColorBGRToHSV)

	lo, hi := v.Ranges[0].scalars()
	gocv.InRangeWithScalar(v.hsv, lo, hi, &v.mask1)
	lo, hi = v.Ranges[1].scalars()
	gocv.InRangeWithScalar(v.hsv, lo, hi, &v.mask2)
	gocv.BitwiseOr(v.mask1, v.mask2, &v.mask)

	count := gocv.CountNonZero(v.mask)
	return count >= v.MinPixels, count
}

func (v *ColorValidator) Close() error {
	v.hsv.Close()
	v.mask1.Close()
	v.mask2.Close()
	return v.mask.Close()
}
