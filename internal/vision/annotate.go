package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	roiColor   = color.RGBA{255, 255, 0, 0}
	matchColor = color.RGBA{255, 0, 0, 0}
)

// Annotate copies frame, outlines the search region and the match, and
// converts the result to an image.Image. Empty rectangles are not drawn.
func Annotate(frame gocv.Mat, searchRect, matchRect image.Rectangle) (image.Image, error) {
	canvas := frame.Clone()
	defer canvas.Close()

	if !searchRect.Empty() {
		gocv.Rectangle(&canvas, searchRect, roiColor, 2)
	}
	if !matchRect.Empty() {
		gocv.Rectangle(&canvas, matchRect, matchColor, 3)
	}

	return canvas.ToImage()
}
