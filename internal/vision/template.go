package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Template is the marker image, loaded once per run. When edge mode is on
// its grayscale edge map is computed once here rather than per frame.
type Template struct {
	Image gocv.Mat
	Edges gocv.Mat
}

// EdgeParams are the Canny hysteresis thresholds
type EdgeParams struct {
	Enabled bool
	Low     float32
	High    float32
}

// LoadTemplate reads the marker image from disk
func LoadTemplate(path string, edges EdgeParams) (*Template, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: %s", ErrTemplateLoad, path)
	}
	return newTemplate(img, edges), nil
}

// NewTemplate builds a template from an in-memory BGR image. The image is
// cloned; the caller keeps ownership of img.
func NewTemplate(img gocv.Mat, edges EdgeParams) (*Template, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrTemplateLoad)
	}
	return newTemplate(img.Clone(), edges), nil
}

func newTemplate(img gocv.Mat, edges EdgeParams) *Template {
	t := &Template{Image: img, Edges: gocv.NewMat()}
	if edges.Enabled {
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
		gocv.Canny(gray, &t.Edges, edges.Low, edges.High)
	}
	return t
}

// Size is the template width and height in pixels
func (t *Template) Size() image.Point {
	return image.Pt(t.Image.Cols(), t.Image.Rows())
}

func (t *Template) Close() error {
	t.Image.Close()
	return t.Edges.Close()
}
