// Package roi converts the configured normalized search rectangle into pixel
// bounds for a given frame size.
package roi

import (
	"image"

	"github.com/kikiluvv/ezclips/internal/config"
)

// Selector restricts the marker search to a sub-rectangle of the frame.
// A disabled selector covers the whole frame.
type Selector struct {
	Enabled bool
	Rect    config.ROI
}

// New builds a selector from the run configuration
func New(cfg *config.Config) Selector {
	return Selector{Enabled: cfg.UseROI, Rect: cfg.ROI}
}

// Bounds returns the absolute pixel rectangle for a width x height frame.
// Coordinates are truncated, not rounded, and clamped to the frame.
func (s Selector) Bounds(width, height int) image.Rectangle {
	full := image.Rect(0, 0, width, height)
	if !s.Enabled {
		return full
	}

	r := image.Rect(
		int(float64(width)*s.Rect.XStart),
		int(float64(height)*s.Rect.YStart),
		int(float64(width)*s.Rect.XEnd),
		int(float64(height)*s.Rect.YEnd),
	)
	return r.Intersect(full)
}

// Offset is the translation from sub-image coordinates back to the full frame
func (s Selector) Offset(width, height int) image.Point {
	return s.Bounds(width, height).Min
}
