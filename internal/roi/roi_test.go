package roi

import (
	"image"
	"testing"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestBoundsTruncates(t *testing.T) {
	s := Selector{Enabled: true, Rect: config.ROI{XStart: 0.72, YStart: 0.02, XEnd: 0.98, YEnd: 0.28}}

	assert.Equal(t, image.Rect(1382, 21, 1881, 302), s.Bounds(1920, 1080))
	assert.Equal(t, image.Pt(1382, 21), s.Offset(1920, 1080))
}

func TestBoundsDisabledIsFullFrame(t *testing.T) {
	s := Selector{Enabled: false, Rect: config.ROI{XStart: 0.5, YStart: 0.5, XEnd: 0.6, YEnd: 0.6}}

	assert.Equal(t, image.Rect(0, 0, 640, 360), s.Bounds(640, 360))
	assert.Equal(t, image.Point{}, s.Offset(640, 360))
}

func TestBoundsWholeUnitSquare(t *testing.T) {
	s := Selector{Enabled: true, Rect: config.ROI{XStart: 0, YStart: 0, XEnd: 1, YEnd: 1}}
	assert.Equal(t, image.Rect(0, 0, 1280, 720), s.Bounds(1280, 720))
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.UseROI = false

	s := New(cfg)
	assert.False(t, s.Enabled)
	assert.Equal(t, cfg.ROI, s.Rect)
}
