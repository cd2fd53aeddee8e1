package preview

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestThumbnail(t *testing.T) {
	img := solid(1920, 1080, color.White)

	th := Thumbnail(img, 640, 0)
	assert.Equal(t, 640, th.Bounds().Dx())
	assert.Equal(t, 360, th.Bounds().Dy())

	small := solid(100, 50, color.White)
	assert.Same(t, small, Thumbnail(small, 640, 480))
}

func TestCrop(t *testing.T) {
	img := solid(200, 100, color.Black)
	img.Set(150, 10, color.RGBA{255, 0, 0, 255})

	crop := Crop(img, image.Rect(140, 0, 190, 30), 1)
	assert.Equal(t, 50, crop.Bounds().Dx())
	assert.Equal(t, 30, crop.Bounds().Dy())

	r, _, _, _ := crop.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	zoomed := Crop(img, image.Rect(140, 0, 190, 30), 3)
	assert.Equal(t, image.Pt(150, 90), zoomed.Bounds().Size())

	clipped := Crop(img, image.Rect(180, 90, 400, 400), 1)
	assert.Equal(t, image.Pt(20, 10), clipped.Bounds().Size())
}

func TestSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "previews")
	s := &Saver{Dir: dir, MaxWidth: 320}

	p1, err := s.Save("match one", "12.50s", solid(640, 360, color.White))
	require.NoError(t, err)
	p2, err := s.Save("match one", "", solid(64, 36, color.White))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "match_one_001_12.50s.jpg"), p1)
	assert.Equal(t, filepath.Join(dir, "match_one_002.jpg"), p2)

	f, err := os.Open(p1)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
}
