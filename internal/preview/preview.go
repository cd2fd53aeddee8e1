// Package preview scales, crops and saves the annotated frames produced
// during a scan and by the roi command.
package preview

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/gift"
	"github.com/nfnt/resize"

	"github.com/kikiluvv/ezclips/pkg/util"
)

// DefaultWidth bounds preview thumbnails shown by the control surfaces
const DefaultWidth = 640

// Thumbnail scales img to fit within maxWidth x maxHeight, keeping the
// aspect ratio. Images already small enough are returned unchanged. A zero
// bound is unconstrained.
func Thumbnail(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 {
		maxWidth = b.Dx()
	}
	if maxHeight <= 0 {
		maxHeight = b.Dy()
	}
	if b.Dx() <= maxWidth && b.Dy() <= maxHeight {
		return img
	}
	return resize.Thumbnail(uint(maxWidth), uint(maxHeight), img, resize.Bilinear)
}

// Crop returns the part of img inside rect, enlarged by zoom with
// nearest-neighbour sampling so killfeed pixels stay sharp.
func Crop(img image.Image, rect image.Rectangle, zoom int) image.Image {
	rect = rect.Intersect(img.Bounds())
	if zoom < 1 {
		zoom = 1
	}

	g := gift.New(gift.Crop(rect))
	if zoom > 1 {
		g.Add(gift.Resize(rect.Dx()*zoom, rect.Dy()*zoom, gift.NearestNeighborResampling))
	}

	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// SaveJPEG writes img to path, creating the parent directory
func SaveJPEG(path string, img image.Image) error {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Saver writes preview frames into a directory with sequential names
type Saver struct {
	Dir      string
	MaxWidth int
	seq      int
}

// Save writes img as <prefix>_<seq>_<label>.jpg and returns the path
func (s *Saver) Save(prefix, label string, img image.Image) (string, error) {
	s.seq++
	name := fmt.Sprintf("%s_%03d", sanitize(prefix), s.seq)
	if label != "" {
		name += "_" + sanitize(label)
	}
	path := filepath.Join(s.Dir, name+".jpg")

	if err := SaveJPEG(path, Thumbnail(img, s.MaxWidth, 0)); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
