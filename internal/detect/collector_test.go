package detect

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/ezclips/internal/clips"
	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/roi"
	"github.com/kikiluvv/ezclips/internal/timeline"
	"github.com/kikiluvv/ezclips/internal/vision"
)

var (
	red   = color.RGBA{255, 0, 0, 0}
	gray  = color.RGBA{128, 128, 128, 0}
	edges = vision.EdgeParams{Enabled: true, Low: 50, High: 150}
)

func marker(border color.RGBA) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 40, 80, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&m, image.Rect(4, 4, 76, 36), border, 3)
	gocv.Rectangle(&m, image.Rect(14, 15, 66, 25), color.RGBA{255, 255, 255, 0}, -1)
	return m
}

type placement struct {
	at     image.Point
	border color.RGBA
}

// synthSource renders black 320x180 frames, drawing a marker on the frames
// listed in marks. Frames after growAfter, when set, are 640x360. Frame
// indexes are 1-based.
type synthSource struct {
	fps       float64
	frames    int
	marks     map[int]placement
	growAfter int
	next      int
}

func (s *synthSource) FPS() float64    { return s.fps }
func (s *synthSource) FrameCount() int { return s.frames }

func (s *synthSource) Next(dst *gocv.Mat) (int, bool) {
	if s.next >= s.frames {
		return 0, false
	}
	s.next++

	w, h := 320, 180
	if s.growAfter > 0 && s.next > s.growAfter {
		w, h = 640, 360
	}
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if p, ok := s.marks[s.next]; ok {
		mk := marker(p.border)
		region := frame.Region(image.Rectangle{Min: p.at, Max: p.at.Add(image.Pt(80, 40))})
		mk.CopyTo(&region)
		region.Close()
		mk.Close()
	}
	frame.CopyTo(dst)
	return s.next, true
}

// killfeed places a marker inside the default ROI for frames [from, to]
func killfeed(marks map[int]placement, from, to int, border color.RGBA) {
	for i := from; i <= to; i++ {
		marks[i] = placement{at: image.Pt(232, 6), border: border}
	}
}

type fixture struct {
	opts Options
}

func newFixture(t *testing.T, colorFilter bool) fixture {
	t.Helper()
	cfg := config.Default()

	mk := marker(red)
	defer mk.Close()
	tmpl, err := vision.NewTemplate(mk, edges)
	require.NoError(t, err)

	matcher := vision.NewMatcher(edges, float32(cfg.Threshold), vision.FirstMatch)
	t.Cleanup(func() {
		tmpl.Close()
		matcher.Close()
	})

	opts := Options{
		Stride:   2,
		Region:   roi.New(cfg),
		Matcher:  matcher,
		Template: tmpl,
		Cooldown: cfg.KillCooldown,
	}
	if colorFilter {
		v := vision.NewColorValidator(
			vision.HSVRange{Lower: cfg.KillColorLower, Upper: cfg.KillColorUpper},
			vision.HSVRange{Lower: cfg.KillColorLower2, Upper: cfg.KillColorUpper2},
			cfg.MinColorPixels,
		)
		t.Cleanup(func() { v.Close() })
		opts.Validator = v
	}
	return fixture{opts: opts}
}

func TestCollectEndToEnd(t *testing.T) {
	f := newFixture(t, true)
	bus := notify.NewBus()
	c := NewCollector(zerolog.Nop(), bus, f.opts)

	marks := map[int]placement{}
	killfeed(marks, 10, 14, red)
	killfeed(marks, 40, 44, red)
	src := &synthSource{fps: 10, frames: 60, marks: marks}

	res, err := c.Collect(context.Background(), src)
	require.NoError(t, err)

	// frames 10,12,14 collapse into one kill at 1.0s
	assert.Equal(t, []float64{1.0, 4.0}, res.Times)
	assert.Equal(t, 10.0, res.FPS)
	assert.Equal(t, 60, res.Frames)
	assert.Equal(t, 30, res.Sampled)

	segments := timeline.Merge(res.Times, 2.0)
	require.Len(t, segments, 2)

	jobs := clips.Plan("match.mp4", segments, clips.Padding{Before: 3, After: 2}, "kills", ".mp4")
	require.Len(t, jobs, 2)
	assert.Equal(t, 0.0, jobs[0].Start)
	assert.InDelta(t, 1.0, jobs[1].Start, 1e-9)

	previews := bus.DrainPreviews()
	require.Len(t, previews, 2)
	assert.Equal(t, image.Rect(0, 0, 320, 180), previews[0].Image.Bounds())

	var found int
	for _, m := range bus.DrainLogs() {
		if m.Level == notify.LevelSuccess {
			found++
			assert.Contains(t, m.Text, "red pixels")
		}
	}
	assert.Equal(t, 2, found)
}

func TestCollectRejectsWrongColor(t *testing.T) {
	f := newFixture(t, true)
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	marks := map[int]placement{}
	killfeed(marks, 10, 10, gray)
	killfeed(marks, 30, 30, red)
	res, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 40, marks: marks})
	require.NoError(t, err)

	assert.Equal(t, []float64{3.0}, res.Times)
	assert.Equal(t, 1, res.Rejected)
}

func TestCollectWithoutColorFilter(t *testing.T) {
	f := newFixture(t, false)
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	marks := map[int]placement{}
	killfeed(marks, 10, 10, gray)
	res, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 20, marks: marks})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0}, res.Times)
}

func TestCollectIgnoresMarkersOutsideRegion(t *testing.T) {
	f := newFixture(t, true)
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	marks := map[int]placement{10: {at: image.Pt(20, 100), border: red}}
	res, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 20, marks: marks})
	require.NoError(t, err)
	assert.Empty(t, res.Times)
}

func TestCollectSearchAreaFixedByFirstFrame(t *testing.T) {
	f := newFixture(t, true)
	bus := notify.NewBus()
	c := NewCollector(zerolog.Nop(), bus, f.opts)

	// the marker sits in the 320x180 search area but left of the ROI a
	// 640x360 frame would get
	marks := map[int]placement{}
	killfeed(marks, 20, 20, red)
	res, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 30, marks: marks, growAfter: 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.0}, res.Times)

	previews := bus.DrainPreviews()
	require.Len(t, previews, 1)
	assert.Equal(t, image.Rect(0, 0, 640, 360), previews[0].Image.Bounds())
}

func TestCollectSkipsUnsampledFrames(t *testing.T) {
	f := newFixture(t, true)
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	// odd frames are never sampled with stride 2
	marks := map[int]placement{}
	killfeed(marks, 11, 11, red)
	res, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 20, marks: marks})
	require.NoError(t, err)
	assert.Empty(t, res.Times)
}

func TestCollectThrottlesNotifications(t *testing.T) {
	f := newFixture(t, true)
	bus := notify.NewBus()
	c := NewCollector(zerolog.Nop(), bus, f.opts)

	// kills at 1.0s and 2.0s are both accepted, only the first is announced
	marks := map[int]placement{}
	killfeed(marks, 10, 10, red)
	killfeed(marks, 20, 20, red)
	res, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 30, marks: marks})
	require.NoError(t, err)

	assert.Equal(t, []float64{1.0, 2.0}, res.Times)
	assert.Len(t, bus.DrainPreviews(), 1)
}

func TestCollectCancelled(t *testing.T) {
	f := newFixture(t, true)
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Collect(ctx, &synthSource{fps: 10, frames: 20})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Times)
}

func TestCollectNoFrameRate(t *testing.T) {
	f := newFixture(t, true)
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	_, err := c.Collect(context.Background(), &synthSource{fps: 0, frames: 20})
	assert.ErrorIs(t, err, ErrNoFrameRate)
}

func TestCollectRegionTooSmall(t *testing.T) {
	f := newFixture(t, true)
	f.opts.Region = roi.Selector{Enabled: true, Rect: config.ROI{XStart: 0.9, YStart: 0, XEnd: 1, YEnd: 0.1}}
	c := NewCollector(zerolog.Nop(), nil, f.opts)

	_, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 4})
	assert.ErrorIs(t, err, vision.ErrRegionTooSmall)
}

func TestCollectScanProgress(t *testing.T) {
	f := newFixture(t, true)
	f.opts.Stride = 1
	bus := notify.NewBus()
	c := NewCollector(zerolog.Nop(), bus, f.opts)

	_, err := c.Collect(context.Background(), &synthSource{fps: 10, frames: 120})
	require.NoError(t, err)

	progress := bus.DrainProgress()
	require.Len(t, progress, 2)
	assert.Equal(t, 50, progress[0].Current)
	assert.Equal(t, 120, progress[0].Total)
	assert.Equal(t, "Scan: 5.0s / 12.0s", progress[0].Label)
}
