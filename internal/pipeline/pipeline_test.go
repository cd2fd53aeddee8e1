package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/ffmpeg"
	"github.com/kikiluvv/ezclips/internal/ledger"
	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/vision"
)

func marker() gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 40, 80, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&m, image.Rect(4, 4, 76, 36), color.RGBA{255, 0, 0, 0}, 3)
	gocv.Rectangle(&m, image.Rect(14, 15, 66, 25), color.RGBA{255, 255, 255, 0}, -1)
	return m
}

// fakeVideo renders 320x180 black frames with the marker inside the
// default ROI on the listed frames
type fakeVideo struct {
	fps    float64
	frames int
	kills  map[int]bool
	next   int
	closed bool
}

func (v *fakeVideo) FPS() float64    { return v.fps }
func (v *fakeVideo) FrameCount() int { return v.frames }
func (v *fakeVideo) Close() error    { v.closed = true; return nil }

func (v *fakeVideo) Next(dst *gocv.Mat) (int, bool) {
	if v.next >= v.frames {
		return 0, false
	}
	v.next++

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 180, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if v.kills[v.next] {
		mk := marker()
		region := frame.Region(image.Rect(232, 6, 312, 46))
		mk.CopyTo(&region)
		region.Close()
		mk.Close()
	}
	frame.CopyTo(dst)
	return v.next, true
}

type fakeTranscoder struct {
	calls []ffmpeg.ClipOptions
	hook  func()
}

func (f *fakeTranscoder) ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error {
	f.calls = append(f.calls, opts)
	if f.hook != nil {
		f.hook()
	}
	return nil
}

type env struct {
	cfg    *config.Config
	store  ledger.Store
	tc     *fakeTranscoder
	videos map[string]*fakeVideo
	bus    *notify.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	mk := marker()
	defer mk.Close()
	tmplPath := filepath.Join(dir, "marker.png")
	require.True(t, gocv.IMWrite(tmplPath, mk))

	cfg := config.Default()
	cfg.InputFolder = filepath.Join(dir, "in")
	cfg.OutputFolder = filepath.Join(dir, "out")
	cfg.TemplatePath = tmplPath
	cfg.FrameSkip = 2
	cfg.CannyThreshold1 = 50
	cfg.CannyThreshold2 = 150
	cfg.Ledger.Path = filepath.Join(dir, "processed_videos.json")

	store, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &env{cfg: cfg, store: store, tc: &fakeTranscoder{}, videos: map[string]*fakeVideo{}, bus: notify.NewBus()}
}

// addVideo creates a placeholder file and the frames served for it
func (e *env) addVideo(t *testing.T, name string, v *fakeVideo) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.cfg.InputFolder, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.InputFolder, name), []byte("video"), 0644))
	if v != nil {
		e.videos[name] = v
	}
}

func (e *env) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(zerolog.Nop(), e.cfg, e.bus, Deps{
		Ledger:     e.store,
		Transcoder: e.tc,
		Open: func(path string) (Source, error) {
			v, ok := e.videos[filepath.Base(path)]
			if !ok {
				return nil, vision.ErrVideoOpen
			}
			return v, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestListVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.MP4", "a.mkv", "notes.txt", "c.mov"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0755))

	videos, err := ListVideos(dir, []string{".mp4", ".mkv"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mkv"), filepath.Join(dir, "b.MP4")}, videos)
}

func TestListVideosCreatesMissingFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "input_videos")

	videos, err := ListVideos(dir, []string{".mp4"})
	require.NoError(t, err)
	assert.Empty(t, videos)
	assert.DirExists(t, dir)
}

func TestDiscoverSkipsLedgerEntries(t *testing.T) {
	e := newEnv(t)
	e.addVideo(t, "one.mp4", nil)
	e.addVideo(t, "two.mp4", nil)
	require.NoError(t, ledger.MarkManual(e.store, "one.mp4"))

	d, err := Discover(e.cfg.InputFolder, e.cfg.VideoExtensions, e.store)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(e.cfg.InputFolder, "two.mp4")}, d.Pending)
	assert.Equal(t, []string{filepath.Join(e.cfg.InputFolder, "one.mp4")}, d.Skipped)
}

func TestNewMissingTemplate(t *testing.T) {
	e := newEnv(t)
	e.cfg.TemplatePath = filepath.Join(t.TempDir(), "missing.png")

	_, err := New(zerolog.Nop(), e.cfg, nil, Deps{Ledger: e.store, Transcoder: e.tc})
	assert.ErrorIs(t, err, vision.ErrTemplateLoad)
}

func TestRunProcessesAndRecords(t *testing.T) {
	e := newEnv(t)
	e.addVideo(t, "one.mp4", &fakeVideo{fps: 10, frames: 80, kills: map[int]bool{10: true, 12: true, 50: true}})
	e.addVideo(t, "two.mp4", &fakeVideo{fps: 10, frames: 40})

	sum, err := e.runner(t).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Clips)
	assert.Zero(t, sum.Failed)
	require.Len(t, e.tc.calls, 2)
	assert.Equal(t, filepath.Join(e.cfg.OutputFolder, "one_kill_001_0.0s-3.0s.mp4"), e.tc.calls[0].Output)
	assert.Equal(t, filepath.Join(e.cfg.OutputFolder, "one_kill_002_2.0s-7.0s.mp4"), e.tc.calls[1].Output)
	assert.DirExists(t, e.cfg.OutputFolder)

	one, err := e.store.Get("one.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, one.ClipsCount)
	assert.NotNil(t, one.ProcessedDate)

	two, err := e.store.Get("two.mp4")
	require.NoError(t, err)
	assert.Zero(t, two.ClipsCount)

	for _, v := range e.videos {
		assert.True(t, v.closed)
	}

	progress := e.bus.DrainProgress()
	require.NotEmpty(t, progress)
	assert.Equal(t, "Completed!", progress[len(progress)-1].Label)

	// a second run finds nothing new
	e.tc.calls = nil
	sum, err = e.runner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)
	assert.Zero(t, sum.Processed)
	assert.Empty(t, e.tc.calls)
}

func TestProcessVideoSkipsZeroLengthClips(t *testing.T) {
	e := newEnv(t)
	e.cfg.BufferBefore = 0
	e.cfg.BufferAfter = 0
	e.addVideo(t, "solo.mp4", &fakeVideo{fps: 10, frames: 40, kills: map[int]bool{10: true}})

	res, err := e.runner(t).ProcessVideo(context.Background(), filepath.Join(e.cfg.InputFolder, "solo.mp4"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Segments)
	assert.Zero(t, res.Saved)
	assert.Zero(t, res.Failed)
	assert.Empty(t, e.tc.calls)

	var warned bool
	for _, m := range e.bus.DrainLogs() {
		if m.Level == notify.LevelWarning && strings.Contains(m.Text, "zero-length") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunContinuesAfterBadVideo(t *testing.T) {
	e := newEnv(t)
	e.addVideo(t, "broken.mp4", nil)
	e.addVideo(t, "good.mp4", &fakeVideo{fps: 10, frames: 20, kills: map[int]bool{10: true}})

	sum, err := e.runner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Processed)

	done, err := e.store.IsProcessed("broken.mp4")
	require.NoError(t, err)
	assert.False(t, done, "failed videos are retried next run")

	var sawError bool
	for _, m := range e.bus.DrainLogs() {
		if m.Level == notify.LevelError {
			sawError = true
			assert.Contains(t, m.Text, "broken.mp4")
		}
	}
	assert.True(t, sawError)
}

func TestRunCancelledVideoNotRecorded(t *testing.T) {
	e := newEnv(t)
	e.addVideo(t, "a.mp4", &fakeVideo{fps: 10, frames: 80, kills: map[int]bool{10: true, 50: true}})
	e.addVideo(t, "b.mp4", &fakeVideo{fps: 10, frames: 20})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.tc.hook = cancel

	sum, err := e.runner(t).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Processed)
	assert.Len(t, e.tc.calls, 1)

	all, err := e.store.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStartDeliversOutcome(t *testing.T) {
	e := newEnv(t)
	e.addVideo(t, "one.mp4", &fakeVideo{fps: 10, frames: 20, kills: map[int]bool{4: true}})

	out, ok := <-e.runner(t).Start(context.Background())
	require.True(t, ok)
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Summary.Processed)
}

func TestRunEmptyFolder(t *testing.T) {
	e := newEnv(t)

	sum, err := e.runner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Discovered)
	assert.DirExists(t, e.cfg.InputFolder)
}

func TestProcessVideoOpenError(t *testing.T) {
	e := newEnv(t)
	_, err := e.runner(t).ProcessVideo(context.Background(), filepath.Join(e.cfg.InputFolder, "nope.mp4"))
	assert.True(t, errors.Is(err, vision.ErrVideoOpen))
}
