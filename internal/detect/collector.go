// Package detect walks a video's frames and collects kill timestamps.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/roi"
	"github.com/kikiluvv/ezclips/internal/timeline"
	"github.com/kikiluvv/ezclips/internal/vision"
)

// ErrNoFrameRate is returned for sources that report no usable FPS
var ErrNoFrameRate = errors.New("video reports no frame rate")

// progressEvery is the scan progress cadence, in sampled frames
const progressEvery = 50

// Source yields decoded frames in order. *vision.Video implements it.
type Source interface {
	// Next decodes into dst and returns the 1-based frame index
	Next(dst *gocv.Mat) (int, bool)
	FPS() float64
	FrameCount() int
}

// Options are the per-run detection settings
type Options struct {
	// Stride samples every Stride-th frame
	Stride   int
	Region   roi.Selector
	Matcher  *vision.Matcher
	Template *vision.Template
	// Validator is nil when the color filter is off
	Validator *vision.ColorValidator
	Cooldown  float64
}

// Result of one scan
type Result struct {
	Times    []float64
	FPS      float64
	Frames   int
	Sampled  int
	Rejected int
}

// Collector runs the per-frame detection loop
type Collector struct {
	logger zerolog.Logger
	bus    *notify.Bus
	opts   Options
}

func NewCollector(logger zerolog.Logger, bus *notify.Bus, opts Options) *Collector {
	if opts.Stride < 1 {
		opts.Stride = 1
	}
	if bus == nil {
		bus = notify.NewBus()
	}
	return &Collector{
		logger: logger.With().Str("component", "detector").Logger(),
		bus:    bus,
		opts:   opts,
	}
}

// Collect scans src to the end. On cancellation the timestamps found so far
// are returned together with the context error.
func (c *Collector) Collect(ctx context.Context, src Source) (*Result, error) {
	fps := src.FPS()
	if !(fps > 0) {
		return nil, ErrNoFrameRate
	}

	res := &Result{FPS: fps}
	total := src.FrameCount()
	duration := float64(total) / fps
	stride := c.opts.Stride

	var (
		acceptor timeline.Acceptor
		throttle = timeline.NewThrottle(c.opts.Cooldown)
		search   image.Rectangle
		sized    bool
	)

	frame := gocv.NewMat()
	defer frame.Close()

	c.logger.Debug().
		Float64("fps", fps).
		Int("frames", total).
		Int("stride", stride).
		Msg("scan started")

	for {
		idx, ok := src.Next(&frame)
		if !ok {
			break
		}
		res.Frames = idx

		if idx%stride != 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Times = acceptor.Times()
			return res, err
		}
		res.Sampled++

		t := float64(idx) / fps
		if idx%(progressEvery*stride) == 0 {
			c.bus.Progress(idx, total, fmt.Sprintf("Scan: %.1fs / %.1fs", t, duration))
		}

		// every frame of a video shares the first frame's size
		if !sized {
			search = c.opts.Region.Bounds(frame.Cols(), frame.Rows())
			sized = true
		}

		hit, err := c.inspect(frame, search)
		if err != nil {
			res.Times = acceptor.Times()
			return res, err
		}
		if !hit.found {
			continue
		}
		if !hit.valid {
			res.Rejected++
			continue
		}

		if !acceptor.Accept(t) {
			continue
		}
		c.logger.Debug().Float64("t", t).Float32("score", hit.score).Int("pixels", hit.pixels).Msg("kill accepted")

		if throttle.Allow(t) {
			c.announce(frame, t, hit)
		}
	}

	res.Times = acceptor.Times()
	c.logger.Info().
		Int("kills", len(res.Times)).
		Int("sampled", res.Sampled).
		Int("rejected", res.Rejected).
		Msg("scan complete")

	return res, nil
}

type hit struct {
	found  bool
	valid  bool
	score  float32
	pixels int
	search image.Rectangle
	match  image.Rectangle
}

// inspect runs matching and color validation on one frame within search
func (c *Collector) inspect(frame gocv.Mat, search image.Rectangle) (hit, error) {
	h := hit{search: search}

	region := frame.Region(h.search)
	cand, found, err := c.opts.Matcher.Find(region, c.opts.Template)
	region.Close()
	if err != nil || !found {
		return h, err
	}

	h.found = true
	h.score = cand.Score
	origin := cand.Point.Add(h.search.Min)
	h.match = image.Rectangle{Min: origin, Max: origin.Add(c.opts.Template.Size())}

	if c.opts.Validator == nil {
		h.valid = true
		return h, nil
	}

	h.valid, h.pixels = c.opts.Validator.Validate(frame, h.match)
	return h, nil
}

func (c *Collector) announce(frame gocv.Mat, t float64, h hit) {
	msg := fmt.Sprintf("Kill found: %.2fs", t)
	if c.opts.Validator != nil {
		msg = fmt.Sprintf("Kill found: %.2fs (%d red pixels)", t, h.pixels)
	}
	c.bus.Log(notify.LevelSuccess, msg)

	search := image.Rectangle{}
	if c.opts.Region.Enabled {
		search = h.search
	}
	img, err := vision.Annotate(frame, search, h.match)
	if err != nil {
		c.logger.Warn().Err(err).Msg("preview annotation failed")
		return
	}
	c.bus.Preview(img, fmt.Sprintf("%.2fs", t))
}
