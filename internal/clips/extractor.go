package clips

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/ezclips/internal/ffmpeg"
	"github.com/kikiluvv/ezclips/internal/notify"
)

// ErrTranscode wraps a failed extraction job
var ErrTranscode = errors.New("transcode failed")

// Transcoder cuts one clip. *ffmpeg.Executor satisfies it.
type Transcoder interface {
	ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error
}

// Failure is a job whose transcoder invocation failed
type Failure struct {
	Job Job
	Err error
}

// Report summarizes one Extract call
type Report struct {
	Saved  []Job
	Failed []Failure
}

// Extractor runs jobs sequentially. A failed job is reported and the rest
// still run; only cancellation stops the loop.
type Extractor struct {
	logger     zerolog.Logger
	transcoder Transcoder
	bus        *notify.Bus
}

func NewExtractor(logger zerolog.Logger, t Transcoder, bus *notify.Bus) *Extractor {
	if bus == nil {
		bus = notify.NewBus()
	}
	return &Extractor{
		logger:     logger.With().Str("component", "extractor").Logger(),
		transcoder: t,
		bus:        bus,
	}
}

// Extract runs every job. The returned error is non-nil only when ctx was
// cancelled; per-job failures are in the report.
func (x *Extractor) Extract(ctx context.Context, jobs []Job) (*Report, error) {
	report := &Report{}
	if len(jobs) == 0 {
		return report, nil
	}

	x.bus.Log(notify.LevelInfo, fmt.Sprintf("Extracting %d clips...", len(jobs)))

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := filepath.Base(job.Dest)
		x.bus.Log(notify.LevelInfo, fmt.Sprintf("Clip %d/%d: %.1fs - %.1fs", i+1, len(jobs), job.Start, job.End()))
		x.bus.Progress(i+1, len(jobs), fmt.Sprintf("Extracting clips: %d/%d", i+1, len(jobs)))

		opts := job.Options()
		opts.Progress = x.clipProgress(i+1, len(jobs), opts.Duration)

		jobCtx, cancel := context.WithTimeout(ctx, job.Timeout())
		err := x.transcoder.ExtractClip(jobCtx, job.Source, opts)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			x.logger.Error().Err(err).Str("clip", name).Msg("extraction failed")
			x.bus.Log(notify.LevelError, "Failed: "+name)
			report.Failed = append(report.Failed, Failure{Job: job, Err: fmt.Errorf("%w: %s: %v", ErrTranscode, name, err)})
			continue
		}

		x.logger.Debug().Str("clip", name).Msg("clip saved")
		x.bus.Log(notify.LevelSuccess, "Saved: "+name)
		report.Saved = append(report.Saved, job)
	}

	x.bus.Log(notify.LevelSuccess, fmt.Sprintf("%d/%d clips saved", len(report.Saved), len(jobs)))
	return report, nil
}

// clipProgress forwards the transcoder's position within one clip to the bus
func (x *Extractor) clipProgress(n, total int, length time.Duration) ffmpeg.ProgressFunc {
	label := fmt.Sprintf("Extracting clips: %d/%d", n, total)
	return func(p *ffmpeg.Progress) {
		done := p.OutTime
		if done > length {
			done = length
		}
		x.bus.Progress(int(done.Milliseconds()), int(length.Milliseconds()), label)
	}
}
