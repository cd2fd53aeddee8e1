// Package pipeline runs detection, merging and extraction over every
// unprocessed video in the input folder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/ezclips/internal/clips"
	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/detect"
	"github.com/kikiluvv/ezclips/internal/ledger"
	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/roi"
	"github.com/kikiluvv/ezclips/internal/timeline"
	"github.com/kikiluvv/ezclips/internal/vision"
	"github.com/kikiluvv/ezclips/pkg/util"
)

// Deps are the collaborators a Runner drives
type Deps struct {
	Ledger     ledger.Store
	Transcoder clips.Transcoder
	// Open defaults to vision.OpenVideo
	Open OpenFunc
}

// Runner orchestrates the entire kill extraction workflow. It owns a config
// snapshot, so edits made while it runs take effect on the next run.
type Runner struct {
	logger zerolog.Logger
	cfg    *config.Config
	bus    *notify.Bus
	deps   Deps

	template  *vision.Template
	matcher   *vision.Matcher
	validator *vision.ColorValidator
	extractor *clips.Extractor
}

// New validates cfg, loads the marker template and builds the detectors
func New(logger zerolog.Logger, cfg *config.Config, bus *notify.Bus, deps Deps) (*Runner, error) {
	cfg = cfg.Snapshot()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Ledger == nil || deps.Transcoder == nil {
		return nil, errors.New("pipeline: ledger and transcoder are required")
	}
	if deps.Open == nil {
		deps.Open = func(path string) (Source, error) { return vision.OpenVideo(path) }
	}
	if bus == nil {
		bus = notify.NewBus()
	}

	strategy, err := vision.ParseStrategy(cfg.MatchStrategy)
	if err != nil {
		return nil, err
	}

	edges := vision.EdgeParams{
		Enabled: cfg.UseEdgeDetection,
		Low:     float32(cfg.CannyThreshold1),
		High:    float32(cfg.CannyThreshold2),
	}
	tmpl, err := vision.LoadTemplate(cfg.TemplatePath, edges)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		cfg:       cfg,
		bus:       bus,
		deps:      deps,
		template:  tmpl,
		matcher:   vision.NewMatcher(edges, float32(cfg.Threshold), strategy),
		extractor: clips.NewExtractor(logger, deps.Transcoder, bus),
	}
	if cfg.UseColorFilter {
		r.validator = vision.NewColorValidator(
			vision.HSVRange{Lower: cfg.KillColorLower, Upper: cfg.KillColorUpper},
			vision.HSVRange{Lower: cfg.KillColorLower2, Upper: cfg.KillColorUpper2},
			cfg.MinColorPixels,
		)
	}

	size := tmpl.Size()
	r.logger.Debug().
		Str("template", cfg.TemplatePath).
		Int("width", size.X).
		Int("height", size.Y).
		Bool("edges", edges.Enabled).
		Bool("color_filter", cfg.UseColorFilter).
		Str("strategy", cfg.MatchStrategy).
		Msg("detector ready")

	return r, nil
}

// Close releases native detector resources
func (r *Runner) Close() error {
	if r.validator != nil {
		r.validator.Close()
	}
	r.matcher.Close()
	return r.template.Close()
}

// ProcessVideo scans one video, cuts its clips and records it in the
// ledger. A cancelled video is not recorded.
func (r *Runner) ProcessVideo(ctx context.Context, path string) (*VideoResult, error) {
	name := filepath.Base(path)
	logger := r.logger.With().Str("video", name).Logger()
	started := time.Now()
	res := &VideoResult{Name: name, Path: path}

	src, err := r.deps.Open(path)
	if err != nil {
		return res, err
	}
	defer src.Close()

	collector := detect.NewCollector(logger, r.bus, detect.Options{
		Stride:    r.cfg.FrameSkip,
		Region:    roi.New(r.cfg),
		Matcher:   r.matcher,
		Template:  r.template,
		Validator: r.validator,
		Cooldown:  r.cfg.KillCooldown,
	})

	r.bus.Log(notify.LevelInfo, fmt.Sprintf("Scanning %s (%.0f fps, %d frames)", name, src.FPS(), src.FrameCount()))
	scan, err := collector.Collect(ctx, src)
	if err != nil {
		return res, err
	}
	res.Kills = len(scan.Times)

	if res.Kills == 0 {
		r.bus.Log(notify.LevelWarning, "No kills found!")
		res.Elapsed = time.Since(started)
		return res, r.record(path, 0)
	}

	segments := timeline.Merge(scan.Times, r.cfg.MinKillGap)
	res.Segments = len(segments)
	r.bus.Log(notify.LevelInfo, fmt.Sprintf("%d kills merged into %d segments", res.Kills, res.Segments))

	if err := util.EnsureDir(r.cfg.OutputFolder); err != nil {
		return res, fmt.Errorf("create output folder: %w", err)
	}

	pad := clips.Padding{Before: r.cfg.BufferBefore, After: r.cfg.BufferAfter}
	jobs := clips.Plan(path, segments, pad, r.cfg.OutputFolder, r.cfg.OutputExtension)
	if skipped := len(segments) - len(jobs); skipped > 0 {
		logger.Warn().Int("segments", skipped).Msg("zero-length clip windows skipped")
		r.bus.Log(notify.LevelWarning, fmt.Sprintf("Skipped %d zero-length clips (buffer_before and buffer_after are both 0)", skipped))
	}

	report, err := r.extractor.Extract(ctx, jobs)
	if report != nil {
		res.Saved = len(report.Saved)
		res.Failed = len(report.Failed)
	}
	if err != nil {
		return res, err
	}

	res.Elapsed = time.Since(started)
	logger.Info().
		Int("kills", res.Kills).
		Int("segments", res.Segments).
		Int("saved", res.Saved).
		Int("failed", res.Failed).
		Dur("elapsed", res.Elapsed).
		Msg("video processed")

	return res, r.record(path, res.Segments)
}

func (r *Runner) record(path string, clipCount int) error {
	if err := r.deps.Ledger.Record(filepath.Base(path), ledger.Completed(path, clipCount)); err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

// Run processes every pending video in order. A failing video is logged
// and skipped; cancellation stops the run before the next video.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()
	started := time.Now()

	sum := &Summary{RunID: runID, OutputFolder: r.cfg.OutputFolder}

	found, err := Discover(r.cfg.InputFolder, r.cfg.VideoExtensions, r.deps.Ledger)
	if err != nil {
		return sum, err
	}
	sum.Discovered = len(found.Pending) + len(found.Skipped)
	sum.Skipped = len(found.Skipped)

	for _, v := range found.Skipped {
		r.bus.Log(notify.LevelInfo, "Skipping (already processed): "+filepath.Base(v))
	}

	if len(found.Pending) == 0 {
		r.bus.Log(notify.LevelWarning, fmt.Sprintf("No new videos in %s", r.cfg.InputFolder))
		r.bus.Progress(1, 1, "Completed!")
		return sum, nil
	}

	logger.Info().
		Int("pending", len(found.Pending)).
		Int("skipped", sum.Skipped).
		Msg("run started")
	r.bus.Log(notify.LevelInfo, fmt.Sprintf("%d videos to process", len(found.Pending)))

	total := len(found.Pending)
	for i, path := range found.Pending {
		if err := ctx.Err(); err != nil {
			return r.finish(logger, sum, started), err
		}

		name := filepath.Base(path)
		r.bus.Progress(i+1, total, fmt.Sprintf("Video %d/%d", i+1, total))
		r.bus.Log(notify.LevelInfo, fmt.Sprintf("Processing [%d/%d]: %s", i+1, total, name))

		res, err := r.ProcessVideo(ctx, path)
		sum.Videos = append(sum.Videos, res)
		sum.Clips += res.Saved
		if err != nil {
			if ctx.Err() != nil {
				r.bus.Log(notify.LevelWarning, "Stopped: "+name)
				return r.finish(logger, sum, started), ctx.Err()
			}
			sum.Failed++
			logger.Error().Err(err).Str("video", name).Msg("video failed")
			r.bus.Log(notify.LevelError, fmt.Sprintf("Error processing %s: %v", name, err))
			continue
		}
		sum.Processed++
	}

	r.bus.Progress(total, total, "Completed!")
	r.bus.Log(notify.LevelSuccess, fmt.Sprintf("Completed! %d videos processed, %d clips saved to %s",
		sum.Processed, sum.Clips, sum.OutputFolder))
	return r.finish(logger, sum, started), nil
}

func (r *Runner) finish(logger zerolog.Logger, sum *Summary, started time.Time) *Summary {
	sum.Elapsed = time.Since(started)
	logger.Info().
		Int("processed", sum.Processed).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("clips", sum.Clips).
		Dur("elapsed", sum.Elapsed).
		Msg("run finished")
	return sum
}

// Start runs the pipeline on its own goroutine. The channel receives exactly
// one Outcome and is then closed.
func (r *Runner) Start(ctx context.Context) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		sum, err := r.Run(ctx)
		done <- Outcome{Summary: sum, Err: err}
	}()
	return done
}
