// Package console is the terminal control surface: it drains the
// notification bus into the logger and a progress bar.
package console

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/preview"
)

// Surface renders bus messages. Previews are saved when a Saver is set.
type Surface struct {
	logger zerolog.Logger
	bar    *progressbar.ProgressBar
	saver  *preview.Saver
	max    int
}

// Options for a console surface
type Options struct {
	Writer     io.Writer
	PreviewDir string
	// Quiet hides the progress bar
	Quiet bool
}

func New(logger zerolog.Logger, opts Options) *Surface {
	s := &Surface{logger: logger.With().Str("component", "console").Logger()}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if !opts.Quiet {
		s.bar = progressbar.NewOptions(1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetPredictTime(false),
		)
		s.max = 1
	}
	if opts.PreviewDir != "" {
		s.saver = &preview.Saver{Dir: opts.PreviewDir, MaxWidth: preview.DefaultWidth}
	}
	return s
}

// Handlers wires the surface into notify.Bus.Poll
func (s *Surface) Handlers() notify.Handlers {
	return notify.Handlers{
		OnLog:      s.onLog,
		OnProgress: s.onProgress,
		OnPreview:  s.onPreview,
	}
}

// Attach polls bus until ctx is done
func (s *Surface) Attach(ctx context.Context, bus *notify.Bus) {
	bus.Poll(ctx, notify.DefaultPollInterval, s.Handlers())
}

// Close clears the progress bar
func (s *Surface) Close() error {
	if s.bar == nil {
		return nil
	}
	return s.bar.Clear()
}

func (s *Surface) onLog(m notify.LogMsg) {
	if s.bar != nil {
		s.bar.Clear()
	}

	var ev *zerolog.Event
	switch m.Level {
	case notify.LevelError:
		ev = s.logger.Error()
	case notify.LevelWarning:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Info()
	}
	if m.Level == notify.LevelSuccess {
		ev = ev.Bool("ok", true)
	}
	ev.Msg(m.Text)
}

func (s *Surface) onProgress(m notify.ProgressMsg) {
	if s.bar == nil || m.Total <= 0 {
		return
	}
	if m.Total != s.max {
		s.bar.ChangeMax(m.Total)
		s.max = m.Total
	}
	s.bar.Describe(m.Label)
	s.bar.Set(m.Current)
}

func (s *Surface) onPreview(m notify.PreviewMsg) {
	if s.saver == nil || m.Image == nil {
		return
	}
	path, err := s.saver.Save("kill", m.Label, m.Image)
	if err != nil {
		s.logger.Warn().Err(err).Msg("preview not saved")
		return
	}
	s.logger.Debug().Str("path", path).Msg("preview saved")
}
