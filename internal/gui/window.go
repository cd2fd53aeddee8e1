// Package gui is the desktop control surface built on fyne.
package gui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/pipeline"
	"github.com/kikiluvv/ezclips/internal/preview"
)

// maxLogLines bounds the log list
const maxLogLines = 1000

// RunnerFactory builds a pipeline for one run. The closer releases whatever
// the runner depends on (ledger, decoders).
type RunnerFactory func(cfg *config.Config, bus *notify.Bus) (*pipeline.Runner, io.Closer, error)

// Options configures the window
type Options struct {
	Logger     zerolog.Logger
	Config     *config.Config
	ConfigPath string
	NewRunner  RunnerFactory
}

type window struct {
	opts   Options
	logger zerolog.Logger
	win    fyne.Window

	mu     sync.Mutex
	cancel context.CancelFunc

	lines    []string
	logList  *widget.List
	progress *widget.ProgressBar
	status   *widget.Label
	preview  *canvas.Image
	start    *widget.Button
	stop     *widget.Button
	input    *widget.Label
	output   *widget.Label
}

// Run opens the control window and blocks until it is closed
func Run(opts Options) {
	a := app.NewWithID("ezclips")
	w := &window{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "gui").Logger(),
		win:    a.NewWindow("ezclips"),
	}
	w.win.Resize(fyne.NewSize(960, 640))
	w.win.SetContent(container.NewAppTabs(
		container.NewTabItem("Run", w.runTab()),
		container.NewTabItem("Settings", w.settingsTab()),
	))
	w.win.SetOnClosed(w.stopRun)
	w.win.ShowAndRun()
}

func (w *window) runTab() fyne.CanvasObject {
	cfg := w.opts.Config

	w.input = widget.NewLabel("Input: " + cfg.InputFolder)
	w.output = widget.NewLabel("Output: " + cfg.OutputFolder)

	pickInput := widget.NewButton("Input folder...", func() {
		w.pickFolder(func(path string) {
			cfg.InputFolder = path
			w.input.SetText("Input: " + path)
		})
	})
	pickOutput := widget.NewButton("Output folder...", func() {
		w.pickFolder(func(path string) {
			cfg.OutputFolder = path
			w.output.SetText("Output: " + path)
		})
	})

	w.start = widget.NewButton("Start", w.startRun)
	w.start.Importance = widget.HighImportance
	w.stop = widget.NewButton("Stop", w.stopRun)
	w.stop.Disable()

	w.progress = widget.NewProgressBar()
	w.status = widget.NewLabel("Ready")

	w.logList = widget.NewList(
		func() int { return len(w.lines) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(w.lines[id])
		},
	)

	w.preview = canvas.NewImageFromImage(nil)
	w.preview.FillMode = canvas.ImageFillContain
	w.preview.SetMinSize(fyne.NewSize(400, 225))

	top := container.NewVBox(
		container.NewHBox(pickInput, w.input),
		container.NewHBox(pickOutput, w.output),
		container.NewHBox(w.start, w.stop),
		w.progress,
		w.status,
	)
	body := container.NewHSplit(w.logList, w.preview)
	body.SetOffset(0.55)

	return container.NewBorder(top, nil, nil, nil, body)
}

func (w *window) settingsTab() fyne.CanvasObject {
	cfg := w.opts.Config

	threshold := floatEntry(&cfg.Threshold)
	frameSkip := intEntry(&cfg.FrameSkip)
	before := floatEntry(&cfg.BufferBefore)
	after := floatEntry(&cfg.BufferAfter)
	gap := floatEntry(&cfg.MinKillGap)
	cooldown := floatEntry(&cfg.KillCooldown)
	minPixels := intEntry(&cfg.MinColorPixels)

	edges := widget.NewCheck("", func(b bool) { cfg.UseEdgeDetection = b })
	edges.SetChecked(cfg.UseEdgeDetection)
	colorFilter := widget.NewCheck("", func(b bool) { cfg.UseColorFilter = b })
	colorFilter.SetChecked(cfg.UseColorFilter)
	useROI := widget.NewCheck("", func(b bool) { cfg.UseROI = b })
	useROI.SetChecked(cfg.UseROI)

	strategy := widget.NewSelect([]string{config.StrategyFirst, config.StrategyBest}, func(s string) {
		cfg.MatchStrategy = s
	})
	strategy.SetSelected(cfg.MatchStrategy)

	form := widget.NewForm(
		widget.NewFormItem("Threshold", threshold),
		widget.NewFormItem("Frame skip", frameSkip),
		widget.NewFormItem("Buffer before (s)", before),
		widget.NewFormItem("Buffer after (s)", after),
		widget.NewFormItem("Min kill gap (s)", gap),
		widget.NewFormItem("Kill cooldown (s)", cooldown),
		widget.NewFormItem("Edge detection", edges),
		widget.NewFormItem("Color filter", colorFilter),
		widget.NewFormItem("Min color pixels", minPixels),
		widget.NewFormItem("Use ROI", useROI),
		widget.NewFormItem("Match strategy", strategy),
	)

	save := widget.NewButton("Save", func() {
		if err := cfg.Validate(); err != nil {
			dialog.ShowError(err, w.win)
			return
		}
		if w.opts.ConfigPath == "" {
			dialog.ShowInformation("Settings", "Settings apply to the next run", w.win)
			return
		}
		if err := cfg.Save(w.opts.ConfigPath); err != nil {
			dialog.ShowError(err, w.win)
			return
		}
		w.appendLine(notify.LogMsg{Level: notify.LevelSuccess, Text: "Settings saved to " + w.opts.ConfigPath})
	})

	return container.NewBorder(nil, container.NewHBox(save), nil, nil, container.NewVScroll(form))
}

func floatEntry(dst *float64) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.FormatFloat(*dst, 'f', -1, 64))
	e.OnChanged = func(s string) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*dst = v
		}
	}
	return e
}

func intEntry(dst *int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(*dst))
	e.OnChanged = func(s string) {
		if v, err := strconv.Atoi(s); err == nil {
			*dst = v
		}
	}
	return e
}

func (w *window) pickFolder(set func(string)) {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		set(uri.Path())
	}, w.win)
}

func (w *window) startRun() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	bus := notify.NewBus()
	runner, closer, err := w.opts.NewRunner(w.opts.Config.Snapshot(), bus)
	if err != nil {
		dialog.ShowError(err, w.win)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.start.Disable()
	w.stop.Enable()
	w.progress.SetValue(0)
	w.status.SetText("Running...")

	pollCtx, stopPolling := context.WithCancel(context.Background())
	go bus.Poll(pollCtx, notify.DefaultPollInterval, w.handlers())

	done := runner.Start(ctx)
	go func() {
		out := <-done
		runner.Close()
		closer.Close()
		stopPolling()

		if out.Err != nil {
			w.logger.Warn().Err(out.Err).Msg("run ended early")
		}
		fyne.Do(func() { w.finish(out) })
	}()
}

func (w *window) stopRun() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.status.SetText("Stopping...")
	}
}

func (w *window) finish(out pipeline.Outcome) {
	w.mu.Lock()
	w.cancel = nil
	w.mu.Unlock()

	w.start.Enable()
	w.stop.Disable()

	switch {
	case out.Err != nil && out.Summary != nil:
		w.status.SetText(fmt.Sprintf("Stopped: %d videos processed, %d clips", out.Summary.Processed, out.Summary.Clips))
	case out.Err != nil:
		w.status.SetText("Error: " + out.Err.Error())
	default:
		w.status.SetText(fmt.Sprintf("Completed! %d videos, %d clips in %s",
			out.Summary.Processed, out.Summary.Clips, out.Summary.OutputFolder))
	}
}

// handlers hop onto the fyne goroutine before touching widgets
func (w *window) handlers() notify.Handlers {
	return notify.Handlers{
		OnLog: func(m notify.LogMsg) {
			fyne.Do(func() { w.appendLine(m) })
		},
		OnProgress: func(m notify.ProgressMsg) {
			fyne.Do(func() {
				w.progress.SetValue(m.Fraction())
				w.status.SetText(m.Label)
			})
		},
		OnPreview: func(m notify.PreviewMsg) {
			img := preview.Thumbnail(m.Image, preview.DefaultWidth, 0)
			fyne.Do(func() {
				w.preview.Image = img
				w.preview.Refresh()
			})
		},
	}
}

func (w *window) appendLine(m notify.LogMsg) {
	w.lines = append(w.lines, prefix(m.Level)+m.Text)
	if len(w.lines) > maxLogLines {
		w.lines = w.lines[len(w.lines)-maxLogLines:]
	}
	w.logList.Refresh()
	w.logList.ScrollToBottom()
}

func prefix(l notify.Level) string {
	switch l {
	case notify.LevelSuccess:
		return "✓ "
	case notify.LevelWarning:
		return "! "
	case notify.LevelError:
		return "✗ "
	default:
		return ""
	}
}
