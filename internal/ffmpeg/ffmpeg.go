package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/ezclips/pkg/util"
)

// ErrNotFound is returned when no ffmpeg binary can be located
var ErrNotFound = errors.New("ffmpeg not found")

// tailLines is how much of ffmpeg's stderr is kept for error messages
const tailLines = 8

// Options configures binary resolution and execution
type Options struct {
	// BinaryPath overrides discovery when set
	BinaryPath string
	Threads    int
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor. The binary is looked up in order: the
// configured path, assets/ffmpeg next to the running executable, then PATH.
// ffprobe is optional and only needed by ProbeVideo.
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegPath, err := resolve("ffmpeg", opts.BinaryPath)
	if err != nil {
		return nil, err
	}

	ffprobePath, _ := resolve("ffprobe", siblingOf(opts.BinaryPath, "ffprobe"))

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
	}, nil
}

// Path is the resolved ffmpeg binary
func (e *Executor) Path() string {
	return e.ffmpegPath
}

func resolve(name, configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w at configured path %s: %v", ErrNotFound, configured, err)
		}
		return configured, nil
	}

	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), "assets", "ffmpeg", binaryName(name))
		if _, err := os.Stat(bundled); err == nil {
			return bundled, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s not in PATH: %v", ErrNotFound, name, err)
	}
	return path, nil
}

// siblingOf guesses the ffprobe path next to a configured ffmpeg binary
func siblingOf(ffmpegPath, name string) string {
	if ffmpegPath == "" {
		return ""
	}
	candidate := filepath.Join(filepath.Dir(ffmpegPath), binaryName(name))
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// commandArgs prefixes the caller's arguments with the common flags
func (e *Executor) commandArgs(args []string) []string {
	// Build args with threads BEFORE other arguments
	base := []string{"-y", "-hide_banner", "-loglevel", "info"}

	if e.threads > 0 {
		base = append(base, "-threads", fmt.Sprintf("%d", e.threads))
	}

	base = append(base, "-progress", "pipe:2")
	return append(base, args...)
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	args := e.commandArgs(opts.Args)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	hideWindow(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := &tailBuffer{max: tailLines}

	var wg sync.WaitGroup
	wg.Add(2)

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.ProgressHandler, func(line string) {
			tail.add(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("ffmpeg execution failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		// Parse progress lines
		switch {
		case strings.HasPrefix(line, "frame="):
			fmt.Sscanf(line, "frame=%d", &progressData.Frame)
		case strings.HasPrefix(line, "fps="):
			fmt.Sscanf(line, "fps=%f", &progressData.FPS)
		case strings.HasPrefix(line, "out_time="):
			progressData.Time = value(line)
			if d, err := util.ParseTimestamp(progressData.Time); err == nil {
				progressData.OutTime = d
			}
		case strings.HasPrefix(line, "speed="):
			progressData.Speed = value(line)
		case strings.HasPrefix(line, "bitrate="):
			progressData.Bitrate = value(line)
		case strings.HasPrefix(line, "progress="):
			// End of progress block
			if progressHandler != nil && (progressData.Frame > 0 || progressData.OutTime > 0) {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		default:
			if logHandler != nil {
				logHandler(line)
			}
		}
	}
}

func value(line string) string {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// tailBuffer keeps the last max non-progress lines
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *tailBuffer) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}
