package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ClipOptions defines a stream-copy extraction
type ClipOptions struct {
	Start    time.Duration
	Duration time.Duration
	Output   string
	// Progress receives ffmpeg's periodic progress blocks, if set
	Progress ProgressFunc
}

// ClipArgs builds the ffmpeg arguments for a lossless cut. Seeking happens
// before the input so the cut lands on the keyframe at or before Start;
// every stream is copied and timestamps are rebased to zero.
func ClipArgs(input string, opts ClipOptions) []string {
	return []string{
		"-ss", seconds(opts.Start),
		"-i", input,
		"-t", seconds(opts.Duration),
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		opts.Output,
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// ExtractClip cuts a segment from a video without re-encoding
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	if opts.Duration <= 0 {
		return fmt.Errorf("invalid clip duration %v", opts.Duration)
	}
	if opts.Start < 0 {
		return fmt.Errorf("invalid clip start %v", opts.Start)
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", opts.Duration).
		Msg("extracting clip")

	runOpts := RunOptions{
		Args:            ClipArgs(input, opts),
		ProgressHandler: opts.Progress,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	e.logger.Debug().Str("output", opts.Output).Msg("clip extraction complete")
	return nil
}
