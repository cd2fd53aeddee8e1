// Package clips turns kill segments into padded extraction jobs and runs
// them through the transcoder one at a time.
package clips

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kikiluvv/ezclips/internal/ffmpeg"
	"github.com/kikiluvv/ezclips/internal/timeline"
	"github.com/kikiluvv/ezclips/pkg/util"
)

// Padding is added around each segment, in seconds
type Padding struct {
	Before float64
	After  float64
}

// Job is one clip to cut from Source
type Job struct {
	// Index is 1-based within the source video
	Index    int
	Source   string
	Segment  timeline.Segment
	Start    float64
	Duration float64
	Dest     string
}

// End of the clip window in source seconds
func (j Job) End() float64 {
	return j.Start + j.Duration
}

// Options converts the job into transcoder options
func (j Job) Options() ffmpeg.ClipOptions {
	return ffmpeg.ClipOptions{
		Start:    util.Seconds(j.Start),
		Duration: util.Seconds(j.Duration),
		Output:   j.Dest,
	}
}

// Args is the transcoder argument list for this job
func (j Job) Args() []string {
	return ffmpeg.ClipArgs(j.Source, j.Options())
}

// Plan builds one job per segment. The clip window starts pad.Before
// seconds ahead of the segment, clamped at zero, and ends pad.After seconds
// past it. Windows of zero length (a lone kill with no padding) are left
// out; indexes stay contiguous over the jobs that remain.
func Plan(source string, segments []timeline.Segment, pad Padding, outDir, ext string) []Job {
	stem := util.Stem(source)
	jobs := make([]Job, 0, len(segments))

	for _, seg := range segments {
		start := seg.Start - pad.Before
		if start < 0 {
			start = 0
		}
		end := seg.End + pad.After
		if end <= start {
			continue
		}

		n := len(jobs) + 1
		jobs = append(jobs, Job{
			Index:    n,
			Source:   source,
			Segment:  seg,
			Start:    start,
			Duration: end - start,
			Dest:     filepath.Join(outDir, Name(stem, n, start, end, ext)),
		})
	}
	return jobs
}

// Name is the destination file name for the index-th clip of stem
func Name(stem string, index int, start, end float64, ext string) string {
	return fmt.Sprintf("%s_kill_%03d_%.1fs-%.1fs%s", stem, index, start, end, ext)
}

// Timeout bounds a single extraction relative to the clip length. Stream
// copy is far faster than real time, so this only catches hung processes.
func (j Job) Timeout() time.Duration {
	return time.Minute + 2*util.Seconds(j.Duration)
}
