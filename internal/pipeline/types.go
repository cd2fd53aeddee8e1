package pipeline

import (
	"io"
	"time"

	"github.com/kikiluvv/ezclips/internal/detect"
)

// Source is a frame source that owns a decoder handle
type Source interface {
	detect.Source
	io.Closer
}

// OpenFunc opens a video for scanning
type OpenFunc func(path string) (Source, error)

// VideoResult describes one processed video
type VideoResult struct {
	Name     string
	Path     string
	Kills    int
	Segments int
	Saved    int
	Failed   int
	Elapsed  time.Duration
}

// Summary describes a whole run
type Summary struct {
	RunID        string
	Discovered   int
	Skipped      int
	Processed    int
	Failed       int
	Clips        int
	OutputFolder string
	Elapsed      time.Duration
	Videos       []*VideoResult
}

// Outcome is delivered once by Start when the worker finishes
type Outcome struct {
	Summary *Summary
	Err     error
}
