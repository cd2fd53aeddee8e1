package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrVideoOpen is returned when the decoder cannot open a source
	ErrVideoOpen = errors.New("cannot open video")
	// ErrTemplateLoad is returned when the marker image cannot be read
	ErrTemplateLoad = errors.New("cannot load template")
	// ErrRegionTooSmall is returned when the search area cannot hold the template
	ErrRegionTooSmall = errors.New("search region smaller than template")
)

// maxConsecutiveFailures ends a scan whose decoder keeps failing without
// reaching the reported frame count.
const maxConsecutiveFailures = 25

// reader is the decoder surface Video drives. *gocv.VideoCapture implements it.
type reader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Video is a sequential, non-restartable frame decoder over one file
type Video struct {
	path       string
	capture    reader
	fps        float64
	frameCount int
	width      int
	height     int

	index       int
	consecutive int
	skipped     int
}

// OpenVideo opens path for decoding
func OpenVideo(path string) (*Video, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrVideoOpen, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w %s", ErrVideoOpen, path)
	}

	return &Video{
		path:       path,
		capture:    capture,
		fps:        capture.Get(gocv.VideoCaptureFPS),
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Next decodes the next frame into dst and returns its 1-based index.
// A frame the decoder fails on still consumes an index so later timestamps
// stay aligned; the sequence ends at end of stream.
func (v *Video) Next(dst *gocv.Mat) (int, bool) {
	for {
		ok := v.capture.Read(dst)
		v.index++
		if ok && !dst.Empty() {
			v.consecutive = 0
			return v.index, true
		}

		v.consecutive++
		v.skipped++
		if v.frameCount <= 0 || v.index >= v.frameCount || v.consecutive >= maxConsecutiveFailures {
			// the last attempt was end of stream, not a corrupt frame
			v.skipped--
			return 0, false
		}
	}
}

func (v *Video) FPS() float64 { return v.fps }

func (v *Video) FrameCount() int { return v.frameCount }

func (v *Video) Size() (int, int) { return v.width, v.height }

// Skipped is the number of frames the decoder failed on mid-stream
func (v *Video) Skipped() int { return v.skipped }

func (v *Video) Close() error {
	return v.capture.Close()
}
