package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Strategy picks one candidate when several positions clear the threshold
type Strategy int

const (
	// FirstMatch takes the first candidate in row-major order
	FirstMatch Strategy = iota
	// BestMatch takes the highest scoring candidate
	BestMatch
)

// ParseStrategy maps the config value to a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "first":
		return FirstMatch, nil
	case "best":
		return BestMatch, nil
	default:
		return FirstMatch, fmt.Errorf("unknown match strategy %q", s)
	}
}

// Candidate is a match position in search-image coordinates
type Candidate struct {
	Point image.Point
	Score float32
}

// Matcher scores a search image against a template with normalized
// cross-correlation, either on raw pixels or on Canny edge maps. Scratch
// buffers are reused across frames, so a Matcher is not safe for
// concurrent use.
type Matcher struct {
	Edges     EdgeParams
	Threshold float32
	Strategy  Strategy

	gray   gocv.Mat
	edges  gocv.Mat
	result gocv.Mat
	mask   gocv.Mat
}

func NewMatcher(edges EdgeParams, threshold float32, strategy Strategy) *Matcher {
	return &Matcher{
		Edges:     edges,
		Threshold: threshold,
		Strategy:  strategy,
		gray:      gocv.NewMat(),
		edges:     gocv.NewMat(),
		result:    gocv.NewMat(),
		mask:      gocv.NewMat(),
	}
}

// Match computes the score map. The returned Mat is owned by the Matcher
// and is overwritten by the next call. Its size is
// (search - template + 1) in each dimension.
func (m *Matcher) Match(search gocv.Mat, t *Template) (gocv.Mat, error) {
	size := t.Size()
	if search.Cols() < size.X || search.Rows() < size.Y {
		return m.result, fmt.Errorf("%w: %dx%d < %dx%d",
			ErrRegionTooSmall, search.Cols(), search.Rows(), size.X, size.Y)
	}

	if m.Edges.Enabled {
		gocv.CvtColor(search, &m.gray, gocv.ColorBGRToGray)
		gocv.Canny(m.gray, &m.edges, m.Edges.Low, m.Edges.High)
		gocv.MatchTemplate(m.edges, t.Edges, &m.result, gocv.TmCcoeffNormed, m.mask)
	} else {
		gocv.MatchTemplate(search, t.Image, &m.result, gocv.TmCcoeffNormed, m.mask)
	}

	return m.result, nil
}

// Find runs Match and selects at most one candidate scoring at or above
// the threshold.
func (m *Matcher) Find(search gocv.Mat, t *Template) (Candidate, bool, error) {
	scores, err := m.Match(search, t)
	if err != nil {
		return Candidate{}, false, err
	}

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
	if !(maxVal >= m.Threshold) {
		return Candidate{}, false, nil
	}

	if m.Strategy == BestMatch {
		return Candidate{Point: maxLoc, Score: maxVal}, true, nil
	}

	return m.firstAbove(scores)
}

func (m *Matcher) firstAbove(scores gocv.Mat) (Candidate, bool, error) {
	data, err := scores.DataPtrFloat32()
	if err != nil {
		return Candidate{}, false, fmt.Errorf("read score map: %w", err)
	}

	cols := scores.Cols()
	for i, v := range data {
		if v >= m.Threshold {
			return Candidate{Point: image.Pt(i%cols, i/cols), Score: v}, true, nil
		}
	}
	return Candidate{}, false, nil
}

func (m *Matcher) Close() error {
	m.gray.Close()
	m.edges.Close()
	m.result.Close()
	return m.mask.Close()
}
