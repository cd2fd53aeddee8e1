// Package timeline turns raw marker detections into kill timestamps and
// merges those into continuous kill segments.
package timeline

// DedupWindow is the minimum spacing, in seconds, between two accepted kills.
// A marker that stays on screen across consecutive sampled frames is one kill.
const DedupWindow = 0.5

// Segment is an inclusive [Start, End] interval in seconds
type Segment struct {
	Start float64
	End   float64
}

// Duration of the segment in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Acceptor records kill timestamps in discovery order, suppressing any
// detection within DedupWindow of the previously accepted one.
type Acceptor struct {
	times []float64
}

// Accept reports whether t becomes a new kill timestamp
func (a *Acceptor) Accept(t float64) bool {
	if n := len(a.times); n > 0 && t-a.times[n-1] <= DedupWindow {
		return false
	}
	a.times = append(a.times, t)
	return true
}

// Times returns the accepted timestamps in ascending order
func (a *Acceptor) Times() []float64 {
	return a.times
}

// Throttle rate-limits notifications to one per cooldown window. It is
// independent of Acceptor: a kill can be accepted without being announced.
type Throttle struct {
	cooldown float64
	last     float64
	fired    bool
}

func NewThrottle(cooldown float64) *Throttle {
	return &Throttle{cooldown: cooldown}
}

// Allow reports whether a notification at t may be emitted, and if so
// starts a new window at t.
func (th *Throttle) Allow(t float64) bool {
	if th.fired && t-th.last <= th.cooldown {
		return false
	}
	th.last = t
	th.fired = true
	return true
}

// Merge groups ascending timestamps into segments. A timestamp joins the
// current segment when it is at most minGap after the segment's end.
func Merge(times []float64, minGap float64) []Segment {
	if len(times) == 0 {
		return nil
	}

	segments := make([]Segment, 0, len(times))
	current := Segment{Start: times[0], End: times[0]}

	for _, t := range times[1:] {
		if t-current.End <= minGap {
			current.End = t
			continue
		}
		segments = append(segments, current)
		current = Segment{Start: t, End: t}
	}

	return append(segments, current)
}
