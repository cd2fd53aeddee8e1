// Package notify carries messages from the pipeline worker to a control
// surface. There are three independent queues (log lines, progress,
// preview frames). Producers never block; the surface drains the queues on
// a fixed polling interval.
package notify

import (
	"context"
	"image"
	"sync"
	"time"
)

// Level tags a log line for the surface
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultPollInterval matches the control surface refresh cadence
const DefaultPollInterval = 100 * time.Millisecond

type LogMsg struct {
	Text  string
	Level Level
}

type ProgressMsg struct {
	Current int
	Total   int
	Label   string
}

// Fraction of work done, 0 when Total is unknown
func (p ProgressMsg) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

type PreviewMsg struct {
	Image image.Image
	Label string
}

// queue is an unbounded FIFO safe for one producer and one consumer
type queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

func (q *queue[T]) drain() []T {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Bus holds the three message queues. The zero value is ready to use.
type Bus struct {
	logs     queue[LogMsg]
	progress queue[ProgressMsg]
	previews queue[PreviewMsg]
}

func NewBus() *Bus {
	return &Bus{}
}

// Log queues a log line
func (b *Bus) Log(level Level, text string) {
	b.logs.push(LogMsg{Text: text, Level: level})
}

// Progress queues a progress update
func (b *Bus) Progress(current, total int, label string) {
	b.progress.push(ProgressMsg{Current: current, Total: total, Label: label})
}

// Preview queues a preview image
func (b *Bus) Preview(img image.Image, label string) {
	b.previews.push(PreviewMsg{Image: img, Label: label})
}

func (b *Bus) DrainLogs() []LogMsg { return b.logs.drain() }

func (b *Bus) DrainProgress() []ProgressMsg { return b.progress.drain() }

func (b *Bus) DrainPreviews() []PreviewMsg { return b.previews.drain() }

// Handlers receive drained messages. Nil handlers discard their queue.
type Handlers struct {
	OnLog      func(LogMsg)
	OnProgress func(ProgressMsg)
	OnPreview  func(PreviewMsg)
}

// Flush drains every queue once and dispatches to the handlers
func (b *Bus) Flush(h Handlers) {
	for _, m := range b.DrainLogs() {
		if h.OnLog != nil {
			h.OnLog(m)
		}
	}
	for _, m := range b.DrainProgress() {
		if h.OnProgress != nil {
			h.OnProgress(m)
		}
	}
	for _, m := range b.DrainPreviews() {
		if h.OnPreview != nil {
			h.OnPreview(m)
		}
	}
}

// Poll flushes the bus every interval until ctx is done, then flushes one
// last time so nothing queued before cancellation is lost.
func (b *Bus) Poll(ctx context.Context, interval time.Duration, h Handlers) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(h)
			return
		case <-ticker.C:
			b.Flush(h)
		}
	}
}
