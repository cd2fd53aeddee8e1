// Package ledger records which source videos have already been scanned so a
// later run can skip them. Entries are keyed by file name, not full path.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrNotFound is returned by Get for unknown videos
var ErrNotFound = errors.New("ledger: video not found")

// Entry is the per-video record. ProcessedDate is nil when the source
// modification time was unavailable or the entry was marked by hand.
type Entry struct {
	ClipsCount     int     `json:"clips_count"`
	ProcessedDate  *string `json:"processed_date"`
	ManuallyMarked bool    `json:"manually_marked,omitempty"`
}

// Store is implemented by every ledger backend
type Store interface {
	IsProcessed(name string) (bool, error)
	Get(name string) (Entry, error)
	Record(name string, e Entry) error
	Remove(name string) error
	All() (map[string]Entry, error)
	Close() error
}

// Open returns the backend for driver ("json" or "sqlite") at path
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "json":
		return NewJSONStore(path), nil
	case "sqlite":
		return NewSQLStore(path)
	default:
		return nil, fmt.Errorf("ledger: unknown driver %q", driver)
	}
}

// Completed builds the entry written after a video finishes processing
func Completed(sourcePath string, clips int) Entry {
	return Entry{ClipsCount: clips, ProcessedDate: modTime(sourcePath)}
}

// Manual builds the entry for a video marked processed by hand
func Manual() Entry {
	return Entry{ManuallyMarked: true}
}

func modTime(path string) *string {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	s := strconv.FormatFloat(float64(info.ModTime().UnixNano())/1e9, 'f', -1, 64)
	return &s
}

// MarkManual records name as processed without scanning it
func MarkManual(s Store, name string) error {
	return s.Record(name, Manual())
}
