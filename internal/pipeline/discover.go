package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kikiluvv/ezclips/internal/ledger"
	"github.com/kikiluvv/ezclips/pkg/util"
)

// Discovery is the input folder split into work and already-processed videos
type Discovery struct {
	Pending []string
	Skipped []string
}

// ListVideos returns the video files directly inside dir, sorted by path.
// A missing dir is created and yields no videos.
func ListVideos(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		if err := util.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create input folder: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read input folder: %w", err)
	}

	var videos []string
	for _, e := range entries {
		if e.IsDir() || !util.HasExtension(e.Name(), exts) {
			continue
		}
		videos = append(videos, filepath.Join(dir, e.Name()))
	}
	sort.Strings(videos)
	return videos, nil
}

// Discover lists dir and sets aside videos the ledger already knows
func Discover(dir string, exts []string, store ledger.Store) (*Discovery, error) {
	videos, err := ListVideos(dir, exts)
	if err != nil {
		return nil, err
	}

	d := &Discovery{}
	for _, v := range videos {
		done, err := store.IsProcessed(filepath.Base(v))
		if err != nil {
			return nil, fmt.Errorf("ledger lookup: %w", err)
		}
		if done {
			d.Skipped = append(d.Skipped, v)
			continue
		}
		d.Pending = append(d.Pending, v)
	}
	return d, nil
}
