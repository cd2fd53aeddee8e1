package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/ffmpeg"
	"github.com/kikiluvv/ezclips/internal/ledger"
	"github.com/kikiluvv/ezclips/internal/pipeline"
	"github.com/kikiluvv/ezclips/pkg/util"
)

var listProbe bool

var listCmd = &cobra.Command{
	Use:   "list [videos|clips]",
	Short: "List input videos or extracted clips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		switch args[0] {
		case "videos":
			return listVideos(cmd, cfg)
		case "clips":
			return listClips(cfg)
		default:
			return fmt.Errorf("unknown resource %q (want videos or clips)", args[0])
		}
	},
}

func init() {
	listCmd.Flags().BoolVar(&listProbe, "probe", false, "show duration and resolution (needs ffprobe)")
}

func listVideos(cmd *cobra.Command, cfg *config.Config) error {
	videos, err := pipeline.ListVideos(cfg.InputFolder, cfg.VideoExtensions)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.All()
	if err != nil {
		return err
	}

	var exec *ffmpeg.Executor
	if listProbe {
		if exec, err = newExecutor(cfg); err != nil {
			log.Warn().Err(err).Msg("probe disabled")
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "VIDEO\tSIZE\tSTATUS\tINFO")

	for _, path := range videos {
		name := filepath.Base(path)
		size := "?"
		if st, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(st.Size()))
		}

		status := "waiting"
		if e, ok := entries[name]; ok {
			status = fmt.Sprintf("processed (%d clips)", e.ClipsCount)
			if e.ManuallyMarked {
				status = "marked"
			}
		}

		info := ""
		if exec != nil {
			if vi, err := exec.ProbeVideo(cmd.Context(), path); err == nil {
				info = fmt.Sprintf("%s %dx%d %.0ffps", vi.Duration.Round(time.Second), vi.Width, vi.Height, vi.FPS)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, size, status, info)
	}

	fmt.Fprintf(tw, "\n%d videos in %s\n", len(videos), cfg.InputFolder)
	return nil
}

func listClips(cfg *config.Config) error {
	entries, err := os.ReadDir(cfg.OutputFolder)
	if os.IsNotExist(err) {
		fmt.Printf("no clips yet (%s does not exist)\n", cfg.OutputFolder)
		return nil
	}
	if err != nil {
		return err
	}

	type clip struct {
		name string
		size int64
		mod  time.Time
	}
	var clips []clip
	var total int64
	for _, e := range entries {
		if e.IsDir() || !util.HasExtension(e.Name(), []string{cfg.OutputExtension}) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		clips = append(clips, clip{name: e.Name(), size: info.Size(), mod: info.ModTime()})
		total += info.Size()
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].mod.After(clips[j].mod) })

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "CLIP\tSIZE\tCREATED")
	for _, c := range clips {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.name, humanize.Bytes(uint64(c.size)), humanize.Time(c.mod))
	}
	fmt.Fprintf(tw, "\n%d clips, %s\n", len(clips), humanize.Bytes(uint64(total)))
	return nil
}
