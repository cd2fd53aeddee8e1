package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/console"
	"github.com/kikiluvv/ezclips/internal/gui"
	"github.com/kikiluvv/ezclips/internal/notify"
)

var (
	runQuiet      bool
	runPreviewDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan every new video in the input folder and extract kill clips",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if runPreviewDir != "" {
			cfg.PreviewDir = runPreviewDir
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus := notify.NewBus()
		runner, closer, err := newRunner(cfg, bus)
		if err != nil {
			return err
		}
		defer closer.Close()
		defer runner.Close()

		surface := console.New(log.Logger, console.Options{
			PreviewDir: cfg.PreviewDir,
			Quiet:      runQuiet,
		})
		pollCtx, stopPolling := context.WithCancel(context.Background())
		polled := make(chan struct{})
		go func() {
			surface.Attach(pollCtx, bus)
			close(polled)
		}()

		out := <-runner.Start(ctx)
		stopPolling()
		<-polled
		surface.Close()

		if out.Summary != nil {
			fmt.Printf("\nProcessed %d videos (%d skipped, %d failed), %d clips saved to %s in %s\n",
				out.Summary.Processed, out.Summary.Skipped, out.Summary.Failed,
				out.Summary.Clips, out.Summary.OutputFolder, out.Summary.Elapsed.Round(1e6))
		}
		if errors.Is(out.Err, context.Canceled) {
			log.Warn().Msg("run interrupted; the current video will be rescanned next time")
			return nil
		}
		return out.Err
	},
}

var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Open the desktop control window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gui.Run(gui.Options{
			Logger:     log.Logger,
			Config:     config.FromContext(cmd.Context()),
			ConfigPath: cfgFile,
			NewRunner:  newRunner,
		})
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "hide the progress bar")
	runCmd.Flags().StringVar(&runPreviewDir, "preview-dir", "", "save annotated kill frames here")
}
