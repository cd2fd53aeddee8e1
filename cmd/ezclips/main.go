package main

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/ffmpeg"
	"github.com/kikiluvv/ezclips/internal/ledger"
	"github.com/kikiluvv/ezclips/internal/logging"
	"github.com/kikiluvv/ezclips/internal/notify"
	"github.com/kikiluvv/ezclips/internal/pipeline"
)

var (
	cfgFile string
	verbose bool
	logFile io.Closer
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ezclips",
	Short: "ezclips - cut kill clips out of gameplay recordings",
	Long:  "Scans recorded gameplay for killfeed markers and extracts each kill as a lossless clip.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logging.Init(verbose, "")
			return err
		}

		// Initialize logging
		closer, err := logging.Init(verbose, cfg.LogFile)
		if err != nil {
			log.Warn().Err(err).Msg("logging to console only")
		}
		logFile = closer

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(guiCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(markCmd)
	rootCmd.AddCommand(unmarkCmd)
	rootCmd.AddCommand(roiCmd)
	rootCmd.AddCommand(configCmd)
}

// newRunner wires the ledger and ffmpeg into a pipeline. The returned
// closer releases the ledger.
func newRunner(cfg *config.Config, bus *notify.Bus) (*pipeline.Runner, io.Closer, error) {
	store, err := ledger.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
	if err != nil {
		return nil, nil, err
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	runner, err := pipeline.New(log.Logger, cfg, bus, pipeline.Deps{
		Ledger:     store,
		Transcoder: exec,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	return runner, store, nil
}

func newExecutor(cfg *config.Config) (*ffmpeg.Executor, error) {
	return ffmpeg.New(log.Logger, ffmpeg.Options{
		BinaryPath: cfg.FFmpeg.BinaryPath,
		Threads:    cfg.FFmpeg.Threads,
	})
}
