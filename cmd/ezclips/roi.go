package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/preview"
	"github.com/kikiluvv/ezclips/internal/roi"
	"github.com/kikiluvv/ezclips/internal/vision"
	"github.com/kikiluvv/ezclips/pkg/util"
)

var (
	roiAt   string
	roiOut  string
	roiZoom int
)

var roiCmd = &cobra.Command{
	Use:   "roi [video]",
	Short: "Grab one frame and draw the configured search region on it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		at, err := util.ParseTimestamp(roiAt)
		if err != nil {
			return err
		}

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}

		tmp, err := util.TempFile("", "ezclips-frame-", ".jpg")
		if err != nil {
			return err
		}
		tmp.Close()
		defer util.CleanupFiles(tmp.Name())

		if err := exec.ExtractFrame(cmd.Context(), args[0], tmp.Name(), at); err != nil {
			return err
		}

		frame := gocv.IMRead(tmp.Name(), gocv.IMReadColor)
		if frame.Empty() {
			return fmt.Errorf("%w: no frame at %s", vision.ErrVideoOpen, util.FormatDuration(at))
		}
		defer frame.Close()

		sel := roi.New(cfg)
		sel.Enabled = true
		bounds := sel.Bounds(frame.Cols(), frame.Rows())

		match := probeTemplate(cfg, frame, bounds)

		annotated, err := vision.Annotate(frame, bounds, match)
		if err != nil {
			return err
		}
		if err := preview.SaveJPEG(roiOut, annotated); err != nil {
			return err
		}

		raw, err := frame.ToImage()
		if err != nil {
			return err
		}
		cropPath := strings.TrimSuffix(roiOut, filepath.Ext(roiOut)) + "_crop" + filepath.Ext(roiOut)
		if err := preview.SaveJPEG(cropPath, preview.Crop(raw, bounds, roiZoom)); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "frame %dx%d, search region %v (%dx%d)\n",
			frame.Cols(), frame.Rows(), bounds, bounds.Dx(), bounds.Dy())
		fmt.Fprintf(os.Stdout, "wrote %s and %s\n", roiOut, cropPath)
		return nil
	},
}

func init() {
	roiCmd.Flags().StringVar(&roiAt, "at", "10s", "timestamp of the frame to grab")
	roiCmd.Flags().StringVarP(&roiOut, "out", "o", "roi_preview.jpg", "annotated frame output")
	roiCmd.Flags().IntVar(&roiZoom, "zoom", 2, "enlargement of the cropped region")
}
