package main

import (
	"errors"
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/ezclips/internal/config"
	"github.com/kikiluvv/ezclips/internal/vision"
)

// probeTemplate reports the best template score inside bounds so the user
// can tune threshold and color settings against a real frame. It returns
// the match rectangle when the score clears the threshold.
func probeTemplate(cfg *config.Config, frame gocv.Mat, bounds image.Rectangle) image.Rectangle {
	edges := vision.EdgeParams{
		Enabled: cfg.UseEdgeDetection,
		Low:     float32(cfg.CannyThreshold1),
		High:    float32(cfg.CannyThreshold2),
	}
	tmpl, err := vision.LoadTemplate(cfg.TemplatePath, edges)
	if err != nil {
		log.Warn().Err(err).Msg("template not checked")
		return image.Rectangle{}
	}
	defer tmpl.Close()

	m := vision.NewMatcher(edges, 0, vision.BestMatch)
	defer m.Close()

	region := frame.Region(bounds)
	defer region.Close()

	cand, _, err := m.Find(region, tmpl)
	if errors.Is(err, vision.ErrRegionTooSmall) {
		log.Warn().Err(err).Msg("search region cannot hold the template")
		return image.Rectangle{}
	}
	if err != nil {
		log.Warn().Err(err).Msg("template match failed")
		return image.Rectangle{}
	}

	origin := cand.Point.Add(bounds.Min)
	match := image.Rectangle{Min: origin, Max: origin.Add(tmpl.Size())}

	ev := log.Info().
		Float32("score", cand.Score).
		Float64("threshold", cfg.Threshold).
		Stringer("at", match)

	if cfg.UseColorFilter {
		v := vision.NewColorValidator(
			vision.HSVRange{Lower: cfg.KillColorLower, Upper: cfg.KillColorUpper},
			vision.HSVRange{Lower: cfg.KillColorLower2, Upper: cfg.KillColorUpper2},
			cfg.MinColorPixels,
		)
		defer v.Close()
		ok, pixels := v.Validate(frame, match)
		ev = ev.Int("color_pixels", pixels).Bool("color_ok", ok)
	}
	ev.Msg("best template match")

	if float64(cand.Score) < cfg.Threshold {
		return image.Rectangle{}
	}
	return match
}
