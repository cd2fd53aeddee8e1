package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

var (
	// ErrMissingKey is returned when a config file omits a required key
	ErrMissingKey = errors.New("config: missing required key")
	// ErrInvalid is returned when a value is out of bounds
	ErrInvalid = errors.New("config: invalid value")
)

// Match strategies for frames with several candidates
const (
	StrategyFirst = "first"
	StrategyBest  = "best"
)

// Config holds all application configuration
type Config struct {
	InputFolder  string `yaml:"input_folder" toml:"input_folder"`
	OutputFolder string `yaml:"output_folder" toml:"output_folder"`
	TemplatePath string `yaml:"template_path" toml:"template_path"`

	// Detection settings
	Threshold        float64 `yaml:"threshold" toml:"threshold"`
	FrameSkip        int     `yaml:"frame_skip" toml:"frame_skip"`
	UseEdgeDetection bool    `yaml:"use_edge_detection" toml:"use_edge_detection"`
	UseColorFilter   bool    `yaml:"use_color_filter" toml:"use_color_filter"`
	UseROI           bool    `yaml:"use_roi" toml:"use_roi"`
	ROI              ROI     `yaml:"roi" toml:"roi"`
	KillColorLower   HSV     `yaml:"kill_color_lower" toml:"kill_color_lower"`
	KillColorUpper   HSV     `yaml:"kill_color_upper" toml:"kill_color_upper"`
	KillColorLower2  HSV     `yaml:"kill_color_lower2" toml:"kill_color_lower2"`
	KillColorUpper2  HSV     `yaml:"kill_color_upper2" toml:"kill_color_upper2"`
	MinColorPixels   int     `yaml:"min_color_pixels" toml:"min_color_pixels"`
	CannyThreshold1  int     `yaml:"canny_threshold1" toml:"canny_threshold1"`
	CannyThreshold2  int     `yaml:"canny_threshold2" toml:"canny_threshold2"`
	MatchStrategy    string  `yaml:"match_strategy" toml:"match_strategy"`

	// Segmenting and extraction, all in seconds
	BufferBefore float64 `yaml:"buffer_before" toml:"buffer_before"`
	BufferAfter  float64 `yaml:"buffer_after" toml:"buffer_after"`
	MinKillGap   float64 `yaml:"min_kill_gap" toml:"min_kill_gap"`
	KillCooldown float64 `yaml:"kill_cooldown" toml:"kill_cooldown"`

	VideoExtensions []string `yaml:"video_extensions" toml:"video_extensions"`
	OutputExtension string   `yaml:"output_extension" toml:"output_extension"`

	Ledger     LedgerConfig `yaml:"ledger" toml:"ledger"`
	FFmpeg     FFmpegConfig `yaml:"ffmpeg" toml:"ffmpeg"`
	LogFile    string       `yaml:"log_file" toml:"log_file"`
	PreviewDir string       `yaml:"preview_dir" toml:"preview_dir"`
}

// ROI is a normalized rectangle, every field in [0,1]
type ROI struct {
	XStart float64 `yaml:"x_start" toml:"x_start"`
	YStart float64 `yaml:"y_start" toml:"y_start"`
	XEnd   float64 `yaml:"x_end" toml:"x_end"`
	YEnd   float64 `yaml:"y_end" toml:"y_end"`
}

// HSV is an OpenCV style hue/saturation/value triple (hue 0-180, others 0-255)
type HSV [3]int

func (h HSV) valid() bool {
	if h[0] < 0 || h[0] > 180 {
		return false
	}
	return h[1] >= 0 && h[1] <= 255 && h[2] >= 0 && h[2] <= 255
}

type LedgerConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // json or sqlite
	Path   string `yaml:"path" toml:"path"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" toml:"binary_path"`
	Threads    int    `yaml:"threads" toml:"threads"`
}

// requiredKeys must appear in any config file that is loaded
var requiredKeys = []string{
	"input_folder",
	"output_folder",
	"template_path",
	"threshold",
	"buffer_before",
	"buffer_after",
	"min_kill_gap",
	"frame_skip",
	"kill_cooldown",
	"use_edge_detection",
	"use_color_filter",
	"use_roi",
	"roi",
	"kill_color_lower",
	"kill_color_upper",
	"kill_color_lower2",
	"kill_color_upper2",
	"min_color_pixels",
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := Parse(data, isTOML(path), cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes data over cfg after checking that every required key is present
func Parse(data []byte, asTOML bool, cfg *Config) error {
	var raw map[string]any
	if asTOML {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return fmt.Errorf("%w %q", ErrMissingKey, key)
		}
	}

	if asTOML {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Snapshot returns a deep copy that a run can own without seeing later edits
func (c *Config) Snapshot() *Config {
	cp := *c
	cp.VideoExtensions = append([]string(nil), c.VideoExtensions...)
	return &cp
}

// Validate bounds-checks every field
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...)))
	}

	if c.InputFolder == "" {
		bad("input_folder", "must not be empty")
	}
	if c.OutputFolder == "" {
		bad("output_folder", "must not be empty")
	}
	if c.TemplatePath == "" {
		bad("template_path", "must not be empty")
	}
	if c.FrameSkip < 1 {
		bad("frame_skip", "must be >= 1, got %d", c.FrameSkip)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		bad("threshold", "must be in [0,1], got %v", c.Threshold)
	}
	if c.MinColorPixels < 0 {
		bad("min_color_pixels", "must be >= 0, got %d", c.MinColorPixels)
	}
	if c.CannyThreshold1 < 0 || c.CannyThreshold2 < 0 {
		bad("canny_threshold", "must be >= 0, got %d/%d", c.CannyThreshold1, c.CannyThreshold2)
	}

	ranges := []struct {
		key          string
		lower, upper HSV
	}{
		{"kill_color_lower/upper", c.KillColorLower, c.KillColorUpper},
		{"kill_color_lower2/upper2", c.KillColorLower2, c.KillColorUpper2},
	}
	for _, r := range ranges {
		if !r.lower.valid() || !r.upper.valid() {
			bad(r.key, "hue must be in [0,180] and saturation/value in [0,255], got %v %v", r.lower, r.upper)
			continue
		}
		for i := 0; i < 3; i++ {
			if r.lower[i] > r.upper[i] {
				bad(r.key, "lower %v exceeds upper %v", r.lower, r.upper)
				break
			}
		}
	}

	roi := c.ROI
	for _, v := range []float64{roi.XStart, roi.YStart, roi.XEnd, roi.YEnd} {
		if v < 0 || v > 1 {
			bad("roi", "coordinates must be in [0,1], got %+v", roi)
			break
		}
	}
	if roi.XStart >= roi.XEnd || roi.YStart >= roi.YEnd {
		bad("roi", "start must be before end, got %+v", roi)
	}

	if c.BufferBefore < 0 || c.BufferAfter < 0 {
		bad("buffer", "must be >= 0")
	}
	if c.MinKillGap < 0 {
		bad("min_kill_gap", "must be >= 0")
	}
	if c.KillCooldown < 0 {
		bad("kill_cooldown", "must be >= 0")
	}
	if len(c.VideoExtensions) == 0 {
		bad("video_extensions", "at least one extension required")
	}
	if c.OutputExtension == "" {
		bad("output_extension", "must not be empty")
	}
	switch c.MatchStrategy {
	case StrategyFirst, StrategyBest:
	default:
		bad("match_strategy", "must be %q or %q, got %q", StrategyFirst, StrategyBest, c.MatchStrategy)
	}
	switch c.Ledger.Driver {
	case "json", "sqlite":
	default:
		bad("ledger.driver", "must be json or sqlite, got %q", c.Ledger.Driver)
	}

	return errors.Join(errs...)
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		InputFolder:      "input_videos",
		OutputFolder:     "kills",
		TemplatePath:     "killfeed_template.jpg",
		Threshold:        0.55,
		FrameSkip:        120,
		UseEdgeDetection: true,
		UseColorFilter:   true,
		UseROI:           true,
		ROI: ROI{
			XStart: 0.72,
			YStart: 0.02,
			XEnd:   0.98,
			YEnd:   0.28,
		},
		KillColorLower:  HSV{0, 120, 80},
		KillColorUpper:  HSV{10, 255, 255},
		KillColorLower2: HSV{170, 120, 80},
		KillColorUpper2: HSV{180, 255, 255},
		MinColorPixels:  150,
		CannyThreshold1: 150,
		CannyThreshold2: 250,
		MatchStrategy:   StrategyFirst,
		BufferBefore:    3.0,
		BufferAfter:     2.0,
		MinKillGap:      2.0,
		KillCooldown:    2.0,
		VideoExtensions: []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv"},
		OutputExtension: ".mp4",
		Ledger: LedgerConfig{
			Driver: "json",
			Path:   "processed_videos.json",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "",
			Threads:    0,
		},
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		"./config.toml",
		filepath.Join(os.Getenv("HOME"), ".ezclips", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
