// Package pipeline transforms medical images into the canonical form required
// by the downstream analysis model.
package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"github.com/nvasquez/scantriage/internal/imaging"
	"github.com/nvasquez/scantriage/internal/quality"
)

// CanonicalFormat is the output format of every processed image.
const CanonicalFormat = "png"

// PreprocessingStep records one transformation that was actually applied.
// The step log is append-only and ordered by execution time.
type PreprocessingStep struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`
	AppliedAt  time.Time      `json:"applied_at"`
}

// ProcessedImage is the fully transformed output ready for model ingestion.
type ProcessedImage struct {
	ImageData []byte                 `json:"-"`
	Format    string                 `json:"format"`
	Width     int                    `json:"width"`
	Height    int                    `json:"height"`
	Steps     []PreprocessingStep    `json:"steps"`
	Metrics   quality.QualityMetrics `json:"metrics"`
}

// Config holds the preprocessing parameters.
type Config struct {
	// TargetSize is the side length of the square canonical output.
	TargetSize int

	// SharpenThreshold and ContrastThreshold gate the conditional
	// enhancement steps on the mid-pipeline metrics pass.
	SharpenThreshold  float64
	ContrastThreshold float64
}

// DefaultConfig returns the production preprocessing parameters. The 448x448
// target trades resolution for model throughput.
func DefaultConfig() Config {
	return Config{
		TargetSize:        448,
		SharpenThreshold:  0.7,
		ContrastThreshold: 0.6,
	}
}

// Preprocessor runs the deterministic transformation chain. It is stateless
// and safe for concurrent use.
type Preprocessor struct {
	cfg     Config
	metrics *quality.Engine
	log     zerolog.Logger
}

// NewPreprocessor creates a preprocessor with the given configuration.
func NewPreprocessor(cfg Config, log zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		cfg:     cfg,
		metrics: quality.NewEngine(log),
		log:     log,
	}
}

// Preprocess converts an input image into canonical form. It either returns
// a complete result or an error naming the failed stage; partial results are
// never returned.
func (p *Preprocessor) Preprocess(img *imaging.MedicalImage) (*ProcessedImage, error) {
	result := &ProcessedImage{Format: CanonicalFormat}

	decoded, _, err := image.Decode(bytes.NewReader(img.ImageData))
	if err != nil {
		return nil, stageError("decode", err)
	}
	current := toRGBA(decoded)

	// CT images arriving with a structured record get the windowing pass.
	// This is a plain intensity normalization standing in for true
	// multi-window compositing.
	if img.Modality == imaging.CT && img.Metadata.Structured != nil {
		var lo, hi uint8
		current, lo, hi = stretchIntensity(current)
		p.record(result, "ct_windowing", map[string]any{
			"method":       "intensity_normalization",
			"observed_min": int(lo),
			"observed_max": int(hi),
		})
	}

	current = fitSquare(current, p.cfg.TargetSize)
	p.record(result, "resize", map[string]any{
		"target_width":  p.cfg.TargetSize,
		"target_height": p.cfg.TargetSize,
		"mode":          "fit_pad",
	})

	// Linear rescale of the observed intensity range; the log records the
	// observed bounds and the [-1,1] target so the model side can invert
	// the mapping.
	current, lo, hi := stretchIntensity(current)
	p.record(result, "normalize", map[string]any{
		"target_range": "[-1,1]",
		"observed_min": int(lo),
		"observed_max": int(hi),
		"scale":        2.0 / 255.0,
		"offset":       -1.0,
	})

	interim, err := encodePNG(current)
	if err != nil {
		return nil, stageError("quality check", err)
	}
	mid := p.metrics.Compute(interim)
	if mid.Sharpness < p.cfg.SharpenThreshold {
		current = sharpen(current)
		p.record(result, "sharpen", map[string]any{
			"kernel":    "3x3 laplacian",
			"sharpness": mid.Sharpness,
		})
	}
	if mid.Contrast < p.cfg.ContrastThreshold {
		current, lo, hi = stretchIntensity(current)
		p.record(result, "contrast_normalization", map[string]any{
			"contrast":     mid.Contrast,
			"observed_min": int(lo),
			"observed_max": int(hi),
		})
	}

	output, err := encodePNG(current)
	if err != nil {
		return nil, stageError("format conversion", err)
	}
	p.record(result, "format_conversion", map[string]any{
		"format": CanonicalFormat,
	})

	result.ImageData = output
	result.Width = current.Bounds().Dx()
	result.Height = current.Bounds().Dy()
	result.Metrics = p.metrics.Compute(output)

	return result, nil
}

// record appends a step to the log and emits a debug event.
func (p *Preprocessor) record(result *ProcessedImage, operation string, params map[string]any) {
	result.Steps = append(result.Steps, PreprocessingStep{
		Operation:  operation,
		Parameters: params,
		AppliedAt:  time.Now().UTC(),
	})
	p.log.Debug().Str("operation", operation).Msg("preprocessing step applied")
}

func stageError(stage string, cause error) error {
	return fmt.Errorf("preprocessing failed at %s: %w", stage, cause)
}
