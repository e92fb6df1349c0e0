// Package quality computes objective image quality metrics and produces
// accept/reject assessments for medical images.
package quality

import (
	"bytes"
	"image"
	"math"

	// Decoders for the payload encodings the pipeline accepts.
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
)

// QualityMetrics holds the four normalized quality scores plus the derived
// overall score. All values are in [0,1].
type QualityMetrics struct {
	Sharpness    float64 `json:"sharpness"`
	Contrast     float64 `json:"contrast"`
	Brightness   float64 `json:"brightness"`
	Noise        float64 `json:"noise"`
	OverallScore float64 `json:"overall_score"`
}

// neutralMetrics is returned when the payload cannot be decoded. Midpoint
// values keep downstream assessments usable without biasing them either way.
func neutralMetrics() QualityMetrics {
	return QualityMetrics{
		Sharpness:    0.5,
		Contrast:     0.5,
		Brightness:   0.5,
		Noise:        0.5,
		OverallScore: 0.5,
	}
}

// channelStats aggregates per-channel pixel statistics on the 8-bit scale.
type channelStats struct {
	mean   float64
	stdDev float64
	min    float64
	max    float64
}

// Engine computes quality metrics from raw image payloads. It is stateless
// and safe for concurrent use.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a metrics engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Compute decodes the payload and derives the four quality metrics from
// per-channel pixel statistics. An undecodable payload yields the neutral
// fallback metrics and a warning; this method never fails.
func (e *Engine) Compute(imageBytes []byte) QualityMetrics {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		e.log.Warn().Err(err).Int("payload_bytes", len(imageBytes)).
			Msg("image decode failed, using neutral quality metrics")
		return neutralMetrics()
	}
	return metricsFromImage(img)
}

// metricsFromImage computes quality metrics from an already decoded image.
func metricsFromImage(img image.Image) QualityMetrics {
	stats := computeChannelStats(img)

	var avgMean, avgStdDev, avgRange, avgNoise float64
	for _, s := range stats {
		avgMean += s.mean
		avgStdDev += s.stdDev
		avgRange += s.max - s.min
		avgNoise += s.stdDev / math.Max(s.mean, 1)
	}
	n := float64(len(stats))
	avgMean /= n
	avgStdDev /= n
	avgRange /= n
	avgNoise /= n

	m := QualityMetrics{
		Sharpness:  clamp01(avgStdDev / 50),
		Contrast:   clamp01(avgRange / 255),
		Brightness: clamp01(avgMean / 128),
		Noise:      clamp01(avgNoise),
	}
	m.OverallScore = (m.Sharpness + m.Contrast + m.Brightness + (1 - m.Noise)) / 4
	return m
}

// computeChannelStats gathers mean, standard deviation, minimum and maximum
// for the red, green and blue channels on the 8-bit scale.
func computeChannelStats(img image.Image) [3]channelStats {
	bounds := img.Bounds()
	count := float64(bounds.Dx() * bounds.Dy())

	var sum, sumSq [3]float64
	min := [3]float64{255, 255, 255}
	var max [3]float64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			channels := [3]float64{
				float64(r >> 8),
				float64(g >> 8),
				float64(b >> 8),
			}
			for i, v := range channels {
				sum[i] += v
				sumSq[i] += v * v
				if v < min[i] {
					min[i] = v
				}
				if v > max[i] {
					max[i] = v
				}
			}
		}
	}

	var stats [3]channelStats
	for i := range stats {
		mean := sum[i] / count
		variance := sumSq[i]/count - mean*mean
		if variance < 0 {
			variance = 0
		}
		stats[i] = channelStats{
			mean:   mean,
			stdDev: math.Sqrt(variance),
			min:    min[i],
			max:    max[i],
		}
	}
	return stats
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
