// Command scantriage validates a medical image's quality and optionally
// preprocesses it into the canonical form expected by the analysis model.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"github.com/nvasquez/scantriage/internal/imaging"
	"github.com/nvasquez/scantriage/internal/pipeline"
	"github.com/nvasquez/scantriage/internal/quality"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	input := flag.String("input", "", "Path to the image file: PNG, JPEG or DICOM (required)")
	modalityFlag := flag.String("modality", "XRAY", "Imaging modality: XRAY, CT, ECG, MRI, HISTOPATHOLOGY (ignored for DICOM input)")
	patientID := flag.String("patient", "", "Patient identifier (ignored for DICOM input)")
	preprocess := flag.Bool("preprocess", false, "Preprocess the image after validation")
	output := flag.String("output", "", "Output path for the preprocessed image (default: <input>.processed.png)")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("scantriage %s\n", version)
		os.Exit(0)
	}

	if *input == "" {
		fmt.Fprintf(os.Stderr, "Error: --input is required\n")
		printUsage()
		os.Exit(1)
	}

	log := newLogger(*logLevel)

	img, err := loadImage(*input, *modalityFlag, *patientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	assessor := quality.NewAssessor(quality.DefaultConfig(), log)
	assessment := assessor.ValidateImageQuality(img)

	report := struct {
		Image      *imaging.MedicalImage     `json:"image"`
		Metrics    quality.QualityMetrics    `json:"metrics"`
		Assessment quality.QualityAssessment `json:"assessment"`
		Processed  *pipeline.ProcessedImage  `json:"processed,omitempty"`
	}{
		Image:      img,
		Metrics:    assessor.Metrics().Compute(img.ImageData),
		Assessment: assessment,
	}

	if *preprocess {
		processor := pipeline.NewPreprocessor(pipeline.DefaultConfig(), log)
		processed, err := processor.Preprocess(img)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		outPath := *output
		if outPath == "" {
			outPath = strings.TrimSuffix(*input, filepath.Ext(*input)) + ".processed.png"
		}
		if err := os.WriteFile(outPath, processed.ImageData, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writing output: %v\n", err)
			os.Exit(1)
		}
		log.Info().Str("path", outPath).Int("bytes", len(processed.ImageData)).Msg("processed image written")
		report.Processed = processed
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding report: %v\n", err)
		os.Exit(1)
	}

	if !assessment.IsAcceptable {
		os.Exit(2)
	}
}

// newLogger builds a console logger at the requested level.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

// loadImage builds a MedicalImage from the input file. DICOM files carry
// their own metadata; for PNG/JPEG the metadata comes from the decoded
// header and the command-line flags.
func loadImage(path, modalityFlag, patientID string) (*imaging.MedicalImage, error) {
	if strings.EqualFold(filepath.Ext(path), ".dcm") {
		return imaging.LoadDICOMFile(path)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	modality, err := imaging.ParseModality(modalityFlag)
	if err != nil {
		return nil, err
	}

	meta := imaging.ImageMetadata{BitDepth: 8}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(payload)); err == nil {
		meta.Width = cfg.Width
		meta.Height = cfg.Height
		meta.Compression = format
	}

	return &imaging.MedicalImage{
		ID:         filepath.Base(path),
		PatientID:  patientID,
		Modality:   modality,
		ImageData:  payload,
		Metadata:   meta,
		CapturedAt: time.Now().UTC(),
	}, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "\nUsage:")
	fmt.Fprintln(os.Stderr, "  scantriage --input <FILE> [options]")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}
