// Package imaging defines the medical image input model consumed by the
// quality and preprocessing packages.
package imaging

import (
	"fmt"
	"strings"
	"time"

	"github.com/nvasquez/scantriage/internal/metadata"
)

// Modality represents an imaging modality type.
type Modality string

const (
	XRay           Modality = "XRAY" // Plain radiograph
	CT             Modality = "CT"   // Computed tomography
	ECG            Modality = "ECG"  // Electrocardiogram
	MRI            Modality = "MRI"  // Magnetic resonance
	Histopathology Modality = "HISTOPATHOLOGY"
)

// AllModalities returns all supported modalities.
func AllModalities() []Modality {
	return []Modality{XRay, CT, ECG, MRI, Histopathology}
}

// IsValid checks if a modality string is valid.
func IsValid(m string) bool {
	for _, valid := range AllModalities() {
		if string(valid) == m {
			return true
		}
	}
	return false
}

// ParseModality parses a string into a Modality.
func ParseModality(s string) (Modality, error) {
	m := Modality(strings.ToUpper(strings.TrimSpace(s)))
	if !IsValid(string(m)) {
		return "", fmt.Errorf("invalid modality: %q (valid: XRAY, CT, ECG, MRI, HISTOPATHOLOGY)", s)
	}
	return m, nil
}

// supportedEncodings maps each modality to the payload encodings accepted by
// basic validation. "none" stands for an uncompressed payload and is accepted
// everywhere; an empty compression descriptor is treated as "none".
var supportedEncodings = map[Modality][]string{
	XRay:           {"none", "png", "jpeg", "jpeg2000"},
	CT:             {"none", "png", "jpeg2000", "rle"},
	ECG:            {"none", "png", "jpeg"},
	MRI:            {"none", "png", "jpeg2000", "rle"},
	Histopathology: {"none", "png", "jpeg", "tiff"},
}

// SupportsEncoding reports whether the given compression descriptor is an
// accepted payload encoding for the modality.
func (m Modality) SupportsEncoding(compression string) bool {
	c := strings.ToLower(strings.TrimSpace(compression))
	if c == "" {
		c = "none"
	}
	for _, enc := range supportedEncodings[m] {
		if enc == c {
			return true
		}
	}
	return false
}

// ImageMetadata describes the acquisition parameters of a medical image.
type ImageMetadata struct {
	Width                 int                                `json:"width"`
	Height                int                                `json:"height"`
	BitDepth              int                                `json:"bit_depth"`
	Compression           string                             `json:"compression,omitempty"`
	AcquisitionParameters map[string]string                  `json:"acquisition_parameters,omitempty"`
	BodyPart              string                             `json:"body_part,omitempty"`
	ViewPosition          string                             `json:"view_position,omitempty"`
	Structured            *metadata.StructuredMetadataRecord `json:"structured,omitempty"`
}

// MedicalImage is a single image handed to the pipeline. It is treated as
// immutable: neither validation nor preprocessing mutates it.
type MedicalImage struct {
	ID         string        `json:"id"`
	PatientID  string        `json:"patient_id"`
	Modality   Modality      `json:"modality"`
	ImageData  []byte        `json:"-"`
	Metadata   ImageMetadata `json:"metadata"`
	CapturedAt time.Time     `json:"captured_at"`
}
