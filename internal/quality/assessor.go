package quality

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nvasquez/scantriage/internal/imaging"
	"github.com/nvasquez/scantriage/internal/metadata"
)

// IssueCategory classifies a quality issue.
type IssueCategory string

const (
	CategoryResolution IssueCategory = "resolution"
	CategoryContrast   IssueCategory = "contrast"
	CategoryNoise      IssueCategory = "noise"
	CategoryArtifact   IssueCategory = "artifact"
	CategoryFormat     IssueCategory = "format"
)

// IssueSeverity grades how serious a quality issue is.
type IssueSeverity string

const (
	SeverityMinor    IssueSeverity = "minor"
	SeverityModerate IssueSeverity = "moderate"
	SeverityMajor    IssueSeverity = "major"
)

// QualityIssue is a single finding produced during assessment. Issues are
// never edited after creation.
type QualityIssue struct {
	ID             string        `json:"id"`
	Category       IssueCategory `json:"category"`
	Severity       IssueSeverity `json:"severity"`
	Description    string        `json:"description"`
	Recommendation string        `json:"recommendation"`
}

// QualityAssessment is the result of validating one image. It is a snapshot;
// nothing persists it.
type QualityAssessment struct {
	IsAcceptable                bool           `json:"is_acceptable"`
	QualityScore                float64        `json:"quality_score"`
	Issues                      []QualityIssue `json:"issues"`
	RequiresManualReview        bool           `json:"requires_manual_review"`
	StructuredMetadataCompliant bool           `json:"structured_metadata_compliant"`
}

// Config holds the thresholds and penalties used by the assessor.
type Config struct {
	// MinWidth and MinHeight are the basic-validation resolution floor.
	MinWidth  int
	MinHeight int

	// CompatMinWidth and CompatMinHeight are the downstream model's
	// resolution floor.
	CompatMinWidth  int
	CompatMinHeight int

	// AcceptanceScore is the quality score below which an image cannot be
	// accepted and must be reviewed by a human.
	AcceptanceScore float64

	// Metric thresholds that generate issues.
	SharpnessFloor float64
	ContrastFloor  float64
	NoiseCeiling   float64

	// Score multipliers applied on metadata non-compliance and model
	// incompatibility.
	NonCompliancePenalty float64
	IncompatiblePenalty  float64
}

// DefaultConfig returns the production assessment thresholds.
func DefaultConfig() Config {
	return Config{
		MinWidth:             256,
		MinHeight:            256,
		CompatMinWidth:       224,
		CompatMinHeight:      224,
		AcceptanceScore:      60,
		SharpnessFloor:       0.6,
		ContrastFloor:        0.5,
		NoiseCeiling:         0.7,
		NonCompliancePenalty: 0.8,
		IncompatiblePenalty:  0.7,
	}
}

// Assessor validates medical images against quality, compliance and model
// compatibility requirements. It is stateless and safe for concurrent use.
type Assessor struct {
	cfg     Config
	metrics *Engine
	log     zerolog.Logger
}

// NewAssessor creates an assessor with the given configuration.
func NewAssessor(cfg Config, log zerolog.Logger) *Assessor {
	return &Assessor{
		cfg:     cfg,
		metrics: NewEngine(log),
		log:     log,
	}
}

// Metrics exposes the assessor's metrics engine.
func (a *Assessor) Metrics() *Engine {
	return a.metrics
}

// ValidateImageFormat reports whether the image's payload encoding is in the
// supported set for its modality.
func (a *Assessor) ValidateImageFormat(img *imaging.MedicalImage) bool {
	return imaging.IsValid(string(img.Modality)) &&
		img.Modality.SupportsEncoding(img.Metadata.Compression)
}

// ValidateImageQuality assesses one image and always returns a structured
// result: any internal failure is converted into a maximally pessimistic
// assessment rather than propagated, so bulk callers are never halted by a
// single bad image.
func (a *Assessor) ValidateImageQuality(img *imaging.MedicalImage) (assessment QualityAssessment) {
	if img == nil {
		return QualityAssessment{
			QualityScore:         0,
			RequiresManualReview: true,
			Issues: []QualityIssue{newIssue(
				CategoryArtifact, SeverityMajor,
				"no image provided",
				"Submit a non-empty medical image",
			)},
		}
	}

	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("cause", r).Str("image_id", img.ID).
				Msg("quality assessment failed internally")
			assessment = QualityAssessment{
				QualityScore:         0,
				RequiresManualReview: true,
				Issues: []QualityIssue{newIssue(
					CategoryArtifact, SeverityMajor,
					fmt.Sprintf("internal assessment failure: %v", r),
					"Re-acquire the image or escalate to support",
				)},
			}
		}
	}()

	if basics := a.basicIssues(img); len(basics) > 0 {
		return QualityAssessment{
			QualityScore:         0,
			Issues:               basics,
			RequiresManualReview: true,
		}
	}

	compliant, violations := a.checkStructuredMetadata(img)
	metrics := a.metrics.Compute(img.ImageData)
	compatible := a.modelCompatible(img)

	score := metrics.OverallScore * 100
	if !compliant {
		score *= a.cfg.NonCompliancePenalty
	}
	if !compatible {
		score *= a.cfg.IncompatiblePenalty
	}
	score = clamp(score, 0, 100)

	assessment.Issues = append(assessment.Issues, a.metricIssues(metrics)...)
	for _, violation := range violations {
		assessment.Issues = append(assessment.Issues, newIssue(
			CategoryArtifact, SeverityMajor,
			"structured metadata violation: "+violation,
			"Correct the acquisition metadata and resubmit",
		))
	}
	if !compatible {
		assessment.Issues = append(assessment.Issues, newIssue(
			CategoryArtifact, SeverityMajor,
			fmt.Sprintf("image is not compatible with the analysis model (modality %s, %dx%d, %d-bit)",
				img.Modality, img.Metadata.Width, img.Metadata.Height, img.Metadata.BitDepth),
			"Convert the image to a supported modality, resolution and bit depth",
		))
	}

	assessment.QualityScore = score
	assessment.StructuredMetadataCompliant = compliant
	assessment.RequiresManualReview = score < a.cfg.AcceptanceScore ||
		hasMajor(assessment.Issues) ||
		(!compliant && img.Modality != imaging.ECG)
	assessment.IsAcceptable = score >= a.cfg.AcceptanceScore && compliant

	return assessment
}

// basicIssues runs the cheap pre-checks that can reject an image outright
// before metrics are computed.
func (a *Assessor) basicIssues(img *imaging.MedicalImage) []QualityIssue {
	var issues []QualityIssue

	if len(img.ImageData) == 0 {
		issues = append(issues, newIssue(
			CategoryArtifact, SeverityMajor,
			"image payload is empty",
			"Re-upload the image",
		))
	}
	if img.Metadata.Width < a.cfg.MinWidth || img.Metadata.Height < a.cfg.MinHeight {
		issues = append(issues, newIssue(
			CategoryResolution, SeverityMajor,
			fmt.Sprintf("resolution %dx%d is below the minimum %dx%d",
				img.Metadata.Width, img.Metadata.Height, a.cfg.MinWidth, a.cfg.MinHeight),
			"Re-acquire the image at a higher resolution",
		))
	}
	if !a.ValidateImageFormat(img) {
		issues = append(issues, newIssue(
			CategoryArtifact, SeverityMajor,
			fmt.Sprintf("encoding %q is not supported for modality %s",
				img.Metadata.Compression, img.Modality),
			"Convert the image to a supported encoding for this modality",
		))
	}

	return issues
}

// checkStructuredMetadata evaluates DICOM-equivalent compliance.
// Electrocardiograms carry no structured record and are exempt.
func (a *Assessor) checkStructuredMetadata(img *imaging.MedicalImage) (bool, []string) {
	if img.Modality == imaging.ECG {
		return true, nil
	}
	return metadata.CheckCompliance(img.Metadata.Structured)
}

// modelCompatible reports whether the image is inside the downstream model's
// accepted input space. Note the 32-bit exclusion: basic validation accepts
// 32-bit payloads but the model does not.
func (a *Assessor) modelCompatible(img *imaging.MedicalImage) bool {
	return imaging.IsValid(string(img.Modality)) &&
		img.Metadata.Width >= a.cfg.CompatMinWidth &&
		img.Metadata.Height >= a.cfg.CompatMinHeight &&
		(img.Metadata.BitDepth == 8 || img.Metadata.BitDepth == 16)
}

// metricIssues generates issues for metrics outside their thresholds.
func (a *Assessor) metricIssues(m QualityMetrics) []QualityIssue {
	var issues []QualityIssue
	if m.Sharpness < a.cfg.SharpnessFloor {
		issues = append(issues, newIssue(
			CategoryResolution, SeverityModerate,
			fmt.Sprintf("sharpness %.2f is below %.2f", m.Sharpness, a.cfg.SharpnessFloor),
			"Check focus and motion blur at acquisition time",
		))
	}
	if m.Contrast < a.cfg.ContrastFloor {
		issues = append(issues, newIssue(
			CategoryContrast, SeverityModerate,
			fmt.Sprintf("contrast %.2f is below %.2f", m.Contrast, a.cfg.ContrastFloor),
			"Adjust exposure or windowing settings",
		))
	}
	if m.Noise > a.cfg.NoiseCeiling {
		issues = append(issues, newIssue(
			CategoryNoise, SeverityModerate,
			fmt.Sprintf("noise level %.2f exceeds %.2f", m.Noise, a.cfg.NoiseCeiling),
			"Increase dose or apply denoising before resubmission",
		))
	}
	return issues
}

func newIssue(category IssueCategory, severity IssueSeverity, description, recommendation string) QualityIssue {
	return QualityIssue{
		ID:             uuid.NewString(),
		Category:       category,
		Severity:       severity,
		Description:    description,
		Recommendation: recommendation,
	}
}

func hasMajor(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityMajor {
			return true
		}
	}
	return false
}
