package imaging

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/nvasquez/scantriage/internal/metadata"
)

// dicomModalities maps DICOM modality codes onto the pipeline's modality set.
var dicomModalities = map[string]Modality{
	"CR": XRay,
	"DX": XRay,
	"CT": CT,
	"MR": MRI,
	"SM": Histopathology,
}

// LoadDICOMFile parses a DICOM file into a MedicalImage: the first pixel
// frame becomes a PNG payload and the dataset attributes populate the
// acquisition metadata, including the structured record.
func LoadDICOMFile(path string) (*MedicalImage, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse DICOM file: %w", err)
	}

	payload, err := firstFramePNG(ds)
	if err != nil {
		return nil, err
	}

	record := metadata.FromDataset(ds)
	modality, ok := dicomModalities[record.Modality]
	if !ok {
		return nil, fmt.Errorf("unsupported DICOM modality %q", record.Modality)
	}

	img := &MedicalImage{
		ID:        record.SOPInstanceUID,
		PatientID: record.PatientID,
		Modality:  modality,
		ImageData: payload,
		Metadata: ImageMetadata{
			Width:                 firstInt(ds, tag.Columns),
			Height:                firstInt(ds, tag.Rows),
			BitDepth:              firstInt(ds, tag.BitsAllocated),
			Compression:           "png",
			AcquisitionParameters: acquisitionParams(ds),
			BodyPart:              firstStringTag(ds, tag.BodyPartExamined),
			ViewPosition:          firstStringTag(ds, tag.ViewPosition),
			Structured:            record,
		},
		CapturedAt: studyTimestamp(ds),
	}
	return img, nil
}

// acquisitionTags lists the optional acquisition attributes copied into the
// free-form parameter map when present.
var acquisitionTags = map[string]tag.Tag{
	"kvp":             tag.KVP,
	"exposure_time":   tag.ExposureTime,
	"slice_thickness": tag.SliceThickness,
	"window_center":   tag.WindowCenter,
	"window_width":    tag.WindowWidth,
	"protocol_name":   tag.ProtocolName,
	"manufacturer":    tag.Manufacturer,
}

// acquisitionParams collects the acquisition attributes present in the
// dataset, or nil when none are.
func acquisitionParams(ds dicom.Dataset) map[string]string {
	var params map[string]string
	for key, t := range acquisitionTags {
		if v := firstStringTag(ds, t); v != "" {
			if params == nil {
				params = make(map[string]string)
			}
			params[key] = v
		}
	}
	return params
}

// firstFramePNG extracts the first pixel data frame and re-encodes it as PNG.
func firstFramePNG(ds dicom.Dataset) ([]byte, error) {
	element, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("pixel data is missing: %w", err)
	}

	info := dicom.MustGetPixelDataInfo(element.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("pixel data contains no frames")
	}

	frameImage, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode pixel frame: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frameImage); err != nil {
		return nil, fmt.Errorf("encode pixel frame: %w", err)
	}
	return buf.Bytes(), nil
}

// studyTimestamp parses the study date, falling back to the zero time when
// the tag is absent or malformed.
func studyTimestamp(ds dicom.Dataset) time.Time {
	date := firstStringTag(ds, tag.StudyDate)
	if date == "" {
		return time.Time{}
	}
	t, err := time.Parse("20060102", date)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstStringTag(ds dicom.Dataset, t tag.Tag) string {
	element, err := ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	values, ok := element.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

func firstInt(ds dicom.Dataset, t tag.Tag) int {
	element, err := ds.FindElementByTag(t)
	if err != nil {
		return 0
	}
	values, ok := element.Value.GetValue().([]int)
	if !ok || len(values) == 0 {
		return 0
	}
	return values[0]
}
