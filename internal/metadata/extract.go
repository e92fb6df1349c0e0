package metadata

import (
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// FromDataset builds a StructuredMetadataRecord from a parsed DICOM dataset.
// Missing tags leave the corresponding fields empty; the caller decides what
// an incomplete record means via CheckCompliance.
func FromDataset(ds dicom.Dataset) *StructuredMetadataRecord {
	record := &StructuredMetadataRecord{
		StudyInstanceUID:  firstString(ds, tag.StudyInstanceUID),
		SeriesInstanceUID: firstString(ds, tag.SeriesInstanceUID),
		SOPInstanceUID:    firstString(ds, tag.SOPInstanceUID),
		PatientID:         firstString(ds, tag.PatientID),
		Modality:          firstString(ds, tag.Modality),
		InstitutionName:   firstString(ds, tag.InstitutionName),
		TransferSyntaxUID: firstString(ds, tag.TransferSyntaxUID),
	}

	// Pixel spacing is a two-value decimal string (row spacing, column
	// spacing); the record keeps the row spacing.
	if spacing := firstString(ds, tag.PixelSpacing); spacing != "" {
		if v, err := strconv.ParseFloat(spacing, 64); err == nil {
			record.PixelSpacing = v
		}
	}

	return record
}

// firstString returns the first string value of the element with the given
// tag, or "" if the element is absent or not string-valued.
func firstString(ds dicom.Dataset, t tag.Tag) string {
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
