// Package metadata models the structured (DICOM-equivalent) acquisition
// record carried alongside a medical image and checks it for compliance.
package metadata

// StructuredMetadataRecord is the DICOM-equivalent descriptive header. Any
// field may be empty and the record itself may be absent; compliance checking
// degrades instead of failing.
type StructuredMetadataRecord struct {
	StudyInstanceUID  string  `json:"study_instance_uid,omitempty"`
	SeriesInstanceUID string  `json:"series_instance_uid,omitempty"`
	SOPInstanceUID    string  `json:"sop_instance_uid,omitempty"`
	PatientID         string  `json:"patient_id,omitempty"`
	Modality          string  `json:"modality,omitempty"`
	InstitutionName   string  `json:"institution_name,omitempty"`
	PixelSpacing      float64 `json:"pixel_spacing,omitempty"`
	TransferSyntaxUID string  `json:"transfer_syntax_uid,omitempty"`
}

// AllowedTransferSyntaxes lists the transfer syntax UIDs accepted by the
// downstream pipeline: implicit VR little endian, explicit VR little endian,
// and JPEG lossless (process 14, selection value 1).
var AllowedTransferSyntaxes = []string{
	"1.2.840.10008.1.2",
	"1.2.840.10008.1.2.1",
	"1.2.840.10008.1.2.4.70",
}

// CheckCompliance validates a structured metadata record against the required
// identifying fields and the transfer syntax allow-list. A nil record yields a
// single issue noting its absence. isCompliant is true iff issues is empty.
func CheckCompliance(record *StructuredMetadataRecord) (bool, []string) {
	if record == nil {
		return false, []string{"structured metadata record is missing"}
	}

	var issues []string
	if record.StudyInstanceUID == "" {
		issues = append(issues, "study instance UID is missing")
	}
	if record.SeriesInstanceUID == "" {
		issues = append(issues, "series instance UID is missing")
	}
	if record.SOPInstanceUID == "" {
		issues = append(issues, "SOP instance UID is missing")
	}
	if record.PatientID == "" {
		issues = append(issues, "patient ID is missing")
	}
	if record.Modality == "" {
		issues = append(issues, "modality code is missing")
	}
	if !isAllowedTransferSyntax(record.TransferSyntaxUID) {
		issues = append(issues, "transfer syntax "+record.TransferSyntaxUID+" is not supported")
	}

	return len(issues) == 0, issues
}

func isAllowedTransferSyntax(uid string) bool {
	for _, allowed := range AllowedTransferSyntaxes {
		if uid == allowed {
			return true
		}
	}
	return false
}
