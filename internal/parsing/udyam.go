package parsing

import (
	"regexp"
	"strings"
)

// DocumentTypeUdyam labels Udyam registration certificates.
const DocumentTypeUdyam = "Udyam_Certificate"

// Udyam field names.
const (
	FieldUdyamNumber      = "udyam_number"
	FieldEnterpriseName   = "enterprise_name"
	FieldOwnerName        = "owner_name"
	FieldOrganizationType = "type_of_organization"
	FieldCommencementDate = "date_of_commencement"
)

type fieldPattern struct {
	name string
	re   *regexp.Regexp
}

// Each field is searched independently; values are not validated.
var udyamFields = []fieldPattern{
	{FieldUdyamNumber, regexp.MustCompile(`(?i)Udyam Registration Number\s*[:\-]?\s*([A-Z0-9\-]+)`)},
	{FieldEnterpriseName, regexp.MustCompile(`(?i)Name of Enterprise\s*[:\-]?\s*([A-Za-z0-9\s\.,&'-]+)`)},
	{FieldOwnerName, regexp.MustCompile(`(?i)Name of Owner\s*[:\-]?\s*([A-Za-z0-9\s\.,&'-]+)`)},
	{FieldOrganizationType, regexp.MustCompile(`(?i)Type of Organization\s*[:\-]?\s*([A-Za-z\s]+)`)},
	{FieldCommencementDate, regexp.MustCompile(`(?i)Date of Commencement\s*[:\-]?\s*([0-9\-/]+)`)},
}

// UdyamRecognizer matches MSME Udyam registration certificates.
type UdyamRecognizer struct{}

// NewUdyamRecognizer returns the Udyam certificate recognizer.
func NewUdyamRecognizer() *UdyamRecognizer {
	return &UdyamRecognizer{}
}

// DocumentType implements Recognizer.
func (u *UdyamRecognizer) DocumentType() string { return DocumentTypeUdyam }

// Parse implements Recognizer.
func (u *UdyamRecognizer) Parse(text string) map[string]string {
	result := make(map[string]string)
	for _, f := range udyamFields {
		m := f.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		result[f.name] = strings.TrimSpace(m[1])
	}
	return result
}
