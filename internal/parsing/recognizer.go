// Package parsing turns aggregated page text into a document type and named fields.
package parsing

// DocumentTypeUnknown labels pages no recognizer claimed.
const DocumentTypeUnknown = "Unknown"

// Recognizer extracts the fields of one document type from page text.
type Recognizer interface {
	// DocumentType is the label reported when at least one field matched.
	DocumentType() string
	// Parse returns every field found. A missing field is omitted, never empty.
	Parse(text string) map[string]string
}

// Registry tries recognizers in registration order and keeps the first match.
type Registry struct {
	recognizers []Recognizer
}

// NewRegistry creates a registry over the given recognizers.
func NewRegistry(recognizers ...Recognizer) *Registry {
	return &Registry{recognizers: recognizers}
}

// DefaultRegistry recognizes Udyam registration certificates.
func DefaultRegistry() *Registry {
	return NewRegistry(NewUdyamRecognizer())
}

// Classify returns the document type and parsed fields for text. Unrecognized
// text yields DocumentTypeUnknown and an empty, non-nil map.
func (r *Registry) Classify(text string) (string, map[string]string) {
	for _, rec := range r.recognizers {
		fields := rec.Parse(text)
		if len(fields) > 0 {
			return rec.DocumentType(), fields
		}
	}
	return DocumentTypeUnknown, map[string]string{}
}
