package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldType is the expected type of an extracted field value.
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeDate       FieldType = "date"
	FieldTypeCurrency   FieldType = "currency"   // Amount plus ISO currency code
	FieldTypePercentage FieldType = "percentage" // Numeric percent value
)

// FieldRequest describes one field to extract from the indexed documents.
type FieldRequest struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Type        FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	Query       string    `json:"query,omitempty" yaml:"query,omitempty"` // Optional natural-language override
}

// Confidence classifies how an extracted value was obtained.
type Confidence string

const (
	// ConfidenceDeterministic is reserved for non-generative extraction
	// paths (rule-based parsers outside this core).
	ConfidenceDeterministic Confidence = "deterministic"
	ConfidenceModelHigh     Confidence = "model-high"
	ConfidenceModelLow      Confidence = "model-low"
)

// FieldValue is a typed, nullable extracted value.
type FieldValue struct {
	Type FieldType `json:"type"`
	Null bool      `json:"null,omitempty"`

	Text     string    `json:"text,omitempty"`     // FieldTypeString
	Date     time.Time `json:"date,omitempty"`     // FieldTypeDate, normalized UTC midnight
	Amount   float64   `json:"amount,omitempty"`   // FieldTypeCurrency
	Currency string    `json:"currency,omitempty"` // FieldTypeCurrency, ISO 4217 code
	Percent  float64   `json:"percent,omitempty"`  // FieldTypePercentage
}

// NullValue returns the null value for a field type.
func NullValue(t FieldType) FieldValue {
	return FieldValue{Type: t, Null: true}
}

// String renders the value for display.
func (v FieldValue) String() string {
	if v.Null {
		return "null"
	}
	switch v.Type {
	case FieldTypeDate:
		return v.Date.Format("2006-01-02")
	case FieldTypeCurrency:
		return fmt.Sprintf("%s %.2f", v.Currency, v.Amount)
	case FieldTypePercentage:
		return fmt.Sprintf("%g%%", v.Percent)
	default:
		return v.Text
	}
}

// MarshalJSON renders null values as JSON null and typed values in their
// natural JSON shape.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Null {
		return []byte("null"), nil
	}
	switch v.Type {
	case FieldTypeDate:
		return json.Marshal(v.Date.Format("2006-01-02"))
	case FieldTypeCurrency:
		return json.Marshal(struct {
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
		}{v.Amount, v.Currency})
	case FieldTypePercentage:
		return json.Marshal(v.Percent)
	default:
		return json.Marshal(v.Text)
	}
}

// ProvenanceRef links an extracted value back to the chunk that supports it.
type ProvenanceRef struct {
	ChunkID     string `json:"chunk_id"`
	DocumentID  string `json:"document_id"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// ExtractionRecord is the final, JSON-serializable result for one field.
// A completed extraction batch always contains one record per requested
// field; a field with no supportable value carries a null value, low
// confidence, and empty provenance rather than a guess.
type ExtractionRecord struct {
	FieldName  string          `json:"field_name"`
	Value      FieldValue      `json:"value"`
	Confidence Confidence      `json:"confidence"`
	Score      float64         `json:"score,omitempty"` // Optional model self-reported 0..1
	Provenance []ProvenanceRef `json:"provenance"`
}

// ParseFieldType normalizes a user-supplied type hint. Unknown hints fall
// back to string rather than failing the request.
func ParseFieldType(s string) FieldType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "date":
		return FieldTypeDate
	case "currency", "currency-amount", "money":
		return FieldTypeCurrency
	case "percentage", "percent":
		return FieldTypePercentage
	default:
		return FieldTypeString
	}
}
