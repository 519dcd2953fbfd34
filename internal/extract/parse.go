package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docsift/docsift/internal/model"
)

// ErrMalformedOutput signals that the model's response failed schema
// validation. Recoverable: the orchestrator re-prompts within its retry
// budget, then degrades the field to a null record.
var ErrMalformedOutput = errors.New("malformed model output")

// modelOutput is the strict response contract the model must satisfy.
type modelOutput struct {
	Value          *string  `json:"value"`
	Confidence     string   `json:"confidence"`
	SourceChunkIDs []string `json:"source_chunk_ids"`
	Score          float64  `json:"score,omitempty"`
}

// parseModelOutput extracts and validates the JSON object from raw model
// text. Model output is untrusted external input: anything that fails the
// schema is rejected, never patched up.
func parseModelOutput(raw string, req model.FieldRequest, evidence model.RetrievalResult) (*modelOutput, model.FieldValue, error) {
	jsonText, err := isolateJSON(raw)
	if err != nil {
		return nil, model.FieldValue{}, err
	}

	var out modelOutput
	dec := json.NewDecoder(strings.NewReader(jsonText))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, model.FieldValue{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	switch out.Confidence {
	case "high", "low":
	case "":
		out.Confidence = "low"
	default:
		return nil, model.FieldValue{}, fmt.Errorf("%w: confidence must be \"high\" or \"low\", got %q",
			ErrMalformedOutput, out.Confidence)
	}
	if out.Score < 0 || out.Score > 1 {
		return nil, model.FieldValue{}, fmt.Errorf("%w: score %v outside 0..1", ErrMalformedOutput, out.Score)
	}

	// A null value carries no provenance; cited chunks with no value make
	// the response incoherent.
	if out.Value == nil {
		if len(out.SourceChunkIDs) > 0 {
			return nil, model.FieldValue{}, fmt.Errorf("%w: null value must not cite chunks", ErrMalformedOutput)
		}
		return &out, model.NullValue(req.Type), nil
	}

	if len(out.SourceChunkIDs) == 0 {
		return nil, model.FieldValue{}, fmt.Errorf("%w: non-null value without source_chunk_ids", ErrMalformedOutput)
	}
	supplied := make(map[string]bool, len(evidence.Hits))
	for _, hit := range evidence.Hits {
		supplied[hit.ChunkID] = true
	}
	for _, id := range out.SourceChunkIDs {
		if !supplied[id] {
			// The model cited evidence it was never shown. Accepting it
			// would fabricate provenance.
			return nil, model.FieldValue{}, fmt.Errorf("%w: cited chunk %q not in supplied evidence",
				ErrMalformedOutput, id)
		}
	}

	value, err := parseTypedValue(*out.Value, req.Type)
	if err != nil {
		return nil, model.FieldValue{}, err
	}
	return &out, value, nil
}

// isolateJSON strips markdown code fences and surrounding prose, keeping
// the outermost JSON object.
func isolateJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	return text[start : end+1], nil
}

// dateLayouts are tried in order when normalizing a date value.
var dateLayouts = []string{
	"2006-01-02",
	"02 January 2006",
	"January 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02/01/2006",
	"01/02/2006",
	time.RFC3339,
}

// currencySymbols maps common symbols to ISO 4217 codes.
var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

// parseTypedValue converts the model's raw string value into the typed
// form the field requested. A value that cannot be parsed as its declared
// type is malformed output, not a null.
func parseTypedValue(raw string, t model.FieldType) (model.FieldValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.FieldValue{}, fmt.Errorf("%w: empty value string", ErrMalformedOutput)
	}

	switch t {
	case model.FieldTypeDate:
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, raw); err == nil {
				return model.FieldValue{Type: t, Date: d.UTC().Truncate(24 * time.Hour)}, nil
			}
		}
		return model.FieldValue{}, fmt.Errorf("%w: %q is not a recognizable date", ErrMalformedOutput, raw)

	case model.FieldTypeCurrency:
		code, amount, err := parseCurrency(raw)
		if err != nil {
			return model.FieldValue{}, err
		}
		return model.FieldValue{Type: t, Currency: code, Amount: amount}, nil

	case model.FieldTypePercentage:
		s := strings.TrimSpace(strings.TrimSuffix(raw, "%"))
		s = strings.ReplaceAll(s, ",", "")
		pct, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.FieldValue{}, fmt.Errorf("%w: %q is not a percentage", ErrMalformedOutput, raw)
		}
		return model.FieldValue{Type: t, Percent: pct}, nil

	default:
		return model.FieldValue{Type: model.FieldTypeString, Text: raw}, nil
	}
}

// parseCurrency accepts "EUR 1,000,000", "1,000,000 EUR", "€1.000.000"
// variants with a leading symbol, and plain "EUR1000000".
func parseCurrency(raw string) (string, float64, error) {
	s := strings.TrimSpace(raw)
	code := ""

	for sym, iso := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			code = iso
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			break
		}
	}

	if code == "" {
		fields := strings.Fields(s)
		if len(fields) >= 2 {
			if isCurrencyCode(fields[0]) {
				code = strings.ToUpper(fields[0])
				s = strings.Join(fields[1:], "")
			} else if isCurrencyCode(fields[len(fields)-1]) {
				code = strings.ToUpper(fields[len(fields)-1])
				s = strings.Join(fields[:len(fields)-1], "")
			}
		} else if len(s) > 3 && isCurrencyCode(s[:3]) {
			code = strings.ToUpper(s[:3])
			s = s[3:]
		}
	}

	if code == "" {
		return "", 0, fmt.Errorf("%w: %q has no recognizable currency code", ErrMalformedOutput, raw)
	}

	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q has no parsable amount", ErrMalformedOutput, raw)
	}
	return code, amount, nil
}

// isCurrencyCode reports whether s looks like an ISO 4217 alphabetic code.
func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
