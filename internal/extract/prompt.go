package extract

import (
	"fmt"
	"strings"

	"github.com/docsift/docsift/internal/model"
)

// systemPrompt sets the output contract. The model must answer only from
// the supplied evidence and must name the chunks it drew the value from,
// so provenance is model-asserted and then validated here.
const systemPrompt = `You extract a single structured field value from document excerpts.

RULES:
1. Use ONLY the evidence excerpts provided. Never use outside knowledge.
2. Answer with a single JSON object and nothing else:
   {"value": <string or null>, "confidence": "high" or "low", "source_chunk_ids": [<chunk ids>]}
3. "value" is the exact value as written in the evidence. If the evidence does not state the value, use null.
4. "source_chunk_ids" lists the chunk id(s) the value was taken from. It must be empty when value is null and must only contain ids shown in the evidence.
5. "confidence" is "high" only for a single unambiguous match; otherwise "low".`

// typeHints phrase the expected value format per field type.
var typeHints = map[model.FieldType]string{
	model.FieldTypeString:     "a short text value",
	model.FieldTypeDate:       "a date",
	model.FieldTypeCurrency:   "a monetary amount with its currency",
	model.FieldTypePercentage: "a percentage",
}

// BuildPrompt renders the user-turn prompt for one field: the field's
// name, description and expected type, then every evidence chunk labeled
// with its chunk id.
func BuildPrompt(req model.FieldRequest, evidence model.RetrievalResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Field to extract: %s\n", req.Name)
	if req.Description != "" {
		fmt.Fprintf(&b, "Field description: %s\n", req.Description)
	}
	hint := typeHints[req.Type]
	if hint == "" {
		hint = typeHints[model.FieldTypeString]
	}
	fmt.Fprintf(&b, "Expected value: %s\n", hint)

	b.WriteString("\nEvidence excerpts:\n")
	for _, hit := range evidence.Hits {
		fmt.Fprintf(&b, "\n[chunk_id: %s]\n%s\n", hit.ChunkID, hit.Text)
	}

	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}

// BuildRetryPrompt reformulates the prompt after a rejected response,
// naming what was wrong so the model can correct it.
func BuildRetryPrompt(req model.FieldRequest, evidence model.RetrievalResult, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous answer was rejected: %s\n\n", reason)
	b.WriteString("Answer again, following the rules exactly.\n\n")
	b.WriteString(BuildPrompt(req, evidence))
	return b.String()
}
