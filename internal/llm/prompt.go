package llm

import (
	"strings"

	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// BuildExtractionPrompt composes the single instruction sent with the page
// images: one line per schema field, type-specific formatting rules, and a
// strict JSON-only output contract.
func BuildExtractionPrompt(schema *entity.Schema) string {
	var fieldLines []string
	for _, f := range schema.Fields {
		line := "- \"" + f.Name + "\" (" + string(f.Type) + "): " + f.Description
		if f.Required {
			line += " [REQUIRED]"
		}
		fieldLines = append(fieldLines, line)
	}

	var keyLines []string
	for _, f := range schema.Fields {
		keyLines = append(keyLines, "  \""+f.Name+"\": <"+string(f.Type)+"_value>")
	}

	var b strings.Builder
	b.WriteString("You are an expert AI system for extracting structured data from invoice documents.\n\n")
	b.WriteString("TASK: Extract the following fields from the provided invoice image(s):\n\n")
	b.WriteString(strings.Join(fieldLines, "\n"))
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1. Carefully analyze all pages of the invoice\n")
	b.WriteString("2. Extract the exact values for each field as they appear in the document\n")
	b.WriteString("3. For dates, use ISO 8601 format (YYYY-MM-DD)\n")
	b.WriteString("4. For currency values, include only the numeric amount (no currency symbols)\n")
	b.WriteString("5. For arrays, provide comma-separated values\n")
	b.WriteString("6. If a field cannot be found, use null\n")
	b.WriteString("7. Ensure accuracy - double-check all extracted values\n\n")
	b.WriteString("OUTPUT FORMAT:\nReturn a valid JSON object with the following structure:\n{\n")
	b.WriteString(strings.Join(keyLines, ",\n"))
	b.WriteString("\n}\n\n")
	b.WriteString("CRITICAL: Your response must be valid JSON only. Do not include any explanatory text before or after the JSON.")
	return b.String()
}
