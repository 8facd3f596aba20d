package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chatform/backend/internal/model/form"
)

// greetingMessage opens every new session. The seed turn pair below replays
// it as the assistant's first answer so the model sees one worked example of
// the envelope before the first real user message arrives.
const greetingMessage = "Hi! I'll help you fill out this form through a quick chat. Just answer in your own words and I'll take care of the rest. Ready when you are!"

const seedUserTurn = "Hello"

const seedAssistantTurn = `{"ai_message": "` + greetingMessage + `", "form_data": []}`

// buildExtractionPrompt renders the system prompt for a schema: the list of
// fields to collect and the strict response envelope the decoder expects.
func buildExtractionPrompt(formSchema form.Schema) string {
	fields := make([]string, 0, len(formSchema))
	for name, fieldType := range formSchema {
		fields = append(fields, fmt.Sprintf("- %s (%s)", name, strings.ToLower(fieldType)))
	}
	sort.Strings(fields)

	var builder strings.Builder
	builder.WriteString("You are a friendly assistant helping a user fill out a form through natural conversation.\n\n")
	builder.WriteString("Fields to collect:\n")
	builder.WriteString(strings.Join(fields, "\n"))
	builder.WriteString("\n\nOn every turn, respond with ONLY a JSON object of this exact shape:\n")
	builder.WriteString(`{"ai_message": "<your conversational reply>", "form_data": [{"key": "<field>", "value": "<extracted value>"}]}`)
	builder.WriteString("\n\nRules:\n")
	builder.WriteString("- Extract values only when the user has clearly provided them; leave form_data empty otherwise.\n")
	builder.WriteString("- Ask for one or two missing fields at a time, conversationally.\n")
	builder.WriteString("- Values are always strings. Dates use YYYY-MM-DD.\n")
	builder.WriteString("- When every field is collected, summarize the answers and thank the user.\n")
	builder.WriteString("- Never wrap the JSON in markdown fences or add text outside it.")

	return builder.String()
}
