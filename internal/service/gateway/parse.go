package gateway

import (
	"encoding/json"
	"strings"

	"github.com/chatform/backend/internal/model/form"
)

// apologyMessage replaces an empty undecodable payload so the client always
// gets something to display.
const apologyMessage = "Sorry, I had trouble understanding that. Could you say it again?"

// turnEnvelope is the wire shape the model is instructed to produce.
// FormData stays raw so the decoder can accept both the current sequence
// shape and the legacy flat-map shape.
type turnEnvelope struct {
	AIMessage string          `json:"ai_message"`
	FormData  json.RawMessage `json:"form_data"`
}

// decodeTurnPayload resolves a raw model reply into a tagged turn result.
// Anything that is not a JSON object passes through as plain text; a JSON
// object that fails to decode degrades to an apology with no extraction.
func decodeTurnPayload(raw string) form.RawTurnResult {
	payload := stripCodeFences(strings.TrimSpace(raw))

	if !strings.HasPrefix(payload, "{") {
		return form.RawTurnResult{Text: raw}
	}

	var envelope turnEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil || envelope.AIMessage == "" {
		return degradedResult(raw)
	}

	structured := &form.StructuredTurn{AIMessage: envelope.AIMessage}

	if len(envelope.FormData) > 0 {
		var fields []form.FieldUpdate
		if err := json.Unmarshal(envelope.FormData, &fields); err == nil {
			structured.Fields = fields
			return form.RawTurnResult{Structured: structured}
		}

		var legacy map[string]string
		if err := json.Unmarshal(envelope.FormData, &legacy); err == nil {
			structured.Legacy = legacy
			return form.RawTurnResult{Structured: structured}
		}
	}

	// ai_message without a recognizable form_data shape: no extraction.
	return form.RawTurnResult{Structured: structured}
}

func degradedResult(raw string) form.RawTurnResult {
	message := strings.TrimSpace(raw)
	if message == "" {
		message = apologyMessage
	}
	return form.RawTurnResult{Structured: &form.StructuredTurn{
		AIMessage: message,
		Fields:    []form.FieldUpdate{},
	}}
}

// stripCodeFences unwraps a payload the model wrapped in markdown fences
// despite instructions.
func stripCodeFences(payload string) string {
	if !strings.HasPrefix(payload, "```") {
		return payload
	}

	trimmed := strings.TrimPrefix(payload, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

var urlKeyHints = []string{"url", "profile", "link", "website"}

var schemePrefixes = []string{"http://", "https://"}

// normalizeURLFields prefixes scheme-less values of URL-ish fields with
// https:// so clients can render them as links directly.
func normalizeURLFields(turn *form.StructuredTurn) {
	for i, field := range turn.Fields {
		turn.Fields[i].Value = normalizeURLValue(field.Key, field.Value)
	}
	for key, value := range turn.Legacy {
		turn.Legacy[key] = normalizeURLValue(key, value)
	}
}

func normalizeURLValue(key, value string) string {
	if value == "" || !isURLKey(key) {
		return value
	}
	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(value, prefix) {
			return value
		}
	}
	return "https://" + value
}

func isURLKey(key string) bool {
	lower := strings.ToLower(key)
	for _, hint := range urlKeyHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
