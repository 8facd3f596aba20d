package session

import "github.com/chatform/backend/internal/model/form"

// applyTurn folds one raw gateway result into the accumulated form data and
// produces the reply visible to the client. Last write wins per key; within
// a single sequence-shaped turn, later entries win over earlier ones.
// Extracted keys are stored whether or not the schema declares them — the
// schema guides the extraction prompt, it is not enforced here.
func applyTurn(accumulated map[string]string, raw form.RawTurnResult) form.TurnReply {
	if raw.Structured == nil {
		// Plain text passes through; accumulated state is untouched.
		return form.TurnReply{Response: raw.Text}
	}

	turn := raw.Structured
	switch {
	case turn.Fields != nil:
		for _, field := range turn.Fields {
			if field.Key == "" || field.Value == "" {
				continue
			}
			accumulated[field.Key] = field.Value
		}
	case turn.Legacy != nil:
		for key, value := range turn.Legacy {
			accumulated[key] = value
		}
	default:
		// No recognizable extraction shape: pass the message through.
		return form.TurnReply{Response: turn.AIMessage}
	}

	return form.TurnReply{
		Response: turn.AIMessage,
		FormData: snapshot(accumulated),
	}
}

func snapshot(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		out[key] = value
	}
	return out
}
