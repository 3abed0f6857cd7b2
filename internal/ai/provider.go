package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is what the assistant boundary hands back: a reply for the log and,
// optionally, a medication suggestion for the screening engine.
type Reply struct {
	Text                string  `json:"reply_text"`
	SuggestedMedication *string `json:"suggested_medication"`
}

// Provider is the injected assistant capability. patientContext is a short
// free-text summary (active allergies) folded into the system prompt.
type Provider interface {
	Chat(ctx context.Context, messages []Message, patientContext string) (Reply, error)
}
