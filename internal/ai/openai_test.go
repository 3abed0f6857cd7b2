package ai

import (
	"strings"
	"testing"
)

func TestParseReply_StructuredJSON(t *testing.T) {
	r := parseReply(`{"reply_text": "Rest and hydrate.", "suggested_medication": "Paracetamol"}`)
	if r.Text != "Rest and hydrate." {
		t.Fatalf("unexpected text: %q", r.Text)
	}
	if r.SuggestedMedication == nil || *r.SuggestedMedication != "Paracetamol" {
		t.Fatalf("expected suggestion Paracetamol, got %v", r.SuggestedMedication)
	}
}

func TestParseReply_NullSuggestion(t *testing.T) {
	r := parseReply(`{"reply_text": "See a doctor.", "suggested_medication": null}`)
	if r.Text != "See a doctor." {
		t.Fatalf("unexpected text: %q", r.Text)
	}
	if r.SuggestedMedication != nil {
		t.Fatalf("expected no suggestion, got %q", *r.SuggestedMedication)
	}
}

func TestParseReply_BlankSuggestionDropped(t *testing.T) {
	r := parseReply(`{"reply_text": "ok", "suggested_medication": "  "}`)
	if r.SuggestedMedication != nil {
		t.Fatalf("expected blank suggestion to be dropped")
	}
}

func TestParseReply_RawTextFallback(t *testing.T) {
	r := parseReply("Just drink water and rest.")
	if r.Text != "Just drink water and rest." {
		t.Fatalf("unexpected text: %q", r.Text)
	}
	if r.SuggestedMedication != nil {
		t.Fatalf("raw fallback must not carry a suggestion")
	}
}

func TestParseReply_CapsLongText(t *testing.T) {
	r := parseReply(strings.Repeat("a", replyTextCap+100))
	if len(r.Text) != replyTextCap {
		t.Fatalf("expected text capped at %d, got %d", replyTextCap, len(r.Text))
	}
}
