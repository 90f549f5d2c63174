package prompts

import "testing"

func TestWithPersona(t *testing.T) {
	got := WithPersona("Nova", "Help callers troubleshoot their router.")
	if got == personaTemplate {
		t.Fatal("expected placeholders to be substituted")
	}
	want := "You are Nova, a voice assistant. Help callers troubleshoot their router.\nKeep replies short and conversational - the listener cannot see punctuation or formatting."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultVoiceAssistantNonEmpty(t *testing.T) {
	if DefaultVoiceAssistant == "" {
		t.Fatal("expected a non-empty default preamble")
	}
}
