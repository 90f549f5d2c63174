// Package prompts holds the system-role preamble bundle a session
// seeds its chat history with. The templates are opaque string
// constants with placeholder substitution, not a templating engine,
// matching a small bundle of prompt strings rather than anything
// provider-specific.
package prompts

import "strings"

// DefaultVoiceAssistant is the fallback preamble for a session that
// isn't given an application-specific one.
const DefaultVoiceAssistant = `You are a helpful, concise voice assistant speaking over a live audio connection.
Keep replies short and conversational - the listener cannot see punctuation or formatting.
Never read out stage directions, headers, or markdown.
If you are interrupted mid-reply, treat whatever the caller says next as the start of a new turn, not a continuation.`

// WithPersona renders a preamble with a persona name and a one-line
// role description substituted into it. Empty fields are left blank
// rather than erroring; callers own validating required fields.
const personaTemplate = `You are {{persona}}, a voice assistant. {{role}}
Keep replies short and conversational - the listener cannot see punctuation or formatting.`

func WithPersona(persona, role string) string {
	r := strings.NewReplacer("{{persona}}", persona, "{{role}}", role)
	return r.Replace(personaTemplate)
}
