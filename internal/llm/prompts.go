package llm

// DefaultSystemPrompt is used when a voice turn does not supply its own prompt.
const DefaultSystemPrompt = "You are a helpful assistant."

// VoiceGuardrails can be prepended to a system prompt to keep answers short
// and speakable.
const VoiceGuardrails = `Your reply will be read aloud by a speech synthesizer.
- Answer in plain sentences: no markdown, lists, tables or code blocks.
- Keep it short: one to three sentences unless asked for more.
- Ask at most one question per reply.`

// WithGuardrails prepends VoiceGuardrails to prompt.
func WithGuardrails(prompt string) string {
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return VoiceGuardrails + "\n\n" + prompt
}

// BuildMessages assembles the request for one turn: the system prompt, the
// prior history in order, then the new user utterance.
func BuildMessages(systemPrompt string, history []Message, userText string) []Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: userText})
	return msgs
}
