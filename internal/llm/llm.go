package llm

import "context"

// Roles used in chat history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenStream yields completion text fragments in generation order.
// Next returns io.EOF once the completion is finished.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// Completer defines the interface for streaming chat completion providers.
type Completer interface {
	// Stream starts a completion for messages using model. Provider errors
	// may surface either here or from the first TokenStream.Next call.
	Stream(ctx context.Context, model string, messages []Message) (TokenStream, error)
}

// AudioDelta is one increment of a spoken reply. Either field may be empty.
type AudioDelta struct {
	Transcript string
	PCM        []byte // 24 kHz mono 16-bit little-endian
}

// AudioStream yields a spoken reply. Next returns io.EOF once it is finished.
type AudioStream interface {
	Next() (AudioDelta, error)
	Close() error
}

// AudioReplier answers a conversation with speech from a single model call,
// without a separate synthesis step.
type AudioReplier interface {
	StreamAudio(ctx context.Context, model, voice string, messages []Message) (AudioStream, error)
}
