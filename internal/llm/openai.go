package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIClient implements Completer using the OpenAI chat completions API.
type OpenAIClient struct {
	client       openai.Client
	defaultModel string
	audioModel   string
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	Model      string // used when Stream is called without a model, e.g. "gpt-5"
	AudioModel string // used by StreamAudio, e.g. "gpt-audio-mini"
}

// NewOpenAIClient creates a completer on top of a configured OpenAI client.
func NewOpenAIClient(client openai.Client, cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-5"
	}
	audioModel := cfg.AudioModel
	if audioModel == "" {
		audioModel = "gpt-audio-mini"
	}
	return &OpenAIClient{
		client:       client,
		defaultModel: model,
		audioModel:   audioModel,
	}
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Stream opens a streaming chat completion.
func (c *OpenAIClient) Stream(ctx context.Context, model string, messages []Message) (TokenStream, error) {
	if model == "" {
		model = c.defaultModel
	}
	ctx, span := tracer.Start(ctx, "chat completion stream",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("llm.messages", len(messages)),
		))

	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toParams(messages),
	})
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		_ = stream.Close()
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	return &openaiStream{stream: stream, span: span, model: model}, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	span   trace.Span
	model  string
	tokens int
	ended  bool
}

func (s *openaiStream) Next() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			s.tokens++
			return text, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		s.finish(err)
		return "", fmt.Errorf("openai chat: %w", err)
	}
	s.finish(nil)
	return "", io.EOF
}

func (s *openaiStream) finish(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.span.SetAttributes(attribute.Int("llm.chunks", s.tokens))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		logger.Error("completion stream failed", "model", s.model, "chunks", s.tokens, "error", err)
	}
	s.span.End()
}

func (s *openaiStream) Close() error {
	s.finish(nil)
	return s.stream.Close()
}
