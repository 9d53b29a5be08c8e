package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StreamAudio opens a chat completion that answers with speech. Audio comes
// back as pcm16 together with its transcript.
func (c *OpenAIClient) StreamAudio(ctx context.Context, model, voice string, messages []Message) (AudioStream, error) {
	if model == "" {
		model = c.audioModel
	}
	ctx, span := tracer.Start(ctx, "audio chat completion stream",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("llm.voice", voice),
			attribute.Int("llm.messages", len(messages)),
		))

	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:      model,
		Messages:   toParams(messages),
		Modalities: []string{"text", "audio"},
		Audio: openai.ChatCompletionAudioParam{
			Voice:  openai.ChatCompletionAudioParamVoice(voice),
			Format: openai.ChatCompletionAudioParamFormat("pcm16"),
		},
	})
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		_ = stream.Close()
		return nil, fmt.Errorf("openai audio chat: %w", err)
	}
	return &openaiAudioStream{&openaiStream{stream: stream, span: span, model: model}}, nil
}

// audioChunk is the part of a streamed chunk the typed delta does not carry.
type audioChunk struct {
	Choices []struct {
		Delta struct {
			Audio struct {
				Data       []byte `json:"data"` // base64 pcm16
				Transcript string `json:"transcript"`
			} `json:"audio"`
		} `json:"delta"`
	} `json:"choices"`
}

type openaiAudioStream struct {
	*openaiStream
}

func (s *openaiAudioStream) Next() (AudioDelta, error) {
	for s.stream.Next() {
		var chunk audioChunk
		if err := json.Unmarshal([]byte(s.stream.Current().RawJSON()), &chunk); err != nil {
			logger.Warn("skipping undecodable audio chunk", "model", s.model, "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		a := chunk.Choices[0].Delta.Audio
		if a.Transcript == "" && len(a.Data) == 0 {
			continue
		}
		s.tokens++
		return AudioDelta{Transcript: a.Transcript, PCM: a.Data}, nil
	}
	if err := s.stream.Err(); err != nil {
		s.finish(err)
		return AudioDelta{}, fmt.Errorf("openai audio chat: %w", err)
	}
	s.finish(nil)
	return AudioDelta{}, io.EOF
}

var _ AudioReplier = (*OpenAIClient)(nil)
