package transcribe

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIRecognizer calls the OpenAI audio transcription endpoint.
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
}

// NewOpenAIRecognizer creates a recognizer using the given API key and model
// (typically whisper-1).
func NewOpenAIRecognizer(apiKey, model string) *OpenAIRecognizer {
	return &OpenAIRecognizer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIRecognizerWithClient creates a recognizer with a preconfigured
// client. Used by tests pointing at a local server.
func NewOpenAIRecognizerWithClient(client *openai.Client, model string) *OpenAIRecognizer {
	return &OpenAIRecognizer{client: client, model: model}
}

// Recognize uploads the audio and returns the transcribed text.
func (r *OpenAIRecognizer) Recognize(ctx context.Context, audio []byte, mime string) (string, error) {
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: fileName(mime),
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return resp.Text, nil
}

func fileName(mime string) string {
	switch mime {
	case "audio/mpeg":
		return "audio.mp3"
	case "audio/mp4", "audio/m4a":
		return "audio.m4a"
	default:
		return "audio.wav"
	}
}
