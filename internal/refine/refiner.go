// Package refine polishes raw transcripts and produces meeting summaries
// through the chat completions API.
package refine

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const refineSystemPrompt = `You clean up raw speech-to-text transcripts of meetings.
Fix recognition errors, punctuation and casing using the surrounding context.
Return exactly one output line per input line, in the same order.
Never merge, split, reorder, or annotate lines, and never add commentary.`

const summarySystemPrompt = `You summarize meeting transcripts.
Produce a concise markdown summary with these sections:
## Overview, ## Key Points, ## Decisions, ## Action Items.
Leave a section out when the transcript has nothing for it.`

// Refiner rewrites transcripts and writes summaries with a chat model.
type Refiner struct {
	client *openai.Client
	model  string
}

func NewRefiner(apiKey, model string) *Refiner {
	return &Refiner{client: openai.NewClient(apiKey), model: model}
}

// NewRefinerWithClient allows pointing at a custom client, e.g. a test
// server or a compatible endpoint.
func NewRefinerWithClient(client *openai.Client, model string) *Refiner {
	return &Refiner{client: client, model: model}
}

// Model returns the chat model in use.
func (r *Refiner) Model() string {
	return r.model
}

// Refine corrects a transcript line by line. notes is optional operator
// context (attendee names, jargon, agenda) fed to the model alongside the
// transcript. The result keeps one line per transcript line.
func (r *Refiner) Refine(ctx context.Context, transcript, notes string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("refine: empty transcript")
	}

	var sb strings.Builder
	if strings.TrimSpace(notes) != "" {
		sb.WriteString("Context notes:\n")
		sb.WriteString(notes)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript)

	return r.complete(ctx, refineSystemPrompt, sb.String())
}

// Summarize produces a markdown summary of the transcript.
func (r *Refiner) Summarize(ctx context.Context, transcript, notes string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("summarize: empty transcript")
	}

	var sb strings.Builder
	if strings.TrimSpace(notes) != "" {
		sb.WriteString("Context notes:\n")
		sb.WriteString(notes)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript)

	return r.complete(ctx, summarySystemPrompt, sb.String())
}

func (r *Refiner) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return content, nil
}
