// Package tagger turns a journal transcript into a title, tags, and
// summary via an LLM, with deterministic fallbacks when the transcript
// is empty or the model misbehaves.
package tagger

import (
	"context"
	"fmt"
	"strings"
)

const (
	maxTranscriptChars = 8000
	maxTitleChars      = 50
	maxSummaryChars    = 500
	maxTags            = 3
)

const promptTemplate = `You are analyzing a personal video journal transcript.
Based on the vibe, emotions, and content of this entry, generate:

1. A short title (1-5 words) that captures the essence/mood of the entry
2. Exactly 3 relevant tags that describe the themes, emotions, or topics
3. A brief summary (1-3 sentences) of what this journal entry is about

The title should feel personal and capture the "vibe" - not just summarize the content.
Tags should be lowercase, single words or short phrases.
The summary should be concise and capture the key points/mood of the entry.
%s
Transcript:
%s

Respond ONLY with valid JSON in this exact format:
{"title": "Your Title Here", "tags": ["tag1", "tag2", "tag3"], "summary": "Brief summary here."}`

// Result holds the generated metadata for a journal entry.
type Result struct {
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// FallbackResult is used for empty transcripts and as the safe default
// when generation fails entirely.
func FallbackResult() Result {
	return Result{Title: "Untitled Entry", Tags: []string{"unprocessed"}, Summary: ""}
}

func errorResult() Result {
	return Result{Title: "Processing Error", Tags: []string{"error"}, Summary: ""}
}

// BuildPrompt renders the tagging prompt for a transcript. The transcript
// is capped so oversized entries do not blow the model's context.
func BuildPrompt(transcript string, existingTags []string) string {
	instruction := ""
	if len(existingTags) > 0 {
		instruction = fmt.Sprintf(
			"\nIMPORTANT: Prefer using tags from this existing list when relevant: [%s]\nOnly create new tags if none of the existing ones fit the content well.\n",
			strings.Join(existingTags, ", "))
	}
	runes := []rune(transcript)
	if len(runes) > maxTranscriptChars {
		transcript = string(runes[:maxTranscriptChars])
	}
	return fmt.Sprintf(promptTemplate, instruction, transcript)
}

// Generate asks the LLM for metadata and sanitizes the response. An empty
// transcript short-circuits to the fallback without calling the model.
// Model or parse failures degrade to the error result instead of failing
// the caller.
func (c *Client) Generate(ctx context.Context, transcript string, existingTags []string) (Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return FallbackResult(), nil
	}

	content, err := c.CompleteJSON(ctx, BuildPrompt(transcript, existingTags))
	if err != nil {
		return errorResult(), err
	}
	var parsed Result
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return errorResult(), fmt.Errorf("tagger: parse payload: %w", err)
	}
	return sanitize(parsed), nil
}

// GenerateSafe never returns an error. Generation failures produce the
// fallback metadata so the pipeline can finish the entry regardless.
func (c *Client) GenerateSafe(ctx context.Context, transcript string, existingTags []string) Result {
	result, _ := c.Generate(ctx, transcript, existingTags)
	return result
}

func sanitize(result Result) Result {
	tags := make([]string, 0, maxTags)
	for _, tag := range result.Tags {
		cleaned := strings.ToLower(strings.TrimSpace(tag))
		if cleaned == "" {
			continue
		}
		tags = append(tags, cleaned)
		if len(tags) == maxTags {
			break
		}
	}
	result.Tags = tags

	title := strings.TrimSpace(result.Title)
	if title == "" || len([]rune(title)) > maxTitleChars {
		title = "Untitled Entry"
	}
	result.Title = title

	summary := strings.TrimSpace(result.Summary)
	if runes := []rune(summary); len(runes) > maxSummaryChars {
		summary = string(runes[:maxSummaryChars]) + "..."
	}
	result.Summary = summary

	return result
}
