// Package openai implements the excerpt-generation port on the OpenAI chat
// completions API. Any OpenAI-compatible endpoint works via the base URL
// override (OpenRouter in practice).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/types"
)

type Adapter struct {
	client oai.Client
	model  string
}

func New(apiKey, model, baseURL string) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if u := normalizeBaseURL(baseURL); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}
	return &Adapter{client: oai.NewClient(opts...), model: model}
}

func (a *Adapter) Propose(ctx context.Context, readableTranscript string, cfg ports.PromptConfig) ([]types.ExcerptCandidate, error) {
	prompt := buildProposePrompt(readableTranscript, cfg)
	out, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(out.Clips) == 0 {
		return nil, errors.New("openai: generation returned no clips")
	}
	return out.Clips, nil
}

func (a *Adapter) Revise(ctx context.Context, readableTranscript string, req ports.ReviseRequest) (types.ExcerptCandidate, error) {
	prompt := buildRevisePrompt(readableTranscript, req)
	out, err := a.complete(ctx, prompt)
	if err != nil {
		return types.ExcerptCandidate{}, err
	}
	if len(out.Clips) == 0 {
		return types.ExcerptCandidate{}, errors.New("openai: revision returned no clip")
	}
	return out.Clips[0], nil
}

type clipResponse struct {
	Clips []types.ExcerptCandidate `json:"clips"`
}

func (a *Adapter) complete(ctx context.Context, prompt string) (clipResponse, error) {
	resp, err := a.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "clip_proposals",
					Strict: oai.Bool(true),
					Schema: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"clips": map[string]any{
								"type": "array",
								"items": map[string]any{
									"type": "object",
									"properties": map[string]any{
										"tweet_text": map[string]any{"type": "string"},
										"transcript": map[string]any{"type": "string"},
									},
									"required":             []string{"tweet_text", "transcript"},
									"additionalProperties": false,
								},
							},
						},
						"required":             []string{"clips"},
						"additionalProperties": false,
					},
				},
			},
		},
	})
	if err != nil {
		return clipResponse{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return clipResponse{}, errors.New("openai: empty choices")
	}

	clean, err := extractJSONObject(resp.Choices[0].Message.Content)
	if err != nil {
		return clipResponse{}, err
	}
	var out clipResponse
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return clipResponse{}, fmt.Errorf("openai: decode clips: %w", err)
	}
	for i := range out.Clips {
		out.Clips[i].TweetText = strings.TrimSpace(out.Clips[i].TweetText)
		out.Clips[i].ExactTranscript = strings.TrimSpace(out.Clips[i].ExactTranscript)
	}
	return out, nil
}

func buildProposePrompt(readableTranscript string, cfg ports.PromptConfig) string {
	var b strings.Builder
	b.WriteString("You are writing promotional tweets for a long-form interview podcast, ")
	b.WriteString("following the example tweets below. A great tweet frames a specific ")
	b.WriteString("question, motivation, or hook that the clip then pays off.\n\n")
	fmt.Fprintf(&b, "Identify the %d most compelling segments to make clips of. ", cfg.TargetClips)
	b.WriteString("For each, give the tweet text and the segment's full transcript verbatim, ")
	b.WriteString("copied exactly from the transcript provided. ")
	b.WriteString("Return strictly valid JSON matching the provided schema.\n")
	for i, ex := range cfg.ExampleTweets {
		fmt.Fprintf(&b, "\nExample Tweet %d:\n%s\n", i+1, ex)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(readableTranscript)
	return b.String()
}

func buildRevisePrompt(readableTranscript string, req ports.ReviseRequest) string {
	var b strings.Builder
	b.WriteString("You previously proposed a podcast clip. The reviewer has feedback; ")
	b.WriteString("produce one revised clip: a new tweet text and the revised segment ")
	b.WriteString("transcript, copied verbatim from the full transcript provided. ")
	b.WriteString("Return strictly valid JSON matching the provided schema with exactly one clip.\n")
	fmt.Fprintf(&b, "\nCurrent tweet:\n%s\n", req.TweetText)
	b.WriteString("\nCurrent clip transcript segments:\n")
	for i, seg := range req.SegmentTranscripts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, seg)
	}
	fmt.Fprintf(&b, "\nReviewer feedback:\n%s\n", req.Feedback)
	b.WriteString("\nFull transcript:\n")
	b.WriteString(readableTranscript)
	return b.String()
}

// extractJSONObject tolerates models that wrap JSON in code fences or prose.
func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openai: empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openai: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
