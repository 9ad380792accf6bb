package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

const geminiModel = "gemini-2.0-flash-lite-001"

// GeminiSummarizer runs the summarization prompt against Vertex AI Gemini
// with a JSON response schema, so the output always parses into Summary.
type GeminiSummarizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiSummarizer creates a Vertex AI-backed summarizer.
func NewGeminiSummarizer(ctx context.Context, projectID, location string) (*GeminiSummarizer, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := genai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("create Vertex AI client: %w", err)
	}

	model := client.GenerativeModel(geminiModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeString,
				Description: "A confident 3-4 sentence summary describing exactly what this project does, its main features, and purpose",
			},
			"tags": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "5-10 specific tags: languages, frameworks, libraries, and domain categories (AI, CLI, Web, API, etc.)",
			},
		},
		Required: []string{"summary", "tags"},
	}

	return &GeminiSummarizer{client: client, model: model}, nil
}

var _ Summarizer = (*GeminiSummarizer)(nil)

// Summarize sends one structured-output completion. Failures propagate to
// the caller; no partial summary is ever returned.
func (s *GeminiSummarizer) Summarize(ctx context.Context, req Request) (Summary, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", req.RepoName, err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Summary{}, fmt.Errorf("summarize %s: no response generated", req.RepoName)
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return Summary{}, fmt.Errorf("summarize %s: unexpected response part type", req.RepoName)
	}

	var summary Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return Summary{}, fmt.Errorf("summarize %s: decode structured output: %w", req.RepoName, err)
	}
	return summary, nil
}

// Close releases the Vertex AI client resources.
func (s *GeminiSummarizer) Close() error {
	return s.client.Close()
}
