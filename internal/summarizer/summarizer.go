// Package summarizer produces a structured (summary, tags) result for a
// repository from its metadata and a curated set of key files.
package summarizer

import (
	"context"
	"fmt"
	"strings"
)

const (
	// Prompt-size bounds: only the first maxPromptFilePaths paths are
	// listed, and each key file's content is cut at maxKeyFileChars.
	maxPromptFilePaths = 100
	maxKeyFileChars    = 3000
)

// KeyFile is one curated file sent to the model with its content.
type KeyFile struct {
	Path    string
	Content string
}

// Request carries everything the summarizer needs about one repository.
type Request struct {
	RepoName    string
	Description string
	Language    string
	Topics      []string
	FilePaths   []string
	KeyFiles    []KeyFile
}

// Summary is the structured model output.
type Summary struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Summarizer is implemented by the Gemini client and by test fakes.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Summary, error)
}

// buildPrompt renders the request into the analysis prompt. The wording
// pushes the model toward definitive, non-hedged summaries.
func buildPrompt(req Request) string {
	description := req.Description
	if description == "" {
		description = "No description"
	}
	language := req.Language
	if language == "" {
		language = "Unknown"
	}
	topics := "None"
	if len(req.Topics) > 0 {
		topics = strings.Join(req.Topics, ", ")
	}

	var sb strings.Builder
	sb.WriteString("Analyze this GitHub repository and provide a definitive summary and tags. Be specific and confident - you have access to the actual source code.\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n", req.RepoName)
	fmt.Fprintf(&sb, "Description: %s\n", description)
	fmt.Fprintf(&sb, "Primary Language: %s\n", language)
	fmt.Fprintf(&sb, "GitHub Topics: %s\n\n", topics)

	sb.WriteString("File structure:\n")
	paths := req.FilePaths
	if len(paths) > maxPromptFilePaths {
		paths = paths[:maxPromptFilePaths]
	}
	sb.WriteString(strings.Join(paths, "\n"))
	if remaining := len(req.FilePaths) - maxPromptFilePaths; remaining > 0 {
		fmt.Fprintf(&sb, "\n... and %d more files", remaining)
	}
	sb.WriteString("\n")

	if len(req.KeyFiles) > 0 {
		sb.WriteString("\nKey source files:\n")
		for _, f := range req.KeyFiles {
			content := f.Content
			truncated := false
			if len(content) > maxKeyFileChars {
				content = content[:maxKeyFileChars]
				truncated = true
			}
			fmt.Fprintf(&sb, "--- %s ---\n%s", f.Path, content)
			if truncated {
				sb.WriteString("\n... truncated")
			}
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString(`Based on the actual code above, provide:
1. A confident, specific 3-4 sentence summary of what this project IS and DOES. Don't hedge with "appears to be" - state what it is definitively based on the code.
2. 5-10 specific tags including: programming languages used, frameworks/libraries (Next.js, React, GORM, etc.), and domain categories (Web, API, Database, AI, etc.)`)

	return sb.String()
}
