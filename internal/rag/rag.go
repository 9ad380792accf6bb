// Package rag is the retrieval layer behind the portfolio chatbot: it
// resolves a project, embeds the user's query, pulls the closest code
// files out of the vector store, and formats everything for the LLM.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexus-site/indexer/internal/embeddings"
	"github.com/nexus-site/indexer/internal/logger"
	"github.com/nexus-site/indexer/internal/store"
	"github.com/nexus-site/indexer/internal/vectors"
)

// searchLimit caps how many code snippets one project lookup returns.
const searchLimit = 5

// ProjectSummary is the compact per-project line used to build the chat
// system prompt.
type ProjectSummary struct {
	ID          int64
	Name        string
	Description string
	IsOwner     bool
	Tags        []string
}

// CodeSnippet is a matched code file annotated with its project's name.
type CodeSnippet struct {
	store.CodeFile
	ProjectName string
}

// ProjectDetails bundles a project row with its best-matching snippets.
type ProjectDetails struct {
	Project      store.Project
	CodeSnippets []CodeSnippet
}

// Service answers the chat tool's queries from the store and vector store
// the pipeline populated.
type Service struct {
	store    store.Store
	vectors  vectors.Store
	provider embeddings.Provider
	username string
	log      *logger.Logger
}

// NewService wires the query layer. username is the portfolio owner's
// GitHub login, used for the ownership phrasing in formatted output.
func NewService(st store.Store, vec vectors.Store, provider embeddings.Provider, username string, log *logger.Logger) *Service {
	return &Service{
		store:    st,
		vectors:  vec,
		provider: provider,
		username: username,
		log:      log.With("service", "RAGService"),
	}
}

// GetAllProjectSummaries returns every known project in compact form.
func (s *Service) GetAllProjectSummaries(ctx context.Context) ([]ProjectSummary, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		summary := ProjectSummary{
			ID:      p.ID,
			Name:    p.FullName,
			IsOwner: p.IsOwner,
			Tags:    p.AITags,
		}
		if p.AISummary != nil {
			summary.Description = *p.AISummary
		}
		summaries[i] = summary
	}
	return summaries, nil
}

// GetLatestIndexedTime returns when any project was last indexed, or nil
// if nothing has been indexed. Surfaced to users as "data last updated".
func (s *Service) GetLatestIndexedTime(ctx context.Context) (*time.Time, error) {
	return s.store.LatestIndexedAt(ctx)
}

// GetProjectDetails resolves the project by exact full name, embeds the
// query, and returns the project with its closest code files. A nil result
// with nil error means "not found": a normal negative the chat tool must
// relay, never fabricate around.
func (s *Service) GetProjectDetails(ctx context.Context, projectName, query string) (*ProjectDetails, error) {
	project, err := s.store.GetProjectByFullName(ctx, projectName)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}

	queryVector, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	projectID := project.ID
	matches, err := s.vectors.SearchCodeFiles(ctx, queryVector, searchLimit, &projectID)
	if err != nil {
		return nil, err
	}

	details := &ProjectDetails{Project: *project}
	if len(matches) == 0 {
		return details, nil
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	files, err := s.store.GetCodeFilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	details.CodeSnippets = make([]CodeSnippet, len(files))
	for i, f := range files {
		details.CodeSnippets[i] = CodeSnippet{CodeFile: f, ProjectName: project.FullName}
	}
	return details, nil
}

// FormatProjectDetails renders project details into the tool-result string
// the chat LLM consumes. The ```language|url fence convention is a wire
// format shared with the chat UI's markdown renderer; do not change it.
func (s *Service) FormatProjectDetails(details *ProjectDetails) string {
	project := details.Project

	ownership := fmt.Sprintf("%s owns this project", s.username)
	if !project.IsOwner {
		owner := "unknown"
		if project.OwnerLogin != nil {
			owner = *project.OwnerLogin
		}
		ownership = fmt.Sprintf("%s contributed to this project (owned by %s)", s.username, owner)
	}

	forkNote := ""
	if project.IsFork {
		forkNote = " (Fork)"
	}

	summary := "No summary"
	if project.AISummary != nil {
		summary = *project.AISummary
	}
	tags := "None"
	if len(project.AITags) > 0 {
		tags = strings.Join(project.AITags, ", ")
	}
	commits := "Unknown"
	if project.CommitCount != nil {
		commits = fmt.Sprintf("%d", *project.CommitCount)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s%s\n", project.FullName, forkNote)
	fmt.Fprintf(&sb, "- %s\n", ownership)
	fmt.Fprintf(&sb, "- Summary: %s\n", summary)
	fmt.Fprintf(&sb, "- Tags: %s\n", tags)
	fmt.Fprintf(&sb, "- Stars: %d | Commits: %s\n", project.StargazersCount, commits)
	fmt.Fprintf(&sb, "- Link: %s\n", project.HTMLURL)

	if len(details.CodeSnippets) > 0 {
		sb.WriteString("\n\n=== CODE SNIPPETS (COPY THESE EXACTLY IN YOUR RESPONSE) ===\n")
		for _, snippet := range details.CodeSnippets {
			fmt.Fprintf(&sb, "\n%s:\n", snippet.Path)
			fmt.Fprintf(&sb, "```%s|%s/blob/main/%s\n", snippet.Language, project.HTMLURL, snippet.Path)
			sb.WriteString(snippet.Content)
			sb.WriteString("\n```\n")
		}
	}

	sb.WriteString("\nREMINDER: Copy the code blocks above EXACTLY (including the language|URL format) for \"how\" or implementation questions.")
	return sb.String()
}

// BuildSystemPrompt renders every project summary into the chatbot's
// system prompt.
func (s *Service) BuildSystemPrompt(summaries []ProjectSummary) string {
	var owned, contributed int
	lines := make([]string, len(summaries))
	for i, summary := range summaries {
		if summary.IsOwner {
			owned++
		} else {
			contributed++
		}
		description := summary.Description
		if description == "" {
			description = "No description"
		}
		line := fmt.Sprintf("- %s: %s", summary.Name, description)
		if len(summary.Tags) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(summary.Tags, ", "))
		}
		lines[i] = line
	}

	var sb strings.Builder
	sb.WriteString(`REQUIRED BEHAVIOR - STRICTLY FOLLOW THESE RULES:
1. You MUST always respond in English.
2. When answering "how" or "implementation" questions, you MUST include code blocks from tool results.
3. When showing code, you MUST use the exact format from tool results: ` + "```language|URL (e.g., ```go|https://github.com/...)" + `
4. You MUST NEVER invent or hallucinate code - only show code returned by the tool.
5. If the tool returns "Not found", you MUST say so - do NOT fabricate code.
6. You MUST use the project-details tool for any question about a specific project.
7. You MUST ALWAYS use the FULL project name format "owner/repo". The tool will return "Not found" if you omit the owner prefix.
8. You MUST match typos to the closest project name.
9. When mentioning an exact project name, ALWAYS link it: [project-name](https://github.com/owner/repo).

`)
	fmt.Fprintf(&sb, "You are a portfolio assistant for %s. %s owns %d projects and contributed to %d others.\n\nProjects:\n%s",
		s.username, s.username, owned, contributed, strings.Join(lines, "\n"))
	return sb.String()
}
