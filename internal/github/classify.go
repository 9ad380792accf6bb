package github

import (
	"regexp"
	"strings"
)

// codeExtensions is the allow-list of file extensions that count as "code"
// for indexing. Everything else in a tree is ignored.
var codeExtensions = map[string]struct{}{
	".bash": {}, ".c": {}, ".cc": {}, ".cjs": {}, ".clj": {}, ".cljc": {},
	".cljs": {}, ".cpp": {}, ".cs": {}, ".cxx": {}, ".d": {}, ".el": {},
	".ex": {}, ".exs": {}, ".fs": {}, ".fsx": {}, ".go": {}, ".h": {},
	".hpp": {}, ".hs": {}, ".hxx": {}, ".java": {}, ".jl": {}, ".js": {},
	".json": {}, ".jsx": {}, ".kt": {}, ".kts": {}, ".lua": {}, ".mjs": {},
	".ml": {}, ".mli": {}, ".nim": {}, ".php": {}, ".py": {}, ".pyw": {},
	".r": {}, ".rb": {}, ".rs": {}, ".scala": {}, ".sh": {}, ".sql": {},
	".swift": {}, ".ts": {}, ".tsx": {}, ".v": {}, ".vim": {}, ".zig": {},
	".zsh": {},
}

// keyFilePatterns picks out the small curated set of files worth sending to
// the summarizer: READMEs, package manifests, common entrypoints.
var keyFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^readme\.md$`),
	regexp.MustCompile(`^package\.json$`),
	regexp.MustCompile(`^cargo\.toml$`),
	regexp.MustCompile(`^pyproject\.toml$`),
	regexp.MustCompile(`^go\.mod$`),
	regexp.MustCompile(`^src/index\.[tj]sx?$`),
	regexp.MustCompile(`^src/main\.[tj]sx?$`),
	regexp.MustCompile(`^src/app\.[tj]sx?$`),
	regexp.MustCompile(`^app/page\.[tj]sx?$`),
	regexp.MustCompile(`^app/layout\.[tj]sx?$`),
	regexp.MustCompile(`^lib/.*\.[tj]sx?$`),
	regexp.MustCompile(`^src/lib/.*\.[tj]sx?$`),
}

const (
	maxKeyFiles         = 5
	keyFileFallbackSize = 3
)

// IsCodeFile reports whether the path's extension is on the allow-list.
func IsCodeFile(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(path[idx:])
	_, ok := codeExtensions[ext]
	return ok
}

// IsKeyFile reports whether the path matches any key-file pattern.
func IsKeyFile(path string) bool {
	for _, pattern := range keyFilePatterns {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}

// ClassifyTree partitions a tree's blobs into code-file paths and key-file
// paths, preserving tree order. Key files are capped at maxKeyFiles; if no
// key file matched but code files exist, the first few code files stand in
// so the summarizer always has something to read.
func ClassifyTree(tree Tree) (codePaths, keyPaths []string) {
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		if IsCodeFile(entry.Path) {
			codePaths = append(codePaths, entry.Path)
		}
		if IsKeyFile(entry.Path) && len(keyPaths) < maxKeyFiles {
			keyPaths = append(keyPaths, entry.Path)
		}
	}

	if len(keyPaths) == 0 && len(codePaths) > 0 {
		n := keyFileFallbackSize
		if len(codePaths) < n {
			n = len(codePaths)
		}
		keyPaths = append(keyPaths, codePaths[:n]...)
	}

	return codePaths, keyPaths
}
