package reasoning

import (
	"context"
	"fmt"
	"strings"

	"tabula/internal/embedding"
	"tabula/internal/factstore"
	"tabula/pkg/logger"
)

// searchResultLimit is how many facts a single tool search returns.
const searchResultLimit = 3

// Tool is an action the reasoning loop can take to gather information.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, userID, input string) (string, error)
}

// Registry holds the available tools. Lookup never fails: an unknown tool
// name resolves to the default search tool, because a model that misremembers
// a tool name almost always wants to search.
type Registry struct {
	tools       map[string]Tool
	defaultTool Tool
	log         *logger.Logger
}

// NewRegistry creates a Registry with the given default tool.
func NewRegistry(defaultTool Tool, log *logger.Logger) *Registry {
	r := &Registry{
		tools:       make(map[string]Tool),
		defaultTool: defaultTool,
		log:         log,
	}
	r.Register(defaultTool)
	return r
}

// Register adds a tool under its name.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get resolves a tool name, falling back to the default tool.
func (r *Registry) Get(name string) Tool {
	if tool, ok := r.tools[strings.ToLower(strings.TrimSpace(name))]; ok {
		return tool
	}
	if name != "" {
		r.log.WithPayload(map[string]interface{}{"tool_name": name}).
			Warn("unknown tool requested, falling back to semantic search")
	}
	return r.defaultTool
}

// SearchTool looks up stored facts by semantic similarity.
type SearchTool struct {
	embedder embedding.Embedding
	store    factstore.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(embedder embedding.Embedding, store factstore.Store) *SearchTool {
	return &SearchTool{embedder: embedder, store: store}
}

func (t *SearchTool) Name() string { return "semantic_search" }

func (t *SearchTool) Description() string {
	return "Search the user's stored knowledge for facts relevant to a query."
}

// Run embeds the input and returns the most similar relevant facts as a
// newline list, or a note that nothing was found.
func (t *SearchTool) Run(ctx context.Context, userID, input string) (string, error) {
	vector, err := t.embedder.Embed(ctx, input)
	if err != nil {
		return "", fmt.Errorf("embed search input: %w", err)
	}

	items, err := t.store.Search(ctx, userID, vector, searchResultLimit)
	if err != nil {
		return "", fmt.Errorf("search facts: %w", err)
	}
	if len(items) == 0 {
		return "No stored knowledge matched the query.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d facts:\n", len(items)))
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item.Record.Fact)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

var _ Tool = (*SearchTool)(nil)
