package flow

import (
	"context"
	"strings"
)

// SearchResult is only trusted when Found is set and SourceURL is present.
type SearchResult struct {
	Found          bool    `json:"found"`
	Content        string  `json:"content,omitempty"`
	Source         string  `json:"source,omitempty"`
	SourceURL      string  `json:"sourceUrl,omitempty"`
	RelevanceScore float64 `json:"relevanceScore,omitempty"`
}

// Usable reports whether the result may be shown with attribution.
func (r SearchResult) Usable() bool {
	return r.Found && strings.TrimSpace(r.SourceURL) != "" && strings.TrimSpace(r.Content) != ""
}

type ContentSearch interface {
	Search(ctx context.Context, query string, conversationHint string) (SearchResult, error)
}

type Completion interface {
	Generate(ctx context.Context, systemPrompt string, userMessage string) (string, error)
}

// CompletionFunc adapts a plain function to Completion.
type CompletionFunc func(ctx context.Context, systemPrompt string, userMessage string) (string, error)

func (f CompletionFunc) Generate(ctx context.Context, systemPrompt string, userMessage string) (string, error) {
	return f(ctx, systemPrompt, userMessage)
}
