package router

import (
	"context"
	"fmt"

	gochunk "github.com/contextfinder/contextfinder/internal/chunk"
	"github.com/contextfinder/contextfinder/internal/graph"
	"github.com/contextfinder/contextfinder/internal/search"
)

const maxQuerySnippets = 5

// QueryIntentHandler implements the §4.10 query sub-mode: run the hybrid
// retriever, then expand the top hit through the symbol graph (when one is
// available for the query's language) to produce up to 5 snippets grouped
// primary-then-related.
type QueryIntentHandler struct {
	Engine   search.SearchEngine
	Graphs   func(language string) *graph.Assembler // optional, by language
	Strategy graph.Strategy
}

func (h *QueryIntentHandler) Handle(ctx context.Context, _ string, req Request) (Response, error) {
	limit := req.MaxLines
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	results, err := h.Engine.Search(ctx, req.Query, search.SearchOptions{Limit: limit})
	if err != nil {
		return Response{}, fmt.Errorf("query: %w", err)
	}
	if len(results) == 0 {
		return Response{Sections: nil}, nil
	}

	var sections []Section
	top := results[0]
	sections = append(sections, Section{
		Kind:       SectionSnippet,
		Title:      fmt.Sprintf("%s:%d-%d", top.Chunk.FilePath, top.Chunk.StartLine, top.Chunk.EndLine),
		Path:       top.Chunk.FilePath,
		Content:    top.Chunk.Content,
		ReasonTags: []string{"needle:primary"},
	})

	if h.Graphs != nil {
		if assembler := h.Graphs(top.Chunk.Language); assembler != nil {
			canonicalID := gochunk.CanonicalID(top.Chunk.FilePath, top.Chunk.StartLine, top.Chunk.EndLine)
			if assembled, err := assembler.AssembleForChunk(canonicalID, h.Strategy); err == nil {
				for _, rel := range assembled.Related {
					if len(sections) >= maxQuerySnippets {
						break
					}
					sections = append(sections, Section{
						Kind:       SectionSnippet,
						Title:      fmt.Sprintf("%s:%d-%d", rel.Chunk.FilePath, rel.Chunk.StartLine, rel.Chunk.EndLine),
						Path:       rel.Chunk.FilePath,
						Content:    rel.Chunk.Content,
						ReasonTags: []string{"halo:related"},
					})
				}
			}
		}
	}

	for _, r := range results[1:] {
		if len(sections) >= maxQuerySnippets {
			break
		}
		sections = append(sections, Section{
			Kind:       SectionSnippet,
			Title:      fmt.Sprintf("%s:%d-%d", r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine),
			Path:       r.Chunk.FilePath,
			Content:    r.Chunk.Content,
			ReasonTags: []string{"anchor:ranked"},
		})
	}

	sections = DedupSnippets(sections)
	return Response{Sections: sections}, nil
}

var _ IntentHandler = (*QueryIntentHandler)(nil)
