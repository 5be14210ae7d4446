package graph

import (
	"fmt"
	"sort"

	"github.com/contextfinder/contextfinder/internal/chunk"
)

// RelatedChunk is one halo chunk attached to a primary retrieval result,
// with the relationship path and distance that produced it.
type RelatedChunk struct {
	Chunk        *chunk.Chunk
	Relationship []Relationship
	Distance     int
	Relevance    float32
}

// AssembledContext is the result of walking the graph out from a primary
// chunk: the primary itself plus relevance-sorted related chunks.
type AssembledContext struct {
	Primary      *chunk.Chunk
	Related      []RelatedChunk
	TotalLines   int
}

// Assembler attaches graph-related chunks to retrieval primaries. It holds
// a read-only view of one graph plus a lookup from chunk id to the chunk
// payload (retrieval components never own the graph; the index coordinator
// does).
type Assembler struct {
	graph     *Graph
	chunkByID map[string]*chunk.Chunk
}

// NewAssembler builds an assembler over g, indexing chunks by id for O(1)
// payload lookup during related-chunk assembly.
func NewAssembler(g *Graph, chunks []*chunk.Chunk) *Assembler {
	byID := make(map[string]*chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return &Assembler{graph: g, chunkByID: byID}
}

// AssembleForSymbol finds symbolName's node and assembles context around
// it at the given strategy's depth.
func (a *Assembler) AssembleForSymbol(symbolName string, strategy Strategy) (*AssembledContext, error) {
	node, ok := a.graph.FindNode(symbolName)
	if !ok {
		return nil, fmt.Errorf("graph: symbol not found: %s", symbolName)
	}
	return a.assembleForNode(node, strategy)
}

// AssembleForChunk finds the first symbol defined in chunkID and assembles
// context around it. The primary in the returned context is always
// chunkID's own chunk, not necessarily the symbol's enclosing chunk (they
// are the same chunk by construction).
func (a *Assembler) AssembleForChunk(chunkID string, strategy Strategy) (*AssembledContext, error) {
	nodes := a.graph.FindNodesByChunk(chunkID)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("graph: no symbols for chunk: %s", chunkID)
	}
	return a.assembleForNode(nodes[0], strategy)
}

func (a *Assembler) assembleForNode(node NodeID, strategy Strategy) (*AssembledContext, error) {
	sym, ok := a.graph.Node(node)
	if !ok {
		return nil, fmt.Errorf("graph: node not found: %d", node)
	}
	primary, ok := a.chunkByID[sym.ChunkID]
	if !ok {
		return nil, fmt.Errorf("graph: missing chunk payload: %s", sym.ChunkID)
	}

	related := a.graph.GetRelated(node, strategy)
	out := make([]RelatedChunk, 0, len(related))
	seen := map[string]bool{primary.ID: true}
	for _, r := range related {
		c, ok := a.chunkByID[r.Symbol.ChunkID]
		if !ok || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, RelatedChunk{
			Chunk:        c,
			Relationship: r.Path,
			Distance:     r.Distance,
			Relevance:    r.Relevance,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })

	total := lineCount(primary)
	for _, rc := range out {
		total += lineCount(rc.Chunk)
	}

	return &AssembledContext{Primary: primary, Related: out, TotalLines: total}, nil
}

func lineCount(c *chunk.Chunk) int {
	if c == nil {
		return 0
	}
	return c.EndLine - c.StartLine + 1
}

// Graph exposes the underlying graph for stats/diagnostics (node_count,
// edge_count) without letting callers mutate it.
func (a *Assembler) Graph() *Graph { return a.graph }
