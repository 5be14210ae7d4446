package graph

import (
	"regexp"
	"strings"

	"github.com/contextfinder/contextfinder/internal/chunk"
)

// Graph is a directed multigraph of symbol nodes and typed, weighted
// edges between them. Node payloads are stored in a flat arena (nodes
// slice) and referenced everywhere else by NodeID, never by pointer, so
// the whole structure serializes as parallel arrays.
type Graph struct {
	Language string

	nodes []Symbol
	edges []Edge

	byName    map[string][]NodeID
	byChunk   map[string][]NodeID
	edgeIndex map[edgeKey]int // edgeKey -> index into edges, for overwrite-on-rebuild
	adjacency map[NodeID][]int // node -> indices into edges (outgoing)
}

// NewGraph returns an empty graph ready for incremental construction.
func NewGraph(language string) *Graph {
	return &Graph{
		Language:  language,
		byName:    make(map[string][]NodeID),
		byChunk:   make(map[string][]NodeID),
		edgeIndex: make(map[edgeKey]int),
		adjacency: make(map[NodeID][]int),
	}
}

// addNode appends a symbol to the arena and indexes it by name and chunk.
func (g *Graph) addNode(sym Symbol) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, sym)
	g.byName[sym.Name] = append(g.byName[sym.Name], id)
	if sym.QualifiedName != "" && sym.QualifiedName != sym.Name {
		g.byName[sym.QualifiedName] = append(g.byName[sym.QualifiedName], id)
	}
	g.byChunk[sym.ChunkID] = append(g.byChunk[sym.ChunkID], id)
	return id
}

// AddEdge inserts or overwrites the edge for (from, to, rel) — at most one
// edge survives per tuple, and a later AddEdge call with the same tuple
// overwrites the weight in place rather than appending a duplicate.
func (g *Graph) AddEdge(from, to NodeID, rel Relationship, weight float32) {
	key := edgeKey{From: from, To: to, Rel: rel}
	if idx, ok := g.edgeIndex[key]; ok {
		g.edges[idx].Weight = weight
		return
	}
	idx := len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Relationship: rel, Weight: weight})
	g.edgeIndex[key] = idx
	g.adjacency[from] = append(g.adjacency[from], idx)
}

// NodeCount returns the number of symbol nodes in the arena.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct (from, to, relationship) edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the symbol payload for id.
func (g *Graph) Node(id NodeID) (Symbol, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return Symbol{}, false
	}
	return g.nodes[id], true
}

// FindNode returns the first node id defined for symbolName, preferring an
// exact qualified-name match when one exists.
func (g *Graph) FindNode(symbolName string) (NodeID, bool) {
	ids, ok := g.byName[symbolName]
	if !ok || len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// FindNodesByChunk returns every node defined in chunkID.
func (g *Graph) FindNodesByChunk(chunkID string) []NodeID {
	return append([]NodeID(nil), g.byChunk[chunkID]...)
}

// GetRelated performs a bounded BFS from node out to strategy's depth,
// returning every reachable node with its distance and the relationship
// path taken to reach it (first path found, since BFS visits in
// non-decreasing distance order).
func (g *Graph) GetRelated(node NodeID, strategy Strategy) []Related {
	return g.getRelatedDepth(node, strategy.Depth())
}

// GetRelatedDepth is the Custom(d) escape hatch from the strategy enum.
func (g *Graph) GetRelatedDepth(node NodeID, depth int) []Related {
	return g.getRelatedDepth(node, depth)
}

type bfsState struct {
	node NodeID
	path []Relationship
}

func (g *Graph) getRelatedDepth(start NodeID, maxDepth int) []Related {
	if maxDepth < 1 {
		maxDepth = 1
	}
	visited := map[NodeID]bool{start: true}
	queue := []bfsState{{node: start, path: nil}}
	var out []Related

	for depth := 1; depth <= maxDepth && len(queue) > 0; depth++ {
		var next []bfsState
		for _, cur := range queue {
			for _, edgeIdx := range g.adjacency[cur.node] {
				e := g.edges[edgeIdx]
				if visited[e.To] {
					continue
				}
				visited[e.To] = true
				path := append(append([]Relationship(nil), cur.path...), e.Relationship)
				sym, _ := g.Node(e.To)
				out = append(out, Related{
					Node:      e.To,
					Symbol:    sym,
					Distance:  depth,
					Path:      path,
					Relevance: relevance(depth, path),
				})
				next = append(next, bfsState{node: e.To, path: path})
			}
		}
		queue = next
	}
	return out
}

// relevance computes score = (1 / (distance+1)) * avg_edge_weight(path).
func relevance(distance int, path []Relationship) float32 {
	if len(path) == 0 {
		return 0
	}
	var sum float32
	for _, rel := range path {
		sum += relationshipWeight(rel)
	}
	avg := sum / float32(len(path))
	return (1.0 / float32(distance+1)) * avg
}

// identRe matches word-like identifiers for the naive call/use scanner.
var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Build derives a symbol graph from a chunk set: one node per chunk
// symbol, plus Contains edges from a chunk's primary symbol to its
// nested symbols, Imports edges from each chunk's module scope to the
// chunks that satisfy its import paths, Calls/Uses edges from a naive
// identifier scan of chunk content against known symbol names, Extends
// edges from inheritance keywords in a symbol's signature, and TestedBy
// edges from test-named chunks back to the symbol they exercise.
func Build(language string, chunks []*chunk.Chunk) *Graph {
	g := NewGraph(language)

	// Pass 1: create nodes for every symbol, and an implicit module node
	// per chunk so import/contains edges have somewhere to land even for
	// chunks with no extracted symbols.
	moduleNode := make(map[string]NodeID, len(chunks))
	for _, c := range chunks {
		mod := g.addNode(Symbol{Kind: SymbolModule, Name: moduleName(c.FilePath), ChunkID: c.ID})
		moduleNode[c.ID] = mod
		for _, sym := range c.Symbols {
			g.addNode(Symbol{
				Kind:    symbolKind(sym.Type),
				Name:    sym.Name,
				ChunkID: c.ID,
			})
		}
	}

	// Pass 2: Contains — a chunk's module node contains every symbol
	// defined in that chunk.
	for _, c := range chunks {
		mod := moduleNode[c.ID]
		for _, id := range g.byChunk[c.ID] {
			if id == mod {
				continue
			}
			g.AddEdge(mod, id, RelContains, relationshipWeight(RelContains))
		}
	}

	// Pass 3: Imports — a chunk's module node imports the module node of
	// any other chunk whose file is named by one of its import lines.
	for _, c := range chunks {
		from := moduleNode[c.ID]
		for _, line := range importLines(c.Context) {
			for _, other := range chunks {
				if other.ID == c.ID {
					continue
				}
				if importMatchesFile(line, other.FilePath) {
					g.AddEdge(from, moduleNode[other.ID], RelImports, relationshipWeight(RelImports))
				}
			}
		}
	}

	// Pass 4: Extends — a class/struct/interface symbol whose signature
	// names a base type links to that base type's node.
	for _, c := range chunks {
		for _, sym := range c.Symbols {
			base := baseTypeName(sym.Signature)
			if base == "" {
				continue
			}
			from, ok := g.FindNode(sym.Name)
			if !ok {
				continue
			}
			to, ok := g.FindNode(base)
			if !ok || to == from {
				continue
			}
			g.AddEdge(from, to, RelExtends, relationshipWeight(RelExtends))
		}
	}

	// Pass 5: TestedBy — a symbol named TestXxx/xxx_test links back to Xxx.
	for _, c := range chunks {
		for _, sym := range c.Symbols {
			target := testedSymbolName(sym.Name)
			if target == "" {
				continue
			}
			from, ok := g.FindNode(sym.Name)
			if !ok {
				continue
			}
			to, ok := g.FindNode(target)
			if !ok || to == from {
				continue
			}
			g.AddEdge(to, from, RelTestedBy, relationshipWeight(RelTestedBy))
		}
	}

	// Pass 6: Calls/Uses — naive identifier scan. Any known symbol name
	// mentioned in another symbol's chunk content becomes a Calls edge if
	// the mention looks like a call (`name(`), else a Uses edge.
	for _, c := range chunks {
		enclosing := g.byChunk[c.ID]
		if len(enclosing) == 0 {
			continue
		}
		content := c.RawContent
		if content == "" {
			content = c.Content
		}
		mentions := identRe.FindAllStringIndex(content, -1)
		for _, from := range enclosing {
			fromSym := g.nodes[from]
			if fromSym.Kind == SymbolModule {
				continue
			}
			for _, span := range mentions {
				name := content[span[0]:span[1]]
				if name == fromSym.Name {
					continue
				}
				to, ok := g.FindNode(name)
				if !ok || to == from {
					continue
				}
				rel := RelUses
				if span[1] < len(content) && content[span[1]] == '(' {
					rel = RelCalls
				}
				g.AddEdge(from, to, rel, relationshipWeight(rel))
			}
		}
	}

	return g
}

func symbolKind(t chunk.SymbolType) SymbolKind {
	switch t {
	case chunk.SymbolTypeFunction:
		return SymbolFunction
	case chunk.SymbolTypeMethod:
		return SymbolMethod
	case chunk.SymbolTypeClass:
		return SymbolClass
	case chunk.SymbolTypeInterface:
		return SymbolTrait
	case chunk.SymbolTypeType:
		return SymbolStruct
	case chunk.SymbolTypeVariable:
		return SymbolVariable
	case chunk.SymbolTypeConstant:
		return SymbolConstant
	default:
		return SymbolOther
	}
}

func moduleName(filePath string) string {
	return "module:" + filePath
}

func importLines(context string) []string {
	var out []string
	for _, line := range strings.Split(context, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "import") || strings.HasPrefix(line, "from ") || strings.HasPrefix(line, "use ") || strings.HasPrefix(line, "#include") {
			out = append(out, line)
		}
	}
	return out
}

func importMatchesFile(importLine, filePath string) bool {
	base := strings.TrimSuffix(baseName(filePath), extOf(filePath))
	if base == "" {
		return false
	}
	return strings.Contains(importLine, base)
}

func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func extOf(path string) string {
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		return path[idx:]
	}
	return ""
}

var baseTypeRe = regexp.MustCompile(`(?:extends|implements|:)\s+([A-Za-z_][A-Za-z0-9_]*)`)

func baseTypeName(signature string) string {
	m := baseTypeRe.FindStringSubmatch(signature)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func testedSymbolName(name string) string {
	if strings.HasPrefix(name, "Test") && len(name) > 4 {
		return name[4:]
	}
	if strings.HasSuffix(name, "_test") {
		return strings.TrimSuffix(name, "_test")
	}
	return ""
}
