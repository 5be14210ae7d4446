package graph

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// cachedNode and cachedEdge are the on-disk parallel-array representation:
// no pointers, no owning references — indices only, matching the in-memory
// flat arena.
type cachedNode struct {
	Kind          SymbolKind
	Name          string
	QualifiedName string
	ChunkID       string
}

type cachedEdge struct {
	From         int32
	To           int32
	Relationship Relationship
	Weight       float32
}

// cacheFile is the gob-encoded graph cache payload, keyed by the caller's
// (language, watermark) cache key so a loader can detect staleness before
// even opening the file.
type cacheFile struct {
	Key      string
	Language string
	Nodes    []cachedNode
	Edges    []cachedEdge
}

// Save persists the graph to path, gob-encoded, tagged with key (callers
// derive key from language + the current index watermark).
func (g *Graph) Save(path, key string) error {
	cf := cacheFile{Key: key, Language: g.Language}
	cf.Nodes = make([]cachedNode, len(g.nodes))
	for i, n := range g.nodes {
		cf.Nodes[i] = cachedNode{Kind: n.Kind, Name: n.Name, QualifiedName: n.QualifiedName, ChunkID: n.ChunkID}
	}
	cf.Edges = make([]cachedEdge, len(g.edges))
	for i, e := range g.edges {
		cf.Edges[i] = cachedEdge{From: int32(e.From), To: int32(e.To), Relationship: e.Relationship, Weight: e.Weight}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("graph: mkdir cache dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("graph: create cache: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(cf); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("graph: encode cache: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("graph: flush cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("graph: close cache: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load rehydrates a graph from path iff its stored key matches the
// caller's expected key. A mismatch (language or watermark changed) and
// any chunk id in validChunkIDs no longer present forces cache invalidation
// (ok=false), per the "no silent mismatches" rule for graph cache
// consistency.
func Load(path, expectKey string, validChunkIDs map[string]bool) (g *Graph, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("graph: open cache: %w", err)
	}
	defer f.Close()

	var cf cacheFile
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&cf); err != nil {
		return nil, false, nil // corrupt cache: treat as miss, rebuild
	}
	if cf.Key != expectKey {
		return nil, false, nil
	}

	g = NewGraph(cf.Language)
	g.nodes = make([]Symbol, len(cf.Nodes))
	for i, n := range cf.Nodes {
		sym := Symbol{Kind: n.Kind, Name: n.Name, QualifiedName: n.QualifiedName, ChunkID: n.ChunkID}
		if validChunkIDs != nil && !validChunkIDs[sym.ChunkID] {
			return nil, false, nil // dangling chunk reference: force rebuild
		}
		g.nodes[i] = sym
		id := NodeID(i)
		g.byName[sym.Name] = append(g.byName[sym.Name], id)
		if sym.QualifiedName != "" && sym.QualifiedName != sym.Name {
			g.byName[sym.QualifiedName] = append(g.byName[sym.QualifiedName], id)
		}
		g.byChunk[sym.ChunkID] = append(g.byChunk[sym.ChunkID], id)
	}

	for _, e := range cf.Edges {
		from, to := NodeID(e.From), NodeID(e.To)
		if int(from) >= len(g.nodes) || int(to) >= len(g.nodes) {
			return nil, false, nil
		}
		g.AddEdge(from, to, e.Relationship, e.Weight)
	}

	return g, true, nil
}
