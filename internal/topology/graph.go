// Package topology builds the undirected population graphs that constrain
// migration: fully connected, ring, star, Erdős–Rényi random, and scale-free
// (preferential attachment). Builds are deterministic for a given rand source.
package topology

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Kind names a graph family.
type Kind string

const (
	KindNone           Kind = "none"
	KindFullyConnected Kind = "fully_connected"
	KindRing           Kind = "ring"
	KindStar           Kind = "star"
	KindRandom         Kind = "random"
	KindScaleFree      Kind = "scale_free"
)

// Kinds lists every buildable graph family.
var Kinds = []Kind{KindFullyConnected, KindRing, KindStar, KindRandom, KindScaleFree}

// ParseKind validates a kind name. The empty string maps to KindNone.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindNone, nil
	}
	k := Kind(s)
	if k == KindNone {
		return k, nil
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Errors returned by Build.
var (
	ErrUnknownKind = errors.New("unknown topology kind")
	ErrTooSmall    = errors.New("topology needs at least two nodes")
	ErrBadOption   = errors.New("invalid topology option")
)

// Options tunes the stochastic builders.
type Options struct {
	// EdgeProbability is the Erdős–Rényi edge probability.
	EdgeProbability float64
	// Attachment is the number of links each new node makes in a scale-free graph.
	Attachment int
}

// Graph is an undirected simple graph over nodes 0..n-1.
type Graph struct {
	kind   Kind
	adj    [][]int
	degree []int
	edges  int
}

func newGraph(kind Kind, n int) *Graph {
	return &Graph{kind: kind, adj: make([][]int, n)}
}

// connect adds the undirected edge (a, b). Self loops and repeats are ignored.
func (g *Graph) connect(a, b int) {
	if a == b || g.HasEdge(a, b) {
		return
	}
	g.adj[a] = append(g.adj[a], b)
	g.adj[b] = append(g.adj[b], a)
	g.edges++
}

// seal sorts adjacency lists and freezes the degree table.
func (g *Graph) seal() *Graph {
	g.degree = make([]int, len(g.adj))
	for i, nbrs := range g.adj {
		sort.Ints(nbrs)
		g.degree[i] = len(nbrs)
	}
	return g
}

// Kind returns the graph family.
func (g *Graph) Kind() Kind { return g.kind }

// Size returns the number of nodes.
func (g *Graph) Size() int { return len(g.adj) }

// Edges returns the number of undirected edges.
func (g *Graph) Edges() int { return g.edges }

// Degree returns the precomputed degree of node n.
func (g *Graph) Degree(n int) int { return g.degree[n] }

// Degrees returns a copy of the degree table.
func (g *Graph) Degrees() []int {
	return append([]int(nil), g.degree...)
}

// Neighbors returns the sorted neighbours of node n. The slice is shared; do not modify it.
func (g *Graph) Neighbors(n int) []int { return g.adj[n] }

// HasEdge reports whether a and b are adjacent.
func (g *Graph) HasEdge(a, b int) bool {
	for _, x := range g.adj[a] {
		if x == b {
			return true
		}
	}
	return false
}

// Build constructs a graph of kind over n nodes. Only KindRandom and
// KindScaleFree draw from rng.
func Build(kind Kind, n int, rng *rand.Rand, opts Options) (*Graph, error) {
	if n < 2 {
		return nil, fmt.Errorf("build %s with %d nodes: %w", kind, n, ErrTooSmall)
	}
	switch kind {
	case KindFullyConnected:
		return fullyConnected(n), nil
	case KindRing:
		return ring(n), nil
	case KindStar:
		return star(n), nil
	case KindRandom:
		if opts.EdgeProbability < 0 || opts.EdgeProbability > 1 {
			return nil, fmt.Errorf("edge probability %v: %w", opts.EdgeProbability, ErrBadOption)
		}
		return erdosRenyi(n, opts.EdgeProbability, rng), nil
	case KindScaleFree:
		if opts.Attachment < 1 || opts.Attachment >= n {
			return nil, fmt.Errorf("attachment %d for %d nodes: %w", opts.Attachment, n, ErrBadOption)
		}
		return scaleFree(n, opts.Attachment, rng), nil
	default:
		return nil, fmt.Errorf("build %q: %w", kind, ErrUnknownKind)
	}
}
