package script

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Graph maps node ids to node records and to ordered successor ids.
//
// A Graph is built by AddNode and SetEdges, then sealed. A sealed graph
// never changes and may be shared by concurrent readers.
type Graph struct {
	nodes  map[int]Node
	edges  map[int][]int
	start  int
	starts int
	sealed bool
}

// NewGraph creates an empty, unsealed graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[int]Node),
		edges: make(map[int][]int),
		start: -1,
	}
}

// AddNode registers a node under its id with an empty successor list.
//
// Returns ErrDuplicateNode if the id is already present, or
// ErrInvalidScript if the id is negative.
func (g *Graph) AddNode(n Node) error {
	if g.sealed {
		return ErrGraphSealed
	}
	id := n.Head().ID
	if id < 0 {
		return fmt.Errorf("%w: negative node id %d", ErrInvalidScript, id)
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateNode, id)
	}

	g.nodes[id] = cloneNode(n)
	g.edges[id] = []int{}

	if n.Kind() == KindStart {
		if g.starts == 0 {
			g.start = id
		}
		g.starts++
	}
	return nil
}

// SetEdges replaces the ordered successor list of an existing node.
// Targets are not checked here; Validate checks them once all nodes exist.
func (g *Graph) SetEdges(id int, targets []int) error {
	if g.sealed {
		return ErrGraphSealed
	}
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	g.edges[id] = slices.Clone(targets)
	return nil
}

// Neighbors returns the ordered successor ids of id.
// The returned slice is a copy.
func (g *Graph) Neighbors(id int) ([]int, error) {
	targets, ok := g.edges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return slices.Clone(targets), nil
}

// Metadata returns the node record stored under id.
func (g *Graph) Metadata(id int) (Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return cloneNode(n), nil
}

// Start returns the id of the Start node, or -1 if there is none.
func (g *Graph) Start() int {
	return g.start
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns all node ids in ascending order.
func (g *Graph) IDs() []int {
	return slices.Sorted(maps.Keys(g.nodes))
}

// Sealed reports whether Seal has been called.
func (g *Graph) Sealed() bool {
	return g.sealed
}

// Validate checks the whole-graph rules: every edge target exists and
// there is exactly one Start node.
func (g *Graph) Validate() error {
	for _, id := range g.IDs() {
		for _, target := range g.edges[id] {
			if _, ok := g.nodes[target]; !ok {
				return fmt.Errorf("%w: node %d links to %w %d", ErrInvalidScript, id, ErrUnknownNode, target)
			}
		}
	}

	switch g.starts {
	case 0:
		return fmt.Errorf("%w: no start node", ErrInvalidScript)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %d start nodes, want exactly one", ErrInvalidScript, g.starts)
	}
}

// Seal validates the graph and freezes it against further mutation.
func (g *Graph) Seal() error {
	if g.sealed {
		return nil
	}
	if err := g.Validate(); err != nil {
		return err
	}
	g.sealed = true
	return nil
}

// Build constructs and seals a graph from node records. Each node's Links
// become its successor list.
func Build(nodes []Node) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, asInvalid(err)
		}
		if err := g.SetEdges(n.Head().ID, n.Head().Links); err != nil {
			return nil, asInvalid(err)
		}
	}
	if err := g.Seal(); err != nil {
		return nil, err
	}
	return g, nil
}

// asInvalid places a construction error under ErrInvalidScript.
func asInvalid(err error) error {
	if errors.Is(err, ErrInvalidScript) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidScript, err)
}
