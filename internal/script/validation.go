package script

import "fmt"

// Issue is a non-fatal finding about a graph that loads but is likely wrong.
type Issue struct {
	NodeID  int
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("node %d: %s", i.NodeID, i.Message)
}

// Lint reports structural smells in a sealed graph:
//   - nodes that cannot be reached from Start
//   - non-End nodes with no successors (the walk would abort there)
//   - Start nodes listed as a successor (they never match)
//   - graphs with no End node
func Lint(g *Graph) []Issue {
	var issues []Issue

	reachable := reachableFrom(g, g.Start())
	hasEnd := false

	for _, id := range g.IDs() {
		n, _ := g.Metadata(id)
		next, _ := g.Neighbors(id)

		if n.Kind() == KindEnd {
			hasEnd = true
		}
		if !reachable[id] {
			issues = append(issues, Issue{NodeID: id, Message: "unreachable from start"})
		}
		if n.Kind() != KindEnd && len(next) == 0 {
			issues = append(issues, Issue{NodeID: id, Message: fmt.Sprintf("%s node has no successors", n.Kind())})
		}
		for _, t := range next {
			if tn, err := g.Metadata(t); err == nil && tn.Kind() == KindStart {
				issues = append(issues, Issue{NodeID: id, Message: fmt.Sprintf("links to start node %d, which never matches", t)})
			}
		}
	}

	if !hasEnd {
		issues = append(issues, Issue{NodeID: g.Start(), Message: "graph has no end node"})
	}
	return issues
}

// ClickImages returns every template identifier referenced by Click nodes,
// deduplicated, in node id order.
func ClickImages(g *Graph) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range g.IDs() {
		n, _ := g.Metadata(id)
		c, ok := n.(ClickNode)
		if !ok {
			continue
		}
		for _, img := range c.Images {
			if _, dup := seen[img]; dup {
				continue
			}
			seen[img] = struct{}{}
			out = append(out, img)
		}
	}
	return out
}

func reachableFrom(g *Graph, start int) map[int]bool {
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		next, err := g.Neighbors(id)
		if err != nil {
			continue
		}
		for _, t := range next {
			if !seen[t] {
				seen[t] = true
				queue = append(queue, t)
			}
		}
	}
	return seen
}
