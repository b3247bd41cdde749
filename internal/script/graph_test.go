package script

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func click(id, priority int, links []int, images ...string) ClickNode {
	return ClickNode{Header: Header{ID: id, Priority: priority, Links: links}, Images: images}
}

func TestGraph_AddNodeDuplicate(t *testing.T) {
	g := NewGraph()
	if err := g.AddNode(StartNode{Header: Header{ID: 0}}); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}

	err := g.AddNode(EndNode{Header: Header{ID: 0}})
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("AddNode(duplicate) error = %v, want ErrDuplicateNode", err)
	}

	// The first record must be untouched.
	n, err := g.Metadata(0)
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if n.Kind() != KindStart {
		t.Errorf("Metadata(0).Kind() = %v, want start", n.Kind())
	}
}

func TestGraph_AddNodeNegativeID(t *testing.T) {
	g := NewGraph()
	err := g.AddNode(EndNode{Header: Header{ID: -1}})
	if !errors.Is(err, ErrInvalidScript) {
		t.Fatalf("AddNode(-1) error = %v, want ErrInvalidScript", err)
	}
}

func TestGraph_SetEdgesUnknownNode(t *testing.T) {
	g := NewGraph()
	err := g.SetEdges(7, []int{1})
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("SetEdges(7) error = %v, want ErrUnknownNode", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestGraph_NeighborsOrderAndCopy(t *testing.T) {
	g := NewGraph()
	for _, n := range []Node{
		StartNode{Header: Header{ID: 0}},
		click(1, 0, nil, "a"),
		click(2, 0, nil, "b"),
		EndNode{Header: Header{ID: 3}},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode() error = %v", err)
		}
	}
	if err := g.SetEdges(0, []int{3, 1, 2}); err != nil {
		t.Fatalf("SetEdges() error = %v", err)
	}

	got, err := g.Neighbors(0)
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if diff := cmp.Diff([]int{3, 1, 2}, got); diff != "" {
		t.Errorf("Neighbors(0) mismatch (-want +got):\n%s", diff)
	}

	got[0] = 99
	again, _ := g.Neighbors(0)
	if again[0] != 3 {
		t.Error("Neighbors returned a slice aliasing graph storage")
	}

	empty, err := g.Neighbors(3)
	if err != nil {
		t.Fatalf("Neighbors(3) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Neighbors(3) = %v, want empty", empty)
	}
}

func TestGraph_MetadataUnknown(t *testing.T) {
	g := NewGraph()
	if _, err := g.Metadata(42); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Metadata(42) error = %v, want ErrUnknownNode", err)
	}
	if _, err := g.Neighbors(42); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Neighbors(42) error = %v, want ErrUnknownNode", err)
	}
}

func TestGraph_SealBlocksMutation(t *testing.T) {
	g := NewGraph()
	_ = g.AddNode(StartNode{Header: Header{ID: 0}})
	_ = g.AddNode(EndNode{Header: Header{ID: 1}})
	_ = g.SetEdges(0, []int{1})

	if err := g.Seal(); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !g.Sealed() {
		t.Fatal("Sealed() = false after Seal")
	}
	if err := g.AddNode(EndNode{Header: Header{ID: 2}}); !errors.Is(err, ErrGraphSealed) {
		t.Errorf("AddNode after Seal error = %v, want ErrGraphSealed", err)
	}
	if err := g.SetEdges(0, nil); !errors.Is(err, ErrGraphSealed) {
		t.Errorf("SetEdges after Seal error = %v, want ErrGraphSealed", err)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []Node
		wantErr error
	}{
		{
			name: "valid linear script",
			nodes: []Node{
				StartNode{Header: Header{ID: 0, Links: []int{1}}},
				click(1, 0, []int{2}, "ok_button"),
				EndNode{Header: Header{ID: 2}},
			},
		},
		{
			name: "duplicate id",
			nodes: []Node{
				StartNode{Header: Header{ID: 0, Links: []int{1}}},
				EndNode{Header: Header{ID: 1}},
				EndNode{Header: Header{ID: 1}},
			},
			wantErr: ErrDuplicateNode,
		},
		{
			name: "dangling edge",
			nodes: []Node{
				StartNode{Header: Header{ID: 0, Links: []int{5}}},
				EndNode{Header: Header{ID: 1}},
			},
			wantErr: ErrUnknownNode,
		},
		{
			name: "forward reference is fine",
			nodes: []Node{
				StartNode{Header: Header{ID: 0, Links: []int{2}}},
				EndNode{Header: Header{ID: 2}},
			},
		},
		{
			name: "no start",
			nodes: []Node{
				EndNode{Header: Header{ID: 1}},
			},
			wantErr: ErrInvalidScript,
		},
		{
			name: "two starts",
			nodes: []Node{
				StartNode{Header: Header{ID: 0, Links: []int{2}}},
				StartNode{Header: Header{ID: 1, Links: []int{2}}},
				EndNode{Header: Header{ID: 2}},
			},
			wantErr: ErrInvalidScript,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.nodes)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, ErrInvalidScript) {
					t.Errorf("Build() error = %v, want it under ErrInvalidScript", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if g.Start() != 0 {
				t.Errorf("Start() = %d, want 0", g.Start())
			}
			if g.Len() != len(tt.nodes) {
				t.Errorf("Len() = %d, want %d", g.Len(), len(tt.nodes))
			}
		})
	}
}

func TestBuild_RoundTripsNodes(t *testing.T) {
	in := []Node{
		StartNode{Header: Header{ID: 0, Links: []int{2, 1}}},
		ActionNode{Header: Header{ID: 1, Priority: 2, Links: []int{2}}, ActionName: "scroll_down"},
		click(2, 1, []int{3}, "a", "b"),
		EndNode{Header: Header{ID: 3, Priority: 0}},
	}

	g, err := Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, want := range in {
		got, err := g.Metadata(want.Head().ID)
		if err != nil {
			t.Fatalf("Metadata(%d) error = %v", want.Head().ID, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Metadata(%d) mismatch (-want +got):\n%s", want.Head().ID, diff)
		}
		next, _ := g.Neighbors(want.Head().ID)
		if diff := cmp.Diff(want.Head().Links, next, cmpEmptyInts); diff != "" {
			t.Errorf("Neighbors(%d) mismatch (-want +got):\n%s", want.Head().ID, diff)
		}
	}

	if diff := cmp.Diff([]int{0, 1, 2, 3}, g.IDs()); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
}

// cmpEmptyInts treats nil and empty int slices as equal.
var cmpEmptyInts = cmp.Comparer(func(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
})

func TestClickNode_ClickCount(t *testing.T) {
	tests := []struct {
		clicks int
		want   int
	}{
		{0, 1},
		{-3, 1},
		{1, 1},
		{4, 4},
	}
	for _, tt := range tests {
		c := ClickNode{Clicks: tt.clicks}
		if got := c.ClickCount(); got != tt.want {
			t.Errorf("ClickCount() with Clicks=%d = %d, want %d", tt.clicks, got, tt.want)
		}
	}
}
