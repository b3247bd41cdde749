package script

import (
	"slices"
	"time"
)

// Kind identifies the variant of a node. The values are the single
// letter codes used in script documents.
type Kind string

// Node kinds.
const (
	KindStart  Kind = "S"
	KindEnd    Kind = "E"
	KindAction Kind = "A"
	KindClick  Kind = "C"
)

// String returns a readable name for log output.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindAction:
		return "action"
	case KindClick:
		return "click"
	default:
		return "unknown(" + string(k) + ")"
	}
}

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStart, KindEnd, KindAction, KindClick:
		return true
	}
	return false
}

// Header holds the fields every node kind shares.
type Header struct {
	// ID is unique within a graph and never negative.
	ID int `json:"id"`

	// Priority orders competing candidates; lower wins.
	Priority int `json:"priority"`

	// Comments is free text for humans reading the script.
	Comments string `json:"comments,omitempty"`

	// Delay is slept before the node is evaluated.
	Delay time.Duration `json:"delay,omitempty"`

	// Wait is slept after the node is evaluated and again after it runs.
	Wait time.Duration `json:"wait,omitempty"`

	// Links are the ordered ids of candidate successors.
	Links []int `json:"links,omitempty"`
}

// Head returns the shared node fields.
func (h Header) Head() Header { return h }

// Node is a sealed variant over StartNode, EndNode, ActionNode and ClickNode.
// Use a type switch to reach the kind-specific fields.
type Node interface {
	Head() Header
	Kind() Kind
	isNode()
}

// StartNode marks where the walk begins. It is never selected.
type StartNode struct {
	Header
}

// EndNode terminates the walk when selected.
type EndNode struct {
	Header
}

// ActionNode runs a named gesture from the action registry when selected.
type ActionNode struct {
	Header

	// ActionName is looked up in the action registry.
	ActionName string `json:"action"`
}

// ClickNode matches when any of its images is found on screen, and clicks
// inside the matched region when selected.
type ClickNode struct {
	Header

	// Images are template identifiers tried in order.
	Images []string `json:"images"`

	// Clicks is the number of press/release cycles performed on a match.
	Clicks int `json:"clicks,omitempty"`
}

func (StartNode) Kind() Kind  { return KindStart }
func (EndNode) Kind() Kind    { return KindEnd }
func (ActionNode) Kind() Kind { return KindAction }
func (ClickNode) Kind() Kind  { return KindClick }

func (StartNode) isNode()  {}
func (EndNode) isNode()    {}
func (ActionNode) isNode() {}
func (ClickNode) isNode()  {}

// ClickCount returns Clicks, treating zero or negative as a single click.
func (c ClickNode) ClickCount() int {
	if c.Clicks < 1 {
		return 1
	}
	return c.Clicks
}

// cloneNode returns a copy of n whose slices do not alias n's.
func cloneNode(n Node) Node {
	switch v := n.(type) {
	case StartNode:
		v.Links = slices.Clone(v.Links)
		return v
	case EndNode:
		v.Links = slices.Clone(v.Links)
		return v
	case ActionNode:
		v.Links = slices.Clone(v.Links)
		return v
	case ClickNode:
		v.Links = slices.Clone(v.Links)
		v.Images = slices.Clone(v.Images)
		return v
	default:
		return n
	}
}
