package script

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/zeebo/blake3"
)

// Document is a parsed script and the graph built from it.
type Document struct {
	// Name is the document's "script" field, or the catalog name it was
	// loaded under.
	Name string

	// Comments is the document-level free text.
	Comments string

	// Fingerprint is the hex BLAKE3-256 digest of the raw document bytes.
	Fingerprint string

	// Nodes are the decoded records in document order.
	Nodes []Node

	// Graph is the sealed graph built from Nodes.
	Graph *Graph

	// Raw is the document exactly as read.
	Raw []byte
}

// nodeRecord mirrors one entry of the "nodes" array.
type nodeRecord struct {
	ID       int      `mapstructure:"id"`
	Type     string   `mapstructure:"type"`
	Priority int      `mapstructure:"priority"`
	Comments string   `mapstructure:"comments"`
	Links    []int    `mapstructure:"links"`
	Images   []string `mapstructure:"images"`
	Action   string   `mapstructure:"action"`
	Delay    float64  `mapstructure:"delay"`
	Wait     float64  `mapstructure:"wait"`
	Clicks   int      `mapstructure:"clicks"`
}

// documentRecord mirrors the top level of a script document.
type documentRecord struct {
	Script   string           `mapstructure:"script"`
	Comments string           `mapstructure:"comments"`
	Nodes    []map[string]any `mapstructure:"nodes"`
}

// LoadFile reads and parses the script document at path.
// Every failure wraps ErrScriptLoad.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrScriptLoad, path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse validates and decodes a script document and builds its graph.
//
// Parameters:
//   - data: JSON script document
//
// Returns:
//   - *Document: Name, fingerprint and sealed graph
//   - error: Wraps ErrScriptLoad on schema, decode or graph failures
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON: %w", ErrScriptLoad, err)
	}
	if err := validateDocument(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptLoad, err)
	}

	var rec documentRecord
	if err := mapstructure.Decode(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding document: %w", ErrScriptLoad, err)
	}

	nodes := make([]Node, 0, len(rec.Nodes))
	for i, m := range rec.Nodes {
		n, err := decodeNode(m)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %w", ErrScriptLoad, i, err)
		}
		nodes = append(nodes, n)
	}

	g, err := Build(nodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScriptLoad, err)
	}

	return &Document{
		Name:        rec.Script,
		Comments:    rec.Comments,
		Fingerprint: Fingerprint(data),
		Nodes:       nodes,
		Graph:       g,
		Raw:         data,
	}, nil
}

// Fingerprint returns the hex BLAKE3-256 digest of data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// decodeNode turns one node object into its typed variant.
func decodeNode(m map[string]any) (Node, error) {
	var rec nodeRecord
	if err := mapstructure.Decode(m, &rec); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	h := Header{
		ID:       rec.ID,
		Priority: rec.Priority,
		Comments: rec.Comments,
		Delay:    seconds(rec.Delay),
		Wait:     seconds(rec.Wait),
		Links:    rec.Links,
	}

	switch Kind(rec.Type) {
	case KindStart:
		return StartNode{Header: h}, nil
	case KindEnd:
		// End nodes terminate the walk; they have no successors or timing.
		h.Links, h.Delay, h.Wait = nil, 0, 0
		return EndNode{Header: h}, nil
	case KindAction:
		return ActionNode{Header: h, ActionName: rec.Action}, nil
	case KindClick:
		return ClickNode{Header: h, Images: rec.Images, Clicks: rec.Clicks}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", rec.Type)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
