// Package script provides the automation script model for SleepGrind.
//
// A script is a directed graph of nodes. Each node describes either a
// screen state to look for (Click), a named gesture to perform (Action),
// or a boundary of the walk (Start, End). Edges are ordered lists of
// candidate successor ids.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                 Loader (loader.go)                    │
//	│  1. Read document (file or catalog)                   │
//	│  2. Validate against embedded JSON Schema             │
//	│  3. Decode node records (mapstructure)                │
//	│  4. Build Graph (graph.go)                            │
//	│        │                                              │
//	│        ▼                                              │
//	│  ┌──────────────┐    ┌───────────────────────────┐   │
//	│  │    Graph     │    │ SQLiteRepository           │   │
//	│  │ nodes/edges  │    │ named scripts + fingerprint│   │
//	│  └──────────────┘    └───────────────────────────┘   │
//	└──────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Node: sealed variant over StartNode, EndNode, ActionNode, ClickNode
//   - Graph: id to node and id to ordered successor ids
//   - Document: a parsed script with its BLAKE3 fingerprint
//   - Repository: named script catalog backed by SQLite
//
// # Thread Safety
//
// A Graph is mutable only until Seal is called. After that it is
// read-only and safe for concurrent readers. The loader always returns
// sealed graphs.
//
// # Usage
//
//	doc, err := script.LoadFile("scripts/daily.json")
//	if err != nil {
//	    return err
//	}
//	start := doc.Graph.Start()
//	next, _ := doc.Graph.Neighbors(start)
package script
