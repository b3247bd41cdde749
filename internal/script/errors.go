package script

import "errors"

// Domain errors for the script package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, script.ErrDuplicateNode) {
//	    // two nodes share an id
//	}
var (
	// ErrInvalidScript is the parent of all graph construction errors.
	ErrInvalidScript = errors.New("script: invalid")

	// ErrDuplicateNode is returned when a node id is added twice.
	ErrDuplicateNode = errors.New("script: duplicate node id")

	// ErrUnknownNode is returned when an id does not name a node in the graph.
	ErrUnknownNode = errors.New("script: unknown node id")

	// ErrGraphSealed is returned when mutating a graph after Seal.
	ErrGraphSealed = errors.New("script: graph sealed")

	// ErrScriptLoad is returned when a script document cannot be read,
	// parsed, validated or built.
	ErrScriptLoad = errors.New("script: load failed")

	// ErrScriptNotFound is returned when a catalog name does not exist.
	ErrScriptNotFound = errors.New("script: not found in catalog")

	// ErrScriptExists is returned when importing under a name already taken.
	ErrScriptExists = errors.New("script: already in catalog")
)
