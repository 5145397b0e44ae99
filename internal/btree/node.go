package btree

import (
	json "github.com/goccy/go-json"

	"github.com/reactivedb/reactivedb/internal/value"
)

// NodeSize bounds the number of entries a node holds before it splits.
const NodeSize = 20

// rootBlock mirrors storage's reserved root slot: the tree's root node
// always lives at block 1 of its backing engine.
const rootBlock = 1

// NodeEntry is one key/child(-or-record) slot. In a leaf node, Left
// carries the referenced record's root block and Right is unused. In
// an internal node, Left and Right are child node blocks straddling
// Index per the tree's interleaving invariant.
type NodeEntry struct {
	Index value.EntryValue
	Left  uint32
	Right uint32
}

// node is one on-disk B+-tree node record.
type node struct {
	Leaf    bool
	Entries []NodeEntry
	Next    uint32 // leaf only: next leaf in left-to-right order, 0 if none
}

type entryWire struct {
	Index value.EntryValue `json:"index"`
	Left  uint32           `json:"left"`
	Right uint32           `json:"right"`
}

type nodeWire struct {
	Leaf    bool        `json:"leaf"`
	Entries []entryWire `json:"entries"`
	Next    uint32      `json:"next,omitempty"`
}

func encodeNode(n *node) ([]byte, error) {
	w := nodeWire{Leaf: n.Leaf, Next: n.Next, Entries: make([]entryWire, len(n.Entries))}
	for i, e := range n.Entries {
		w.Entries[i] = entryWire{Index: e.Index, Left: e.Left, Right: e.Right}
	}
	return json.Marshal(w)
}

func decodeNode(data []byte) (*node, error) {
	var w nodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrCorruptNode
	}
	n := &node{Leaf: w.Leaf, Next: w.Next, Entries: make([]NodeEntry, len(w.Entries))}
	for i, e := range w.Entries {
		n.Entries[i] = NodeEntry{Index: e.Index, Left: e.Left, Right: e.Right}
	}
	return n, nil
}

// emptyLeaf is the initial content written to block 1 when a tree file
// is freshly created.
func emptyLeaf() *node {
	return &node{Leaf: true}
}
