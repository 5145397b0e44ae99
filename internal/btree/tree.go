package btree

import (
	"sort"

	"github.com/reactivedb/reactivedb/internal/storage"
	"github.com/reactivedb/reactivedb/internal/value"
)

// Tree is an ordered multi-map value.EntryValue -> record reference,
// backed by one storage.Engine file. The root node always lives at
// block 1; a split keeps the left half of a non-root node at its
// original block and moves the right half into a freshly allocated
// block, and a split of the root moves both halves out and rewrites
// block 1 in place, per the storage engine's permanently-reserved root
// slot.
type Tree struct {
	eng *storage.Engine
}

// Open opens (creating if necessary) the B+-tree index file at path.
func Open(path string) (*Tree, error) {
	eng, err := storage.Open(path, storage.Config{})
	if err != nil {
		return nil, err
	}
	t := &Tree{eng: eng}

	sess, err := eng.StartWriteSession()
	if err != nil {
		eng.Close()
		return nil, err
	}
	defer sess.End()

	empty, err := eng.IsEmpty(sess, rootBlock)
	if err != nil {
		eng.Close()
		return nil, err
	}
	if empty {
		if err := t.writeRoot(sess, emptyLeaf()); err != nil {
			eng.Close()
			return nil, err
		}
	}
	return t, nil
}

// Close releases the backing file.
func (t *Tree) Close() error { return t.eng.Close() }

func (t *Tree) readNode(sess *storage.Session, block uint32) (*node, error) {
	raw, err := t.eng.ReadData(sess, block)
	if err != nil {
		return nil, err
	}
	return decodeNode(raw)
}

// writeRoot rewrites block 1's content in place.
func (t *Tree) writeRoot(sess *storage.Session, n *node) error {
	raw, err := encodeNode(n)
	if err != nil {
		return err
	}
	one := uint32(rootBlock)
	_, err = t.eng.WriteData(sess, raw, &one)
	return err
}

// writeNew serialises n into a freshly allocated block and returns its
// root block number.
func (t *Tree) writeNew(sess *storage.Session, n *node) (uint32, error) {
	raw, err := encodeNode(n)
	if err != nil {
		return 0, err
	}
	return t.eng.WriteData(sess, raw, nil)
}

// splitResult is returned by insertNode when a node overflowed and was
// split into its original block (left) and a fresh sibling (right); the caller
// (the parent, or Insert itself at the root) must fold the new
// separator entry in.
type splitResult struct {
	left   uint32
	median value.EntryValue
	right  uint32
}

// Insert adds (key, ref) to the tree. Keys need not be unique.
func (t *Tree) Insert(key value.EntryValue, ref uint32) error {
	if !key.Indexable() {
		return ErrNotIndexable
	}
	sess, err := t.eng.StartWriteSession()
	if err != nil {
		return err
	}
	defer sess.End()

	sr, err := t.insertNode(sess, rootBlock, key, ref)
	if err != nil {
		return err
	}
	if sr != nil {
		// insertNode never returns a pending split for the root itself
		// (it resolves those in place); this path exists only as a
		// defensive invariant check.
		newRoot := &node{Leaf: false, Entries: []NodeEntry{{Index: sr.median, Left: sr.left, Right: sr.right}}}
		return t.writeRoot(sess, newRoot)
	}
	return nil
}

// insertNode inserts (key, ref) into the subtree rooted at block,
// returning a non-nil splitResult if block's own content overflowed
// and was split, unless block is the root, in which case the new
// single-entry parent is written back into block 1 directly and nil
// is returned.
func (t *Tree) insertNode(sess *storage.Session, block uint32, key value.EntryValue, ref uint32) (*splitResult, error) {
	n, err := t.readNode(sess, block)
	if err != nil {
		return nil, err
	}

	if n.Leaf {
		n.Entries = insertLeafEntry(n.Entries, NodeEntry{Index: key, Left: ref})
	} else {
		childIdx, isRight := descend(n.Entries, key)
		var child uint32
		if isRight {
			child = n.Entries[childIdx].Right
		} else {
			child = n.Entries[childIdx].Left
		}
		sr, err := t.insertNode(sess, child, key, ref)
		if err != nil {
			return nil, err
		}
		if sr == nil {
			return nil, nil
		}
		n.Entries = foldSplitIntoParent(n.Entries, childIdx, isRight, sr)
	}

	if len(n.Entries) < NodeSize {
		return nil, t.writeNodeAt(sess, block, n)
	}

	return t.splitOverflow(sess, block, n)
}

// insertLeafEntry inserts e into entries, keeping them sorted by
// Index. Duplicate keys are kept in insertion order among themselves
// (placed after existing equal keys), matching a stable multi-map.
func insertLeafEntry(entries []NodeEntry, e NodeEntry) []NodeEntry {
	i := sort.Search(len(entries), func(i int) bool {
		return value.Compare(entries[i].Index, e.Index) > 0
	})
	entries = append(entries, NodeEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// descend applies the internal-node binary search tie-break rule: an
// exact match on entries[i].Index descends right (toward duplicates
// and larger keys); a miss descends into entries[i].Left. A key
// greater than every separator descends into the rightmost child.
func descend(entries []NodeEntry, key value.EntryValue) (idx int, right bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return value.Compare(entries[i].Index, key) >= 0
	})
	if i == len(entries) {
		return len(entries) - 1, true
	}
	if value.Compare(entries[i].Index, key) == 0 {
		return i, true
	}
	return i, false
}

// foldSplitIntoParent replaces the child reference at (childIdx,
// isRight) with sr's new separator entry, preserving the
// left_ref/right_ref interleaving invariant.
func foldSplitIntoParent(entries []NodeEntry, childIdx int, isRight bool, sr *splitResult) []NodeEntry {
	newEntry := NodeEntry{Index: sr.median, Left: sr.left, Right: sr.right}
	if isRight {
		entries[childIdx].Right = sr.left
		insertAt := childIdx + 1
		entries = append(entries, NodeEntry{})
		copy(entries[insertAt+1:], entries[insertAt:])
		entries[insertAt] = newEntry
		if insertAt+1 < len(entries) {
			entries[insertAt+1].Left = sr.right
		}
	} else {
		entries[childIdx].Left = sr.right
		entries = append(entries, NodeEntry{})
		copy(entries[childIdx+1:], entries[childIdx:])
		entries[childIdx] = newEntry
		if childIdx > 0 {
			entries[childIdx-1].Right = sr.left
		}
	}
	return entries
}

// writeNodeAt rewrites a node's content in place, keeping its block
// number (and therefore every parent reference to it) stable. A node
// record that shrinks across a storage-block boundary can leave a
// now-unreachable remnant block behind; the remnant is never read
// again, it only costs arena space until the file is rebuilt.
func (t *Tree) writeNodeAt(sess *storage.Session, block uint32, n *node) error {
	if block == rootBlock {
		return t.writeRoot(sess, n)
	}
	raw, err := encodeNode(n)
	if err != nil {
		return err
	}
	_, err = t.eng.WriteData(sess, raw, &block)
	return err
}

// splitOverflow splits n (currently stored at block) at the median. The
// right half always goes to a fresh block. If block is the root, the
// left half also goes to a fresh block and block 1 is rewritten in
// place as their parent; otherwise the left half is rewritten at block
// itself, so the preceding leaf's Next pointer stays valid, and the
// pending split is returned for the parent to fold in.
func (t *Tree) splitOverflow(sess *storage.Session, block uint32, n *node) (*splitResult, error) {
	mid := len(n.Entries) / 2
	leftEntries := append([]NodeEntry{}, n.Entries[:mid]...)
	rightEntries := append([]NodeEntry{}, n.Entries[mid:]...)
	median := rightEntries[0].Index

	right := &node{Leaf: n.Leaf, Entries: rightEntries}
	if n.Leaf {
		right.Next = n.Next
	}
	rightBlock, err := t.writeNew(sess, right)
	if err != nil {
		return nil, err
	}

	left := &node{Leaf: n.Leaf, Entries: leftEntries}
	if n.Leaf {
		left.Next = rightBlock
	}
	if block == rootBlock {
		leftBlock, err := t.writeNew(sess, left)
		if err != nil {
			return nil, err
		}
		newRoot := &node{Leaf: false, Entries: []NodeEntry{{Index: median, Left: leftBlock, Right: rightBlock}}}
		return nil, t.writeRoot(sess, newRoot)
	}

	if err := t.writeNodeAt(sess, block, left); err != nil {
		return nil, err
	}
	return &splitResult{left: block, median: median, right: rightBlock}, nil
}

// leafFor descends from the root to the leaf that would contain key.
func (t *Tree) leafFor(sess *storage.Session, key value.EntryValue) (uint32, *node, error) {
	block := uint32(rootBlock)
	for {
		n, err := t.readNode(sess, block)
		if err != nil {
			return 0, nil, err
		}
		if n.Leaf {
			return block, n, nil
		}
		idx, isRight := descend(n.Entries, key)
		if isRight {
			block = n.Entries[idx].Right
		} else {
			block = n.Entries[idx].Left
		}
	}
}

// SearchExact returns the first entry matching key, if any.
func (t *Tree) SearchExact(key value.EntryValue) (*NodeEntry, error) {
	sess, err := t.eng.StartReadSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	_, leaf, err := t.leafFor(sess, key)
	if err != nil {
		return nil, err
	}
	for _, e := range leaf.Entries {
		if value.Equal(e.Index, key) {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

// GetAll returns every entry whose Index equals key.
func (t *Tree) GetAll(key value.EntryValue) ([]NodeEntry, error) {
	sess, err := t.eng.StartReadSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	_, leaf, err := t.leafFor(sess, key)
	if err != nil {
		return nil, err
	}
	var out []NodeEntry
	for {
		sawGreater := false
		for _, e := range leaf.Entries {
			c := value.Compare(e.Index, key)
			if c == 0 {
				out = append(out, e)
			} else if c > 0 {
				sawGreater = true
			}
		}
		if sawGreater || leaf.Next == 0 {
			break
		}
		leaf, err = t.readNode(sess, leaf.Next)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GreaterThan returns every entry with Index >= key, in ascending
// order, by descending to key's leaf and walking forward via Next.
func (t *Tree) GreaterThan(key value.EntryValue) ([]NodeEntry, error) {
	sess, err := t.eng.StartReadSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	_, leaf, err := t.leafFor(sess, key)
	if err != nil {
		return nil, err
	}

	var out []NodeEntry
	for {
		for _, e := range leaf.Entries {
			if value.Compare(e.Index, key) >= 0 {
				out = append(out, e)
			}
		}
		if leaf.Next == 0 {
			break
		}
		leaf, err = t.readNode(sess, leaf.Next)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LessThan returns every entry with Index < key (or <= key when
// inclusive is true), walking from the leftmost leaf forward.
func (t *Tree) LessThan(key value.EntryValue, inclusive bool) ([]NodeEntry, error) {
	sess, err := t.eng.StartReadSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	block, err := t.leftmostLeafBlock(sess)
	if err != nil {
		return nil, err
	}

	var out []NodeEntry
	for block != 0 {
		leaf, err := t.readNode(sess, block)
		if err != nil {
			return nil, err
		}
		done := false
		for _, e := range leaf.Entries {
			c := value.Compare(e.Index, key)
			if c < 0 || (inclusive && c == 0) {
				out = append(out, e)
			} else {
				done = true
			}
		}
		if done {
			break
		}
		block = leaf.Next
	}
	return out, nil
}

func (t *Tree) leftmostLeafBlock(sess *storage.Session) (uint32, error) {
	block := uint32(rootBlock)
	for {
		n, err := t.readNode(sess, block)
		if err != nil {
			return 0, err
		}
		if n.Leaf {
			return block, nil
		}
		block = n.Entries[0].Left
	}
}

// Delete removes one entry matching key, returning it, or ErrNotFound
// if no entry matches. It never merges nodes; an emptied leaf is left
// as a hole rather than rebalanced. Callers wanting every match loop
// via DeleteAll, which re-descends until nothing matches.
func (t *Tree) Delete(key value.EntryValue) (*NodeEntry, error) {
	sess, err := t.eng.StartWriteSession()
	if err != nil {
		return nil, err
	}
	defer sess.End()

	block, leaf, err := t.leafFor(sess, key)
	if err != nil {
		return nil, err
	}
	for i, e := range leaf.Entries {
		if value.Equal(e.Index, key) {
			removed := e
			leaf.Entries = append(leaf.Entries[:i], leaf.Entries[i+1:]...)
			if err := t.writeNodeAt(sess, block, leaf); err != nil {
				return nil, err
			}
			return &removed, nil
		}
	}
	return nil, ErrNotFound
}

// DeleteAll removes every entry matching key, returning the removed
// entries.
func (t *Tree) DeleteAll(key value.EntryValue) ([]NodeEntry, error) {
	var out []NodeEntry
	for {
		e, err := t.Delete(key)
		if err == ErrNotFound {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *e)
	}
}

// DeleteRef removes the entry matching both key and ref, distinct from
// Delete's "first matching key, whichever ref" behaviour. Callers that
// know a key is multi-valued (the table layer, removing one row's
// index entries) use this so a row's deletion never removes a
// different row's index entry that happens to share the same value.
func (t *Tree) DeleteRef(key value.EntryValue, ref uint32) (bool, error) {
	sess, err := t.eng.StartWriteSession()
	if err != nil {
		return false, err
	}
	defer sess.End()

	block, leaf, err := t.leafFor(sess, key)
	if err != nil {
		return false, err
	}
	for i, e := range leaf.Entries {
		if value.Equal(e.Index, key) && e.Left == ref {
			leaf.Entries = append(leaf.Entries[:i], leaf.Entries[i+1:]...)
			if err := t.writeNodeAt(sess, block, leaf); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
