package merkle

import (
	"runtime"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// parallelLayerMin is the smallest number of pairs in a layer worth hashing
// on multiple goroutines.
const parallelLayerMin = 64

// Tree is an arena of nodes. Leaves occupy the first LeafCount slots in the
// order they were supplied; branches follow, layer by layer.
type Tree struct {
	nodes     []Node
	root      int
	leafCount int
}

// HashBranch computes the branch joining left and right. The returned node
// has no child indices; BuildTree assigns them when placing it in the arena.
func HashBranch(left, right Node) (Node, error) {
	note, err := noteFor(left.MaxByteRange)
	if err != nil {
		return Node{}, err
	}
	return Node{
		ID:           utils.HashAllSha256(left.ID[:], right.ID[:], note[:]),
		MinByteRange: left.MaxByteRange,
		MaxByteRange: right.MaxByteRange,
		Left:         NoChild,
		Right:        NoChild,
	}, nil
}

// BuildTree reduces leaves into a single root. Each pass pairs nodes left to
// right; an unpaired trailing node is carried into the next layer unchanged.
func BuildTree(leaves []Node) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.Errorf("%w: no leaves to build a tree from", errors.ErrInvariant)
	}

	t := &Tree{
		nodes:     make([]Node, 0, 2*len(leaves)-1),
		leafCount: len(leaves),
	}
	layer := make([]int, len(leaves))
	for i, leaf := range leaves {
		if !leaf.IsLeaf() {
			return nil, checkLeaf(leaf)
		}
		t.nodes = append(t.nodes, leaf)
		layer[i] = i
	}

	for len(layer) > 1 {
		next, err := t.buildLayer(layer)
		if err != nil {
			return nil, err
		}
		layer = next
	}
	t.root = layer[0]
	return t, nil
}

func checkLeaf(n Node) error {
	if err := checkShape(n); err != nil {
		return err
	}
	return errors.Errorf("%w: branch node supplied as leaf", errors.ErrInvariant)
}

// buildLayer appends the branches for one layer to the arena and returns the
// indices making up the next layer.
func (t *Tree) buildLayer(layer []int) ([]int, error) {
	pairs := len(layer) / 2
	branches := make([]Node, pairs)

	hashPair := func(p int) error {
		l, r := layer[2*p], layer[2*p+1]
		b, err := HashBranch(t.nodes[l], t.nodes[r])
		if err != nil {
			return err
		}
		b.Left, b.Right = l, r
		branches[p] = b
		return nil
	}

	if pairs >= parallelLayerMin {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for p := 0; p < pairs; p++ {
			p := p
			g.Go(func() error { return hashPair(p) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for p := 0; p < pairs; p++ {
			if err := hashPair(p); err != nil {
				return nil, err
			}
		}
	}

	next := make([]int, 0, pairs+1)
	for _, b := range branches {
		t.nodes = append(t.nodes, b)
		next = append(next, len(t.nodes)-1)
	}
	if len(layer)%2 == 1 {
		next = append(next, layer[len(layer)-1])
	}
	return next, nil
}

// Root returns the root node.
func (t *Tree) Root() Node { return t.nodes[t.root] }

// RootID returns the id of the root node (the data root).
func (t *Tree) RootID() [HashSize]byte { return t.nodes[t.root].ID }

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int { return t.leafCount }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node at index i of the arena.
func (t *Tree) Node(i int) (Node, bool) {
	if i < 0 || i >= len(t.nodes) {
		return Node{}, false
	}
	return t.nodes[i], true
}

// Leaves returns a copy of the leaves in byte order.
func (t *Tree) Leaves() []Node {
	out := make([]Node, t.leafCount)
	copy(out, t.nodes[:t.leafCount])
	return out
}

// GenerateDataRoot is a convenience for GenerateLeaves followed by BuildTree.
func GenerateDataRoot(data []byte) (*Tree, error) {
	leaves, err := GenerateLeaves(data)
	if err != nil {
		return nil, err
	}
	return BuildTree(leaves)
}
