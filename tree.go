package pathoram

// tree wraps a Storage backend with the height/leaf-count bookkeeping
// spec.md §3 describes: a complete binary tree of height H, 2^H
// leaves, N = 2^(H+1)-1 buckets stored 1-indexed in heap order so that
// parent(i) = i/2 and leaf ℓ lives at array index 2^H + ℓ.
type tree struct {
	storage   Storage
	height    int // H
	numLeaves int // 2^H
}

// rootBucketIndex is the heap-array position of the tree's root, the
// one bucket every leaf's path passes through.
const rootBucketIndex = 1

func newTree(storage Storage, height int) *tree {
	return &tree{
		storage:   storage,
		height:    height,
		numLeaves: 1 << height,
	}
}

// leafBucketIndex converts a 0-based leaf number into its 1-indexed
// heap position.
func (t *tree) leafBucketIndex(leaf int) int {
	return t.numLeaves + leaf
}

// path returns the bucket indices from leaf to root, leaf-first — the
// order the engine both reads and writes back in (deepest bucket
// first, so write-back places each block as deep as it can go).
func (t *tree) path(leaf int) []int {
	idx := t.leafBucketIndex(leaf)
	p := make([]int, 0, t.height+1)
	for idx >= 1 {
		p = append(p, idx)
		idx /= 2
	}
	return p
}

// onPath reports whether bucketIdx lies on the root-to-leaf path for
// the given leaf — the placeability test spec.md §4.2 defines.
func (t *tree) onPath(leaf, bucketIdx int) bool {
	idx := t.leafBucketIndex(leaf)
	for idx >= 1 {
		if idx == bucketIdx {
			return true
		}
		idx /= 2
	}
	return false
}
