package pathoram

// Block is a single Path-ORAM record. A dummy (Valid == false) is the
// same size and shape as a real block on the wire — nothing about a
// bucket's encoding reveals how many of its slots are real.
//
// Key is nil for queue blocks (the queue has no application key); for
// map blocks it holds the byte encoding of the map key, used only to
// scan the stash for a match — the tree itself never compares keys,
// it only moves whatever it finds on a path. Leaf is similarly
// meaningless for a queue block: ObliviousQueue keeps no position map
// and draws a fresh random leaf per operation rather than per block,
// so a queue block is only ever evicted into the root bucket, never
// placed against a leaf of its own.
type Block struct {
	Valid    bool
	Key      []byte
	Payload  []byte // authenticated ciphertext of the logical value
	Leaf     int
	Attempts int // engine accesses survived in the stash; reset only on remap
	Priority int // lower is more important; only consulted by emergency drop
}

func dummyBlock() Block {
	return Block{Valid: false, Leaf: -1}
}

// clone returns a deep copy so callers can hold onto a Block without
// aliasing the stash's or a bucket's backing arrays.
func (b Block) clone() Block {
	out := b
	if b.Key != nil {
		out.Key = append([]byte(nil), b.Key...)
	}
	if b.Payload != nil {
		out.Payload = append([]byte(nil), b.Payload...)
	}
	return out
}

func keysEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Bucket is a fixed-capacity ordered sequence of block slots. Every
// bucket in a valid tree has exactly Z slots regardless of how many
// are real; NewInMemoryStorage allocates Z slots per bucket and
// InMemoryStorage.WriteBucket rejects a bucket of any other length.
type Bucket []Block

// newDummyBucket returns a bucket of z all-dummy slots.
func newDummyBucket(z int) Bucket {
	b := make(Bucket, z)
	for i := range b {
		b[i] = dummyBlock()
	}
	return b
}

func (b Bucket) clone() Bucket {
	out := make(Bucket, len(b))
	for i, blk := range b {
		out[i] = blk.clone()
	}
	return out
}

// freeSlot returns the index of the first dummy slot, or -1 if the
// bucket is full of real blocks.
func (b Bucket) freeSlot() int {
	for i, blk := range b {
		if !blk.Valid {
			return i
		}
	}
	return -1
}
