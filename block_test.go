package pathoram

import "testing"

func TestDummyBlock(t *testing.T) {
	b := dummyBlock()
	if b.Valid {
		t.Errorf("dummyBlock().Valid = true, want false")
	}
	if b.Leaf != -1 {
		t.Errorf("dummyBlock().Leaf = %d, want -1", b.Leaf)
	}
}

func TestBlockClone(t *testing.T) {
	orig := Block{Valid: true, Key: []byte("k"), Payload: []byte("v"), Leaf: 3}
	cl := orig.clone()

	cl.Key[0] = 'z'
	cl.Payload[0] = 'z'

	if orig.Key[0] != 'k' {
		t.Errorf("clone aliased Key: original mutated to %q", orig.Key)
	}
	if orig.Payload[0] != 'v' {
		t.Errorf("clone aliased Payload: original mutated to %q", orig.Payload)
	}
}

func TestKeysEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte("abc"), []byte("abc"), true},
		{"different length", []byte("abc"), []byte("ab"), false},
		{"different content", []byte("abc"), []byte("abd"), false},
		{"both nil", nil, nil, true},
		{"one nil", []byte("abc"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keysEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("keysEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNewDummyBucket(t *testing.T) {
	b := newDummyBucket(4)
	if len(b) != 4 {
		t.Fatalf("len(bucket) = %d, want 4", len(b))
	}
	for i, blk := range b {
		if blk.Valid {
			t.Errorf("slot %d: Valid = true, want false", i)
		}
	}
	if got := b.freeSlot(); got != 0 {
		t.Errorf("freeSlot() on all-dummy bucket = %d, want 0", got)
	}
}

func TestBucketFreeSlot(t *testing.T) {
	b := newDummyBucket(3)
	b[0] = Block{Valid: true}
	if got := b.freeSlot(); got != 1 {
		t.Errorf("freeSlot() = %d, want 1", got)
	}
	b[1] = Block{Valid: true}
	b[2] = Block{Valid: true}
	if got := b.freeSlot(); got != -1 {
		t.Errorf("freeSlot() on full bucket = %d, want -1", got)
	}
}

func TestBucketClone(t *testing.T) {
	b := newDummyBucket(2)
	b[0] = Block{Valid: true, Payload: []byte("x")}

	cl := b.clone()
	cl[0].Payload[0] = 'y'

	if b[0].Payload[0] != 'x' {
		t.Errorf("clone aliased bucket payload: original mutated to %q", b[0].Payload)
	}
}
