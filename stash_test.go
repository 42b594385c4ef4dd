package pathoram

import "testing"

func TestStashPushAndLen(t *testing.T) {
	s := newStash()
	if s.Len() != 0 {
		t.Fatalf("new stash Len() = %d, want 0", s.Len())
	}
	s.pushTail(Block{Valid: true, Key: []byte("a")})
	s.pushTail(Block{Valid: true, Key: []byte("b")})
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestStashFIFOOrder(t *testing.T) {
	s := newStash()
	s.pushTail(Block{Valid: true, Payload: []byte("first")})
	s.pushTail(Block{Valid: true, Payload: []byte("second")})
	s.pushTail(Block{Valid: true, Payload: []byte("third")})

	first, ok := s.popHead()
	if !ok || string(first.Payload) != "first" {
		t.Fatalf("popHead() = %q, ok=%v, want %q, true", first.Payload, ok, "first")
	}
	second, ok := s.popHead()
	if !ok || string(second.Payload) != "second" {
		t.Fatalf("popHead() = %q, ok=%v, want %q, true", second.Payload, ok, "second")
	}
}

func TestStashPopHeadEmpty(t *testing.T) {
	s := newStash()
	_, ok := s.popHead()
	if ok {
		t.Error("popHead() on empty stash returned ok=true")
	}
}

func TestStashFindByKey(t *testing.T) {
	s := newStash()
	s.pushTail(Block{Valid: true, Key: []byte("k1"), Payload: []byte("v1")})
	s.pushTail(Block{Valid: true, Key: []byte("k2"), Payload: []byte("v2")})

	idx, blk := s.findByKey([]byte("k2"))
	if idx != 1 {
		t.Errorf("findByKey(k2) idx = %d, want 1", idx)
	}
	if string(blk.Payload) != "v2" {
		t.Errorf("findByKey(k2) payload = %q, want %q", blk.Payload, "v2")
	}

	idx, _ = s.findByKey([]byte("missing"))
	if idx != -1 {
		t.Errorf("findByKey(missing) idx = %d, want -1", idx)
	}
}

func TestStashRemoveAtPreservesOrder(t *testing.T) {
	s := newStash()
	s.pushTail(Block{Valid: true, Payload: []byte("a")})
	s.pushTail(Block{Valid: true, Payload: []byte("b")})
	s.pushTail(Block{Valid: true, Payload: []byte("c")})

	removed := s.removeAt(1)
	if string(removed.Payload) != "b" {
		t.Fatalf("removeAt(1) = %q, want %q", removed.Payload, "b")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() after removeAt = %d, want 2", s.Len())
	}
	if string(s.at(0).Payload) != "a" || string(s.at(1).Payload) != "c" {
		t.Errorf("order after removeAt = [%q, %q], want [a, c]", s.at(0).Payload, s.at(1).Payload)
	}
}

func TestStashReplaceAll(t *testing.T) {
	s := newStash()
	s.pushTail(Block{Valid: true, Payload: []byte("old")})

	s.replaceAll([]Block{
		{Valid: true, Payload: []byte("new1")},
		{Valid: true, Payload: []byte("new2")},
	})

	if s.Len() != 2 {
		t.Fatalf("Len() after replaceAll = %d, want 2", s.Len())
	}
	if string(s.at(0).Payload) != "new1" {
		t.Errorf("at(0) = %q, want %q", s.at(0).Payload, "new1")
	}
}

func TestStashAll(t *testing.T) {
	s := newStash()
	s.pushTail(Block{Valid: true, Payload: []byte("a")})
	s.pushTail(Block{Valid: true, Payload: []byte("b")})

	all := s.all()
	if len(all) != 2 {
		t.Fatalf("all() len = %d, want 2", len(all))
	}
	if string(all[0].Payload) != "a" || string(all[1].Payload) != "b" {
		t.Errorf("all() = [%q, %q], want [a, b]", all[0].Payload, all[1].Payload)
	}
}
