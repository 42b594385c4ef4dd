package pathoram

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ObliviousQueue is the FIFO-on-stash structure spec.md §4.4 describes,
// used for the router's Content Store. Unlike ObliviousMap it keeps no
// position map and a queue block carries no leaf of its own: push and
// pop each draw a fresh independent random leaf purely to shape the
// access (so a push's trace is indistinguishable from a pop's), and
// locate their block only through the stash's own FIFO order. A block
// stays stash-resident across ordinary pushes and pops; a full
// eviction pass is the only thing that ever moves a queue block onto
// the tree, and it may only go into the root bucket — the one tree
// location every future randomly-drawn leaf's path will read back.
type ObliviousQueue[V any] struct {
	eng *engine

	marshal   func(V) ([]byte, error)
	unmarshal func([]byte) (V, error)
}

// NewObliviousQueue builds a queue with its own Path-ORAM tree, stash,
// and background evictor, already running.
func NewObliviousQueue[V any](
	name string,
	cfg Config,
	marshal func(V) ([]byte, error),
	unmarshal func([]byte) (V, error),
	opts ...Option,
) (*ObliviousQueue[V], error) {
	eng, err := newEngine(cfg, false, name, nil)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(eng)
	}
	return &ObliviousQueue[V]{eng: eng, marshal: marshal, unmarshal: unmarshal}, nil
}

// Push enqueues v (spec.md §4.4). It draws a fresh random leaf purely
// to read and write back that leaf's path like every other access,
// then appends the new block to the tail of the stash's FIFO order —
// the block itself is not placed on that (or any) path, since it has
// no leaf of its own for a later Pop to match against.
func (q *ObliviousQueue[V]) Push(v V) error {
	q.eng.mu.Lock()
	defer q.eng.mu.Unlock()

	if q.eng.closed {
		return ErrClosed
	}

	plaintext, err := q.marshal(v)
	if err != nil {
		return fmt.Errorf("pathoram: marshal value for push: %w", err)
	}
	ciphertext, err := q.eng.encrypt(plaintext)
	if err != nil {
		return err
	}

	leaf, err := q.eng.randomLeaf()
	if err != nil {
		return err
	}

	err = q.eng.accessPath(leaf, func() error {
		q.eng.st.pushTail(Block{
			Valid:   true,
			Payload: ciphertext,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if q.eng.st.Len() > q.eng.wm.Mid {
		if err := q.eng.triggerFullEviction(); err != nil {
			return err
		}
	}
	return nil
}

// Pop dequeues the value at the head of the stash's FIFO order, or
// (zero, false) if the queue is empty (spec.md §4.4). Blocks that a
// full eviction moved into the root rejoin the stash at its tail when
// the next access reads the root, so strict push order holds only
// among blocks that stayed stash-resident. Even on an empty queue it
// performs exactly
// one full path access on a random leaf, so an empty pop's trace is
// indistinguishable from a successful one.
func (q *ObliviousQueue[V]) Pop() (V, bool, error) {
	q.eng.mu.Lock()
	defer q.eng.mu.Unlock()

	var zero V
	if q.eng.closed {
		return zero, false, ErrClosed
	}

	leaf, err := q.eng.randomLeaf()
	if err != nil {
		return zero, false, err
	}

	var found bool
	var ciphertext []byte

	err = q.eng.accessPath(leaf, func() error {
		b, ok := q.eng.st.popHead()
		if !ok {
			return nil
		}
		found = true
		ciphertext = append([]byte(nil), b.Payload...)
		return nil
	})
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}

	plaintext, err := q.eng.decrypt(ciphertext)
	if err != nil {
		return zero, false, err
	}
	v, err := q.unmarshal(plaintext)
	if err != nil {
		return zero, false, fmt.Errorf("pathoram: unmarshal value for pop: %w", err)
	}
	return v, true, nil
}

// GetStashSize returns the current number of blocks in the stash
// (spec.md §6).
func (q *ObliviousQueue[V]) GetStashSize() int {
	q.eng.mu.Lock()
	defer q.eng.mu.Unlock()
	return q.eng.stashLen()
}

// TriggerFullEviction runs a full-tree eviction pass immediately
// (spec.md §6).
func (q *ObliviousQueue[V]) TriggerFullEviction() error {
	q.eng.mu.Lock()
	defer q.eng.mu.Unlock()
	if q.eng.closed {
		return ErrClosed
	}
	return q.eng.triggerFullEviction()
}

// IsEmergencyModeEnabled reports whether the structure is currently in
// the degraded emergency-mode state (spec.md §6).
func (q *ObliviousQueue[V]) IsEmergencyModeEnabled() bool {
	q.eng.mu.Lock()
	defer q.eng.mu.Unlock()
	return q.eng.isEmergencyModeEnabled()
}

// EnableEmergencyMode forces the emergency-mode flag, mainly for
// operational testing (spec.md §6).
func (q *ObliviousQueue[V]) EnableEmergencyMode(flag bool) {
	q.eng.mu.Lock()
	defer q.eng.mu.Unlock()
	q.eng.enableEmergencyMode(flag)
}

// Metrics returns the Prometheus collectors for this structure, for
// callers that want to register them with their own registry.
func (q *ObliviousQueue[V]) Metrics() []prometheus.Collector {
	return q.eng.metrics.Collectors()
}

// Close stops the background evictor and makes the queue unusable.
func (q *ObliviousQueue[V]) Close() {
	q.eng.close()
}
