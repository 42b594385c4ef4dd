package pathoram

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ObliviousMap is the keyed insert/lookup structure spec.md §4.3
// describes, used for the router's FIB and PIT. It is generic over
// any comparable key K and any value V for which the caller supplies
// a byte codec — spec.md §6 only requires V be
// "byte-string-serializable"; asking for explicit marshal/unmarshal
// functions rather than an encoding.BinaryMarshaler-shaped type
// constraint avoids the pointer-receiver generics dance while staying
// exactly that general.
type ObliviousMap[K comparable, V any] struct {
	eng *engine

	marshal   func(V) ([]byte, error)
	unmarshal func([]byte) (V, error)
}

// NewObliviousMap builds a map with its own Path-ORAM tree, stash,
// and background evictor, already running.
func NewObliviousMap[K comparable, V any](
	name string,
	cfg Config,
	marshal func(V) ([]byte, error),
	unmarshal func([]byte) (V, error),
	opts ...Option,
) (*ObliviousMap[K, V], error) {
	eng, err := newEngine(cfg, true, name, nil)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(eng)
	}
	return &ObliviousMap[K, V]{eng: eng, marshal: marshal, unmarshal: unmarshal}, nil
}

func keyBytes[K comparable](k K) []byte {
	return []byte(fmt.Sprintf("%v", k))
}

// Insert stores k ↦ v, overwriting any prior value for k (spec.md
// §4.3). Like every Path-ORAM access it operates on whatever leaf is
// currently on record for k: that leaf's path is read (pulling any
// existing block for k off the tree and into the stash, wherever it
// actually lives), the stash's entry for k is replaced, and that same
// path is written back — only afterward does k's position-map entry
// move to a freshly drawn leaf. A key seen for the first time has
// nothing on the tree yet, so any random leaf serves as the access
// path. Above the mid watermark a full eviction follows.
func (m *ObliviousMap[K, V]) Insert(k K, v V) error {
	m.eng.mu.Lock()
	defer m.eng.mu.Unlock()

	if m.eng.closed {
		return ErrClosed
	}

	kb := keyBytes(k)
	plaintext, err := m.marshal(v)
	if err != nil {
		return fmt.Errorf("pathoram: marshal value for insert: %w", err)
	}
	ciphertext, err := m.eng.encrypt(plaintext)
	if err != nil {
		return err
	}

	accessLeaf, exists := m.eng.posGet(kb)
	if !exists {
		accessLeaf, err = m.eng.randomLeaf()
		if err != nil {
			return err
		}
	}

	newLeaf, err := m.eng.randomLeaf()
	if err != nil {
		return err
	}

	err = m.eng.accessPath(accessLeaf, func() error {
		if idx, _ := m.eng.st.findByKey(kb); idx >= 0 {
			m.eng.st.removeAt(idx)
		}
		m.eng.st.pushTail(Block{
			Valid:   true,
			Key:     kb,
			Payload: ciphertext,
			Leaf:    newLeaf,
		})
		return nil
	})
	if err != nil {
		return err
	}
	m.eng.posSet(kb, newLeaf)

	if m.eng.st.Len() > m.eng.wm.Mid {
		if err := m.eng.triggerFullEviction(); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the current value for k, or (zero, false) if k has
// never been inserted (spec.md §4.3). A miss still performs exactly
// one full path access on a random leaf, so a lookup's external
// trace never reveals whether k was present (spec.md §8, "Boundary
// behaviors").
func (m *ObliviousMap[K, V]) Lookup(k K) (V, bool, error) {
	m.eng.mu.Lock()
	defer m.eng.mu.Unlock()

	var zero V
	if m.eng.closed {
		return zero, false, ErrClosed
	}

	kb := keyBytes(k)
	leaf, exists := m.eng.posGet(kb)
	if !exists {
		dummyLeaf, err := m.eng.randomLeaf()
		if err != nil {
			return zero, false, err
		}
		if err := m.eng.accessPath(dummyLeaf, nil); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}

	var found bool
	var ciphertext []byte

	err := m.eng.accessPath(leaf, func() error {
		idx, blk := m.eng.st.findByKey(kb)
		if idx < 0 {
			return nil
		}
		found = true
		ciphertext = append([]byte(nil), blk.Payload...)

		newLeaf, err := m.eng.randomLeaf()
		if err != nil {
			return err
		}
		blk.Leaf = newLeaf
		blk.Attempts = 0
		m.eng.st.set(idx, blk)
		m.eng.posSet(kb, newLeaf)
		return nil
	})
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}

	plaintext, err := m.eng.decrypt(ciphertext)
	if err != nil {
		return zero, false, err
	}
	v, err := m.unmarshal(plaintext)
	if err != nil {
		return zero, false, fmt.Errorf("pathoram: unmarshal value for lookup: %w", err)
	}
	return v, true, nil
}

// GetStashSize returns the current number of blocks in the stash
// (spec.md §6).
func (m *ObliviousMap[K, V]) GetStashSize() int {
	m.eng.mu.Lock()
	defer m.eng.mu.Unlock()
	return m.eng.stashLen()
}

// TriggerFullEviction runs a full-tree eviction pass immediately
// (spec.md §6).
func (m *ObliviousMap[K, V]) TriggerFullEviction() error {
	m.eng.mu.Lock()
	defer m.eng.mu.Unlock()
	if m.eng.closed {
		return ErrClosed
	}
	return m.eng.triggerFullEviction()
}

// IsEmergencyModeEnabled reports whether the structure is currently
// in the degraded emergency-mode state (spec.md §6).
func (m *ObliviousMap[K, V]) IsEmergencyModeEnabled() bool {
	m.eng.mu.Lock()
	defer m.eng.mu.Unlock()
	return m.eng.isEmergencyModeEnabled()
}

// EnableEmergencyMode forces the emergency-mode flag, mainly for
// operational testing (spec.md §6).
func (m *ObliviousMap[K, V]) EnableEmergencyMode(flag bool) {
	m.eng.mu.Lock()
	defer m.eng.mu.Unlock()
	m.eng.enableEmergencyMode(flag)
}

// Metrics returns the Prometheus collectors for this structure, for
// callers that want to register them with their own registry.
func (m *ObliviousMap[K, V]) Metrics() []prometheus.Collector {
	return m.eng.metrics.Collectors()
}

// Close stops the background evictor and makes the map unusable.
func (m *ObliviousMap[K, V]) Close() {
	m.eng.close()
}
