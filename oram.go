package pathoram

import (
	"sync"

	"go.uber.org/zap"
)

// engine is the reusable Path-ORAM substrate spec.md §9 asks for: the
// tree, the stash, the position map, the mutex, and the background
// evictor, shared by ObliviousMap and ObliviousQueue. hasKeys
// distinguishes the two: a keyed engine (map mode) maintains a
// position map and enforces the uniqueness invariant on insert; a
// keyless engine (queue mode) never does either, and every access
// picks a fresh random leaf instead of consulting a position map.
type engine struct {
	name    string
	cfg     Config
	wm      Watermarks
	t       *tree
	storage Storage
	enc     Encryptor

	hasKeys bool
	posMap  map[string]int // nil when hasKeys is false

	mu            sync.Mutex
	st            *stash
	emergencyMode bool
	closed        bool

	logger  *zap.Logger
	metrics *engineMetrics
	evictor *evictor
}

// newEngine builds and starts an engine: the tree, stash, and
// position map are empty, and the background evictor goroutine is
// already running.
func newEngine(cfg Config, hasKeys bool, name string, logger *zap.Logger) (*engine, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = newLogger()
	}

	key, err := getProcessKey()
	if err != nil {
		return nil, err
	}
	enc, err := NewEncryptor(cfg.CipherSuite, key)
	if err != nil {
		return nil, err
	}

	numBuckets := (1 << (cfg.TreeHeight + 1)) - 1
	storage := NewInMemoryStorage(numBuckets, cfg.BucketCapacity)

	var posMap map[string]int
	if hasKeys {
		posMap = make(map[string]int)
	}

	e := &engine{
		name:    name,
		cfg:     cfg,
		wm:      cfg.watermarks(),
		t:       newTree(storage, cfg.TreeHeight),
		storage: storage,
		enc:     enc,
		hasKeys: hasKeys,
		posMap:  posMap,
		st:      newStash(),
		logger:  logger.Named(name),
		metrics: newEngineMetrics(name),
	}
	e.evictor = newEvictor(e)
	e.evictor.start()
	return e, nil
}

// Option configures an engine at construction time. Shared by
// NewObliviousMap and NewObliviousQueue.
type Option func(*engine)

// WithLogger overrides the default production zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *engine) {
		e.logger = logger.Named(e.name)
	}
}

// close stops the background evictor and marks the engine unusable.
// No operation may be issued after close begins (spec.md §4.5,
// "Termination").
func (e *engine) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.evictor.stop()
	_ = e.logger.Sync()
}

// encrypt/decrypt expose the engine's AEAD so Map/Queue wrappers
// never touch key material directly.
func (e *engine) encrypt(plaintext []byte) ([]byte, error) {
	return e.enc.Encrypt(plaintext)
}

func (e *engine) decrypt(ciphertext []byte) ([]byte, error) {
	return e.enc.Decrypt(ciphertext)
}

// randomLeaf draws a fresh uniformly random leaf in [0, 2^H).
func (e *engine) randomLeaf() (int, error) {
	return secureRandomIndex(e.t.numLeaves)
}

// stashLen returns the current stash size. Exported as
// ObliviousMap.GetStashSize/ObliviousQueue.GetStashSize (spec.md §6).
func (e *engine) stashLen() int {
	return e.st.Len()
}

// posGet/posSet/posDelete manage the engine-internal position map,
// keyed by the byte encoding of the application key. Keeping the
// canonical position map inside the engine (rather than split between
// engine and wrapper) is what lets remap-on-stuck and emergency-mode
// remapping (both run from accessPath, which does not know about the
// wrapper's K type) update a map block's assigned leaf without
// ever leaving the position map out of sync with the tree/stash —
// spec.md §3's position-map-correctness invariant, preserved even
// when the remap is not caller-initiated.
func (e *engine) posGet(key []byte) (int, bool) {
	leaf, ok := e.posMap[string(key)]
	return leaf, ok
}

func (e *engine) posSet(key []byte, leaf int) {
	e.posMap[string(key)] = leaf
}

func (e *engine) posDelete(key []byte) {
	delete(e.posMap, string(key))
}

func (e *engine) posSize() int {
	return len(e.posMap)
}

// readPathIntoStash implements spec.md §4.2's path read: every real
// block on the path moves into the stash and its slot becomes a
// dummy. After this call every bucket on path holds only dummies.
func (e *engine) readPathIntoStash(path []int) error {
	for _, idx := range path {
		bucket, err := e.storage.ReadBucket(idx)
		if err != nil {
			return err
		}
		changed := false
		for i := range bucket {
			if bucket[i].Valid {
				e.st.pushTail(bucket[i].clone())
				bucket[i] = dummyBlock()
				changed = true
			}
		}
		if changed {
			if err := e.storage.WriteBucket(idx, bucket); err != nil {
				return err
			}
		}
	}
	return nil
}

// accessPath performs one full Path-ORAM access for leaf: the
// pre-read overload check, the path read, the post-read emergency
// check, an operation-specific stash mutation, and the path
// write-back. mutate may be nil for a pure dummy access (lookup miss,
// or an access that only needs the read/write-back shape without
// touching stash contents).
func (e *engine) accessPath(leaf int, mutate func() error) error {
	if e.st.Len() >= e.wm.High {
		if err := e.fullEvictionLocked(e.cfg.NormalRoundLimit); err != nil {
			return err
		}
	}

	path := e.t.path(leaf)
	if err := e.readPathIntoStash(path); err != nil {
		return err
	}

	if e.st.Len() > e.wm.Critical {
		if err := e.enterEmergencyMode(); err != nil {
			return err
		}
	}

	if mutate != nil {
		if err := mutate(); err != nil {
			return err
		}
	}

	if err := e.writeBackPath(path); err != nil {
		return err
	}

	if err := e.agePersistentStashBlocks(); err != nil {
		return err
	}
	e.metrics.stashSize.Set(float64(e.st.Len()))

	if e.st.Len() > e.cfg.StashLimit {
		e.logger.Error("stash overflow after all measures",
			zap.Int("stash_size", e.st.Len()),
			zap.Int("stash_limit", e.cfg.StashLimit))
		return ErrStashOverflow
	}
	return nil
}

// triggerFullEviction is the public TriggerFullEviction primitive
// (spec.md §6): a stronger eviction over the whole tree, used
// standalone by callers and by Insert/Push once the stash is above the
// mid watermark. accessPath's pre-read overload check and the
// background evictor call fullEvictionLocked directly instead.
func (e *engine) triggerFullEviction() error {
	return e.fullEvictionLocked(e.cfg.NormalRoundLimit)
}

func (e *engine) isEmergencyModeEnabled() bool {
	return e.emergencyMode
}

func (e *engine) enableEmergencyMode(flag bool) {
	e.emergencyMode = flag
}
