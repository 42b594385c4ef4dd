package pathoram

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// writeBackPath fills free slots along path with eligible stash
// blocks, dispatching to the configured strategy (spec.md §4.2). Only
// map blocks are eligible for this placement: a map block's Leaf is
// the position map's record of where it lives, so placing it anywhere
// on its own leaf's path keeps that record accurate. A queue block has
// no position map and no per-block leaf identity, so it stays
// stash-resident after an ordinary push/pop; it only ever reaches the
// tree via a full eviction's root-only placement (see placeInRoot).
func (e *engine) writeBackPath(path []int) error {
	if !e.hasKeys {
		return nil
	}
	switch e.cfg.EvictionStrategy {
	case EvictGreedyByDepth:
		return e.evictGreedyByDepth(path)
	default:
		return e.evictLevelByLevel(path)
	}
}

// evictLevelByLevel walks path leaf-to-root; for each bucket's free
// slots it places the first stash block (in stash order) eligible
// for that bucket. This is the baseline strategy.
func (e *engine) evictLevelByLevel(path []int) error {
	for _, idx := range path {
		bucket, err := e.storage.ReadBucket(idx)
		if err != nil {
			return err
		}
		modified := false
		for slot := 0; slot < len(bucket); slot++ {
			if bucket[slot].Valid {
				continue
			}
			placedAt := -1
			for i := 0; i < e.st.Len(); i++ {
				b := e.st.at(i)
				if b.Valid && e.t.onPath(b.Leaf, idx) {
					bucket[slot] = b
					placedAt = i
					modified = true
					break
				}
			}
			if placedAt >= 0 {
				e.st.removeAt(placedAt)
			}
		}
		if modified {
			if err := e.storage.WriteBucket(idx, bucket); err != nil {
				return err
			}
		}
	}
	return nil
}

// evictGreedyByDepth places each stash block at the deepest bucket on
// path it is eligible for, minimizing stash residency (spec.md §4.2,
// "evict as deep as possible"). path is already ordered leaf-first.
func (e *engine) evictGreedyByDepth(path []int) error {
	buckets := make([]Bucket, len(path))
	for i, idx := range path {
		b, err := e.storage.ReadBucket(idx)
		if err != nil {
			return err
		}
		buckets[i] = b
	}

	i := 0
	for i < e.st.Len() {
		b := e.st.at(i)
		placed := false
		if b.Valid {
			for lvl, idx := range path {
				if !e.t.onPath(b.Leaf, idx) {
					continue
				}
				slot := buckets[lvl].freeSlot()
				if slot == -1 {
					continue
				}
				buckets[lvl][slot] = b
				e.st.removeAt(i)
				placed = true
				break
			}
		}
		if !placed {
			i++
		}
	}

	for i, idx := range path {
		if err := e.storage.WriteBucket(idx, buckets[i]); err != nil {
			return err
		}
	}
	return nil
}

// placeOnPath tries to place b into the first (deepest) bucket along
// path with a free slot. Used by full eviction for map blocks, where
// the only path worth trying for a given block is that block's own
// leaf's path — the one path a later Lookup on that key will actually
// read.
func (e *engine) placeOnPath(path []int, b Block) (bool, error) {
	for _, idx := range path {
		bucket, err := e.storage.ReadBucket(idx)
		if err != nil {
			return false, err
		}
		slot := bucket.freeSlot()
		if slot == -1 {
			continue
		}
		bucket[slot] = b
		if err := e.storage.WriteBucket(idx, bucket); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// placeInRoot tries to place b into the root bucket, the only tree
// location that lies on every possible future path. Used by full
// eviction for queue blocks: a queue block carries no leaf of its own
// (Push/Pop always draw a fresh independent random leaf), so the root
// is the only place it can be moved out of the stash without becoming
// unrecoverable by whichever leaf a later Pop happens to draw.
func (e *engine) placeInRoot(b Block) (bool, error) {
	bucket, err := e.storage.ReadBucket(rootBucketIndex)
	if err != nil {
		return false, err
	}
	slot := bucket.freeSlot()
	if slot == -1 {
		return false, nil
	}
	bucket[slot] = b
	if err := e.storage.WriteBucket(rootBucketIndex, bucket); err != nil {
		return false, err
	}
	return true, nil
}

// fullEvictionLocked runs a full-tree eviction: every stash block is
// tried against the one tree location it can safely occupy — a map
// block against its own leaf's path, deepest bucket first; a queue
// block against the root bucket only — for up to roundLimit rounds or
// until a round makes no progress (spec.md §4.2, §5's round-limit
// bound). It does not age or remap stuck blocks itself: remap-on-stuck
// runs once per engine access (see agePersistentStashBlocks), so a
// standalone full eviction with no intervening access is idempotent
// (spec.md §8, bag equality and the idempotence property).
func (e *engine) fullEvictionLocked(roundLimit int) error {
	for round := 0; round < roundLimit; round++ {
		progress := false
		i := 0
		for i < e.st.Len() {
			b := e.st.at(i)
			if !b.Valid {
				i++
				continue
			}
			var placed bool
			var err error
			if e.hasKeys {
				placed, err = e.placeOnPath(e.t.path(b.Leaf), b)
			} else {
				placed, err = e.placeInRoot(b)
			}
			if err != nil {
				return err
			}
			if placed {
				e.st.removeAt(i)
				progress = true
			} else {
				i++
			}
		}
		if !progress {
			break
		}
	}
	e.metrics.stashSize.Set(float64(e.st.Len()))
	return nil
}

// agePersistentStashBlocks increments every remaining stash block's
// attempt counter and eagerly remaps (fresh leaf, counter reset) any
// block that has now exceeded MaxEvictionAttempts — spec.md §4.2's
// remap-on-stuck policy. It is called exactly once per engine access,
// from accessPath's own write-back, never from fullEvictionLocked: a
// block's age reflects how many real accesses it has survived
// unplaced, not how many eviction rounds or how many times a caller
// happened to invoke TriggerFullEviction.
func (e *engine) agePersistentStashBlocks() error {
	for i := 0; i < e.st.Len(); i++ {
		b := e.st.at(i)
		if !b.Valid {
			continue
		}
		b.Attempts++
		if b.Attempts > e.cfg.MaxEvictionAttempts {
			newLeaf, err := e.randomLeaf()
			if err != nil {
				return err
			}
			b.Leaf = newLeaf
			b.Attempts = 0
			if e.hasKeys && b.Key != nil {
				e.posSet(b.Key, newLeaf)
			}
			e.metrics.remaps.Inc()
		}
		e.st.set(i, b)
	}
	return nil
}

// enterEmergencyMode implements spec.md §4.2's staged degradation:
// remap everything and run a hard full eviction; if the stash is
// still above the critical watermark, drop the least important
// blocks (if the deployment allows it); if it's still above critical,
// grow the stash limit by 20% as a last resort. Entry is logged and
// counted — emergency mode is an explicit, documented relaxation of
// obliviousness (spec.md §4.2's closing paragraph), never a silent
// one.
func (e *engine) enterEmergencyMode() error {
	incident := uuid.New()
	e.emergencyMode = true
	e.metrics.emergencyEntries.Inc()
	e.logger.Warn("entering emergency mode",
		zap.String("incident_id", incident.String()),
		zap.String("structure", e.name),
		zap.Int("stash_size", e.st.Len()),
		zap.Int("critical_watermark", e.wm.Critical))

	if err := e.remapAllStashBlocks(); err != nil {
		return err
	}
	if err := e.fullEvictionLocked(e.cfg.EmergencyRoundLimit); err != nil {
		return err
	}
	if e.st.Len() <= e.wm.Critical {
		return nil
	}

	if e.cfg.EmergencyDropsAllowed {
		e.dropLowestPriorityBlocks(incident)
		if e.st.Len() <= e.wm.Critical {
			return nil
		}
	}

	e.growStashLimit(incident)
	return nil
}

// remapAllStashBlocks assigns every stash block a fresh random leaf,
// the first step of emergency mode.
func (e *engine) remapAllStashBlocks() error {
	for i := 0; i < e.st.Len(); i++ {
		b := e.st.at(i)
		if !b.Valid {
			continue
		}
		newLeaf, err := e.randomLeaf()
		if err != nil {
			return err
		}
		b.Leaf = newLeaf
		b.Attempts = 0
		if e.hasKeys && b.Key != nil {
			e.posSet(b.Key, newLeaf)
		}
		e.st.set(i, b)
	}
	return nil
}

// dropLowestPriorityBlocks removes blocks from the stash, least
// important first (Priority ascending means more important; we drop
// the highest Priority values first), breaking ties by dropping the
// most-stuck block (highest Attempts) first, until the stash is back
// at or under the critical watermark. Removing a map block also
// deletes its position-map entry — spec.md §4.2 step 2, "removing b
// also invalidates any external position-map entry for b.key".
func (e *engine) dropLowestPriorityBlocks(incident uuid.UUID) {
	blocks := e.st.all()

	type indexed struct {
		idx int
		b   Block
	}
	items := make([]indexed, len(blocks))
	for i, b := range blocks {
		items[i] = indexed{i, b}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].b.Priority != items[j].b.Priority {
			return items[i].b.Priority > items[j].b.Priority
		}
		return items[i].b.Attempts > items[j].b.Attempts
	})

	drop := make(map[int]bool, len(items))
	remaining := len(blocks)
	for _, it := range items {
		if remaining <= e.wm.Critical {
			break
		}
		drop[it.idx] = true
		remaining--
		if e.hasKeys && it.b.Key != nil {
			e.posDelete(it.b.Key)
		}
		e.metrics.droppedBlocks.Inc()
		e.logger.Warn("emergency mode dropped block",
			zap.String("incident_id", incident.String()),
			zap.String("structure", e.name),
			zap.Int("priority", it.b.Priority),
			zap.Int("attempts", it.b.Attempts))
	}

	kept := make([]Block, 0, remaining)
	for i, b := range blocks {
		if !drop[i] {
			kept = append(kept, b)
		}
	}
	e.st.replaceAll(kept)
}

// growStashLimit is the last-resort emergency measure: widen the
// stash's soft limit (and the watermarks derived from it) by 20%
// rather than failing outright.
func (e *engine) growStashLimit(incident uuid.UUID) {
	old := e.cfg.StashLimit
	grown := int(float64(old) * 1.2)
	if grown <= old {
		grown = old + 1
	}
	e.cfg.StashLimit = grown
	e.wm = e.cfg.watermarks()
	e.logger.Warn("grew stash limit under sustained overload",
		zap.String("incident_id", incident.String()),
		zap.String("structure", e.name),
		zap.Int("old_limit", old),
		zap.Int("new_limit", e.cfg.StashLimit))
}
