package tiling

import "rastertile/pkg/raster"

// iterMode selects what an Iter materializes per step.
type iterMode int

const (
	iterTiles iterMode = iota
	iterOffsets
	iterSplit
)

// Iter walks the tiles of a Tiler in ascending linear-index order. Each
// element is recomputed from its index on demand against the tiler's
// current plan, so an Iter restarted with Reset after a Recompute yields
// the new tiling, never a stale one.
//
// Usage follows the scanner idiom:
//
//	it := t.Split()
//	for it.Next() {
//		process(it.Index(), it.Tile(), it.Offset())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iter struct {
	t    *Tiler
	mode iterMode

	next int
	idx  int

	tile   *raster.Array
	offset []raster.Range
	failed error
}

// Tiles returns an iterator yielding each tile's data. Every step performs
// one region read.
func (t *Tiler) Tiles() *Iter {
	return &Iter{t: t, mode: iterTiles, idx: -1}
}

// Offsets returns an iterator yielding each tile's slice specification.
// No data is read.
func (t *Tiler) Offsets() *Iter {
	return &Iter{t: t, mode: iterOffsets, idx: -1}
}

// Split returns an iterator yielding each tile's data together with its
// slice specification.
func (t *Tiler) Split() *Iter {
	return &Iter{t: t, mode: iterSplit, idx: -1}
}

// Next advances to the next tile. It returns false when the sequence is
// exhausted or a read failed; Err distinguishes the two.
func (it *Iter) Next() bool {
	if it.failed != nil {
		return false
	}
	if it.next >= it.t.Count() {
		return false
	}
	it.idx = it.next
	it.next++
	it.tile, it.offset = nil, nil

	if it.mode != iterTiles {
		off, err := it.t.Offset(it.idx)
		if err != nil {
			it.failed = err
			return false
		}
		it.offset = off
	}
	if it.mode != iterOffsets {
		tile, err := it.t.Tile(it.idx)
		if err != nil {
			it.failed = err
			return false
		}
		it.tile = tile
	}
	return true
}

// Index returns the linear index of the current tile.
func (it *Iter) Index() int {
	return it.idx
}

// Tile returns the current tile's data, or nil for an offsets-only
// iterator.
func (it *Iter) Tile() *raster.Array {
	return it.tile
}

// Offset returns the current tile's slice specification, or nil for a
// tiles-only iterator.
func (it *Iter) Offset() []raster.Range {
	return it.offset
}

// Err returns the first error encountered by Next, if any.
func (it *Iter) Err() error {
	return it.failed
}

// Reset rewinds the iterator so the sequence can be walked again, against
// whatever plan the tiler holds at that point.
func (it *Iter) Reset() {
	it.next = 0
	it.idx = -1
	it.tile, it.offset = nil, nil
	it.failed = nil
}
