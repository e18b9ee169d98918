// Package tiling partitions large N-dimensional rasters into rectangular
// tiles small enough to process in memory. Tiles are described by index
// ranges into the backing raster rather than materialized copies: the
// planner derives a uniform split factor from a pixel budget and builds
// per-axis boundary tables with optional overlap margins, and the accessor
// resolves linear or coordinate tile indices into full-rank slice
// specifications that are read on demand.
//
// The package also computes per-channel intensity bounds from a strided
// subsample of the raster, so that tiles can be normalized independently
// yet consistently across the whole dataset.
package tiling

import (
	"fmt"
	"math"

	"rastertile/pkg/raster"
)

// Raster is the read capability the tiler needs from a backing array:
// its shape, and region reads that are proportional in cost to the region.
// *raster.Handle satisfies it.
type Raster interface {
	Shape() []int
	ReadRegion([]raster.Range) (*raster.Array, error)
}

// Options configures a Tiler. Zero values select the defaults.
type Options struct {
	// TileAxes lists the axes to tile over. Negative values count from
	// the last axis. Default: the last two axes.
	TileAxes []int

	// ChannelAxis designates the channel axis used for per-channel
	// normalization. Negative values count from the last axis.
	// Default: none (global normalization).
	ChannelAxis *int

	// PixelMax is the maximum number of elements per tile before overlap
	// expansion. Default: 16e6.
	PixelMax float64

	// Overlap is the fractional area expansion applied jointly across the
	// tiled axes, extending every tile into its neighbors. Default: 0.
	Overlap float64

	// ScaleQuantile is the symmetric quantile used for the normalization
	// bounds: the low bound is the ScaleQuantile quantile and the high
	// bound the 1-ScaleQuantile quantile. Must be in [0, 0.5).
	// Default: 0.005.
	ScaleQuantile *float64
}

// Channel is a convenience for setting Options.ChannelAxis inline.
func Channel(axis int) *int {
	return &axis
}

// Quantile is a convenience for setting Options.ScaleQuantile inline.
func Quantile(q float64) *float64 {
	return &q
}

// plan holds the derived tiling state. It is replaced wholesale by
// Recompute and never mutated afterwards, so queries always see a
// consistent plan.
type plan struct {
	splitFactor int

	// table maps each tiled axis to its boundary pairs: table[axis][k] is
	// the [start, stop) range of segment k after margin expansion and
	// clamping. Untiled axes have a nil entry.
	table [][][2]int

	tileCount int
}

// Tiler plans and serves tiles of a backing raster.
//
// TileAxes, PixelMax, Overlap and ScaleQuantile may be modified after
// construction, but Recompute must be called before any further queries;
// until then the tiler still answers from the previous plan.
type Tiler struct {
	TileAxes      []int
	PixelMax      float64
	Overlap       float64
	ScaleQuantile float64

	handle  Raster
	shape   []int
	channel int // resolved channel axis, -1 when none

	plan   *plan
	bounds Bounds
}

// New builds a Tiler over r, applies defaults, validates the
// configuration, and computes the initial plan and normalization bounds.
func New(r Raster, opts Options) (*Tiler, error) {
	shape := r.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: raster has empty shape", ErrConfig)
	}

	tileAxes := opts.TileAxes
	if len(tileAxes) == 0 {
		tileAxes = []int{-2, -1}
	}
	pixelMax := opts.PixelMax
	if pixelMax == 0 {
		pixelMax = 16e6
	}
	quantile := 0.005
	if opts.ScaleQuantile != nil {
		quantile = *opts.ScaleQuantile
	}

	t := &Tiler{
		TileAxes:      tileAxes,
		PixelMax:      pixelMax,
		Overlap:       opts.Overlap,
		ScaleQuantile: quantile,
		handle:        r,
		shape:         shape,
		channel:       -1,
	}
	if opts.ChannelAxis != nil {
		ax, err := resolveAxis(*opts.ChannelAxis, len(shape))
		if err != nil {
			return nil, fmt.Errorf("channel axis: %w", err)
		}
		t.channel = ax
	}

	if err := t.Recompute(); err != nil {
		return nil, err
	}
	return t, nil
}

// resolveAxis normalizes a possibly-negative axis index into [0, rank).
func resolveAxis(axis, rank int) (int, error) {
	if axis < -rank || axis >= rank {
		return 0, fmt.Errorf("%w: axis %d does not exist in rank-%d shape", ErrConfig, axis, rank)
	}
	return (axis + rank) % rank, nil
}

// Recompute validates the current configuration and rebuilds the tiling
// plan and the normalization bounds. The previous plan is replaced
// atomically; indices issued against it are only meaningful under the new
// plan if the split factor is unchanged.
func (t *Tiler) Recompute() error {
	rank := len(t.shape)

	if len(t.TileAxes) == 0 {
		return fmt.Errorf("%w: no tile axes", ErrConfig)
	}
	axes := make([]int, len(t.TileAxes))
	seen := make(map[int]bool, len(t.TileAxes))
	for i, a := range t.TileAxes {
		ax, err := resolveAxis(a, rank)
		if err != nil {
			return fmt.Errorf("tile axes: %w", err)
		}
		if seen[ax] {
			return fmt.Errorf("%w: duplicate tile axis %d", ErrConfig, ax)
		}
		seen[ax] = true
		axes[i] = ax
	}
	t.TileAxes = axes

	if t.PixelMax <= 0 {
		return fmt.Errorf("%w: pixel budget %v must be positive", ErrConfig, t.PixelMax)
	}
	if t.Overlap < 0 {
		return fmt.Errorf("%w: overlap %v must be non-negative", ErrConfig, t.Overlap)
	}
	if t.ScaleQuantile < 0 || t.ScaleQuantile >= 0.5 {
		return fmt.Errorf("%w: scale quantile %v must be in [0, 0.5)", ErrConfig, t.ScaleQuantile)
	}

	t.plan = t.computePlan()

	bounds, err := t.computeBounds()
	if err != nil {
		return fmt.Errorf("computing normalization bounds: %w", err)
	}
	t.bounds = bounds
	return nil
}

// computePlan derives the split factor and the per-axis boundary tables
// from the current configuration. It is a pure function of shape and
// config and has no error paths: degenerate shapes with zero elements on
// a tiled axis yield a single empty segment with zero margin.
func (t *Tiler) computePlan() *plan {
	nAxes := float64(len(t.TileAxes))

	// The coarsest uniform grid whose core (pre-overlap) tile volume does
	// not exceed PixelMax/(1+Overlap), so the overlap-expanded tile stays
	// near PixelMax.
	total := 1.0
	for _, n := range t.shape {
		total *= float64(n)
	}
	sf := int(math.Ceil(math.Pow(total/(t.PixelMax/(1+t.Overlap)), 1/nAxes)))
	if sf < 1 {
		sf = 1
	}

	table := make([][][2]int, len(t.shape))
	for _, axis := range t.TileAxes {
		n := t.shape[axis]

		// Evenly spaced breakpoints from 0 to the axis extent, truncated
		// to integers, defining sf core segments.
		breaks := make([]int, sf+1)
		for k := 0; k <= sf; k++ {
			breaks[k] = int(float64(n) * float64(k) / float64(sf))
		}

		// The margin is derived from the first segment's width only and
		// applied uniformly along the axis. This approximation is part of
		// the observable tile boundaries; segment-exact margins would
		// shift them.
		margin := int((math.Pow(1+t.Overlap, 1/nAxes) - 1) * float64(breaks[1]))

		segments := make([][2]int, sf)
		for k := 0; k < sf; k++ {
			lo := breaks[k] - margin
			hi := breaks[k+1] + margin
			if lo < 0 {
				lo = 0
			}
			if hi > n {
				hi = n
			}
			segments[k] = [2]int{lo, hi}
		}
		table[axis] = segments
	}

	count := 1
	for range t.TileAxes {
		count *= sf
	}
	return &plan{splitFactor: sf, table: table, tileCount: count}
}

// Shape returns the backing raster's shape.
func (t *Tiler) Shape() []int {
	out := make([]int, len(t.shape))
	copy(out, t.shape)
	return out
}

// SplitFactor returns the number of segments each tiled axis is divided
// into under the current plan.
func (t *Tiler) SplitFactor() int {
	return t.plan.splitFactor
}

// Count returns the total number of tiles under the current plan,
// SplitFactor raised to the number of tiled axes.
func (t *Tiler) Count() int {
	return t.plan.tileCount
}

// ChannelAxis returns the resolved channel axis and whether one is set.
func (t *Tiler) ChannelAxis() (int, bool) {
	return t.channel, t.channel >= 0
}

// coords decodes a linear tile index into per-axis segment coordinates,
// row-major over the tiled axes in their configured order.
func (p *plan) coords(index int, nAxes int) []int {
	out := make([]int, nAxes)
	for j := nAxes - 1; j >= 0; j-- {
		out[j] = index % p.splitFactor
		index /= p.splitFactor
	}
	return out
}

// offsetFor builds the full-rank slice specification for the tile at the
// given per-axis coordinates: tiled axes take their boundary-table entry,
// all other axes their full extent.
func (t *Tiler) offsetFor(coords []int) ([]raster.Range, error) {
	p := t.plan
	spec := make([]raster.Range, len(t.shape))
	for i, n := range t.shape {
		spec[i] = raster.Full(n)
	}
	for j, axis := range t.TileAxes {
		c := coords[j]
		if c < 0 || c >= p.splitFactor {
			return nil, fmt.Errorf("%w: coordinate %d on axis %d (split factor %d)",
				ErrIndexRange, c, axis, p.splitFactor)
		}
		seg := p.table[axis][c]
		spec[axis] = raster.Range{Start: seg[0], Stop: seg[1], Step: 1}
	}
	return spec, nil
}

// Offset returns the slice specification of the tile with the given
// linear index: one range per axis of the raster's shape, in axis order.
// No data is read.
func (t *Tiler) Offset(index int) ([]raster.Range, error) {
	if index < 0 || index >= t.plan.tileCount {
		return nil, fmt.Errorf("%w: %d (have %d tiles)", ErrIndexRange, index, t.plan.tileCount)
	}
	return t.offsetFor(t.plan.coords(index, len(t.TileAxes)))
}

// OffsetAt is Offset for a coordinate tuple, one segment coordinate per
// tiled axis in the configured axis order.
func (t *Tiler) OffsetAt(coords []int) ([]raster.Range, error) {
	if len(coords) != len(t.TileAxes) {
		return nil, fmt.Errorf("%w: got %d coordinates for %d tile axes",
			ErrIndexLength, len(coords), len(t.TileAxes))
	}
	return t.offsetFor(coords)
}

// Tile reads the tile with the given linear index from the raster and
// returns it as an owned array. Nothing is cached; every call re-reads.
func (t *Tiler) Tile(index int) (*raster.Array, error) {
	spec, err := t.Offset(index)
	if err != nil {
		return nil, err
	}
	return t.handle.ReadRegion(spec)
}

// TileAt is Tile for a coordinate tuple.
func (t *Tiler) TileAt(coords []int) (*raster.Array, error) {
	spec, err := t.OffsetAt(coords)
	if err != nil {
		return nil, err
	}
	return t.handle.ReadRegion(spec)
}
