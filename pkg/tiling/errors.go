package tiling

import "errors"

// Common errors
var (
	// ErrConfig reports an invalid tiling configuration: bad axis indices,
	// non-positive pixel budget, negative overlap, or a quantile outside
	// [0, 0.5).
	ErrConfig = errors.New("invalid tiling configuration")

	// ErrIndexRange reports a tile index outside the tile range, either a
	// linear index outside [0, Count) or a per-axis coordinate outside
	// [0, SplitFactor).
	ErrIndexRange = errors.New("index outside of tile range")

	// ErrIndexLength reports a coordinate tuple whose length does not
	// match the number of tiled axes.
	ErrIndexLength = errors.New("index length does not match tile axes")

	// ErrDegenerateScale reports normalization bounds with max == min,
	// for example a blank channel. Scaling such data would divide by
	// zero, so it is refused instead.
	ErrDegenerateScale = errors.New("degenerate intensity scale: max equals min")

	// ErrShapeMismatch reports an array whose layout is incompatible with
	// the raster the bounds were computed from.
	ErrShapeMismatch = errors.New("array shape does not match raster")
)
