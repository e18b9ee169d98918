package tiling

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"rastertile/pkg/raster"
)

// Bounds holds the intensity scaling bounds derived from the raster's
// quantiles. Without a channel axis Min and Max hold a single global
// value; with one they hold one value per channel.
type Bounds struct {
	Min []float64
	Max []float64

	// PerChannel reports whether the bounds are indexed by channel.
	PerChannel bool
}

// Bounds returns the normalization bounds cached by the last Recompute.
func (t *Tiler) Bounds() Bounds {
	return t.bounds
}

// subsampleSpec builds the strided subsample selection used for the
// bounds: every SplitFactor-th element along tiled axes, full extent
// elsewhere. When channel is non-negative the channel axis is pinned to
// that single channel.
func (t *Tiler) subsampleSpec(channel int) []raster.Range {
	spec := make([]raster.Range, len(t.shape))
	for i, n := range t.shape {
		switch {
		case t.isTileAxis(i):
			spec[i] = raster.Range{Start: 0, Stop: n, Step: t.plan.splitFactor}
		case i == t.channel && channel >= 0:
			spec[i] = raster.Range{Start: channel, Stop: channel + 1, Step: 1}
		default:
			spec[i] = raster.Full(n)
		}
	}
	return spec
}

func (t *Tiler) isTileAxis(axis int) bool {
	for _, a := range t.TileAxes {
		if a == axis {
			return true
		}
	}
	return false
}

// computeBounds reads the strided subsample and takes its ScaleQuantile
// and 1-ScaleQuantile quantiles, once globally or once per channel.
// Striding by the split factor keeps the read cheap; the result is a
// representative approximation, reproducible only under the same split
// factor.
func (t *Tiler) computeBounds() (Bounds, error) {
	if t.channel < 0 {
		lo, hi, err := t.quantileBounds(t.subsampleSpec(-1))
		if err != nil {
			return Bounds{}, err
		}
		return Bounds{Min: []float64{lo}, Max: []float64{hi}}, nil
	}

	channels := t.shape[t.channel]
	b := Bounds{
		Min:        make([]float64, channels),
		Max:        make([]float64, channels),
		PerChannel: true,
	}
	for ch := 0; ch < channels; ch++ {
		lo, hi, err := t.quantileBounds(t.subsampleSpec(ch))
		if err != nil {
			return Bounds{}, fmt.Errorf("channel %d: %w", ch, err)
		}
		b.Min[ch], b.Max[ch] = lo, hi
	}
	return b, nil
}

func (t *Tiler) quantileBounds(spec []raster.Range) (lo, hi float64, err error) {
	arr, err := t.handle.ReadRegion(spec)
	if err != nil {
		return 0, 0, err
	}
	if len(arr.Data) == 0 {
		// Degenerate raster with a zero-extent axis; there is nothing to
		// scale, so leave zero bounds rather than failing the recompute.
		return 0, 0, nil
	}
	sort.Float64s(arr.Data)
	lo = stat.Quantile(t.ScaleQuantile, stat.LinInterp, arr.Data, nil)
	hi = stat.Quantile(1-t.ScaleQuantile, stat.LinInterp, arr.Data, nil)
	return lo, hi, nil
}

// Normalize scales arr in place to (value-min)/(max-min) using the cached
// bounds, per channel when a channel axis is configured. With trim the
// result is clamped into [0, 1]; without it values outside the quantile
// range may fall outside [0, 1].
//
// arr must be an owned array (for example a tile read by Tile); its rank
// must match the raster and, for per-channel bounds, its channel-axis
// extent must equal the raster's. A channel whose bounds collapse to a
// single value cannot be scaled and yields ErrDegenerateScale.
func (t *Tiler) Normalize(arr *raster.Array, trim bool) error {
	if !t.bounds.PerChannel {
		lo, hi := t.bounds.Min[0], t.bounds.Max[0]
		if hi == lo {
			return ErrDegenerateScale
		}
		scale(arr.Data, lo, hi, trim)
		return nil
	}

	if len(arr.Shape) != len(t.shape) {
		return fmt.Errorf("%w: array rank %d, raster rank %d", ErrShapeMismatch, len(arr.Shape), len(t.shape))
	}
	channels := t.shape[t.channel]
	if arr.Shape[t.channel] != channels {
		return fmt.Errorf("%w: channel axis %d has extent %d, want %d",
			ErrShapeMismatch, t.channel, arr.Shape[t.channel], channels)
	}
	for ch := 0; ch < channels; ch++ {
		if t.bounds.Max[ch] == t.bounds.Min[ch] {
			return fmt.Errorf("%w (channel %d)", ErrDegenerateScale, ch)
		}
	}

	stride := arr.Strides()[t.channel]
	for i, v := range arr.Data {
		ch := (i / stride) % channels
		lo, hi := t.bounds.Min[ch], t.bounds.Max[ch]
		v = (v - lo) / (hi - lo)
		if trim {
			v = clamp01(v)
		}
		arr.Data[i] = v
	}
	return nil
}

func scale(data []float64, lo, hi float64, trim bool) {
	d := hi - lo
	for i, v := range data {
		v = (v - lo) / d
		if trim {
			v = clamp01(v)
		}
		data[i] = v
	}
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
