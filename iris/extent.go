package iris

import "fmt"

// LayerExtent describes one resolution level of the tile pyramid.
type LayerExtent struct {
	XTiles     uint32
	YTiles     uint32
	Scale      float32 // relative to layer 0 (the lowest-resolution layer)
	Downsample float32 // relative to the highest-resolution layer
}

func (l LayerExtent) TileCount() int {
	return int(l.XTiles) * int(l.YTiles)
}

// Extent is the full set of layer geometries for a slide, ordered from
// lowest to highest resolution.
type Extent struct {
	Width  uint32
	Height uint32
	Layers []LayerExtent
}

// Validate checks the ordering invariants described for Extent: layers run
// lowest to highest resolution, the front layer has scale 1, the back layer
// has downsample 1, and both tile axes are non-decreasing across layers.
func (e Extent) Validate() Result {
	if len(e.Layers) == 0 {
		return ResultValidationFailure("extent has no layers")
	}
	if e.Layers[0].Scale != 1 {
		return ResultValidationFailure("front layer scale must be 1, got %v", e.Layers[0].Scale)
	}
	if e.Layers[len(e.Layers)-1].Downsample != 1 {
		return ResultValidationFailure("back layer downsample must be 1, got %v", e.Layers[len(e.Layers)-1].Downsample)
	}
	for i := 1; i < len(e.Layers); i++ {
		prev, cur := e.Layers[i-1], e.Layers[i]
		if cur.XTiles < prev.XTiles || cur.YTiles < prev.YTiles {
			return ResultValidationFailure("layer %d tile grid is smaller than layer %d", i, i-1)
		}
	}
	return ResultOK()
}

// DeriveExtent generates the full pyramid layer sequence for a derivation
// run given the source (highest-resolution) extent and strategy. Layers run
// from the fully-downsampled top (1x1 tile) down to the source resolution.
//
// Grounded on IrisCodecDeriveLayers.cpp's GENERATE_DERIVED_EXTENT: repeatedly
// shift (xTiles, yTiles) right by the per-step bit count, adding 1 when the
// residual is nonzero so a partial tile at the edge is still counted, until
// both axes are at most one tile, so the front layer is 1x1 and a 1x1 source
// gets no duplicate 1x1 layer; the resulting layer list is then reversed
// into lowest-to-highest order.
func DeriveExtent(src Extent, strategy DerivationStrategy) (Extent, error) {
	if strategy == DeriveUseSource {
		return src, nil
	}
	if len(src.Layers) == 0 {
		return Extent{}, fmt.Errorf("iris: source extent has no layers")
	}
	srcFront := src.Layers[len(src.Layers)-1] // highest-resolution layer

	var shift uint
	var step float32
	switch strategy {
	case Derive2x:
		shift, step = 1, 2
	case Derive4x:
		shift, step = 2, 4
	default:
		return Extent{}, fmt.Errorf("iris: unknown derivation strategy %d", strategy)
	}

	type dims struct{ x, y uint32 }
	levels := []dims{{srcFront.XTiles, srcFront.YTiles}}
	for {
		last := levels[len(levels)-1]
		if last.x <= 1 && last.y <= 1 {
			break
		}
		nx := last.x >> shift
		if last.x&((1<<shift)-1) != 0 {
			nx++
		}
		ny := last.y >> shift
		if last.y&((1<<shift)-1) != 0 {
			ny++
		}
		levels = append(levels, dims{nx, ny})
		if nx <= 1 && ny <= 1 {
			break
		}
	}

	// levels runs highest-resolution first; reverse to lowest-first order,
	// assigning downsample 1 to the back (highest-resolution) layer and
	// increasing powers of step toward the front (lowest-resolution) layer,
	// per Extent.Validate's back-layer-downsample-1 invariant.
	n := len(levels)
	layers := make([]LayerExtent, n)
	downsample := float32(1)
	for i := n - 1; i >= 0; i-- {
		src := levels[n-1-i]
		layers[i] = LayerExtent{
			XTiles:     src.x,
			YTiles:     src.y,
			Downsample: downsample,
		}
		downsample *= step
	}
	frontDownsample := layers[0].Downsample
	for i := range layers {
		layers[i].Scale = frontDownsample / layers[i].Downsample
	}

	// Width/height are layer-0 (smallest, most-downsampled layer)
	// dimensions, per IrisCodecDeriveLayers.cpp: divide by the newly
	// derived front layer's downsample, then rescale by the source's own
	// front-layer downsample so re-deriving an already-layered source
	// still lands on the right pixel dimensions.
	srcFrontDownsample := src.Layers[0].Downsample
	frontDownsampleOut := layers[0].Downsample
	newWidth := roundToUint32(float64(src.Width) / float64(frontDownsampleOut) * float64(srcFrontDownsample))
	newHeight := roundToUint32(float64(src.Height) / float64(frontDownsampleOut) * float64(srcFrontDownsample))

	return Extent{Width: newWidth, Height: newHeight, Layers: layers}, nil
}

func roundToUint32(v float64) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v + 0.5)
}
