package iris

// TileEntry is the byte location of one compressed tile inside the
// container.
type TileEntry struct {
	Offset uint64
	Size   uint32
}

func (e TileEntry) Valid() bool { return e.Offset != NullOffset && e.Size > 0 }

// TileTable is the per-layer array of tile entries plus the format/encoding
// the tiles were compressed with.
type TileTable struct {
	Format   Format
	Encoding Encoding
	Extent   Extent
	Layers   [][]TileEntry // Layers[i] has Extent.Layers[i].TileCount() entries
}

// Validate checks the structural invariant: layer count matches the extent,
// and each layer's entry count matches its tile grid.
func (t TileTable) Validate() Result {
	if res := t.Extent.Validate(); !res.OK() {
		return res
	}
	if len(t.Layers) != len(t.Extent.Layers) {
		return ResultValidationFailure("tile table has %d layers, extent has %d", len(t.Layers), len(t.Extent.Layers))
	}
	for i, layer := range t.Layers {
		want := t.Extent.Layers[i].TileCount()
		if len(layer) != want {
			return ResultValidationFailure("layer %d has %d tile entries, want %d", i, len(layer), want)
		}
	}
	return ResultOK()
}

// NewUninitializedTileTable allocates a tile table shaped to match extent,
// with every entry zeroed (NULL_OFFSET), ready for an encoder to fill in.
func NewUninitializedTileTable(format Format, encoding Encoding, extent Extent) TileTable {
	layers := make([][]TileEntry, len(extent.Layers))
	for i, l := range extent.Layers {
		layers[i] = make([]TileEntry, l.TileCount())
	}
	return TileTable{Format: format, Encoding: encoding, Extent: extent, Layers: layers}
}

// AllComplete reports whether every tile entry in the table has been
// written (offset/size both set).
func (t TileTable) AllComplete() bool {
	for _, layer := range t.Layers {
		for _, e := range layer {
			if !e.Valid() {
				return false
			}
		}
	}
	return true
}
