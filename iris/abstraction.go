package iris

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// Abstraction is the runtime, parsed view of a container: produced once per
// open and immutable thereafter. All offsets inside have been validated
// against the file's byte length.
type Abstraction struct {
	Header    FileHeader
	TileTable TileTable
	Metadata  Metadata
}

// ValidateFileStructure walks every offset referenced by the container and
// range-checks it against data's length, per the validation rules in the
// external interfaces section: every offset must land in
// [FileHeaderSize, file_size), every array length must fit, and the total
// tile count must equal the sum of xTiles*yTiles across layers.
//
// Overlap detection between tile byte ranges is done with a roaring64
// bitmap over 4KiB-rounded byte pages; a tile touching a page already in
// the bitmap is then compared against every other entry's exact byte range
// (pageSharedAtBoundary), so tiles packed into shared pages still cost a
// scan of all entries each. This generalizes the bitmap-backed coverage check the teacher corpus uses for
// tile-set membership (pmtiles' cluster/bitmap code) to a non-geospatial
// byte-range overlap check.
func ValidateFileStructure(data []byte) Result {
	if !IsIrisCodecFile(data) {
		return ResultValidationFailure("missing or invalid Iris magic bytes")
	}
	header, err := DecodeFileHeader(data)
	if err != nil {
		return ResultValidationFailure("%v", err)
	}
	size := uint64(len(data))
	if header.FileSize != size {
		return ResultValidationFailure("header file_size %d does not match actual length %d", header.FileSize, size)
	}
	if header.TileTableOffset < FileHeaderSize || header.TileTableOffset >= size {
		return ResultValidationFailure("tile_table_offset %d out of range", header.TileTableOffset)
	}
	if header.MetadataOffset < FileHeaderSize || header.MetadataOffset >= size {
		return ResultValidationFailure("metadata_offset %d out of range", header.MetadataOffset)
	}

	ttHeader, err := DecodeTileTableHeader(data[header.TileTableOffset:])
	if err != nil {
		return ResultValidationFailure("%v", err)
	}
	if ttHeader.LayerExtentsOffset < FileHeaderSize || ttHeader.LayerExtentsOffset >= size {
		return ResultValidationFailure("layer_extents_offset %d out of range", ttHeader.LayerExtentsOffset)
	}
	if ttHeader.TilesOffset < FileHeaderSize || ttHeader.TilesOffset >= size {
		return ResultValidationFailure("tiles_offset %d out of range", ttHeader.TilesOffset)
	}
	layerExtentsEnd := ttHeader.LayerExtentsOffset + uint64(SizeLayerExtents(int(ttHeader.Layers)))
	if layerExtentsEnd > size {
		return ResultValidationFailure("layer extents block overruns file")
	}
	layers, err := DecodeLayerExtents(data[ttHeader.LayerExtentsOffset:], int(ttHeader.Layers))
	if err != nil {
		return ResultValidationFailure("%v", err)
	}
	extent := Extent{Width: ttHeader.Width, Height: ttHeader.Height, Layers: layers}
	if res := extent.Validate(); !res.OK() {
		return res
	}

	tileOffsetsSize := SizeTileOffsets(extent)
	if ttHeader.TilesOffset+uint64(tileOffsetsSize) > size {
		return ResultValidationFailure("tile offsets block overruns file")
	}
	tileLayers, err := DecodeTileOffsets(data[ttHeader.TilesOffset:], extent)
	if err != nil {
		return ResultValidationFailure("%v", err)
	}

	bitmap := roaring64.New()
	const pageShift = 12 // 4 KiB pages; collapses adjacent tiles into few bits
	for li, layer := range tileLayers {
		for ti, e := range layer {
			if e.Offset == NullOffset && e.Size == 0 {
				continue // not yet written; only disallowed post-encode by AllComplete
			}
			if e.Offset < FileHeaderSize || e.Offset+uint64(e.Size) > size {
				return ResultValidationFailure("layer %d tile %d entry out of range: offset=%d size=%d", li, ti, e.Offset, e.Size)
			}
			startPage := e.Offset >> pageShift
			endPage := (e.Offset + uint64(e.Size) - 1) >> pageShift
			for p := startPage; p <= endPage; p++ {
				if bitmap.Contains(p) && !pageSharedAtBoundary(tileLayers, li, ti, p, pageShift) {
					return ResultValidationFailure("tile byte ranges overlap at page %d", p)
				}
				bitmap.Add(p)
			}
		}
	}

	return ResultOK()
}

// pageSharedAtBoundary allows two tiles to both touch the same 4KiB page
// only when they are genuinely adjacent (one's end page is the other's
// start page) rather than actually overlapping; a coarse per-page bitmap
// would otherwise false-positive on tiles that merely share a boundary
// page. Re-derives the exact byte ranges of the tiles bordering page p and
// checks for true overlap.
func pageSharedAtBoundary(layers [][]TileEntry, li, ti int, page uint64, pageShift uint) bool {
	cur := layers[li][ti]
	curStart, curEnd := cur.Offset, cur.Offset+uint64(cur.Size)
	for lj, layer := range layers {
		for tj, other := range layer {
			if lj == li && tj == ti {
				continue
			}
			if other.Offset == NullOffset && other.Size == 0 {
				continue
			}
			oStart, oEnd := other.Offset, other.Offset+uint64(other.Size)
			if (oStart>>pageShift) <= page && page <= ((oEnd-1)>>pageShift) {
				if curStart < oEnd && oStart < curEnd {
					return false // genuine overlap
				}
			}
		}
	}
	return true
}

// AbstractFileStructure parses a validated container into its runtime view.
func AbstractFileStructure(data []byte) (Abstraction, Result) {
	if res := ValidateFileStructure(data); !res.OK() {
		return Abstraction{}, res
	}
	header, _ := DecodeFileHeader(data)
	ttHeader, err := DecodeTileTableHeader(data[header.TileTableOffset:])
	if err != nil {
		return Abstraction{}, ResultValidationFailure("%v", err)
	}
	layers, err := DecodeLayerExtents(data[ttHeader.LayerExtentsOffset:], int(ttHeader.Layers))
	if err != nil {
		return Abstraction{}, ResultValidationFailure("%v", err)
	}
	extent := Extent{Width: ttHeader.Width, Height: ttHeader.Height, Layers: layers}
	tileLayers, err := DecodeTileOffsets(data[ttHeader.TilesOffset:], extent)
	if err != nil {
		return Abstraction{}, ResultValidationFailure("%v", err)
	}
	tileTable := TileTable{Format: ttHeader.Format, Encoding: ttHeader.Encoding, Extent: extent, Layers: tileLayers}

	metadata, err := decodeMetadataBlock(data, header.MetadataOffset)
	if err != nil {
		return Abstraction{}, ResultValidationFailure("%v", err)
	}

	return Abstraction{Header: header, TileTable: tileTable, Metadata: metadata}, ResultOK()
}

// decodeMetadataBlock reads the METADATA_HEADER at metadataOffset and then
// each referenced subblock.
func decodeMetadataBlock(data []byte, metadataOffset uint64) (Metadata, error) {
	if metadataOffset+metadataHeaderSize > uint64(len(data)) {
		return Metadata{}, fmt.Errorf("iris: metadata header overruns file")
	}
	mh, err := DecodeMetadataHeader(data[metadataOffset:])
	if err != nil {
		return Metadata{}, err
	}
	m := Metadata{
		CodecVersion:    mh.CodecVersion,
		MicronsPerPixel: mh.MicronsPerPixel,
		Magnification:   mh.Magnification,
	}
	if mh.ICCSize > 0 {
		if mh.ICCOffset+mh.ICCSize > uint64(len(data)) {
			return Metadata{}, fmt.Errorf("iris: ICC profile block overruns file")
		}
		icc, _, err := DecodeICCProfile(data[mh.ICCOffset:])
		if err != nil {
			return Metadata{}, err
		}
		m.ICCProfile = icc
	}
	if mh.ImagesSize > 0 {
		if mh.ImagesOffset+mh.ImagesSize > uint64(len(data)) {
			return Metadata{}, fmt.Errorf("iris: associated images block overruns file")
		}
		images, _, err := DecodeAssociatedImages(data[mh.ImagesOffset:])
		if err != nil {
			return Metadata{}, err
		}
		m.AssociatedImages = images
	}
	if mh.AttrsSize > 0 {
		if mh.AttrsOffset+mh.AttrsSize > uint64(len(data)) {
			return Metadata{}, fmt.Errorf("iris: attributes block overruns file")
		}
		attrs, _, err := DecodeAttributes(data[mh.AttrsOffset:])
		if err != nil {
			return Metadata{}, err
		}
		m.Attributes = attrs
	}
	if mh.AnnosSize > 0 {
		if mh.AnnosOffset+mh.AnnosSize > uint64(len(data)) {
			return Metadata{}, fmt.Errorf("iris: annotations block overruns file")
		}
		ids, groups, _, err := DecodeAnnotations(data[mh.AnnosOffset:])
		if err != nil {
			return Metadata{}, err
		}
		m.AnnotationIDs = ids
		m.AnnotationGroups = groups
	}
	return m, nil
}
