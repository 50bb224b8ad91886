package iris

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bit-exact binary layout of the .iris container, per the external
// interfaces section of the format specification:
//
//	[FILE_HEADER]       fixed size, at offset 0
//	[TILE_BLOB]         variable, tile bytes packed contiguously
//	[TILE_OFFSETS]      array of {offset:u64, size:u32} per tile, per layer
//	[LAYER_EXTENTS]     array of {xTiles:u32, yTiles:u32, scale:f32, downsample:f32}
//	[TILE_TABLE_HEADER] offset, encoding, format, tiles_offset, layer_extents_offset, layers, width, height
//	[METADATA subblocks] ICC_profile?, associated_images[]?, attributes?, annotations?
//	[METADATA_HEADER]   codec_version, refs to subblocks, micronsPerPixel, magnification
//
// Blocks are written bottom-up (tiles -> tile offsets -> layer extents ->
// tile table header -> metadata subblocks -> metadata header -> file
// header), and the file header is written last so a half-written file is
// identifiable as invalid: any reader that can parse a FILE_HEADER is
// reading a file whose every other block already landed.

var magicBytes = [8]byte{'I', 'R', 'I', 'S', 'C', 'O', 'D', 'E'}

// FileHeaderSize is the fixed byte size of the FILE_HEADER block.
const FileHeaderSize = 8 + 8 + 4 + 8 + 8 // magic + file_size + revision + tile_table_offset + metadata_offset

const tileEntrySize = 8 + 4    // offset u64 + size u32
const layerExtentSize = 4 + 4 + 4 + 4 // xTiles + yTiles + scale + downsample
const tileTableHeaderSize = 8 + 1 + 1 + 8 + 8 + 4 + 4 + 4
const metadataHeaderSize = 6 /*version*/ + 8 + 8 /*icc*/ + 8 + 8 /*assoc images*/ + 8 + 8 /*attributes*/ + 8 + 8 /*annotations*/ + 4 + 4 /*um/mag*/

// FileHeader is the fixed-size recovery block at offset 0.
type FileHeader struct {
	FileSize        uint64
	Revision        uint32
	TileTableOffset uint64
	MetadataOffset  uint64
}

// IsIrisCodecFile is a quick signature sniff: does data begin with the Iris
// magic bytes and is it at least large enough to hold a FILE_HEADER.
func IsIrisCodecFile(data []byte) bool {
	if len(data) < FileHeaderSize {
		return false
	}
	for i, b := range magicBytes {
		if data[i] != b {
			return false
		}
	}
	return true
}

// EncodeFileHeader writes h into dst[0:FileHeaderSize].
func EncodeFileHeader(dst []byte, h FileHeader) error {
	if len(dst) < FileHeaderSize {
		return fmt.Errorf("iris: file header buffer too small: %d < %d", len(dst), FileHeaderSize)
	}
	copy(dst[0:8], magicBytes[:])
	binary.LittleEndian.PutUint64(dst[8:16], h.FileSize)
	binary.LittleEndian.PutUint32(dst[16:20], h.Revision)
	binary.LittleEndian.PutUint64(dst[20:28], h.TileTableOffset)
	binary.LittleEndian.PutUint64(dst[28:36], h.MetadataOffset)
	return nil
}

// DecodeFileHeader parses a FILE_HEADER from the start of data.
func DecodeFileHeader(data []byte) (FileHeader, error) {
	if !IsIrisCodecFile(data) {
		return FileHeader{}, fmt.Errorf("iris: not an Iris container (bad magic or short file)")
	}
	return FileHeader{
		FileSize:        binary.LittleEndian.Uint64(data[8:16]),
		Revision:        binary.LittleEndian.Uint32(data[16:20]),
		TileTableOffset: binary.LittleEndian.Uint64(data[20:28]),
		MetadataOffset:  binary.LittleEndian.Uint64(data[28:36]),
	}, nil
}

// SizeTileOffsets returns the byte size of the flattened TILE_OFFSETS block
// for a tile table shaped like extent.
func SizeTileOffsets(extent Extent) int {
	total := 0
	for _, l := range extent.Layers {
		total += l.TileCount()
	}
	return total * tileEntrySize
}

// EncodeTileOffsets writes every layer's tile entries, in layer then
// row-major tile order, into dst.
func EncodeTileOffsets(dst []byte, layers [][]TileEntry) error {
	need := 0
	for _, l := range layers {
		need += len(l) * tileEntrySize
	}
	if len(dst) < need {
		return fmt.Errorf("iris: tile offsets buffer too small: %d < %d", len(dst), need)
	}
	pos := 0
	for _, layer := range layers {
		for _, e := range layer {
			binary.LittleEndian.PutUint64(dst[pos:pos+8], e.Offset)
			binary.LittleEndian.PutUint32(dst[pos+8:pos+12], e.Size)
			pos += tileEntrySize
		}
	}
	return nil
}

// DecodeTileOffsets reads tile entries back into per-layer slices shaped by
// extent.
func DecodeTileOffsets(data []byte, extent Extent) ([][]TileEntry, error) {
	layers := make([][]TileEntry, len(extent.Layers))
	pos := 0
	for i, l := range extent.Layers {
		n := l.TileCount()
		if pos+n*tileEntrySize > len(data) {
			return nil, fmt.Errorf("iris: tile offsets block truncated at layer %d", i)
		}
		entries := make([]TileEntry, n)
		for j := 0; j < n; j++ {
			off := pos + j*tileEntrySize
			entries[j] = TileEntry{
				Offset: binary.LittleEndian.Uint64(data[off : off+8]),
				Size:   binary.LittleEndian.Uint32(data[off+8 : off+12]),
			}
		}
		layers[i] = entries
		pos += n * tileEntrySize
	}
	return layers, nil
}

// SizeLayerExtents returns the byte size of the LAYER_EXTENTS block.
func SizeLayerExtents(n int) int { return n * layerExtentSize }

func EncodeLayerExtents(dst []byte, layers []LayerExtent) error {
	need := len(layers) * layerExtentSize
	if len(dst) < need {
		return fmt.Errorf("iris: layer extents buffer too small: %d < %d", len(dst), need)
	}
	for i, l := range layers {
		off := i * layerExtentSize
		binary.LittleEndian.PutUint32(dst[off:off+4], l.XTiles)
		binary.LittleEndian.PutUint32(dst[off+4:off+8], l.YTiles)
		binary.LittleEndian.PutUint32(dst[off+8:off+12], math.Float32bits(l.Scale))
		binary.LittleEndian.PutUint32(dst[off+12:off+16], math.Float32bits(l.Downsample))
	}
	return nil
}

func DecodeLayerExtents(data []byte, n int) ([]LayerExtent, error) {
	need := n * layerExtentSize
	if len(data) < need {
		return nil, fmt.Errorf("iris: layer extents block truncated")
	}
	layers := make([]LayerExtent, n)
	for i := range layers {
		off := i * layerExtentSize
		layers[i] = LayerExtent{
			XTiles:     binary.LittleEndian.Uint32(data[off : off+4]),
			YTiles:     binary.LittleEndian.Uint32(data[off+4 : off+8]),
			Scale:      math.Float32frombits(binary.LittleEndian.Uint32(data[off+8 : off+12])),
			Downsample: math.Float32frombits(binary.LittleEndian.Uint32(data[off+12 : off+16])),
		}
	}
	return layers, nil
}

// TileTableHeader is the on-disk fixed block describing how to locate the
// tile offsets and layer extents blocks, plus the top-level pixel extent.
type TileTableHeader struct {
	Encoding           Encoding
	Format             Format
	TilesOffset        uint64
	LayerExtentsOffset uint64
	Layers             uint32
	Width              uint32
	Height             uint32
}

func EncodeTileTableHeader(dst []byte, h TileTableHeader, selfOffset uint64) error {
	if len(dst) < tileTableHeaderSize {
		return fmt.Errorf("iris: tile table header buffer too small")
	}
	binary.LittleEndian.PutUint64(dst[0:8], selfOffset)
	dst[8] = byte(h.Encoding)
	dst[9] = byte(h.Format)
	binary.LittleEndian.PutUint64(dst[10:18], h.TilesOffset)
	binary.LittleEndian.PutUint64(dst[18:26], h.LayerExtentsOffset)
	binary.LittleEndian.PutUint32(dst[26:30], h.Layers)
	binary.LittleEndian.PutUint32(dst[30:34], h.Width)
	binary.LittleEndian.PutUint32(dst[34:38], h.Height)
	return nil
}

func DecodeTileTableHeader(data []byte) (TileTableHeader, error) {
	if len(data) < tileTableHeaderSize {
		return TileTableHeader{}, fmt.Errorf("iris: tile table header truncated")
	}
	return TileTableHeader{
		Encoding:           Encoding(data[8]),
		Format:             Format(data[9]),
		TilesOffset:        binary.LittleEndian.Uint64(data[10:18]),
		LayerExtentsOffset: binary.LittleEndian.Uint64(data[18:26]),
		Layers:             binary.LittleEndian.Uint32(data[26:30]),
		Width:              binary.LittleEndian.Uint32(data[30:34]),
		Height:             binary.LittleEndian.Uint32(data[34:38]),
	}, nil
}

