package iris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildContainer assembles a minimal, valid .iris byte stream in memory,
// following the same bottom-up block layout writeContainerBlocks uses, so
// validation/abstraction logic can be tested without touching a real file.
func buildContainer(t *testing.T, extent Extent, tiles [][]byte, metadata Metadata) []byte {
	t.Helper()

	pos := uint64(FileHeaderSize)
	layers := make([][]TileEntry, len(extent.Layers))
	tileBytes := make([]byte, 0)
	idx := 0
	for li, l := range extent.Layers {
		entries := make([]TileEntry, l.TileCount())
		for ti := range entries {
			data := tiles[idx]
			entries[ti] = TileEntry{Offset: pos, Size: uint32(len(data))}
			tileBytes = append(tileBytes, data...)
			pos += uint64(len(data))
			idx++
		}
		layers[li] = entries
	}

	tileOffsetsOff := pos
	tileOffsetsBlock := make([]byte, SizeTileOffsets(extent))
	require.NoError(t, EncodeTileOffsets(tileOffsetsBlock, layers))
	pos += uint64(len(tileOffsetsBlock))

	layerExtentsOff := pos
	layerExtentsBlock := make([]byte, SizeLayerExtents(len(extent.Layers)))
	require.NoError(t, EncodeLayerExtents(layerExtentsBlock, extent.Layers))
	pos += uint64(len(layerExtentsBlock))

	tileTableHeaderOff := pos
	tth := TileTableHeader{
		Encoding:           EncodingIris,
		Format:             FormatR8G8B8,
		TilesOffset:        tileOffsetsOff,
		LayerExtentsOffset: layerExtentsOff,
		Layers:             uint32(len(extent.Layers)),
		Width:              extent.Width,
		Height:             extent.Height,
	}
	tthBlock := make([]byte, tileTableHeaderSize)
	require.NoError(t, EncodeTileTableHeader(tthBlock, tth, tileTableHeaderOff))
	pos += uint64(len(tthBlock))

	iccBlock := EncodeICCProfile(metadata.ICCProfile)
	iccOff := pos
	pos += uint64(len(iccBlock))

	imagesBlock := EncodeAssociatedImages(metadata.AssociatedImages)
	imagesOff := pos
	pos += uint64(len(imagesBlock))

	attrsBlock := EncodeAttributes(metadata.Attributes)
	attrsOff := pos
	pos += uint64(len(attrsBlock))

	annosBlock := EncodeAnnotations(metadata.AnnotationIDs, metadata.AnnotationGroups)
	annosOff := pos
	pos += uint64(len(annosBlock))

	metadataHeaderOff := pos
	mh := MetadataHeader{
		CodecVersion:    metadata.CodecVersion,
		ICCOffset:       iccOff,
		ICCSize:         uint64(len(iccBlock)),
		ImagesOffset:    imagesOff,
		ImagesSize:      uint64(len(imagesBlock)),
		AttrsOffset:     attrsOff,
		AttrsSize:       uint64(len(attrsBlock)),
		AnnosOffset:     annosOff,
		AnnosSize:       uint64(len(annosBlock)),
		MicronsPerPixel: metadata.MicronsPerPixel,
		Magnification:   metadata.Magnification,
	}
	mhBlock := make([]byte, metadataHeaderSize)
	require.NoError(t, EncodeMetadataHeader(mhBlock, mh))
	pos += uint64(len(mhBlock))

	totalSize := pos
	out := make([]byte, totalSize)
	w := uint64(FileHeaderSize)
	copy(out[w:], tileBytes)
	copy(out[tileOffsetsOff:], tileOffsetsBlock)
	copy(out[layerExtentsOff:], layerExtentsBlock)
	copy(out[tileTableHeaderOff:], tthBlock)
	copy(out[iccOff:], iccBlock)
	copy(out[imagesOff:], imagesBlock)
	copy(out[attrsOff:], attrsBlock)
	copy(out[annosOff:], annosBlock)
	copy(out[metadataHeaderOff:], mhBlock)

	fh := FileHeader{FileSize: totalSize, Revision: 1, TileTableOffset: tileTableHeaderOff, MetadataOffset: metadataHeaderOff}
	require.NoError(t, EncodeFileHeader(out, fh))
	return out
}

func smallExtent() Extent {
	return Extent{Width: 512, Height: 512, Layers: []LayerExtent{{XTiles: 2, YTiles: 2, Scale: 1, Downsample: 1}}}
}

func fourTiles() [][]byte {
	return [][]byte{{1, 1}, {2, 2, 2}, {3}, {4, 4, 4, 4}}
}

func TestValidateFileStructureValid(t *testing.T) {
	data := buildContainer(t, smallExtent(), fourTiles(), Metadata{MicronsPerPixel: 0.5, Magnification: 20})
	res := ValidateFileStructure(data)
	if !res.OK() {
		t.Fatalf("expected valid container, got %v", res)
	}
}

func TestValidateFileStructureBadMagic(t *testing.T) {
	assert.False(t, ValidateFileStructure(make([]byte, FileHeaderSize)).OK())
}

func TestValidateFileStructureSizeMismatch(t *testing.T) {
	data := buildContainer(t, smallExtent(), fourTiles(), Metadata{})
	truncated := data[:len(data)-1]
	// FileSize in the header now disagrees with len(truncated)
	res := ValidateFileStructure(truncated)
	assert.False(t, res.OK())
}

func TestAbstractFileStructure(t *testing.T) {
	metadata := Metadata{
		CodecVersion:     Version{Major: 1},
		MicronsPerPixel:  0.25,
		Magnification:    40,
		ICCProfile:       []byte{1, 2, 3},
		AssociatedImages: []AssociatedImage{{Label: "thumb", Width: 4, Height: 4, Bytes: []byte{9}}},
		Attributes:       Attributes{Type: MetadataI2S, Values: map[string][]byte{"grid": []byte("A1")}},
		AnnotationIDs:    []uint32{7},
		AnnotationGroups: []string{"tumor"},
	}
	data := buildContainer(t, smallExtent(), fourTiles(), metadata)

	abs, res := AbstractFileStructure(data)
	require.True(t, res.OK())
	assert.Equal(t, smallExtent(), abs.TileTable.Extent)
	assert.Equal(t, FormatR8G8B8, abs.TileTable.Format)
	assert.Equal(t, EncodingIris, abs.TileTable.Encoding)
	assert.Equal(t, []byte{1, 2, 3}, abs.Metadata.ICCProfile)
	assert.Equal(t, float32(0.25), abs.Metadata.MicronsPerPixel)
	assert.Equal(t, []string{"thumb"}, abs.Metadata.AssociatedImageLabels())
	assert.Equal(t, []byte("A1"), abs.Metadata.Attributes.Values["grid"])
	assert.Equal(t, []uint32{7}, abs.Metadata.AnnotationIDs)
}

func TestAbstractFileStructureInvalidPropagates(t *testing.T) {
	_, res := AbstractFileStructure(make([]byte, FileHeaderSize))
	assert.False(t, res.OK())
}

func TestValidateFileStructureOverlappingTilesRejected(t *testing.T) {
	data := buildContainer(t, smallExtent(), fourTiles(), Metadata{})
	header, err := DecodeFileHeader(data)
	require.NoError(t, err)
	tth, err := DecodeTileTableHeader(data[header.TileTableOffset:])
	require.NoError(t, err)
	layers, err := DecodeTileOffsets(data[tth.TilesOffset:], smallExtent())
	require.NoError(t, err)

	// force the second tile to fully overlap the first's byte range
	layers[0][1] = layers[0][0]
	overlapping := make([]byte, SizeTileOffsets(smallExtent()))
	require.NoError(t, EncodeTileOffsets(overlapping, layers))
	copy(data[tth.TilesOffset:], overlapping)

	res := ValidateFileStructure(data)
	assert.False(t, res.OK())
}
