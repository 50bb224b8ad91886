package iris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICCProfileRoundtrip(t *testing.T) {
	icc := []byte{1, 2, 3, 4, 5}
	block := EncodeICCProfile(icc)
	got, n, err := DecodeICCProfile(block)
	require.NoError(t, err)
	assert.Equal(t, icc, got)
	assert.Equal(t, len(block), n)
}

func TestICCProfileRoundtripEmpty(t *testing.T) {
	block := EncodeICCProfile(nil)
	got, n, err := DecodeICCProfile(block)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 4, n)
}

func TestDecodeICCProfileTruncated(t *testing.T) {
	_, _, err := DecodeICCProfile([]byte{1, 2})
	assert.Error(t, err)
}

func TestAssociatedImagesRoundtrip(t *testing.T) {
	images := []AssociatedImage{
		{Label: "label", Width: 200, Height: 100, Encoding: ImageEncodingPNG, SourceFormat: FormatR8G8B8, Orientation: Orientation90, Bytes: []byte{9, 9, 9}},
		{Label: "macro", Width: 50, Height: 50, Encoding: ImageEncodingJPEG, SourceFormat: FormatB8G8R8A8, Orientation: Orientation0, Bytes: []byte{1}},
	}
	block := EncodeAssociatedImages(images)
	got, n, err := DecodeAssociatedImages(block)
	require.NoError(t, err)
	assert.Equal(t, len(block), n)
	require.Len(t, got, 2)
	assert.Equal(t, images[0].Label, got[0].Label)
	assert.Equal(t, images[0].Width, got[0].Width)
	assert.Equal(t, images[0].Orientation, got[0].Orientation)
	assert.Equal(t, images[0].Bytes, got[0].Bytes)
	assert.Equal(t, images[1].Label, got[1].Label)
	assert.Equal(t, images[1].Encoding, got[1].Encoding)
}

func TestAssociatedImagesRoundtripEmpty(t *testing.T) {
	block := EncodeAssociatedImages(nil)
	got, n, err := DecodeAssociatedImages(block)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 4, n)
}

func TestDecodeAssociatedImagesTruncated(t *testing.T) {
	_, _, err := DecodeAssociatedImages([]byte{1, 2})
	assert.Error(t, err)
}

func TestAttributesRoundtrip(t *testing.T) {
	a := NewAttributes(MetadataDICOM)
	a.Version = 3
	a.Values["patient_id"] = []byte("12345")
	a.Values["grid"] = []byte("A1")

	block := EncodeAttributes(a)
	got, n, err := DecodeAttributes(block)
	require.NoError(t, err)
	assert.Equal(t, len(block), n)
	assert.Equal(t, a.Type, got.Type)
	assert.Equal(t, a.Version, got.Version)
	assert.Equal(t, a.Values, got.Values)
}

func TestDecodeAttributesTruncated(t *testing.T) {
	_, _, err := DecodeAttributes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAnnotationsRoundtrip(t *testing.T) {
	ids := []uint32{1, 2, 3}
	groups := []string{"tumor", "stroma"}
	block := EncodeAnnotations(ids, groups)
	gotIDs, gotGroups, n, err := DecodeAnnotations(block)
	require.NoError(t, err)
	assert.Equal(t, len(block), n)
	assert.Equal(t, ids, gotIDs)
	assert.Equal(t, groups, gotGroups)
}

func TestAnnotationsRoundtripEmpty(t *testing.T) {
	block := EncodeAnnotations(nil, nil)
	ids, groups, _, err := DecodeAnnotations(block)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, groups)
}

func TestDecodeAnnotationsTruncated(t *testing.T) {
	_, _, _, err := DecodeAnnotations([]byte{1})
	assert.Error(t, err)
}

func TestMetadataHeaderRoundtrip(t *testing.T) {
	h := MetadataHeader{
		CodecVersion:    Version{Major: 1, Minor: 2, Build: 3},
		ICCOffset:       100,
		ICCSize:         10,
		ImagesOffset:    200,
		ImagesSize:      20,
		AttrsOffset:     300,
		AttrsSize:       30,
		AnnosOffset:     400,
		AnnosSize:       40,
		MicronsPerPixel: 0.25,
		Magnification:   40,
	}
	dst := make([]byte, metadataHeaderSize)
	require.NoError(t, EncodeMetadataHeader(dst, h))
	got, err := DecodeMetadataHeader(dst)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeMetadataHeaderTruncated(t *testing.T) {
	_, err := DecodeMetadataHeader(make([]byte, 4))
	assert.Error(t, err)
}

func TestEncodeMetadataHeaderBufferTooSmall(t *testing.T) {
	err := EncodeMetadataHeader(make([]byte, 4), MetadataHeader{})
	assert.Error(t, err)
}
