package iris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidTile(format Format, r, g, b byte) []byte {
	ch := format.channels()
	pixels := make([]byte, TileDim*TileDim*ch)
	for i := 0; i < TileDim*TileDim; i++ {
		off := i * ch
		switch format {
		case FormatR8G8B8:
			pixels[off], pixels[off+1], pixels[off+2] = r, g, b
		case FormatB8G8R8:
			pixels[off], pixels[off+1], pixels[off+2] = b, g, r
		}
	}
	return pixels
}

func TestCodecContextDefaultsToStdlib(t *testing.T) {
	c := NewCodecContext(nil, nil)
	pixels := solidTile(FormatR8G8B8, 10, 20, 30)
	out, err := c.CompressTile(pixels, FormatR8G8B8, EncodingIris, QualityDefault, SubsampleDefault)
	require.NoError(t, err)
	assert.Equal(t, pixels, out)
}

func TestCodecContextCompressTileRejectsWrongSize(t *testing.T) {
	c := NewCodecContext(nil, nil)
	_, err := c.CompressTile([]byte{1, 2, 3}, FormatR8G8B8, EncodingIris, QualityDefault, SubsampleDefault)
	assert.Error(t, err)
}

func TestCodecContextDecompressTileRejectsEmpty(t *testing.T) {
	c := NewCodecContext(nil, nil)
	_, err := c.DecompressTile(nil, EncodingIris, FormatR8G8B8, nil)
	assert.Error(t, err)
}

func TestStdlibCodecIrisPassthroughRoundtrip(t *testing.T) {
	c := NewCodecContext(nil, nil)
	pixels := solidTile(FormatR8G8B8, 1, 2, 3)
	compressed, err := c.CompressTile(pixels, FormatR8G8B8, EncodingIris, QualityDefault, SubsampleDefault)
	require.NoError(t, err)
	decompressed, err := c.DecompressTile(compressed, EncodingIris, FormatR8G8B8, nil)
	require.NoError(t, err)
	assert.Equal(t, pixels, decompressed)
}

func TestStdlibCodecJPEGRoundtrip(t *testing.T) {
	c := NewCodecContext(nil, nil)
	pixels := solidTile(FormatR8G8B8, 200, 100, 50)
	compressed, err := c.CompressTile(pixels, FormatR8G8B8, EncodingJPEG, QualityDefault, SubsampleDefault)
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	decompressed, err := c.DecompressTile(compressed, EncodingJPEG, FormatR8G8B8, nil)
	require.NoError(t, err)
	assert.Len(t, decompressed, TileDim*TileDim*3)
	// lossy, but a solid-color tile should decode close to its original value
	assert.InDelta(t, 200, decompressed[0], 5)
	assert.InDelta(t, 100, decompressed[1], 5)
	assert.InDelta(t, 50, decompressed[2], 5)
}

func TestStdlibCodecUnsupportedEncoding(t *testing.T) {
	c := NewCodecContext(nil, nil)
	pixels := solidTile(FormatR8G8B8, 1, 1, 1)
	_, err := c.CompressTile(pixels, FormatR8G8B8, EncodingAVIF, QualityDefault, SubsampleDefault)
	assert.Error(t, err)
}

func TestStdlibCodecImageRoundtripPNG(t *testing.T) {
	c := NewCodecContext(nil, nil)
	pixels := make([]byte, 8*8*3)
	for i := range pixels {
		pixels[i] = byte(i % 256)
	}
	compressed, err := c.CompressImage(pixels, 8, 8, FormatR8G8B8, ImageEncodingPNG, QualityDefault, SubsampleDefault)
	require.NoError(t, err)

	decompressed, err := c.DecompressImage(compressed, ImageEncodingPNG, FormatR8G8B8, FormatR8G8B8, 8, 8)
	require.NoError(t, err)
	assert.Equal(t, pixels, decompressed)
}
