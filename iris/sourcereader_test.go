package iris

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIrisSourceReaderDelegatesToSlide(t *testing.T) {
	path := writeSlideFixture(t, Metadata{MicronsPerPixel: 0.3})
	slide, err := OpenSlide(path, nil)
	require.NoError(t, err)
	defer slide.Close()

	reader := NewIrisSourceReader(slide)
	assert.Equal(t, smallExtent(), reader.SourceExtent())
	assert.Equal(t, float32(0.3), reader.SourceMetadata().MicronsPerPixel)
	assert.Empty(t, reader.SourceAssociatedImages())

	tile, err := reader.ReadTile(0, 0, FormatR8G8B8)
	require.NoError(t, err)
	assert.NotEmpty(t, tile)
}

func TestOpenSourceReaderOnIrisContainer(t *testing.T) {
	path := writeSlideFixture(t, Metadata{})
	reader, err := OpenSourceReader(path, nil)
	require.NoError(t, err)
	assert.Equal(t, smallExtent(), reader.SourceExtent())
}

func TestOpenSourceReaderRejectsNonIrisFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.bin")
	f, err := Create(path, 128)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenSourceReader(path, nil)
	assert.Error(t, err)
}

func TestOpenSourceReaderMissingFile(t *testing.T) {
	_, err := OpenSourceReader(filepath.Join(t.TempDir(), "nope.iris"), nil)
	assert.Error(t, err)
}
