package iris

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRemoteFixture(t *testing.T, metadata Metadata) (dir, key string) {
	t.Helper()
	data := buildContainer(t, smallExtent(), fourTiles(), metadata)
	dir = t.TempDir()
	key = "fixture.iris"
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), data, 0666))
	return dir, key
}

func TestOpenRemoteSlideAndReadTile(t *testing.T) {
	dir, key := writeRemoteFixture(t, Metadata{MicronsPerPixel: 0.4, Magnification: 20})
	bucket := FileBucket{Path: dir}

	remote, err := OpenRemoteSlide(context.Background(), bucket, key, nil)
	require.NoError(t, err)
	defer remote.Close()

	info := remote.GetSlideInfo()
	assert.Equal(t, smallExtent(), info.Extent)
	assert.Equal(t, float32(0.4), info.Metadata.MicronsPerPixel)

	tile, err := remote.ReadSlideTile(context.Background(), 0, 0, FormatR8G8B8)
	require.NoError(t, err)
	assert.NotEmpty(t, tile)
}

func TestOpenRemoteSlideRejectsInvalidContainer(t *testing.T) {
	dir := t.TempDir()
	key := "bad.iris"
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), make([]byte, FileHeaderSize), 0666))

	_, err := OpenRemoteSlide(context.Background(), FileBucket{Path: dir}, key, nil)
	assert.Error(t, err)
}

func TestRemoteSlideReadSlideTileOutOfRange(t *testing.T) {
	dir, key := writeRemoteFixture(t, Metadata{})
	remote, err := OpenRemoteSlide(context.Background(), FileBucket{Path: dir}, key, nil)
	require.NoError(t, err)
	defer remote.Close()

	_, err = remote.ReadSlideTile(context.Background(), 9, 0, FormatR8G8B8)
	assert.Error(t, err)

	_, err = remote.ReadSlideTile(context.Background(), 0, 99, FormatR8G8B8)
	assert.Error(t, err)
}

func TestReadRangeShortReadErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.bin"), []byte{1, 2, 3}, 0666))
	bucket := FileBucket{Path: dir}

	_, err := readRange(context.Background(), bucket, "short.bin", 0, 16, nil, "")
	assert.Error(t, err)
}

func TestReadRangeZeroLengthReturnsNil(t *testing.T) {
	dir := t.TempDir()
	bucket := FileBucket{Path: dir}
	data, err := readRange(context.Background(), bucket, "anything", 0, 0, nil, "")
	require.NoError(t, err)
	assert.Nil(t, data)
}
