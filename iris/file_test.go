package iris

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.iris")

	f, err := Create(path, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), f.Size())
	copy(f.Ptr(), []byte("hello"))
	require.NoError(t, f.Close())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "hello", string(reopened.Ptr()[:5]))
}

func TestCreateEnforcesMinimumSize(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(filepath.Join(dir, "tiny.iris"), 0)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(FileHeaderSize), f.Size())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.iris"), false)
	assert.Error(t, err)
}

func TestResizeGrowsAndPreservesPrefix(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(filepath.Join(dir, "grow.iris"), 64)
	require.NoError(t, err)
	defer f.Close()
	copy(f.Ptr(), []byte("abc"))

	require.NoError(t, f.Resize(4096, false))
	assert.Equal(t, int64(4096), f.Size())
	assert.Equal(t, "abc", string(f.Ptr()[:3]))
}

func TestResizePageAlign(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(filepath.Join(dir, "align.iris"), 64)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Resize(1, true))
	assert.Equal(t, int64(pageSize()), f.Size())
}

func TestRenameAndDelete(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.iris")
	dst := filepath.Join(dir, "b.iris")

	f, err := Create(src, 64)
	require.NoError(t, err)
	require.NoError(t, f.Rename(dst))
	assert.Equal(t, dst, f.Path())
	require.NoError(t, f.Close())

	_, statErr := os.Stat(dst)
	assert.NoError(t, statErr)

	reopened, err := Open(dst, true)
	require.NoError(t, err)
	require.NoError(t, reopened.Delete())
	_, statErr = os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateCacheUnlinked(t *testing.T) {
	f, err := CreateCache(true)
	require.NoError(t, err)
	defer f.Close()

	err = f.Rename(filepath.Join(t.TempDir(), "renamed.iris"))
	assert.Error(t, err)
}

func TestCreateCacheLinked(t *testing.T) {
	f, err := CreateCache(false)
	require.NoError(t, err)
	dst := filepath.Join(t.TempDir(), "linked.iris")
	require.NoError(t, f.Rename(dst))
	require.NoError(t, f.Close())
	_, statErr := os.Stat(dst)
	assert.NoError(t, statErr)
}

func TestFileLockExclusiveThenShared(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock.iris")
	f, err := Create(path, 64)
	require.NoError(t, err)
	defer f.Close()

	ok, err := f.Lock(true, true)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.Unlock())

	ok, err = f.Lock(false, true)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.Unlock())
}

func TestStemOf(t *testing.T) {
	assert.Equal(t, "slide", stemOf("/path/to/slide.svs"))
	assert.Equal(t, "slide", stemOf("slide.tiff"))
}
