package iris

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
)

// File is a memory-mapped, growable byte region backing a container on
// disk. Concurrent tile writers take the shared side of resizeLock while
// dereferencing Ptr(); a Resize call takes the exclusive side and forces
// all writers to pause while the mapping is relocated, per the file handle
// component's resize/reader-writer lock (distinct from the OS advisory
// lock taken by Lock/Unlock).
type File struct {
	path        string
	f           *os.File
	data        []byte
	writeAccess bool
	linked      bool // false once unlinked (cache files created with unlinkOnClose)

	resizeLock sync.RWMutex
	osLock     *flock.Flock

	size int64 // file and mapping length; equals len(data)
}

// Create makes a new file at path, sized to initialSize bytes, opened for
// read-write mapping.
func Create(path string, initialSize int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("iris: create %s: %w", path, err)
	}
	if initialSize < int64(FileHeaderSize) {
		initialSize = int64(FileHeaderSize)
	}
	if err := f.Truncate(initialSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("iris: truncate %s: %w", path, err)
	}
	return newMappedFile(f, path, initialSize, true, true)
}

// Open maps an existing file at path. writeAccess controls whether the
// mapping is writable.
func Open(path string, writeAccess bool) (*File, error) {
	flags := os.O_RDONLY
	if writeAccess {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("iris: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("iris: stat %s: %w", path, err)
	}
	return newMappedFile(f, path, info.Size(), writeAccess, true)
}

// CreateCache creates a temp-directory-backed File with a unique random
// suffix, suitable as an encoder's working destination before rename. When
// unlinkOnClose is set, the directory entry is removed immediately: the
// file still exists (held open by the process) but cannot be renamed, and
// it vanishes on process exit — the form used by the file handle's
// create_cache when a caller never intends the output to survive.
func CreateCache(unlinkOnClose bool) (*File, error) {
	f, err := os.CreateTemp("", "iris-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("iris: create cache file: %w", err)
	}
	path := f.Name()
	if err := f.Truncate(int64(FileHeaderSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("iris: truncate cache file: %w", err)
	}
	file, err := newMappedFile(f, path, int64(FileHeaderSize), true, !unlinkOnClose)
	if err != nil {
		return nil, err
	}
	if unlinkOnClose {
		if err := os.Remove(path); err != nil {
			file.Close()
			return nil, fmt.Errorf("iris: unlink cache file: %w", err)
		}
		file.linked = false
	}
	return file, nil
}

func newMappedFile(f *os.File, path string, size int64, writable, linked bool) (*File, error) {
	data, err := mmapFile(f.Fd(), int(size), writable)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("iris: mmap %s: %w", path, err)
	}
	return &File{
		path:        path,
		f:           f,
		data:        data,
		writeAccess: writable,
		linked:      linked,
		size:        size,
	}, nil
}

// Ptr returns the current mapping. Callers must hold RLock (via
// ResizeRLock/ResizeRUnlock) for the duration of any dereference, since a
// concurrent Resize may relocate the mapping and invalidate any slice
// captured beforehand.
func (fl *File) Ptr() []byte { return fl.data }

// Size returns the current file size, which is also the length of the
// mapping; space over-provisioned by a Resize is included.
func (fl *File) Size() int64 { return atomic.LoadInt64(&fl.size) }

// ResizeRLock/ResizeRUnlock bracket a hot-path dereference of Ptr(), e.g.
// the memcpy step of a tile write.
func (fl *File) ResizeRLock()   { fl.resizeLock.RLock() }
func (fl *File) ResizeRUnlock() { fl.resizeLock.RUnlock() }

// Resize grows (or shrinks) the file and remaps it, rounding up to a page
// multiple when pageAlign is set. Takes the exclusive side of the resize
// lock, forcing concurrent tile writers mid-memcpy to wait.
func (fl *File) Resize(newSize int64, pageAlign bool) error {
	if pageAlign {
		ps := int64(pageSize())
		if rem := newSize % ps; rem != 0 {
			newSize += ps - rem
		}
	}
	fl.resizeLock.Lock()
	defer fl.resizeLock.Unlock()

	if err := munmapFile(fl.data); err != nil {
		return fmt.Errorf("iris: unmap during resize: %w", err)
	}
	if err := fl.f.Truncate(newSize); err != nil {
		return fmt.Errorf("iris: truncate during resize: %w", err)
	}
	data, err := mmapFile(fl.f.Fd(), int(newSize), fl.writeAccess)
	if err != nil {
		return fmt.Errorf("iris: remap during resize: %w", err)
	}
	fl.data = data
	atomic.StoreInt64(&fl.size, newSize)
	return nil
}

// Rename moves the file to newPath. Not valid on an unlinked cache file.
func (fl *File) Rename(newPath string) error {
	if !fl.linked {
		return fmt.Errorf("iris: cannot rename an unlinked file")
	}
	if err := os.Rename(fl.path, newPath); err != nil {
		return fmt.Errorf("iris: rename %s -> %s: %w", fl.path, newPath, err)
	}
	fl.path = newPath
	return nil
}

// Delete removes the on-disk file. Safe to call on an already-unlinked
// cache file (no-op).
func (fl *File) Delete() error {
	if !fl.linked {
		return nil
	}
	if err := os.Remove(fl.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("iris: delete %s: %w", fl.path, err)
	}
	fl.linked = false
	return nil
}

// Lock takes an OS-level advisory lock on the file, distinct from the
// in-process resize reader/writer lock. exclusive selects a write lock vs
// a shared read lock; wait selects blocking vs try-lock semantics.
func (fl *File) Lock(exclusive, wait bool) (bool, error) {
	if fl.osLock == nil {
		fl.osLock = flock.New(fl.path)
	}
	if exclusive {
		if wait {
			return true, fl.osLock.Lock()
		}
		return fl.osLock.TryLock()
	}
	if wait {
		return true, fl.osLock.RLock()
	}
	return fl.osLock.TryRLock()
}

func (fl *File) Unlock() error {
	if fl.osLock == nil {
		return nil
	}
	return fl.osLock.Unlock()
}

// Close unmaps and closes the underlying descriptor.
func (fl *File) Close() error {
	var errs []error
	if fl.data != nil {
		if err := munmapFile(fl.data); err != nil {
			errs = append(errs, err)
		}
		fl.data = nil
	}
	if fl.osLock != nil {
		_ = fl.osLock.Unlock()
	}
	if err := fl.f.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("iris: close %s: %v", fl.path, errs)
	}
	return nil
}

func (fl *File) Path() string { return fl.path }

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
