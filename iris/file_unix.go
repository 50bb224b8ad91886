//go:build unix

package iris

import "golang.org/x/sys/unix"

// mmapFile maps size bytes of fd starting at offset 0. Generalizes the
// read-only mmap helper from the geotiff reader to also support PROT_WRITE
// and MAP_SHARED, since the encoder writes tile bytes directly into the
// mapping.
func mmapFile(fd uintptr, size int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}

func pageSize() int {
	return unix.Getpagesize()
}
