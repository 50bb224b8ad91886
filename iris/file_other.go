//go:build !unix

package iris

import (
	"fmt"
	"os"
)

func mmapFile(fd uintptr, size int, writable bool) ([]byte, error) {
	return nil, fmt.Errorf("iris: memory mapping is not supported on this platform")
}

func munmapFile(data []byte) error {
	return nil
}

func pageSize() int {
	return os.Getpagesize()
}
