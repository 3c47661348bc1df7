// Package cursor implements a thin read-from-offset utility over a
// seekable byte source, the bottom layer the rest of the parser builds on.
package cursor

import (
	"fmt"
	"io"
)

// Source is the minimal interface a paged file needs: random-access
// reads. *os.File satisfies it.
type Source interface {
	io.ReaderAt
}

// ReadAt reads exactly n bytes at offset from src. It returns an error
// naming the short read rather than silently returning a partial buffer,
// since every caller in this module depends on fixed-layout structures.
func ReadAt(src Source, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := src.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read at offset 0x%08x: %w", offset, err)
	}
	if read != n {
		return nil, fmt.Errorf("short read at offset 0x%08x: got %d of %d bytes", offset, read, n)
	}
	return buf, nil
}
