package ring

import (
	"os"
	"unsafe"
)

// ptrAt returns an unsafe.Pointer into buf at the given byte offset, used to
// hand the seqlock generation and payload-length fields to sync/atomic.
func ptrAt(buf []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&buf[offset])
}

func openTruncated(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func openExisting(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0o644)
}
