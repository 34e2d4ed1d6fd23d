package harness

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// DefaultFs is the filesystem boot images are read from in production;
// swappable in tests the way nestybox-sysbox-libs/utils keeps a
// package-level afero.Fs var for unit testing.
var DefaultFs = afero.NewOsFs()

// LoadBootImage reads a flat boot image from path and copies its payload
// into arena at the origin physical address encoded in the image header:
// an 8-byte big-endian origin paddr, followed by the raw image bytes.
func LoadBootImage(fs afero.Fs, path string, arena *Arena) (origin uint64, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("harness: open boot image %s: %w", path, err)
	}
	defer f.Close()

	var hdr [8]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return 0, fmt.Errorf("harness: read boot image origin: %w", err)
	}
	origin = binary.BigEndian.Uint64(hdr[:])

	payload, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("harness: read boot image payload: %w", err)
	}

	dst, sysErr := arena.Slice(origin, uint64(len(payload)))
	if sysErr.Code() != 0 {
		return 0, fmt.Errorf("harness: boot image payload out of arena bounds: %s", sysErr)
	}
	copy(dst, payload)
	return origin, nil
}
