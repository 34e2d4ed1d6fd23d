package harness

import (
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLoadBootImageCopiesPayloadAtOrigin(t *testing.T) {
	fs := afero.NewMemMapFs()
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], 0x1000)
	payload := append(hdr[:], []byte{0x01, 0x02, 0x03, 0x04}...)
	require.NoError(t, afero.WriteFile(fs, "boot.img", payload, 0o644))

	a, err := NewArena(8192)
	require.NoError(t, err)
	defer a.Close()

	origin, err := LoadBootImage(fs, "boot.img", a)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), origin)

	got, sysErr := a.Slice(0x1000, 4)
	require.Equal(t, 0, sysErr.Code())
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
}

func TestLoadBootImageRejectsOutOfBoundsPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], 0x7000)
	payload := append(hdr[:], make([]byte, 4096)...)
	require.NoError(t, afero.WriteFile(fs, "boot.img", payload, 0o644))

	a, err := NewArena(8192)
	require.NoError(t, err)
	defer a.Close()

	_, err = LoadBootImage(fs, "boot.img", a)
	require.Error(t, err)
}
