package dump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDump(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadBlockInRange(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i + 1)
	}
	d, err := Open(writeDump(t, data), 0x08000000)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 64, d.Len())

	buf := make([]byte, 8)
	require.NoError(t, d.ReadBlock(0x08000010, buf))
	assert.Equal(t, data[0x10:0x18], buf)
}

func TestReadBlockStraddlesWindow(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	d, err := Open(writeDump(t, data), 0x1000)
	require.NoError(t, err)
	defer d.Close()

	// Two bytes below the window, two inside.
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	require.NoError(t, d.ReadBlock(0x0FFE, buf))
	assert.Equal(t, []byte{0x00, 0x00, 0xAA, 0xBB}, buf)

	// Two inside, two past the end.
	buf = []byte{0xFF, 0xFF, 0xFF, 0xFF}
	require.NoError(t, d.ReadBlock(0x1002, buf))
	assert.Equal(t, []byte{0xCC, 0xDD, 0x00, 0x00}, buf)
}

func TestReadBlockOutsideIsZero(t *testing.T) {
	d, err := Open(writeDump(t, []byte{0xAA}), 0x08000000)
	require.NoError(t, err)
	defer d.Close()

	// The SCS is far outside any flash dump; CFSR must read clean.
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	require.NoError(t, d.ReadBlock(0xE000ED28, buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestTransportTrivia(t *testing.T) {
	d, err := Open(writeDump(t, []byte{1, 2, 3, 4}), 0)
	require.NoError(t, err)
	defer d.Close()

	assert.NoError(t, d.EnableDebug())
	assert.True(t, d.Halt())
	d.Resume()
	v, err := d.ReadCoreReg(15)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.bin"), 0)
	require.Error(t, err)
}
