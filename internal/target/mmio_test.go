package target

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/otaguard/internal/log"
)

// scriptBus scripts word-level behavior per test.
type scriptBus struct {
	read  func(addr uint32) (uint32, error)
	write func(addr, val uint32) error
}

func (b *scriptBus) Read32(addr uint32) (uint32, error) { return b.read(addr) }
func (b *scriptBus) Write32(addr, val uint32) error     { return b.write(addr, val) }

func TestHaltWritesKeyAndPolls(t *testing.T) {
	var wrote []uint32
	polls := 0
	bus := &scriptBus{
		read: func(addr uint32) (uint32, error) {
			require.Equal(t, DHCSR, addr)
			polls++
			if polls >= 3 {
				return DHCSRSHalt | DHCSRCDebugEn, nil
			}
			return DHCSRCDebugEn, nil
		},
		write: func(addr, val uint32) error {
			require.Equal(t, DHCSR, addr)
			wrote = append(wrote, val)
			return nil
		},
	}

	tr := NewMMIO(bus, log.NewNop())
	require.True(t, tr.Halt())
	require.Len(t, wrote, 1)
	assert.Equal(t, DHCSRDbgKey|DHCSRCDebugEn|DHCSRCHalt, wrote[0])
	assert.Equal(t, 3, polls)
}

func TestHaltTimesOut(t *testing.T) {
	bus := &scriptBus{
		read:  func(uint32) (uint32, error) { return 0, nil },
		write: func(uint32, uint32) error { return nil },
	}
	tr := NewMMIO(bus, log.NewNop())
	tr.haltPolls = 100
	assert.False(t, tr.Halt())
}

func TestResumeClearsHaltOnly(t *testing.T) {
	var wrote uint32
	bus := &scriptBus{
		read: func(addr uint32) (uint32, error) {
			// Halted core: status bits up high, control bits down low.
			return DHCSRSHalt | DHCSRCHalt | DHCSRCDebugEn, nil
		},
		write: func(addr, val uint32) error {
			require.Equal(t, DHCSR, addr)
			wrote = val
			return nil
		},
	}
	NewMMIO(bus, log.NewNop()).Resume()

	assert.Equal(t, DHCSRDbgKey, wrote&0xFFFF0000, "write key present")
	assert.Zero(t, wrote&DHCSRCHalt, "C_HALT cleared")
	assert.NotZero(t, wrote&DHCSRCDebugEn, "C_DEBUGEN preserved")
}

func TestReadCoreReg(t *testing.T) {
	var selected uint32
	ready := false
	bus := &scriptBus{
		read: func(addr uint32) (uint32, error) {
			switch addr {
			case DHCSR:
				if ready {
					return DHCSRSRegRdy, nil
				}
				ready = true // ready on the second poll
				return 0, nil
			case DCRDR:
				return 0x20008000, nil
			}
			return 0, errors.New("unexpected read")
		},
		write: func(addr, val uint32) error {
			require.Equal(t, DCRSR, addr)
			selected = val
			return nil
		},
	}

	v, err := NewMMIO(bus, log.NewNop()).ReadCoreReg(RegSP)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20008000), v)
	assert.Equal(t, uint32(13), selected)
}

func TestReadCoreRegTimesOut(t *testing.T) {
	bus := &scriptBus{
		read:  func(uint32) (uint32, error) { return 0, nil },
		write: func(uint32, uint32) error { return nil },
	}
	tr := NewMMIO(bus, log.NewNop())
	tr.regPolls = 50
	_, err := tr.ReadCoreReg(RegPC)
	require.Error(t, err)
}

func TestEnableDebugSetsBits(t *testing.T) {
	var wrote uint32
	bus := &scriptBus{
		read: func(addr uint32) (uint32, error) {
			require.Equal(t, DEMCR, addr)
			return 0x00000001, nil
		},
		write: func(addr, val uint32) error {
			require.Equal(t, DEMCR, addr)
			wrote = val
			return nil
		},
	}
	require.NoError(t, NewMMIO(bus, log.NewNop()).EnableDebug())
	assert.Equal(t, DEMCRTrcEna|DEMCRVCHardErr|0x00000001, wrote)
}

func TestReadBlockUnaligned(t *testing.T) {
	backing := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB}
	const base = 0x08000000
	bus := &scriptBus{
		read: func(addr uint32) (uint32, error) {
			require.Zero(t, addr&3, "bus access must be word-aligned")
			off := addr - base
			require.Less(t, int(off), len(backing))
			return binary.LittleEndian.Uint32(backing[off:]), nil
		},
		write: func(uint32, uint32) error { return nil },
	}
	tr := NewMMIO(bus, log.NewNop())

	for start := 0; start < 4; start++ {
		for n := 1; n <= 7; n++ {
			buf := make([]byte, n)
			require.NoError(t, tr.ReadBlock(base+uint32(start), buf))
			assert.Equal(t, backing[start:start+n], buf, "start %d len %d", start, n)
		}
	}
}
