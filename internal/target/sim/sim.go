// Package sim provides a simulated Cortex-M target backed by Unicorn
// Engine. The emulator holds real mapped flash, SRAM and system-control
// space plus a live register file, so validation runs against it exercise
// the same reads a probe would issue against hardware.
package sim

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/probelab/otaguard/internal/layout"
	"github.com/probelab/otaguard/internal/meta"
	"github.com/probelab/otaguard/internal/target"
)

const (
	page    = 0x1000
	scsBase = 0xE000E000 // system control space page holding CFSR
)

// coreRegs maps DCRSR selector values onto Unicorn register ids.
var coreRegs = [16]int{
	uc.ARM_REG_R0, uc.ARM_REG_R1, uc.ARM_REG_R2, uc.ARM_REG_R3,
	uc.ARM_REG_R4, uc.ARM_REG_R5, uc.ARM_REG_R6, uc.ARM_REG_R7,
	uc.ARM_REG_R8, uc.ARM_REG_R9, uc.ARM_REG_R10, uc.ARM_REG_R11,
	uc.ARM_REG_R12, uc.ARM_REG_SP, uc.ARM_REG_LR, uc.ARM_REG_PC,
}

// Target is a simulated Cortex-M device implementing target.Transport.
type Target struct {
	mu     uc.Unicorn
	lay    layout.Layout
	halted bool
}

// New creates a target with flash covering both slots, the SRAM window,
// and the system control space mapped.
func New(lay layout.Layout) (*Target, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM, uc.MODE_THUMB)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	t := &Target{mu: mu, lay: lay}

	flashLo := alignDown(min32(lay.SlotAStart, lay.SlotBStart))
	flashHi := alignUp(max32(lay.SlotAStart, lay.SlotBStart) + lay.SlotSize)
	regions := []struct {
		base uint64
		size uint64
		name string
	}{
		{uint64(flashLo), uint64(flashHi - flashLo), "flash"},
		{uint64(alignDown(lay.SRAMLo)), uint64(alignUp(lay.SRAMHi) - alignDown(lay.SRAMLo)), "sram"},
		{scsBase, page, "scs"},
	}
	for _, r := range regions {
		if err := mu.MemMap(r.base, r.size); err != nil {
			mu.Close()
			return nil, fmt.Errorf("map %s (0x%x): %w", r.name, r.base, err)
		}
	}
	return t, nil
}

// Close releases the emulator.
func (t *Target) Close() error { return t.mu.Close() }

// StageImage writes img at the start of slot B and a sealed metadata
// record describing it at the slot's metadata address.
func (t *Target) StageImage(img []byte, version uint32, state uint8) (meta.Metadata, error) {
	m := meta.ForImage(img, version, state)
	if err := t.mu.MemWrite(uint64(t.lay.SlotBStart), img); err != nil {
		return m, fmt.Errorf("stage image: %w", err)
	}
	if err := t.mu.MemWrite(uint64(t.lay.MetadataAddrB), m.Encode()); err != nil {
		return m, fmt.Errorf("stage metadata: %w", err)
	}
	return m, nil
}

// SetActive writes a metadata record into slot A's metadata address,
// marking the version the device currently runs.
func (t *Target) SetActive(m meta.Metadata) error {
	return t.mu.MemWrite(uint64(t.lay.MetadataAddrA), m.Encode())
}

// SetCFSR plants a fault status value.
func (t *Target) SetCFSR(v uint32) error {
	return t.mu.MemWrite(uint64(target.CFSR), le32(v))
}

// SetRegs places the core at pc with stack sp, as a halted device would
// present them.
func (t *Target) SetRegs(pc, sp uint32) error {
	if err := t.mu.RegWrite(uc.ARM_REG_PC, uint64(pc)); err != nil {
		return err
	}
	return t.mu.RegWrite(uc.ARM_REG_SP, uint64(sp))
}

// EnableDebug is a no-op: the emulated core has no DEMCR behavior.
func (t *Target) EnableDebug() error { return nil }

// Halt marks the core halted. The emulator never free-runs between
// validation steps, so the request always succeeds.
func (t *Target) Halt() bool {
	t.halted = true
	return true
}

// Resume clears the halt mark.
func (t *Target) Resume() { t.halted = false }

// Halted reports whether the core is currently held. Tests use it to
// verify the orchestrator's resume guarantee.
func (t *Target) Halted() bool { return t.halted }

// ReadCoreReg reads from the emulated register file.
func (t *Target) ReadCoreReg(id uint8) (uint32, error) {
	id &= 0x1F
	if int(id) >= len(coreRegs) {
		return 0, fmt.Errorf("r%d: no such core register", id)
	}
	v, err := t.mu.RegRead(coreRegs[id])
	if err != nil {
		return 0, fmt.Errorf("read r%d: %w", id, err)
	}
	return uint32(v), nil
}

// ReadBlock reads target memory through the emulator.
func (t *Target) ReadBlock(addr uint32, buf []byte) error {
	data, err := t.mu.MemRead(uint64(addr), uint64(len(buf)))
	if err != nil {
		return fmt.Errorf("read %#x+%d: %w", addr, len(buf), err)
	}
	copy(buf, data)
	return nil
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func alignDown(v uint32) uint32 { return v &^ (page - 1) }

func alignUp(v uint32) uint32 { return (v + page - 1) &^ (page - 1) }

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
