// Package layout describes the target's flash and RAM geometry.
//
// The defaults match a 512KB-flash Cortex-M4 part with a 32KB bootloader
// ahead of slot A. Boards that differ ship a YAML layout file instead of a
// rebuild.
package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout is the A/B slot geometry plus the SRAM sanity window used by the
// boot-vector check. Addresses are absolute in the target address space.
type Layout struct {
	SlotAStart    uint32 `yaml:"slot_a_start"`
	SlotBStart    uint32 `yaml:"slot_b_start"`
	SlotSize      uint32 `yaml:"slot_size"`
	MetadataAddrA uint32 `yaml:"metadata_addr_a"`
	MetadataAddrB uint32 `yaml:"metadata_addr_b"`
	SRAMLo        uint32 `yaml:"sram_lo"`
	SRAMHi        uint32 `yaml:"sram_hi"`
}

// Default returns the built-in layout: slot A at 0x08008000, slot B at
// 0x08040000, 224KB slots, metadata record in the last 64 bytes of each
// slot, SRAM window 0x20000000-0x20080000.
func Default() Layout {
	const (
		slotA    = 0x08008000
		slotB    = 0x08040000
		slotSize = 0x38000
		metaTail = 0x40
	)
	return Layout{
		SlotAStart:    slotA,
		SlotBStart:    slotB,
		SlotSize:      slotSize,
		MetadataAddrA: slotA + slotSize - metaTail,
		MetadataAddrB: slotB + slotSize - metaTail,
		SRAMLo:        0x20000000,
		SRAMHi:        0x20080000,
	}
}

// Load reads a YAML layout file over the defaults, so a file only needs to
// name the fields it changes.
func Load(path string) (Layout, error) {
	l := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return l, fmt.Errorf("read layout: %w", err)
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return l, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// Validate rejects geometries the validator cannot operate on.
func (l Layout) Validate() error {
	if l.SlotSize == 0 {
		return fmt.Errorf("slot_size must be non-zero")
	}
	if l.SlotAStart+l.SlotSize < l.SlotAStart || l.SlotBStart+l.SlotSize < l.SlotBStart {
		return fmt.Errorf("slot range overflows the 32-bit address space")
	}
	if !l.inSlot(l.MetadataAddrA, l.SlotAStart) {
		return fmt.Errorf("metadata_addr_a %#x outside slot A", l.MetadataAddrA)
	}
	if !l.inSlot(l.MetadataAddrB, l.SlotBStart) {
		return fmt.Errorf("metadata_addr_b %#x outside slot B", l.MetadataAddrB)
	}
	if l.SRAMLo >= l.SRAMHi {
		return fmt.Errorf("sram window [%#x, %#x] is empty", l.SRAMLo, l.SRAMHi)
	}
	return nil
}

func (l Layout) inSlot(addr, slotStart uint32) bool {
	return addr >= slotStart && addr < slotStart+l.SlotSize
}
