package target

import (
	"fmt"

	"github.com/probelab/otaguard/internal/log"
)

// Bus is 32-bit word access to the target address space. The self-hosted
// backend implements it with direct loads and stores; a probe-side backend
// maps it onto its SDK's word read/write (OpenOCD, J-Link, CMSIS-DAP).
type Bus interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr, val uint32) error
}

// Poll budgets. The halt budget mirrors the classic debug-agent spin; the
// register budget bounds what is an unbounded wait in many reference
// agents, so a wedged probe fails the run instead of hanging it.
const (
	defaultHaltPolls = 1000000
	defaultRegPolls  = 100000
)

// MMIO drives the Cortex-M debug registers over a Bus.
type MMIO struct {
	bus       Bus
	lg        *log.Logger
	haltPolls int
	regPolls  int
}

// NewMMIO returns a transport over bus with the default poll budgets.
func NewMMIO(bus Bus, lg *log.Logger) *MMIO {
	return &MMIO{
		bus:       bus,
		lg:        lg,
		haltPolls: defaultHaltPolls,
		regPolls:  defaultRegPolls,
	}
}

// EnableDebug sets TRCENA and vector catch on HardFault in DEMCR,
// preserving the rest of the register.
func (t *MMIO) EnableDebug() error {
	demcr, err := t.bus.Read32(DEMCR)
	if err != nil {
		return fmt.Errorf("read DEMCR: %w", err)
	}
	demcr |= DEMCRTrcEna | DEMCRVCHardErr
	if err := t.bus.Write32(DEMCR, demcr); err != nil {
		return fmt.Errorf("write DEMCR: %w", err)
	}
	return nil
}

// Halt writes the key-protected halt request and polls S_HALT within the
// halt budget.
func (t *MMIO) Halt() bool {
	if err := t.bus.Write32(DHCSR, DHCSRDbgKey|DHCSRCDebugEn|DHCSRCHalt); err != nil {
		t.lg.Error("halt request failed", log.Addr(DHCSR))
		return false
	}
	for i := 0; i < t.haltPolls; i++ {
		dhcsr, err := t.bus.Read32(DHCSR)
		if err != nil {
			return false
		}
		if dhcsr&DHCSRSHalt != 0 {
			return true
		}
	}
	return false
}

// Resume rewrites DHCSR with C_HALT cleared. Status bits in the upper half
// are write-ignored but masked off anyway so the written word matches what
// the architecture defines as the control half.
func (t *MMIO) Resume() {
	dhcsr, err := t.bus.Read32(DHCSR)
	if err != nil {
		t.lg.Error("resume: DHCSR read failed")
		return
	}
	dhcsr &^= DHCSRCHalt
	if err := t.bus.Write32(DHCSR, DHCSRDbgKey|(dhcsr&0xFFFF)); err != nil {
		t.lg.Error("resume: DHCSR write failed")
	}
}

// ReadCoreReg selects register id in DCRSR (REGWnR=0), polls S_REGRDY
// within the register budget, then reads DCRDR.
func (t *MMIO) ReadCoreReg(id uint8) (uint32, error) {
	if err := t.bus.Write32(DCRSR, uint32(id)&0x1F); err != nil {
		return 0, fmt.Errorf("select r%d: %w", id, err)
	}
	for i := 0; i < t.regPolls; i++ {
		dhcsr, err := t.bus.Read32(DHCSR)
		if err != nil {
			return 0, fmt.Errorf("poll S_REGRDY: %w", err)
		}
		if dhcsr&DHCSRSRegRdy != 0 {
			return t.bus.Read32(DCRDR)
		}
	}
	return 0, fmt.Errorf("r%d: S_REGRDY timeout", id)
}

// ReadBlock assembles an arbitrary byte range from aligned word reads.
func (t *MMIO) ReadBlock(addr uint32, buf []byte) error {
	i := 0
	for i < len(buf) {
		cur := addr + uint32(i)
		word, err := t.bus.Read32(cur &^ 3)
		if err != nil {
			return fmt.Errorf("read %#x: %w", cur&^3, err)
		}
		for off := cur & 3; off < 4 && i < len(buf); off++ {
			buf[i] = byte(word >> (8 * off))
			i++
		}
	}
	return nil
}
