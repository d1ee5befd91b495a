// Package dump implements the Transport over a raw flash dump file, for
// validating an image artifact off-target (build server, CI gate, or a
// dump pulled earlier through a probe).
package dump

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// File is a memory-mapped flash dump. The file's first byte corresponds to
// target address base.
type File struct {
	f    *os.File
	mm   mmap.MMap
	base uint32
}

// Open maps path read-only.
func Open(path string, base uint32) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap dump %s: %w", path, err)
	}
	return &File{f: f, mm: mm, base: base}, nil
}

// Close unmaps and closes the dump.
func (d *File) Close() error {
	err := d.mm.Unmap()
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Len returns the mapped length in bytes.
func (d *File) Len() int { return len(d.mm) }

// EnableDebug is a no-op: a dump has no live core.
func (d *File) EnableDebug() error { return nil }

// Halt always succeeds: a dump is never running.
func (d *File) Halt() bool { return true }

// Resume is a no-op.
func (d *File) Resume() {}

// ReadCoreReg returns zero for every register: a dump carries no core
// state, and zero keeps the halt step's PC/SP capture well defined.
func (d *File) ReadCoreReg(id uint8) (uint32, error) { return 0, nil }

// ReadBlock copies from the mapping. Addresses outside the mapped window
// (the SCS registers included) read as zero, which reports a clean CFSR
// exactly as a fault-free halted target would.
func (d *File) ReadBlock(addr uint32, buf []byte) error {
	for i := range buf {
		buf[i] = 0
	}
	end := uint64(addr) + uint64(len(buf))
	lo := uint64(d.base)
	hi := lo + uint64(len(d.mm))
	if end <= lo || uint64(addr) >= hi {
		return nil
	}
	from := uint64(addr)
	if from < lo {
		from = lo
	}
	to := end
	if to > hi {
		to = hi
	}
	copy(buf[from-uint64(addr):], d.mm[from-lo:to-lo])
	return nil
}
