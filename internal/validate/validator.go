package validate

import (
	"crypto/subtle"
	"encoding/binary"
	"io"

	"go.uber.org/zap"

	"github.com/probelab/otaguard/internal/integrity"
	"github.com/probelab/otaguard/internal/layout"
	"github.com/probelab/otaguard/internal/log"
	"github.com/probelab/otaguard/internal/meta"
	"github.com/probelab/otaguard/internal/target"
)

// readChunk is the block size the image verifier streams the staging slot
// in. One pass feeds both digests.
const readChunk = 4096

// Validator runs the check battery over a transport. One run owns the
// transport exclusively.
type Validator struct {
	tr  target.Transport
	lay layout.Layout
	lg  *log.Logger
}

// New returns a validator for the given transport and layout.
func New(tr target.Transport, lay layout.Layout, lg *log.Logger) *Validator {
	return &Validator{tr: tr, lay: lay, lg: lg}
}

// Run executes the battery in order and returns the report.
//
// Control flow: a halt failure aborts the run with no resume (the target
// was never stopped). A core-register read failure after a successful halt
// collapses the report to all-false but still resumes; a failed memory read
// fails only the check that issued it. A metadata failure skips the
// content checks and resumes. Once metadata is good, every remaining
// check runs regardless of earlier verdicts so one run yields the full
// diagnostic picture.
func (v *Validator) Run() Report {
	var rep Report

	if err := v.tr.EnableDebug(); err != nil {
		v.lg.Warn("enable debug features failed", zap.Error(err))
	}
	if !v.tr.Halt() {
		v.lg.Error("core halt failed, check probe connection")
		v.lg.Check("halt", false)
		return rep
	}
	defer func() {
		v.tr.Resume()
		v.lg.Info("core resumed")
	}()

	pc, errPC := v.tr.ReadCoreReg(target.RegPC)
	sp, errSP := v.tr.ReadCoreReg(target.RegSP)
	if errPC != nil || errSP != nil {
		// Register interface is wedged; nothing read from here on can
		// be trusted. Report stays all-false, resume still runs.
		v.lg.Error("core register read failed",
			zap.NamedError("pc", errPC), zap.NamedError("sp", errSP))
		v.lg.Check("halt", false)
		return rep
	}
	rep.HaltSuccess = true
	rep.PCAtHalt = pc
	rep.SPAtHalt = sp
	v.lg.Check("halt", true, log.Reg("pc", pc), log.Reg("sp", sp))

	m, ok := v.checkMetadata(&rep)
	if !ok {
		return rep
	}

	v.checkImage(&rep, m)
	v.checkBootVector(&rep)
	v.checkFaultStatus(&rep)
	v.checkVersion(&rep, m)
	return rep
}

// checkMetadata reads the staged record and gates the content checks on
// its magic and self-CRC.
func (v *Validator) checkMetadata(rep *Report) (meta.Metadata, bool) {
	raw := make([]byte, meta.Size)
	if err := v.tr.ReadBlock(v.lay.MetadataAddrB, raw); err != nil {
		v.lg.Error("metadata read failed", log.Addr(v.lay.MetadataAddrB), zap.Error(err))
		v.lg.Check("metadata", false)
		return meta.Metadata{}, false
	}
	m, err := meta.Decode(raw)
	if err != nil {
		v.lg.Error("metadata decode failed", zap.Error(err))
		v.lg.Check("metadata", false)
		return m, false
	}
	if m.Magic != meta.Magic {
		v.lg.Check("metadata", false,
			log.Reg("magic", m.Magic), log.Reg("want", meta.Magic))
		return m, false
	}
	if !meta.SelfCRCValid(raw) {
		v.lg.Check("metadata", false,
			zap.String("reason", "self-crc mismatch"), log.Reg("stored", m.MetaCRC))
		return m, false
	}
	rep.MetadataValid = true
	rep.OTAState = m.State
	v.lg.Check("metadata", true,
		log.Reg("version", m.Version), zap.Uint8("state", m.State))
	return m, true
}

// checkImage streams the staged slot once, feeding the CRC-32 and SHA-256
// digests together, and compares both against the record.
func (v *Validator) checkImage(rep *Report, m meta.Metadata) {
	rep.StoredCRC = m.CRC32
	if m.ImageSize == 0 || m.ImageSize > v.lay.SlotSize {
		v.lg.Check("image-crc", false, log.Size(m.ImageSize),
			zap.String("reason", "image size out of range"))
		v.lg.Check("image-sha256", false)
		return
	}

	crc := integrity.NewCRC32()
	sha := integrity.NewSHA256()
	w := io.MultiWriter(crc, sha)

	buf := make([]byte, readChunk)
	for off := uint32(0); off < m.ImageSize; {
		n := uint32(readChunk)
		if rem := m.ImageSize - off; rem < n {
			n = rem
		}
		if err := v.tr.ReadBlock(v.lay.SlotBStart+off, buf[:n]); err != nil {
			v.lg.Error("image read failed", log.Addr(v.lay.SlotBStart+off), zap.Error(err))
			v.lg.Check("image-crc", false)
			v.lg.Check("image-sha256", false)
			return
		}
		w.Write(buf[:n])
		off += n
	}

	rep.CalculatedCRC = crc.Sum32()
	rep.CRCValid = rep.CalculatedCRC == m.CRC32
	v.lg.Check("image-crc", rep.CRCValid,
		log.Reg("calculated", rep.CalculatedCRC), log.Reg("stored", m.CRC32))

	sum := sha.Sum()
	rep.HashValid = subtle.ConstantTimeCompare(sum[:], m.SHA256[:]) == 1
	v.lg.Check("image-sha256", rep.HashValid)
}

// checkBootVector inspects the first two words of the staged vector
// table: initial SP inside the SRAM window, reset handler Thumb-tagged
// and inside the staging slot.
func (v *Validator) checkBootVector(rep *Report) {
	var words [8]byte
	if err := v.tr.ReadBlock(v.lay.SlotBStart, words[:]); err != nil {
		v.lg.Error("vector table read failed", zap.Error(err))
		v.lg.Check("boot-vector", false)
		return
	}
	initialSP := binary.LittleEndian.Uint32(words[0:])
	resetHandler := binary.LittleEndian.Uint32(words[4:])

	spSane := initialSP >= v.lay.SRAMLo && initialSP <= v.lay.SRAMHi
	handler := resetHandler &^ 1
	rhSane := resetHandler&1 == 1 &&
		handler >= v.lay.SlotBStart &&
		handler < v.lay.SlotBStart+v.lay.SlotSize

	rep.BootVectorSane = spSane && rhSane
	v.lg.Check("boot-vector", rep.BootVectorSane,
		log.Reg("initial_sp", initialSP), zap.Bool("sp_sane", spSane),
		log.Reg("reset_handler", resetHandler), zap.Bool("handler_sane", rhSane))
}

// checkFaultStatus reads CFSR through the transport (the target is
// halted; this is a debug memory read, not a local dereference).
func (v *Validator) checkFaultStatus(rep *Report) {
	var raw [4]byte
	if err := v.tr.ReadBlock(target.CFSR, raw[:]); err != nil {
		v.lg.Error("CFSR read failed", zap.Error(err))
		v.lg.Check("fault-status", false)
		return
	}
	rep.FaultStatus = binary.LittleEndian.Uint32(raw[:])
	rep.NoHardfaultPending = rep.FaultStatus == 0
	fields := []zap.Field{log.Reg("cfsr", rep.FaultStatus)}
	if faults := DecodeFaults(rep.FaultStatus); len(faults) > 0 {
		fields = append(fields, zap.Strings("faults", faults))
	}
	v.lg.Check("fault-status", rep.NoHardfaultPending, fields...)
}

// checkVersion enforces strict monotonicity against the active slot. An
// unprogrammed active slot (wrong magic) means first flash and passes.
func (v *Validator) checkVersion(rep *Report, staged meta.Metadata) {
	raw := make([]byte, meta.Size)
	if err := v.tr.ReadBlock(v.lay.MetadataAddrA, raw); err != nil {
		v.lg.Error("active metadata read failed", log.Addr(v.lay.MetadataAddrA), zap.Error(err))
		v.lg.Check("version", false)
		return
	}
	active, err := meta.Decode(raw)
	if err != nil {
		v.lg.Check("version", false, zap.Error(err))
		return
	}
	if active.Magic != meta.Magic {
		rep.VersionMonotonic = true
		v.lg.Check("version", true, zap.String("reason", "no active firmware"))
		return
	}
	rep.VersionMonotonic = staged.Version > active.Version
	v.lg.Check("version", rep.VersionMonotonic,
		log.Reg("active", active.Version), log.Reg("staged", staged.Version))
}
