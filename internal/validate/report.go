// Package validate runs the staged-image check battery against a halted
// target and produces the validation report.
package validate

import "fmt"

// Report collects one verdict per check plus the raw values behind them.
// The zero value is the all-false report a run starts from; a field is
// only ever written by the step that owns it.
type Report struct {
	HaltSuccess bool
	PCAtHalt    uint32
	SPAtHalt    uint32

	MetadataValid bool
	OTAState      uint8

	CRCValid      bool
	CalculatedCRC uint32
	StoredCRC     uint32
	HashValid     bool

	BootVectorSane bool

	NoHardfaultPending bool
	FaultStatus        uint32

	VersionMonotonic bool
}

// Pass is the overall verdict: the conjunction of the seven named check
// booleans. Raw values do not participate.
func (r Report) Pass() bool {
	return r.HaltSuccess &&
		r.MetadataValid &&
		r.CRCValid &&
		r.HashValid &&
		r.BootVectorSane &&
		r.NoHardfaultPending &&
		r.VersionMonotonic
}

// CFSR bits decoded for human reporting. Bits outside this table show up
// only in the raw hex value.
var cfsrBits = []struct {
	mask uint32
	name string
	desc string
}{
	{0x0002, "INVSTATE", "invalid execution state"},
	{0x0004, "INVPC", "invalid PC load"},
	{0x0008, "NOCP", "no coprocessor"},
	{0x0100, "IBUSERR", "instruction bus error"},
	{0x8000, "BFARVALID", "bus fault address valid"},
}

// DecodeFaults names the known CFSR bits set in cfsr.
func DecodeFaults(cfsr uint32) []string {
	var out []string
	for _, b := range cfsrBits {
		if cfsr&b.mask != 0 {
			out = append(out, fmt.Sprintf("%s: %s", b.name, b.desc))
		}
	}
	return out
}
