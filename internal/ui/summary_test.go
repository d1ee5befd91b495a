package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probelab/otaguard/internal/validate"
)

func TestSummaryPass(t *testing.T) {
	rep := validate.Report{
		HaltSuccess:        true,
		PCAtHalt:           0x08008400,
		SPAtHalt:           0x20010000,
		MetadataValid:      true,
		OTAState:           0x01,
		CRCValid:           true,
		CalculatedCRC:      0xCBF43926,
		StoredCRC:          0xCBF43926,
		HashValid:          true,
		BootVectorSane:     true,
		NoHardfaultPending: true,
		VersionMonotonic:   true,
	}

	out := Summary(rep, "deadbeef")
	assert.Contains(t, out, "OVERALL: PASS")
	assert.NotContains(t, out, "OVERALL: FAIL")
	assert.Contains(t, out, "run deadbeef")
	assert.Contains(t, out, "0xCBF43926")
	assert.Contains(t, out, "pc=0x08008400")
	assert.Contains(t, out, "state=0x01")
}

func TestSummaryFailDecodesFaults(t *testing.T) {
	rep := validate.Report{
		HaltSuccess: true,
		FaultStatus: 0x00000102, // IBUSERR | INVSTATE
	}

	out := Summary(rep, "")
	assert.Contains(t, out, "OVERALL: FAIL")
	assert.Contains(t, out, "cfsr=0x00000102")
	assert.Contains(t, out, "IBUSERR")
	assert.Contains(t, out, "INVSTATE")
	assert.NotContains(t, out, "run ")

	// One line per named check.
	for _, name := range []string{
		"core halt", "metadata valid", "crc32 match", "sha-256 match",
		"boot vector sane", "no pending faults", "version monotonic",
	} {
		assert.Equal(t, 1, strings.Count(out, name), name)
	}
}
