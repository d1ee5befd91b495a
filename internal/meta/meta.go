// Package meta encodes and decodes the firmware metadata record the image
// producer writes into each flash slot.
//
// The record layout is a wire contract shared with the producing
// toolchain: little-endian, no padding, 53 bytes. Fields are extracted by
// explicit offset rather than struct punning so the Go-side layout can
// never drift from the on-flash one.
//
//	offset  size  field
//	0       4     magic        (0xDEADC0DE)
//	4       4     version
//	8       1     state
//	9       4     image_size
//	13      4     crc32        of the first image_size bytes of the slot
//	17      32    sha256       of the same range
//	49      4     metadata_crc CRC-32 over bytes [0, 49)
package meta

import (
	"encoding/binary"
	"fmt"

	"github.com/probelab/otaguard/internal/integrity"
)

// Magic is the record sentinel. A slot whose record does not open with it
// is treated as unprogrammed.
const Magic uint32 = 0xDEADC0DE

// Size is the encoded record length in bytes.
const Size = 53

// selfCRCLen is the span covered by the trailing metadata_crc field.
const selfCRCLen = Size - 4

// Metadata is the decoded record.
type Metadata struct {
	Magic     uint32
	Version   uint32
	State     uint8
	ImageSize uint32
	CRC32     uint32
	SHA256    [32]byte
	MetaCRC   uint32
}

// Decode parses a record from raw. raw must hold at least Size bytes;
// magic and self-CRC are NOT checked here, that is the validator's gate.
func Decode(raw []byte) (Metadata, error) {
	if len(raw) < Size {
		return Metadata{}, fmt.Errorf("metadata record truncated: %d bytes, need %d", len(raw), Size)
	}
	var m Metadata
	m.Magic = binary.LittleEndian.Uint32(raw[0:])
	m.Version = binary.LittleEndian.Uint32(raw[4:])
	m.State = raw[8]
	m.ImageSize = binary.LittleEndian.Uint32(raw[9:])
	m.CRC32 = binary.LittleEndian.Uint32(raw[13:])
	copy(m.SHA256[:], raw[17:49])
	m.MetaCRC = binary.LittleEndian.Uint32(raw[49:])
	return m, nil
}

// Encode serializes the record, MetaCRC as stored.
func (m Metadata) Encode() []byte {
	raw := make([]byte, Size)
	binary.LittleEndian.PutUint32(raw[0:], m.Magic)
	binary.LittleEndian.PutUint32(raw[4:], m.Version)
	raw[8] = m.State
	binary.LittleEndian.PutUint32(raw[9:], m.ImageSize)
	binary.LittleEndian.PutUint32(raw[13:], m.CRC32)
	copy(raw[17:49], m.SHA256[:])
	binary.LittleEndian.PutUint32(raw[49:], m.MetaCRC)
	return raw
}

// Seal recomputes MetaCRC from the encoded prefix. Test fixtures and the
// simulated target use it to build well-formed records; the validator
// itself never writes flash.
func (m *Metadata) Seal() {
	raw := m.Encode()
	m.MetaCRC = integrity.Checksum(raw[:selfCRCLen])
}

// SelfCRCValid reports whether the raw record's trailing CRC matches the
// CRC-32 of everything before it.
func SelfCRCValid(raw []byte) bool {
	if len(raw) < Size {
		return false
	}
	stored := binary.LittleEndian.Uint32(raw[selfCRCLen:])
	return integrity.Checksum(raw[:selfCRCLen]) == stored
}

// ForImage builds a sealed record describing img.
func ForImage(img []byte, version uint32, state uint8) Metadata {
	m := Metadata{
		Magic:     Magic,
		Version:   version,
		State:     state,
		ImageSize: uint32(len(img)),
		CRC32:     integrity.Checksum(img),
		SHA256:    integrity.Sum256(img),
	}
	m.Seal()
	return m
}
