package drm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// formatBlob builds an IN_FORMATS blob: a header, a format array, and a
// modifier array whose entries carry a bitmask of the formats they apply to.
func formatBlob(formats []uint32, mods []struct {
	modifier uint64
	mask     uint64
	offset   uint32
}) []byte {
	le := binary.LittleEndian
	formatsOffset := 24
	modifiersOffset := formatsOffset + len(formats)*4
	blob := make([]byte, modifiersOffset+len(mods)*24)

	le.PutUint32(blob[0:], 1) // version
	le.PutUint32(blob[8:], uint32(len(formats)))
	le.PutUint32(blob[12:], uint32(formatsOffset))
	le.PutUint32(blob[16:], uint32(len(mods)))
	le.PutUint32(blob[20:], uint32(modifiersOffset))

	for i, f := range formats {
		le.PutUint32(blob[formatsOffset+i*4:], f)
	}
	for i, m := range mods {
		entry := blob[modifiersOffset+i*24:]
		le.PutUint64(entry[0:], m.mask)
		le.PutUint32(entry[8:], m.offset)
		le.PutUint64(entry[16:], m.modifier)
	}
	return blob
}

func TestParseInFormats(t *testing.T) {
	const other = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
	blob := formatBlob(
		[]uint32{other, FormatXRGB8888},
		[]struct {
			modifier uint64
			mask     uint64
			offset   uint32
		}{
			{modifier: ModifierLinear, mask: 0b11, offset: 0},
			{modifier: 42, mask: 0b01, offset: 0}, // other format only
			{modifier: 77, mask: 0b10, offset: 0},
		},
	)

	mods := ParseInFormats(blob, FormatXRGB8888)
	assert.Equal(t, []uint64{ModifierLinear, 77}, mods)
}

func TestParseInFormatsUnlistedFormat(t *testing.T) {
	blob := formatBlob([]uint32{FormatXRGB8888}, nil)
	assert.Empty(t, ParseInFormats(blob, 0x12345678))
}

func TestParseInFormatsShortBlob(t *testing.T) {
	assert.Nil(t, ParseInFormats([]byte{1, 2, 3}, FormatXRGB8888))
}
