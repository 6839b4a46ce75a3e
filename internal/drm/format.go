package drm

import "encoding/binary"

// Pixel formats (fourcc codes) and layout modifiers.
const (
	FormatXRGB8888 = 'X' | 'R'<<8 | '2'<<16 | '4'<<24

	ModifierLinear  = 0
	ModifierInvalid = 0x00ffffffffffffff
)

// ParseInFormats extracts the modifiers supported for one format from a
// plane's IN_FORMATS blob. The blob carries a format array and a modifier
// array at byte offsets declared in its header; each modifier entry holds a
// bitmask of the formats (relative to its offset) it applies to.
func ParseInFormats(blob []byte, format uint32) []uint64 {
	if len(blob) < 24 {
		return nil
	}
	le := binary.LittleEndian
	var (
		countFormats    = int(le.Uint32(blob[8:]))
		formatsOffset   = int(le.Uint32(blob[12:]))
		countModifiers  = int(le.Uint32(blob[16:]))
		modifiersOffset = int(le.Uint32(blob[20:]))
	)
	if formatsOffset+countFormats*4 > len(blob) ||
		modifiersOffset+countModifiers*24 > len(blob) {
		return nil
	}

	var modifiers []uint64
	for f := 0; f < countFormats; f++ {
		if le.Uint32(blob[formatsOffset+f*4:]) != format {
			continue
		}
		for m := 0; m < countModifiers; m++ {
			entry := blob[modifiersOffset+m*24:]
			var (
				formats = le.Uint64(entry[0:])
				offset  = int(le.Uint32(entry[8:]))
				mod     = le.Uint64(entry[16:])
			)
			if f < offset || f > offset+63 {
				continue
			}
			if formats&(1<<uint(f-offset)) == 0 {
				continue
			}
			modifiers = append(modifiers, mod)
		}
	}
	return modifiers
}
