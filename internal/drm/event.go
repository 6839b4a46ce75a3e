package drm

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Event types delivered on the device fd.
const (
	EventVBlank       = 0x01
	EventFlipComplete = 0x02
	EventCRTCSequence = 0x03
)

const eventHeaderSize = 8

// FlipEvent reports that an atomic commit became active on one CRTC.
//
// When the driver declares CapTimestampMonotonic, Time is a CLOCK_MONOTONIC
// reading taken close to the start of the previous frame's vblank.
type FlipEvent struct {
	UserData uint64
	Time     time.Duration
	Sequence uint32
	CRTC     uint32
}

// DecodeEvents parses the wire events read from the device fd, keeping only
// flip completions. Unknown event types are skipped by their declared length.
func DecodeEvents(buf []byte) ([]FlipEvent, error) {
	var events []FlipEvent
	le := binary.LittleEndian
	for len(buf) >= eventHeaderSize {
		typ := le.Uint32(buf[0:])
		length := int(le.Uint32(buf[4:]))
		if length < eventHeaderSize || length > len(buf) {
			return events, fmt.Errorf("drm: truncated event (type %d, length %d)", typ, length)
		}
		if typ == EventFlipComplete && length >= 32 {
			events = append(events, FlipEvent{
				UserData: le.Uint64(buf[8:]),
				Time: time.Duration(le.Uint32(buf[16:]))*time.Second +
					time.Duration(le.Uint32(buf[20:]))*time.Microsecond,
				Sequence: le.Uint32(buf[24:]),
				CRTC:     le.Uint32(buf[28:]),
			})
		}
		buf = buf[length:]
	}
	return events, nil
}
