// Package evdev models Linux input_event records and their wire codec.
//
// Events arrive on a byte stream as back-to-back fixed-size records with no
// framing. The layout matches the 64-bit kernel struct input_event: a
// timeval (two 64-bit words) followed by type, code, and value. All fields
// are native byte order; little-endian on every target this tool runs on.
package evdev

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EventSize is the wire size of one input_event record on 64-bit kernels.
const EventSize = 24

// Event type codes, from <linux/input-event-codes.h>.
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvRel uint16 = 0x02
	EvAbs uint16 = 0x03
	EvMsc uint16 = 0x04
	EvLed uint16 = 0x11
)

// Key event values.
const (
	ValueRelease int32 = 0
	ValuePress   int32 = 1
	ValueRepeat  int32 = 2
)

// KeyMax is the highest key code the kernel defines (KEY_MAX).
const KeyMax uint16 = 0x2ff

// Event mirrors the Linux input_event struct.
type Event struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Decode parses one record from buf. buf must hold at least EventSize bytes.
func Decode(buf []byte) Event {
	return Event{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
}

// Encode writes the record into buf. buf must hold at least EventSize bytes.
func (e Event) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Usec))
	binary.LittleEndian.PutUint16(buf[16:18], e.Type)
	binary.LittleEndian.PutUint16(buf[18:20], e.Code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(e.Value))
}

// Micros returns the event timestamp as unsigned microseconds
// (sec*1_000_000 + usec). Arithmetic wraps on pathological timestamps;
// callers treat timestamps as opaque unsigned values.
func (e Event) Micros() uint64 {
	return uint64(e.Sec)*1_000_000 + uint64(e.Usec)
}

// IsKey reports whether the event is a key event (EV_KEY).
func (e Event) IsKey() bool { return e.Type == EvKey }

// IsSyn reports whether the event is a synchronization marker (EV_SYN).
func (e Event) IsSyn() bool { return e.Type == EvSyn }

// IsMsc reports whether the event is a miscellaneous event (EV_MSC).
func (e Event) IsMsc() bool { return e.Type == EvMsc }

// ReadEvent reads exactly one record into buf[:EventSize].
//
// A clean end of stream at a record boundary returns io.EOF. A stream that
// ends mid-record returns an error wrapping io.ErrUnexpectedEOF; records are
// never silently discarded.
func ReadEvent(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf[:EventSize])
	if err == nil || err == io.EOF {
		return err
	}
	if err == io.ErrUnexpectedEOF {
		return fmt.Errorf("truncated input_event record: %w", err)
	}
	return fmt.Errorf("read input_event: %w", err)
}

// WriteEvent writes one raw record from buf[:EventSize]. The bytes are
// forwarded exactly as read; passed events must not be re-encoded.
func WriteEvent(w io.Writer, buf []byte) error {
	_, err := w.Write(buf[:EventSize])
	return err
}
