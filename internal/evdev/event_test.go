package evdev

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestDecodeFixedOffsets(t *testing.T) {
	buf := make([]byte, EventSize)
	binary.LittleEndian.PutUint64(buf[0:8], 1700000123)
	binary.LittleEndian.PutUint64(buf[8:16], 456789)
	binary.LittleEndian.PutUint16(buf[16:18], EvKey)
	binary.LittleEndian.PutUint16(buf[18:20], 30) // KEY_A
	binary.LittleEndian.PutUint32(buf[20:24], 1)

	ev := Decode(buf)
	if ev.Sec != 1700000123 || ev.Usec != 456789 {
		t.Errorf("timestamp = (%d, %d), want (1700000123, 456789)", ev.Sec, ev.Usec)
	}
	if ev.Type != EvKey || ev.Code != 30 || ev.Value != ValuePress {
		t.Errorf("decoded %+v, want EV_KEY/30/press", ev)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		{Sec: 0, Usec: 0, Type: EvSyn, Code: 0, Value: 0},
		{Sec: 1700000123, Usec: 999999, Type: EvKey, Code: 30, Value: 1},
		{Sec: 42, Usec: 7, Type: EvKey, Code: KeyMax, Value: 2},
		{Sec: 5, Usec: 5, Type: EvRel, Code: 1, Value: -3},
	}
	buf := make([]byte, EventSize)
	for _, want := range events {
		want.Encode(buf)
		if got := Decode(buf); got != want {
			t.Errorf("round trip: got %+v, want %+v", got, want)
		}
	}
}

func TestMicros(t *testing.T) {
	tests := []struct {
		sec, usec int64
		want      uint64
	}{
		{0, 0, 0},
		{0, 999999, 999999},
		{1, 0, 1_000_000},
		{1700000123, 456789, 1700000123456789},
	}
	for _, tt := range tests {
		ev := Event{Sec: tt.sec, Usec: tt.usec}
		if got := ev.Micros(); got != tt.want {
			t.Errorf("Micros(%d, %d) = %d, want %d", tt.sec, tt.usec, got, tt.want)
		}
	}
}

func TestReadEventFullRecord(t *testing.T) {
	src := make([]byte, EventSize)
	Event{Sec: 9, Usec: 100, Type: EvKey, Code: 30, Value: 1}.Encode(src)

	buf := make([]byte, EventSize)
	if err := ReadEvent(bytes.NewReader(src), buf); err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if !bytes.Equal(buf, src) {
		t.Error("buffer does not match source record")
	}
}

func TestReadEventCleanEOF(t *testing.T) {
	buf := make([]byte, EventSize)
	err := ReadEvent(bytes.NewReader(nil), buf)
	if err != io.EOF {
		t.Errorf("empty stream: got %v, want io.EOF", err)
	}
}

func TestReadEventTruncatedRecord(t *testing.T) {
	// 10 bytes is mid-record; this must be an error, not EOF.
	err := ReadEvent(bytes.NewReader(make([]byte, 10)), make([]byte, EventSize))
	if err == nil || err == io.EOF {
		t.Fatalf("truncated stream: got %v, want unexpected-EOF error", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated stream: error %v does not wrap io.ErrUnexpectedEOF", err)
	}
}

func TestWriteEventForwardsRawBytes(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}
	var out bytes.Buffer
	if err := WriteEvent(&out, src); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if !bytes.Equal(out.Bytes(), src) {
		t.Error("written bytes differ from source record")
	}
}

func TestClassifiers(t *testing.T) {
	key := Event{Type: EvKey}
	syn := Event{Type: EvSyn}
	msc := Event{Type: EvMsc}
	if !key.IsKey() || syn.IsKey() {
		t.Error("IsKey misclassified")
	}
	if !syn.IsSyn() || key.IsSyn() {
		t.Error("IsSyn misclassified")
	}
	if !msc.IsMsc() || key.IsMsc() {
		t.Error("IsMsc misclassified")
	}
}
