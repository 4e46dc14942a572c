package e2s

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestVersionRecordBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteVersion(); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	want := []byte{0x65, 0x32, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("version record = % x, want % x", buf.Bytes(), want)
	}
	if w.Offset() != 8 {
		t.Fatalf("offset after version = %d, want 8", w.Offset())
	}
}

func TestRecordRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteVersion(); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	recs := []Record{
		{Type: TypeEmpty, Payload: nil},
		{Type: TypeCompressedSignedBeaconBlock, Payload: []byte{1, 2, 3}},
		{Type: TypeCompressedBeaconState, Payload: bytes.Repeat([]byte{0xab}, 100)},
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write(%#04x): %v", rec.Type, err)
		}
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	if err := r.ReadVersion(); err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	for i, want := range recs {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read record %d: %v", i, err)
		}
		if got.Type != want.Type || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("record %d = {%#04x, % x}, want {%#04x, % x}", i, got.Type, got.Payload, want.Type, want.Payload)
		}
	}
	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadRejectsMissingVersion(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 0}))
	if err := r.ReadVersion(); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestReadRejectsNonzeroReserved(t *testing.T) {
	raw := []byte{0x00, 0x00, 0, 0, 0, 0, 0xff, 0x00}
	r := NewReader(bytes.NewReader(raw))
	if _, err := r.Read(); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for reserved bytes, got %v", err)
	}
}

func TestReadRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(Record{Type: TypeEmpty, Payload: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r := NewReader(bytes.NewReader(buf.Bytes()[:buf.Len()-2]))
	if _, err := r.Read(); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for truncated payload, got %v", err)
	}
}

func TestCompressedRoundtrip(t *testing.T) {
	raw := bytes.Repeat([]byte("beacon state ssz "), 64)
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteCompressed(TypeCompressedBeaconState, raw); err != nil {
		t.Fatalf("WriteCompressed: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	rec, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(rec.Payload) >= len(raw) {
		t.Fatalf("compressed payload (%d bytes) not smaller than raw (%d bytes)", len(rec.Payload), len(raw))
	}
	got, err := Decompress(rec)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("decompressed payload differs from original")
	}
}

func TestDecompressRejectsWrongType(t *testing.T) {
	if _, err := Decompress(Record{Type: TypeSlotIndex, Payload: nil}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for non-compressed type, got %v", err)
	}
}

func TestSlotIndexRoundtrip(t *testing.T) {
	si := &SlotIndex{StartSlot: 8192, Offsets: []int64{8, 0, 1024, 0, 70000}}
	payload := si.Marshal()

	got, err := UnmarshalSlotIndex(payload)
	if err != nil {
		t.Fatalf("UnmarshalSlotIndex: %v", err)
	}
	if got.StartSlot != si.StartSlot {
		t.Fatalf("StartSlot = %d, want %d", got.StartSlot, si.StartSlot)
	}
	if len(got.Offsets) != len(si.Offsets) {
		t.Fatalf("len(Offsets) = %d, want %d", len(got.Offsets), len(si.Offsets))
	}
	for i := range si.Offsets {
		if got.Offsets[i] != si.Offsets[i] {
			t.Fatalf("Offsets[%d] = %d, want %d", i, got.Offsets[i], si.Offsets[i])
		}
	}
}

func TestSlotIndexRejectsBadCount(t *testing.T) {
	si := &SlotIndex{StartSlot: 0, Offsets: []int64{1, 2, 3}}
	payload := si.Marshal()
	payload[len(payload)-8] = 7 // count no longer matches shape
	if _, err := UnmarshalSlotIndex(payload); !errors.Is(err, ErrInvalidSlotIndex) {
		t.Fatalf("expected ErrInvalidSlotIndex, got %v", err)
	}
	if _, err := UnmarshalSlotIndex([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidSlotIndex) {
		t.Fatalf("expected ErrInvalidSlotIndex for short payload, got %v", err)
	}
}

func TestWriterTracksOffsetsForIndex(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteVersion(); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	blockOffset := w.Offset()
	if err := w.WriteCompressed(TypeCompressedSignedBeaconBlock, []byte("block")); err != nil {
		t.Fatalf("WriteCompressed: %v", err)
	}
	si := &SlotIndex{StartSlot: 100, Offsets: []int64{blockOffset}}
	if err := w.WriteSlotIndex(si); err != nil {
		t.Fatalf("WriteSlotIndex: %v", err)
	}

	// Re-reading from the recorded offset must land on the block record.
	r := NewReader(bytes.NewReader(buf.Bytes()[blockOffset:]))
	rec, err := r.Read()
	if err != nil {
		t.Fatalf("Read at indexed offset: %v", err)
	}
	if rec.Type != TypeCompressedSignedBeaconBlock {
		t.Fatalf("record at indexed offset has type %#04x, want %#04x", rec.Type, TypeCompressedSignedBeaconBlock)
	}
}
