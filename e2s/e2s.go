// Package e2s reads and writes the E2Store (era file) record framing: a
// flat stream of length-prefixed records carrying snappy-compressed SSZ
// blobs plus a slot index trailer. Only the framing lives here; the SSZ
// payloads inside are produced and consumed by the forks package.
package e2s

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Record type tags. The two-byte tag is read little-endian, so Version
// appears on disk as the ASCII bytes "e2".
const (
	TypeEmpty                       uint16 = 0x0000
	TypeCompressedSignedBeaconBlock uint16 = 0x0001
	TypeCompressedBeaconState       uint16 = 0x0002
	TypeVersion                     uint16 = 0x3265
	TypeSlotIndex                   uint16 = 0x3269
)

// headerSize is the fixed record header: type:u16 LE, length:u32 LE,
// reserved:[2] = 0.
const headerSize = 8

// maxRecordLength caps a single record's payload so a corrupt length
// field cannot drive an allocation of the full u32 range.
const maxRecordLength = 1 << 30

var (
	ErrInvalidRecord    = errors.New("e2s: invalid record")
	ErrUnknownVersion   = errors.New("e2s: stream does not start with a version record")
	ErrInvalidSlotIndex = errors.New("e2s: malformed slot index payload")
)

// versionRecord is the exact 8 bytes every era file starts with.
var versionRecord = [headerSize]byte{0x65, 0x32, 0, 0, 0, 0, 0, 0}

// Record is one framed entry: a type tag and its raw (possibly
// compressed) payload.
type Record struct {
	Type    uint16
	Payload []byte
}

// Writer frames records onto an underlying stream. It tracks the byte
// offset of each record written so callers can build a SlotIndex.
type Writer struct {
	w      io.Writer
	offset int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Offset returns the stream offset the next record will start at.
func (w *Writer) Offset() int64 { return w.offset }

// WriteVersion emits the mandatory leading version record.
func (w *Writer) WriteVersion() error {
	n, err := w.w.Write(versionRecord[:])
	w.offset += int64(n)
	return err
}

// Write frames one record. The reserved header bytes are always zero.
func (w *Writer) Write(rec Record) error {
	if len(rec.Payload) > maxRecordLength {
		return fmt.Errorf("%w: payload of %d bytes exceeds record limit", ErrInvalidRecord, len(rec.Payload))
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], rec.Type)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(rec.Payload)))
	n, err := w.w.Write(hdr[:])
	w.offset += int64(n)
	if err != nil {
		return err
	}
	n, err = w.w.Write(rec.Payload)
	w.offset += int64(n)
	return err
}

// WriteCompressed snappy-frames raw (an SSZ-encoded block or state) and
// writes it under the given compressed-record type.
func (w *Writer) WriteCompressed(typ uint16, raw []byte) error {
	return w.Write(Record{Type: typ, Payload: snappy.Encode(nil, raw)})
}

// Reader decodes framed records from an underlying stream, tracking the
// byte offset of the record being read for error reporting.
type Reader struct {
	r      io.Reader
	offset int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the stream offset of the next unread record.
func (r *Reader) Offset() int64 { return r.offset }

// ReadVersion consumes and checks the mandatory leading version record.
func (r *Reader) ReadVersion() error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownVersion, err)
	}
	r.offset += headerSize
	if hdr != versionRecord {
		return ErrUnknownVersion
	}
	return nil
}

// Read returns the next record, or io.EOF at a clean end of stream.
func (r *Reader) Read() (Record, error) {
	recStart := r.offset
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w at offset %d: truncated header: %v", ErrInvalidRecord, recStart, err)
	}
	r.offset += headerSize
	if hdr[6] != 0 || hdr[7] != 0 {
		return Record{}, fmt.Errorf("%w at offset %d: nonzero reserved bytes", ErrInvalidRecord, recStart)
	}
	length := binary.LittleEndian.Uint32(hdr[2:6])
	if length > maxRecordLength {
		return Record{}, fmt.Errorf("%w at offset %d: length %d exceeds record limit", ErrInvalidRecord, recStart, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Record{}, fmt.Errorf("%w at offset %d: truncated payload: %v", ErrInvalidRecord, recStart, err)
	}
	r.offset += int64(length)
	return Record{Type: binary.LittleEndian.Uint16(hdr[0:2]), Payload: payload}, nil
}

// Decompress snappy-decodes a compressed record's payload back into the
// raw SSZ bytes.
func Decompress(rec Record) ([]byte, error) {
	if rec.Type != TypeCompressedSignedBeaconBlock && rec.Type != TypeCompressedBeaconState {
		return nil, fmt.Errorf("%w: record type %#04x is not a compressed payload", ErrInvalidRecord, rec.Type)
	}
	raw, err := snappy.Decode(nil, rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy: %v", ErrInvalidRecord, err)
	}
	return raw, nil
}
