package e2s

import (
	"encoding/binary"
	"fmt"
)

// SlotIndex maps each slot in [StartSlot, StartSlot+len(Offsets)) to the
// absolute file offset of that slot's record, with 0 meaning the slot is
// empty. It is written as the trailing record of an era file so readers
// can locate it by seeking back count*8 + 24 bytes from the end.
type SlotIndex struct {
	StartSlot uint64
	Offsets   []int64
}

// Marshal encodes the payload: start_slot:u64 LE, offsets:[N]i64 LE,
// count:u64 LE. The trailing count duplicates len(Offsets) so the index
// can be parsed backwards from the end of the file.
func (si *SlotIndex) Marshal() []byte {
	out := make([]byte, 8+8*len(si.Offsets)+8)
	binary.LittleEndian.PutUint64(out[0:8], si.StartSlot)
	for i, off := range si.Offsets {
		binary.LittleEndian.PutUint64(out[8+8*i:], uint64(off))
	}
	binary.LittleEndian.PutUint64(out[len(out)-8:], uint64(len(si.Offsets)))
	return out
}

// UnmarshalSlotIndex parses a SlotIndex record payload, checking that the
// trailing count matches the payload's actual shape.
func UnmarshalSlotIndex(payload []byte) (*SlotIndex, error) {
	if len(payload) < 16 || len(payload)%8 != 0 {
		return nil, fmt.Errorf("%w: payload length %d", ErrInvalidSlotIndex, len(payload))
	}
	count := binary.LittleEndian.Uint64(payload[len(payload)-8:])
	want := 8 + 8*count + 8
	if uint64(len(payload)) != want {
		return nil, fmt.Errorf("%w: count %d disagrees with payload length %d", ErrInvalidSlotIndex, count, len(payload))
	}
	si := &SlotIndex{
		StartSlot: binary.LittleEndian.Uint64(payload[0:8]),
		Offsets:   make([]int64, count),
	}
	for i := range si.Offsets {
		si.Offsets[i] = int64(binary.LittleEndian.Uint64(payload[8+8*i:]))
	}
	return si, nil
}

// WriteSlotIndex frames a SlotIndex as the index record.
func (w *Writer) WriteSlotIndex(si *SlotIndex) error {
	return w.Write(Record{Type: TypeSlotIndex, Payload: si.Marshal()})
}
