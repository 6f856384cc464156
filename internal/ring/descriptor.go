// Package ring implements the shared-memory frame ring buffer the ingestion
// producer writes into and the detection consumer reads from: a metadata
// segment (fixed header plus parallel generation and payload-length arrays)
// addressing a separate data segment of fixed-size slots. Each slot is
// guarded by a seqlock generation counter so readers can detect a write in
// progress without ever blocking the writer.
package ring

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

const (
	// Magic identifies an ivis frame ring metadata segment.
	Magic = "IVIS"
	// FormatVersion is the binary layout version this package reads and writes.
	FormatVersion = 1
	// HeaderSize is the fixed size, in bytes, of the ring descriptor at the
	// start of the metadata segment, immediately followed by the
	// slot_count-length generation array and then the slot_count-length
	// payload_len array.
	HeaderSize = 20
)

const (
	offMagic      = 0x00 // [4]byte
	offVersion    = 0x04 // uint32
	offSlotSize   = 0x08 // uint32
	offSlotCount  = 0x0C // uint32
	offWriteIndex = 0x10 // uint32
)

// Descriptor is the fixed header at the start of a ring's metadata segment,
// describing its slot geometry and the index the next write will land on.
type Descriptor struct {
	Version    uint32
	SlotSize   uint32
	SlotCount  uint32
	WriteIndex uint32
}

// Validate checks that a decoded descriptor describes a usable segment.
func (d Descriptor) Validate() error {
	if d.Version != FormatVersion {
		return fmt.Errorf("unsupported ring format version %d", d.Version)
	}
	if d.SlotSize == 0 {
		return fmt.Errorf("slot_size must be positive")
	}
	if d.SlotCount == 0 {
		return fmt.Errorf("slot_count must be positive")
	}
	if d.WriteIndex >= d.SlotCount {
		return fmt.Errorf("write_index %d out of range for slot_count %d", d.WriteIndex, d.SlotCount)
	}
	return nil
}

// Encode serializes the descriptor into the first HeaderSize bytes of buf.
func Encode(buf []byte, d Descriptor) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("buffer too small for ring header: need %d bytes, have %d", HeaderSize, len(buf))
	}
	copy(buf[offMagic:], Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], d.Version)
	binary.LittleEndian.PutUint32(buf[offSlotSize:], d.SlotSize)
	binary.LittleEndian.PutUint32(buf[offSlotCount:], d.SlotCount)
	binary.LittleEndian.PutUint32(buf[offWriteIndex:], d.WriteIndex)
	return nil
}

// Decode reads a descriptor from the first HeaderSize bytes of buf and
// validates the magic before returning the parsed fields.
func Decode(buf []byte) (Descriptor, error) {
	if len(buf) < HeaderSize {
		return Descriptor{}, fmt.Errorf("buffer too small for ring header: need %d bytes, have %d", HeaderSize, len(buf))
	}
	if string(buf[offMagic:offMagic+4]) != Magic {
		return Descriptor{}, fmt.Errorf("bad ring magic %q", buf[offMagic:offMagic+4])
	}
	d := Descriptor{
		Version:    binary.LittleEndian.Uint32(buf[offVersion:]),
		SlotSize:   binary.LittleEndian.Uint32(buf[offSlotSize:]),
		SlotCount:  binary.LittleEndian.Uint32(buf[offSlotCount:]),
		WriteIndex: binary.LittleEndian.Uint32(buf[offWriteIndex:]),
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// SetWriteIndex atomically updates the write_index field in place without
// touching the rest of the header, used by the producer after each slot
// publish so a concurrent reader never observes a torn uint32.
func SetWriteIndex(buf []byte, index uint32) {
	atomic.StoreUint32((*uint32)(ptrAt(buf, offWriteIndex)), index)
}

// CurrentWriteIndex atomically loads the write_index field directly out of
// buf, the shared metadata segment, so a reader attached from a separate
// process observes the producer's actual write progress rather than a value
// cached at Open time.
func CurrentWriteIndex(buf []byte) uint32 {
	return atomic.LoadUint32((*uint32)(ptrAt(buf, offWriteIndex)))
}

// NewDescriptor builds a descriptor for a fresh segment with the write
// cursor parked at slot zero.
func NewDescriptor(slotSize, slotCount uint32) Descriptor {
	return Descriptor{Version: FormatVersion, SlotSize: slotSize, SlotCount: slotCount, WriteIndex: 0}
}
