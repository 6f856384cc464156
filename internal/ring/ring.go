package ring

import (
	"fmt"
	"sync/atomic"
	"syscall"
)

// Ring is a fixed-capacity circular buffer of frame slots backed by two
// shared-memory-mapped files: a metadata segment (descriptor plus parallel
// generation and payload_len arrays) and a data segment of pure payload
// slots, written by a single producer and read by any number of concurrent
// consumers. Each slot is guarded by a seqlock generation counter: a
// consumer sees an even generation before and after its copy, or discards
// the read as torn. A cross-process flock(2) lock serializes the brief
// metadata-mutation window the seqlock counter alone cannot cover.
type Ring struct {
	meta      []byte
	data      []byte
	slotSize  uint32
	slotCount uint32
	lockPath  string
}

func metaSize(slotCount uint32) int64 {
	return int64(HeaderSize) + 2*4*int64(slotCount)
}

func genOffset(index uint32) int {
	return HeaderSize + 4*int(index)
}

func lenOffset(slotCount, index uint32) int {
	return HeaderSize + 4*int(slotCount) + 4*int(index)
}

// Create truncates the metadata file at metaPath to fit a descriptor plus
// slotCount generation and payload_len entries, and the data file at
// dataPath to fit slotCount slots of slotSize bytes each, memory-maps both,
// and writes a fresh descriptor. lockPath names the flock(2) file guarding
// metadata reads and writes; it need not exist yet.
func Create(dataPath, metaPath, lockPath string, slotSize, slotCount uint32) (*Ring, error) {
	if slotSize == 0 {
		return nil, fmt.Errorf("slot size must be positive")
	}
	if slotCount == 0 {
		return nil, fmt.Errorf("slot count must be positive")
	}

	mf, err := openTruncated(metaPath, metaSize(slotCount))
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	meta, err := syscall.Mmap(int(mf.Fd()), 0, int(metaSize(slotCount)), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap ring metadata segment: %w", err)
	}
	if err := Encode(meta, NewDescriptor(slotSize, slotCount)); err != nil {
		syscall.Munmap(meta)
		return nil, err
	}

	df, err := openTruncated(dataPath, int64(slotSize)*int64(slotCount))
	if err != nil {
		syscall.Munmap(meta)
		return nil, err
	}
	defer df.Close()

	data, err := syscall.Mmap(int(df.Fd()), 0, int(slotSize)*int(slotCount), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		syscall.Munmap(meta)
		return nil, fmt.Errorf("mmap ring data segment: %w", err)
	}

	return &Ring{meta: meta, data: data, slotSize: slotSize, slotCount: slotCount, lockPath: lockPath}, nil
}

// Open memory-maps an existing ring's metadata and data segments and
// validates that their sizes agree with the descriptor found in the
// metadata segment.
func Open(dataPath, metaPath, lockPath string) (*Ring, error) {
	mf, err := openExisting(metaPath)
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	minfo, err := mf.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat ring metadata segment: %w", err)
	}
	meta, err := syscall.Mmap(int(mf.Fd()), 0, int(minfo.Size()), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap ring metadata segment: %w", err)
	}

	desc, err := Decode(meta)
	if err != nil {
		syscall.Munmap(meta)
		return nil, err
	}
	if int64(minfo.Size()) != metaSize(desc.SlotCount) {
		syscall.Munmap(meta)
		return nil, fmt.Errorf("metadata segment size %d does not match descriptor slot_count %d", minfo.Size(), desc.SlotCount)
	}

	df, err := openExisting(dataPath)
	if err != nil {
		syscall.Munmap(meta)
		return nil, err
	}
	defer df.Close()

	dinfo, err := df.Stat()
	if err != nil {
		syscall.Munmap(meta)
		return nil, fmt.Errorf("stat ring data segment: %w", err)
	}
	wantDataSize := int64(desc.SlotSize) * int64(desc.SlotCount)
	if dinfo.Size() != wantDataSize {
		syscall.Munmap(meta)
		return nil, fmt.Errorf("data segment size %d does not match descriptor slot_size*slot_count %d", dinfo.Size(), wantDataSize)
	}

	data, err := syscall.Mmap(int(df.Fd()), 0, int(dinfo.Size()), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		syscall.Munmap(meta)
		return nil, fmt.Errorf("mmap ring data segment: %w", err)
	}

	return &Ring{meta: meta, data: data, slotSize: desc.SlotSize, slotCount: desc.SlotCount, lockPath: lockPath}, nil
}

// Close unmaps both of the ring's backing segments.
func (r *Ring) Close() error {
	if r == nil {
		return nil
	}
	var errs error
	if r.data != nil {
		if err := syscall.Munmap(r.data); err != nil {
			errs = err
		}
		r.data = nil
	}
	if r.meta != nil {
		if err := syscall.Munmap(r.meta); err != nil && errs == nil {
			errs = err
		}
		r.meta = nil
	}
	return errs
}

// Capacity returns the configured slot count and the maximum payload size
// each slot can hold.
func (r *Ring) Capacity() (slotCount int, maxPayload int) {
	return int(r.slotCount), int(r.slotSize)
}

func (r *Ring) slotOffset(index uint32) int64 {
	return int64(index) * int64(r.slotSize)
}

func (r *Ring) genPtr(index uint32) *uint32 {
	return (*uint32)(ptrAt(r.meta, genOffset(index)))
}

func (r *Ring) lenPtr(index uint32) *uint32 {
	return (*uint32)(ptrAt(r.meta, lenOffset(r.slotCount, index)))
}

func (r *Ring) currentWriteIndex() uint32 {
	return CurrentWriteIndex(r.meta)
}

// WriteFrame publishes payload into the next slot in round-robin order,
// advances the ring's write cursor, and persists it to the descriptor so a
// consumer that opens the segment later resumes from the correct index.
// The whole metadata mutation — generation flip, payload_len update, and
// write_index advance — runs under an exclusive flock(2) held against
// lockPath, serializing it against any reader's brief before/after
// generation checks; the payload copy runs under the same lock, which is
// held until WriteFrame returns.
func (r *Ring) WriteFrame(payload []byte) (slotIndex uint32, err error) {
	maxPayload := int(r.slotSize)
	if len(payload) > maxPayload {
		return 0, fmt.Errorf("payload of %d bytes exceeds slot capacity %d", len(payload), maxPayload)
	}

	fl, err := Lock(r.lockPath)
	if err != nil {
		return 0, fmt.Errorf("acquire ring write lock: %w", err)
	}
	defer fl.Unlock()

	index := r.currentWriteIndex()
	genPtr := r.genPtr(index)

	//1.- Flip the generation to odd: readers that observe this mid-write discard the slot.
	gen := atomic.LoadUint32(genPtr)
	atomic.StoreUint32(genPtr, gen+1)

	atomic.StoreUint32(r.lenPtr(index), uint32(len(payload)))
	offset := r.slotOffset(index)
	copy(r.data[offset:offset+int64(r.slotSize)], payload)

	//2.- Flip the generation to even: the payload is now safe to read.
	atomic.StoreUint32(genPtr, gen+2)

	next := (index + 1) % r.slotCount
	SetWriteIndex(r.meta, next)

	return index, nil
}

// readSlotGeneric copies the payload held in slot index, retrying up to
// maxRetries times on a write in progress or a torn read. If wantGen is
// non-nil, the read additionally fails as an overwrite miss (without
// retrying) when the slot's generation no longer matches *wantGen.
func (r *Ring) readSlotGeneric(index uint32, wantGen *uint32, maxRetries int) (payload []byte, ok bool) {
	if index >= r.slotCount {
		return nil, false
	}
	genPtr := r.genPtr(index)
	lenPtr := r.lenPtr(index)
	maxPayload := r.slotSize

	if maxRetries <= 0 {
		maxRetries = 1
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		before, err := r.lockedGeneration(genPtr)
		if err != nil {
			return nil, false
		}
		if wantGen != nil && before != *wantGen {
			if before%2 != 0 {
				//1.- A write is in progress; retry rather than reporting a miss prematurely.
				continue
			}
			//2.- The slot has already been overwritten since wantGen was captured:
			// an overwrite miss, not a torn read, so do not retry past it.
			return nil, false
		}
		if before%2 != 0 {
			//3.- A write is in progress; retry rather than reading a torn slot.
			continue
		}

		length := atomic.LoadUint32(lenPtr)
		if length > maxPayload {
			continue
		}
		offset := r.slotOffset(index)
		out := make([]byte, length)
		copy(out, r.data[offset:offset+int64(length)])

		after, err := r.lockedGeneration(genPtr)
		if err != nil {
			return nil, false
		}
		if before == after {
			return out, true
		}
		//4.- The generation changed mid-copy; the read was torn, retry.
	}
	return nil, false
}

// lockedGeneration reads genPtr under a brief shared flock, matching spec's
// write protocol where the reader's before/after generation checks are
// individually locked but the payload copy in between is not.
func (r *Ring) lockedGeneration(genPtr *uint32) (uint32, error) {
	fl, err := RLock(r.lockPath)
	if err != nil {
		return 0, err
	}
	defer fl.Unlock()
	return atomic.LoadUint32(genPtr), nil
}

// ReadSlot copies the payload currently held in slot index, retrying the
// seqlock read up to maxRetries times if it observes a write in progress or
// a torn read. ok is false if every attempt was torn.
func (r *Ring) ReadSlot(index uint32, maxRetries int) (payload []byte, ok bool) {
	return r.readSlotGeneric(index, nil, maxRetries)
}

// WriteIndex atomically reads the slot index the next WriteFrame call will
// land on directly from the shared metadata segment, so a reader attached
// from a separate process observes the producer's live progress.
func (r *Ring) WriteIndex() uint32 {
	return r.currentWriteIndex()
}

// ReadLatest reads the payload most recently written, for a reader (the
// viewer's ring-fallback poller) that has no frame contract to recover a
// specific (slot, generation) pair from.
func (r *Ring) ReadLatest(maxRetries int) (payload []byte, ok bool) {
	if r.slotCount == 0 {
		return nil, false
	}
	idx := (r.currentWriteIndex() - 1 + r.slotCount) % r.slotCount
	return r.ReadSlot(idx, maxRetries)
}

// CurrentGeneration returns the generation counter currently stamped on
// slot index, for a producer to capture immediately after WriteFrame so it
// can be carried in the published frame contract's memory.generation field.
func (r *Ring) CurrentGeneration(index uint32) (uint32, bool) {
	if index >= r.slotCount {
		return 0, false
	}
	return atomic.LoadUint32(r.genPtr(index)), true
}

// ReadSlotAt copies the payload held in slot index only if its current
// generation exactly matches wantGen, retrying the seqlock read up to
// maxRetries times on a write-in-progress or torn read. A generation
// mismatch (the slot has since been overwritten) is reported as a miss,
// giving callers the overwrite-detection behaviour a bare ReadSlot cannot:
// a reader that resumes from a stale (slot, generation) pair observes a
// miss rather than silently returning newer, unrelated bytes.
func (r *Ring) ReadSlotAt(index uint32, wantGen uint32, maxRetries int) (payload []byte, ok bool) {
	return r.readSlotGeneric(index, &wantGen, maxRetries)
}
