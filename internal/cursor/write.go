package cursor

import (
	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/pagedir"
)

// WriteCursor streams a record's id/length/payload/checksum chunks
// forward across however many chained pages it needs, maintaining the
// running XOR checksum exactly as ParseCursor expects to find it on
// the way back.
type WriteCursor struct {
	w        *walker
	id       flashdev.Chunk
	checksum flashdev.Chunk

	startVirt uint16
	startOff  int
}

// NewWriteCursor positions a write cursor at the current end of the
// page given by virt/offset. id is echoed as the leading chunk of any
// continuation page the record spills into.
func NewWriteCursor(dev flashdev.Device, dir *pagedir.Directory, chunksPerPage int, virt uint16, offset int, id uint16) (*WriteCursor, error) {
	w, err := newWalker(dev, dir, chunksPerPage, virt)
	if err != nil {
		return nil, err
	}
	w.seek(offset)
	return &WriteCursor{w: w, id: flashdev.Chunk(id), startVirt: virt, startOff: offset}, nil
}

// Position reports the id chunk's final resting (page, offset), for
// recording in the id index.
func (wc *WriteCursor) Position() (uint16, int) { return wc.startVirt, wc.startOff }

// WriteID programs the record's id chunk and folds it into the
// checksum.
func (wc *WriteCursor) WriteID(id uint16) error {
	wc.checksum ^= flashdev.Chunk(id)
	return wc.w.writeChunk(flashdev.Chunk(id), wc.id)
}

// WriteLength programs the record's length chunk and folds it into
// the checksum.
func (wc *WriteCursor) WriteLength(length uint16) error {
	wc.checksum ^= flashdev.Chunk(length)
	return wc.w.writeChunk(flashdev.Chunk(length), wc.id)
}

// WritePayloadChunk programs one payload chunk (already packed
// little-endian into a Chunk by the caller) and folds it into the
// checksum.
func (wc *WriteCursor) WritePayloadChunk(value flashdev.Chunk) error {
	wc.checksum ^= value
	return wc.w.writeChunk(value, wc.id)
}

// WriteChecksum programs the trailing XOR checksum chunk, completing
// the record.
func (wc *WriteCursor) WriteChecksum() error {
	return wc.w.writeChunk(wc.checksum, wc.id)
}

// CurPosition reports where the cursor sits right now (used to find a
// record's end position, e.g. for delete's backward walk after a
// fresh write superseding an old one shares page bookkeeping).
func (wc *WriteCursor) CurPosition() (uint16, int) { return wc.w.curVirt(), wc.w.curOffset() }

// PackPayload splits a byte payload into chunkBytes-wide little-endian
// Chunks, the inverse of ReadPayload's putChunkLE unpacking. The final
// chunk is zero-padded if payload's length isn't chunk-aligned.
func PackPayload(payload []byte, chunkBytes int) []flashdev.Chunk {
	n := chunksFor(uint16(len(payload)), chunkBytes)
	out := make([]flashdev.Chunk, n)
	for i := 0; i < n; i++ {
		var v flashdev.Chunk
		for b := 0; b < chunkBytes; b++ {
			idx := i*chunkBytes + b
			if idx >= len(payload) {
				break
			}
			v |= flashdev.Chunk(payload[idx]) << (8 * uint(b))
		}
		out[i] = v
	}
	return out
}
