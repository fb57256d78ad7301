// Package cursor implements the record cursor: a stateful value that
// walks record chunks across chained pages, maintaining the running
// XOR checksum and the parse phase. It borrows the store's device and
// directory and exposes a step-like Next() returning the next parse
// outcome; a variant/enum is the natural fit for its parse phase.
package cursor

import (
	"errors"

	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/pagedir"
	"github.com/anvoe/virtflash/internal/pagefmt"
)

// ErrNoContinuation is reported as DATA_CONSISTENCY by its callers:
// the cursor crossed a page boundary but the expected continuation
// page does not exist in the page directory.
var ErrNoContinuation = errors.New("cursor: expected continuation page not found")

// walker is the low-level piece that turns (virt page, local chunk
// offset) coordinates into flash reads/writes, advancing across
// chained pages transparently. It never knows about record framing;
// that is the job of ParseCursor and WriteCursor.
type walker struct {
	dev           flashdev.Device
	dir           *pagedir.Directory
	chunksPerPage int

	virt   uint16
	meta   *pagedir.Meta
	offset int // 0-based offset within the page's record area
}

func recordAreaLen(chunksPerPage int) int {
	return chunksPerPage - pagefmt.HeaderChunks
}

func newWalker(dev flashdev.Device, dir *pagedir.Directory, chunksPerPage int, startVirt uint16) (*walker, error) {
	meta, ok := dir.Get(startVirt)
	if !ok {
		return nil, ErrNoContinuation
	}
	return &walker{dev: dev, dir: dir, chunksPerPage: chunksPerPage, virt: startVirt, meta: meta}, nil
}

// seek repositions the walker to a specific local offset within its
// current page without crossing pages.
func (w *walker) seek(offset int) { w.offset = offset }

// atPageEnd reports whether the next chunk would cross into a
// continuation page.
func (w *walker) atPageEnd() bool { return w.offset >= recordAreaLen(w.chunksPerPage) }

// advancePage crosses into the next page in virt_num order, returning
// the id chunk written there by the writer for linkage verification:
// the continuation page's first record-area chunk is the id of the
// record it continues.
func (w *walker) advancePage() (flashdev.Chunk, error) {
	next, ok := w.dir.Next(w.virt)
	if !ok {
		return 0, ErrNoContinuation
	}
	w.virt = next.VirtNum
	w.meta = next
	w.offset = 0
	idChunk, err := w.dev.ReadChunk(next.PhysNum, pagefmt.HeaderChunks)
	if err != nil {
		return 0, err
	}
	w.offset = 1
	return idChunk, nil
}

// crossToNextFresh moves to the next page in virt_num order, landing
// at its true offset 0 with no chunk consumed. Unlike advancePage,
// this is for crossing while CLEAN (no record in progress): a page
// that nothing is continuing onto carries no linkage-echo chunk, so
// its first record-area chunk is genuine data, not one to skip.
func (w *walker) crossToNextFresh() error {
	next, ok := w.dir.Next(w.virt)
	if !ok {
		return ErrNoContinuation
	}
	w.virt = next.VirtNum
	w.meta = next
	w.offset = 0
	return nil
}

// readChunk reads the chunk at the current position, crossing into a
// continuation page first if the cursor is already past the end.
func (w *walker) readChunk() (flashdev.Chunk, error) {
	if w.atPageEnd() {
		if _, err := w.advancePage(); err != nil {
			return 0, err
		}
	}
	c, err := w.dev.ReadChunk(w.meta.PhysNum, pagefmt.HeaderChunks+w.offset)
	if err != nil {
		return 0, err
	}
	w.offset++
	return c, nil
}

// writeChunk programs the chunk at the current position, crossing
// into a continuation page first if needed. The id passed is only
// used when a new continuation page is entered, to write its leading
// id-continuation chunk.
func (w *walker) writeChunk(value flashdev.Chunk, continuationID flashdev.Chunk) error {
	if w.atPageEnd() {
		next, ok := w.dir.Next(w.virt)
		if !ok {
			return ErrNoContinuation
		}
		w.virt = next.VirtNum
		w.meta = next
		w.offset = 0
		if err := w.dev.WriteChunk(next.PhysNum, pagefmt.HeaderChunks, continuationID); err != nil {
			return err
		}
		w.offset = 1
	}
	if err := w.dev.WriteChunk(w.meta.PhysNum, pagefmt.HeaderChunks+w.offset, value); err != nil {
		return err
	}
	w.offset++
	return nil
}

// curVirt reports the virt_num of the page the walker currently sits
// on, used by callers that need to record a Location.
func (w *walker) curVirt() uint16 { return w.virt }

// curOffset reports the current local offset (the offset of the next
// chunk to be read/written).
func (w *walker) curOffset() int { return w.offset }
