package cursor

import (
	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/pagedir"
	"github.com/anvoe/virtflash/internal/pagefmt"
)

// backWalker walks a record's chunks from its last chunk back to its
// first, crossing into the previous page (prev in virt_num order) on
// a page-boundary crossing.
//
// Deletion tombstones every chunk the record physically occupies,
// including the single id-linkage echo chunk at the head of each
// continuation page: once the record's own id chunk is zeroed the
// whole record is dead regardless of those echoes, but leaving them
// with a live-looking id value would make a later from-scratch page
// scan misread one as the start of a new, bogus record. Zeroing them
// too means a rescan sees nothing but tombstones on a fully-deleted
// multi-page record.
type backWalker struct {
	dev           flashdev.Device
	dir           *pagedir.Directory
	chunksPerPage int

	virt uint16
	meta *pagedir.Meta
	// offset is the local offset of the chunk most recently zeroed
	// (initially one past the record's last chunk); the next chunk to
	// zero is the one before it.
	offset int
}

func newBackWalker(dev flashdev.Device, dir *pagedir.Directory, chunksPerPage int, virt uint16, offset int) (*backWalker, error) {
	meta, ok := dir.Get(virt)
	if !ok {
		return nil, ErrNoContinuation
	}
	return &backWalker{dev: dev, dir: dir, chunksPerPage: chunksPerPage, virt: virt, meta: meta, offset: offset}, nil
}

// stepAndZero moves one chunk backward (crossing to the previous page
// if needed), zeroes it, and reports which page absorbed the byte
// credit (onFragment, if non-nil) so the caller can keep that page's
// Fragments count in sync without waiting for the next full scan.
func (b *backWalker) stepAndZero(chunkBytes int, onFragment func(page *pagedir.Meta, bytes int)) error {
	b.offset--
	if b.offset < 0 {
		prev, ok := b.dir.Prev(b.virt)
		if !ok {
			return ErrNoContinuation
		}
		b.virt = prev.VirtNum
		b.meta = prev
		b.offset = recordAreaLen(b.chunksPerPage) - 1
	}
	if err := b.dev.ZeroChunk(b.meta.PhysNum, pagefmt.HeaderChunks+b.offset); err != nil {
		return err
	}
	if onFragment != nil {
		onFragment(b.meta, chunkBytes)
	}
	return nil
}

// TombstoneBackward zeroes every chunk of a record, starting one past
// its last chunk (endVirt/endOffset, as returned by ParseCursor's
// Position after a successful parse) and walking back to and including
// the id chunk at (idVirt/idOffset). onFragment, if non-nil, is called
// once per chunk zeroed with the page it belongs to, so a caller can
// credit that page's Fragments count incrementally: a tombstoned
// chunk's bytes count as fragments.
func TombstoneBackward(dev flashdev.Device, dir *pagedir.Directory, chunksPerPage int, chunkBytes int, endVirt uint16, endOffset int, idVirt uint16, idOffset int, onFragment func(page *pagedir.Meta, bytes int)) error {
	w, err := newBackWalker(dev, dir, chunksPerPage, endVirt, endOffset)
	if err != nil {
		return err
	}
	for {
		if err := w.stepAndZero(chunkBytes, onFragment); err != nil {
			return err
		}
		if w.virt == idVirt && w.offset == idOffset {
			return nil
		}
	}
}

// TombstoneFailed zeroes a FAILED record's chunks given only its start
// position and Record.ConsumedChunks. It never re-parses the record to
// find its end the way tombstoneAt does for an OK record: a FAILED
// record's content cannot be trusted to parse as anything in
// particular (that is exactly why it failed), so the end position is
// found by pure position arithmetic — advancing consumedChunks steps
// forward across registered pages the same way the walker would, but
// without reading any flash content — and handed to the existing
// TombstoneBackward.
func TombstoneFailed(dev flashdev.Device, dir *pagedir.Directory, chunksPerPage int, chunkBytes int, startVirt uint16, startOffset int, consumedChunks int, onFragment func(page *pagedir.Meta, bytes int)) error {
	endVirt, endOffset, err := advancePosition(dir, chunksPerPage, startVirt, startOffset, consumedChunks)
	if err != nil {
		return err
	}
	return TombstoneBackward(dev, dir, chunksPerPage, chunkBytes, endVirt, endOffset, startVirt, startOffset, onFragment)
}

// advancePosition reports the position reached after stepping forward
// remaining chunks from (virt, offset), crossing into the next
// registered page in virt_num order whenever the current page's record
// area runs out. Pure position bookkeeping, no flash reads.
func advancePosition(dir *pagedir.Directory, chunksPerPage int, virt uint16, offset int, remaining int) (uint16, int, error) {
	area := recordAreaLen(chunksPerPage)
	for remaining > 0 {
		left := area - offset
		if left <= 0 {
			next, ok := dir.Next(virt)
			if !ok {
				return 0, 0, ErrNoContinuation
			}
			virt = next.VirtNum
			offset = 0
			left = area
		}
		step := remaining
		if step > left {
			step = left
		}
		offset += step
		remaining -= step
	}
	return virt, offset, nil
}
