package store

import (
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/idindex"
	"github.com/anvoe/virtflash/internal/pagedir"
	"github.com/anvoe/virtflash/internal/pagefmt"
)

// MaxLength is the largest payload length a record can hold: length
// is a 16-bit chunk and must stay strictly below 0xFFFF, the erased
// sentinel.
const MaxLength = 0xFFFF - 1

// Write creates or supersedes id's record.
func (s *Store) Write(id uint16, payload []byte) error {
	if err := s.writeWithoutGC(id, payload); err != nil {
		return err
	}
	s.gcPass()
	return nil
}

// writeWithoutGC is Write's core, reused by gcPass's record-migration
// step so a live record is streamed through the normal write path
// without re-entering gcPass itself and recursing forever.
func (s *Store) writeWithoutGC(id uint16, payload []byte) error {
	if id == 0 || id == 0xFFFF {
		return newErrorf(CodeID, "id %d must satisfy 0 < id < 0xFFFF", id)
	}
	if len(payload) > MaxLength {
		return newErrorf(CodeLength, "payload length %d exceeds maximum %d", len(payload), MaxLength)
	}

	requiredChunks := 2 + cursor.ChunksFor(uint16(len(payload)), s.geo.ChunkSize) + 1
	requiredBytes := requiredChunks * s.geo.ChunkSize

	loc, wrote, err := s.tryInPlaceAppend(id, payload, requiredChunks, requiredBytes)
	if err != nil {
		return err
	}
	if !wrote {
		loc, err = s.writeFreshChain(id, payload, requiredChunks)
		if err != nil {
			return err
		}
	}

	if prev, ok := s.ids.Get(id); ok {
		if err := s.tombstoneAt(prev, id); err != nil {
			return err
		}
	}
	s.ids.Put(id, loc)
	return nil
}

// tryInPlaceAppend appends in place to the first non-fragmented VALID
// page with enough trailing free space, when the whole record fits on
// that one page. Non-fragmented means Fragments == 0, keeping the
// page's layout simple to reason about during a later rewrite.
func (s *Store) tryInPlaceAppend(id uint16, payload []byte, requiredChunks, requiredBytes int) (idindex.Location, bool, error) {
	if s.geo.DisableInPlaceAppend {
		return idindex.Location{}, false, nil
	}
	area := s.geo.ChunksPerPage() - pagefmt.HeaderChunks
	if requiredChunks > area {
		return idindex.Location{}, false, nil
	}

	var target *pagedir.Meta
	s.dir.Each(func(m *pagedir.Meta) bool {
		if m.Fragments == 0 && m.FreeSpace >= requiredBytes {
			target = m
			return false
		}
		return true
	})
	if target == nil {
		return idindex.Location{}, false, nil
	}

	offset := area - target.FreeSpace/s.geo.ChunkSize
	loc, err := s.streamRecord(target.VirtNum, offset, id, payload)
	if err != nil {
		return idindex.Location{}, false, err
	}
	target.FreeSpace -= requiredBytes
	return loc, true, nil
}

// writeFreshChain allocates enough fresh ERASED pages, chains them as
// RECEIVING, streams the record through them, then commits by
// promoting RECEIVING -> VALID in reverse order so a crash
// mid-promotion leaves the chain's first page RECEIVING and therefore
// discarded wholesale by the next recovery.
func (s *Store) writeFreshChain(id uint16, payload []byte, requiredChunks int) (idindex.Location, error) {
	area := s.geo.ChunksPerPage() - pagefmt.HeaderChunks
	pageCount, freeChunks := planPages(requiredChunks, area)

	startVirt := uint16(0)
	if max, ok := s.dir.Max(); ok {
		startVirt = max.VirtNum + 1
	}

	allocated := make([]*pagedir.Meta, 0, pageCount)
	rollback := func() {
		for _, m := range allocated {
			s.dir.Free(m.VirtNum)
			_ = s.dev.ErasePage(m.PhysNum)
		}
	}

	for i := 0; i < pageCount; i++ {
		virt := startVirt + uint16(i)
		if virt > MaxVirt {
			rollback()
			return idindex.Location{}, newError(CodeFlashExpired, nil)
		}
		m, err := s.dir.Allocate(virt)
		if err != nil {
			rollback()
			return idindex.Location{}, newError(CodeNoMem, err)
		}
		if err := pagefmt.WriteStatus(s.dev, m.PhysNum, pagefmt.StatusReceiving); err != nil {
			rollback()
			return idindex.Location{}, newError(CodeFlashWrite, err)
		}
		if err := pagefmt.WriteVirtNum(s.dev, m.PhysNum, virt); err != nil {
			rollback()
			return idindex.Location{}, newError(CodeFlashWrite, err)
		}
		allocated = append(allocated, m)
	}

	loc, err := s.streamRecord(startVirt, 0, id, payload)
	if err != nil {
		rollback()
		return idindex.Location{}, err
	}

	for i := len(allocated) - 1; i >= 0; i-- {
		if err := pagefmt.WriteStatus(s.dev, allocated[i].PhysNum, pagefmt.StatusValid); err != nil {
			// The chain is already partially committed; recovery on next
			// boot will discard whatever is left RECEIVING and this call
			// surfaces the flash error rather than attempting an in-place
			// rollback of an already-promoted page.
			return idindex.Location{}, newError(CodeFlashWrite, err)
		}
	}
	for i, m := range allocated {
		m.FreeSpace = freeChunks[i] * s.geo.ChunkSize
	}
	return loc, nil
}

// streamRecord writes id/length/payload/checksum starting at
// virt/offset and returns the record's Location for the id index.
func (s *Store) streamRecord(virt uint16, offset int, id uint16, payload []byte) (idindex.Location, error) {
	wc, err := cursor.NewWriteCursor(s.dev, s.dir, s.geo.ChunksPerPage(), virt, offset, id)
	if err != nil {
		return idindex.Location{}, newError(CodeDataConsistency, err)
	}
	if err := wc.WriteID(id); err != nil {
		return idindex.Location{}, newError(CodeFlashWrite, err)
	}
	if err := wc.WriteLength(uint16(len(payload))); err != nil {
		return idindex.Location{}, newError(CodeFlashWrite, err)
	}
	for _, chunk := range cursor.PackPayload(payload, s.geo.ChunkSize) {
		if err := wc.WritePayloadChunk(chunk); err != nil {
			return idindex.Location{}, newError(CodeFlashWrite, err)
		}
	}
	if err := wc.WriteChecksum(); err != nil {
		return idindex.Location{}, newError(CodeFlashWrite, err)
	}
	startVirt, startOffset := wc.Position()
	return idindex.Location{VirtNum: startVirt, ChunkOffset: startOffset}, nil
}

// planPages decides how many pages a requiredChunks-long logical
// stream needs and how much trailing free space each one keeps, given
// that every continuation page after the first sacrifices one chunk
// of its own capacity to the linkage-echo id.
func planPages(requiredChunks, area int) (pageCount int, freeChunksPerPage []int) {
	var used []int
	remaining := requiredChunks
	for i := 0; remaining > 0; i++ {
		capacity := area
		if i > 0 {
			capacity = area - 1
		}
		take := remaining
		if take > capacity {
			take = capacity
		}
		used = append(used, take)
		remaining -= take
	}
	if len(used) == 0 {
		used = []int{0}
	}
	free := make([]int, len(used))
	for i, u := range used {
		capacity := area
		if i > 0 {
			capacity = area - 1
		}
		free[i] = capacity - u
	}
	return len(used), free
}
