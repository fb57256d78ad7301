package store

import (
	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/idindex"
	"github.com/anvoe/virtflash/internal/pagedir"
	"github.com/anvoe/virtflash/internal/pagefmt"
)

// recover runs four phases: order pages, check order, parse and
// populate the id index, then an initial GC pass. Grounded on
// eeprom.c's veeprom_init (order_pages/check_order/init_data/the
// trailing GC call).
func (s *Store) recover() error {
	if err := s.phaseAOrderPages(); err != nil {
		return err
	}
	if !s.dir.CheckOrder() {
		return newError(CodeInvalidOrder, nil)
	}
	if err := s.phaseCInitData(); err != nil {
		return err
	}
	s.gcPass()
	return nil
}

// phaseAOrderPages classifies every physical page by its header
// (eeprom.c:veeprom_order_pages). RECEIVING pages are always the
// remains of an interrupted write and are erased outright, regardless
// of content, which is why the parse state machine's
// PhaseIDDone+erased "dangling id" failure case can only ever be
// observed on an already-VALID page: the one way to leave a
// half-written record behind on a VALID page is an in-place append
// (Geometry.DisableInPlaceAppend's option exists precisely because of
// this) interrupted mid-write, not a fresh RECEIVING chain.
func (s *Store) phaseAOrderPages() error {
	for phys := 0; phys < s.geo.PageCount; phys++ {
		hdr, err := pagefmt.ReadHeader(s.dev, phys)
		if err != nil {
			return newError(CodeFlashAssert, err)
		}
		switch hdr.Status {
		case pagefmt.StatusErased:
			s.dir.MarkFreeFromScan(phys)
		case pagefmt.StatusReceiving:
			s.log.WithField("phys", phys).Warn("discarding interrupted write: page left RECEIVING")
			if err := s.dev.ErasePage(phys); err != nil {
				return newError(CodeFlashErase, err)
			}
			s.dir.MarkFreeFromScan(phys)
		case pagefmt.StatusValid:
			if err := s.registerValidPage(hdr.VirtNum, phys); err != nil {
				return err
			}
		default:
			return newErrorf(CodeUnknownStatus, "page %d has unknown status 0x%04x", phys, uint16(hdr.Status))
		}
	}
	s.dir.RecomputeNextAlloc()
	return nil
}

// registerValidPage registers a VALID page under its virt_num,
// resolving a duplicate virt_num by a free-space heuristic: the page
// with less trailing free space is the more-written, and therefore
// newer, copy.
func (s *Store) registerValidPage(virt uint16, phys int) error {
	if m, ok := s.dir.Get(virt); ok {
		s.log.WithFields(map[string]any{"virt_num": virt, "phys_a": m.PhysNum, "phys_b": phys}).
			Warn("duplicate virt_num found during recovery, resolving by free-space heuristic")
		freeA, err := trailingFreeChunks(s.dev, m.PhysNum, s.geo.ChunksPerPage())
		if err != nil {
			return newError(CodeFlashAssert, err)
		}
		freeB, err := trailingFreeChunks(s.dev, phys, s.geo.ChunksPerPage())
		if err != nil {
			return newError(CodeFlashAssert, err)
		}
		if freeA == freeB {
			return newError(CodeDefrag, nil)
		}
		loserPhys := phys
		if freeB < freeA {
			// The new page is the more-written (and thus newer) copy;
			// the previously registered one loses.
			loserPhys = m.PhysNum
			s.dir.Free(virt)
			s.dir.MarkBusyFromScan(virt, phys)
		}
		if err := s.dev.ErasePage(loserPhys); err != nil {
			return newError(CodeFlashErase, err)
		}
		return nil
	}
	s.dir.MarkBusyFromScan(virt, phys)
	return nil
}

// trailingFreeChunks counts the contiguous run of 0xFFFF chunks ending
// at the last record-area chunk of a page, the same definition of
// free_space used everywhere else, computed directly without a cursor
// parse (used only to compare two duplicate-virt_num candidates).
func trailingFreeChunks(dev flashdev.Device, phys int, chunksPerPage int) (int, error) {
	area := chunksPerPage - pagefmt.HeaderChunks
	n := 0
	for i := area - 1; i >= 0; i-- {
		c, err := dev.ReadChunk(phys, pagefmt.HeaderChunks+i)
		if err != nil {
			return 0, err
		}
		if c != flashdev.ChunkErased {
			break
		}
		n++
	}
	return n, nil
}

// phaseCInitData parses the entire page chain with a single
// continuous cursor starting at the lowest virt_num page
// (eeprom.c:veeprom_init_data). This is the one and only full scan
// that computes fragments/free_space: Phase A only classifies pages,
// so there is nothing to double-count here — one real scan, not a
// counted one followed by a silent one.
//
// A chain that runs out of registered continuation pages mid-record
// (the orphaned tail of a write interrupted between its two-phase
// commit steps, see writeFreshChain) surfaces from the cursor as an
// ordinary FAILED record rather than an error: publishRecoveredRecord
// discards it like any other corrupt record, so this scan never aborts
// on a short chain.
func (s *Store) phaseCInitData() error {
	min, ok := s.dir.Min()
	if !ok {
		return nil
	}

	onAccount := func(kind cursor.AccountKind, page *pagedir.Meta, bytes int) {
		switch kind {
		case cursor.AccountFree:
			page.FreeSpace += bytes
		case cursor.AccountFragment:
			page.Fragments += bytes
		}
	}

	pc, err := cursor.NewParseCursor(s.dev, s.dir, s.geo.ChunksPerPage(), s.geo.ChunkSize, min.VirtNum, 0, onAccount)
	if err != nil {
		return newError(CodeDataConsistency, err)
	}

	for {
		rec, outcome, err := pc.Next()
		if err != nil {
			return newError(CodeUnknown, err)
		}
		if outcome == cursor.OutcomeEndOfChain {
			return nil
		}
		if err := s.publishRecoveredRecord(rec); err != nil {
			return err
		}
	}
}

// publishRecoveredRecord implements add_data/erase_data from
// eeprom.c's recovery scan: an OK record is published into the id
// index (tombstoning whatever the index previously held for that id,
// fixing the crash window between a superseding write's commit and
// its tombstoning of the old copy); a FAILED record is tombstoned
// outright.
func (s *Store) publishRecoveredRecord(rec cursor.Record) error {
	switch rec.Phase {
	case cursor.PhaseOK:
		if prev, ok := s.ids.Get(rec.ID); ok {
			s.log.WithField("id", rec.ID).Warn("id collision found during recovery, newer copy wins")
			if err := s.tombstoneAt(prev, rec.ID); err != nil {
				return err
			}
		}
		s.ids.Put(rec.ID, idindex.Location{VirtNum: rec.StartVirt, ChunkOffset: rec.StartOffset})
		return nil
	case cursor.PhaseFailed:
		s.log.WithFields(map[string]any{"virt_num": rec.StartVirt, "offset": rec.StartOffset}).
			Warn("tombstoning partial/corrupt record found during recovery")
		// A FAILED record's content cannot be trusted to re-parse as
		// anything in particular (that is exactly why it failed), so
		// unlike the OK branch above this never goes through
		// tombstoneAt's re-parse-and-verify path: it zeroes directly
		// from the record's own start position and ConsumedChunks.
		onFragment := func(page *pagedir.Meta, bytes int) { page.Fragments += bytes }
		if err := cursor.TombstoneFailed(s.dev, s.dir, s.geo.ChunksPerPage(), s.geo.ChunkSize, rec.StartVirt, rec.StartOffset, rec.ConsumedChunks, onFragment); err != nil {
			return newError(CodeWrite, err)
		}
		return nil
	default:
		return newErrorf(CodeUnknown, "unexpected parse phase %d from recovery scan", rec.Phase)
	}
}
