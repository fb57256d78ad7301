package store

import (
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/pagedir"
)

// liveRecord is one OK record found by a full chain scan, plus the
// inclusive range of pages its chunks occupy. startVirt/endVirt are
// only a contiguous virt_num span because writeFreshChain always
// allocates a record's continuation pages as one fresh, consecutively
// numbered run: tryInPlaceAppend only ever targets a page with
// Fragments == 0 and enough trailing free space for the whole record
// (store/writer.go), so in-place append never itself produces a
// multi-page record — it can only place a single-page record onto an
// existing page, never span one across several. If that constraint
// ever changes, pageToIDs' walk from startVirt to endVirt below would
// need to stop trusting virt_num contiguity.
type liveRecord struct {
	id        uint16
	startVirt uint16
	endVirt   uint16
}

// gcPass runs one single-shot garbage-collection sweep, triggered
// opportunistically after every Write/Delete and once more at the end
// of recovery. It is best-effort: a scan or rewrite failure is logged
// and the pass stops rather than surfacing an error from an unrelated
// Write/Delete call that already succeeded.
func (s *Store) gcPass() {
	pages := make([]*pagedir.Meta, 0, s.dir.BusyPages())
	s.dir.Each(func(m *pagedir.Meta) bool {
		pages = append(pages, m)
		return true
	})

	live, err := s.scanLiveRecords()
	if err != nil {
		s.log.WithError(err).Warn("gc: chain scan failed, skipping pass")
		return
	}
	pageToIDs := make(map[uint16][]uint16)
	for _, rec := range live {
		for v := rec.startVirt; ; v++ {
			pageToIDs[v] = append(pageToIDs[v], rec.id)
			if v == rec.endVirt {
				break
			}
		}
	}

	usable := s.geo.UsableBytes()
	threshold := usable * s.geo.GCFragmentNum / s.geo.GCFragmentDenom
	rewritten := make(map[uint16]bool)

	for _, m := range pages {
		if cur, ok := s.dir.ByPhys(m.PhysNum); !ok || cur != m {
			continue // already reclaimed earlier in this same pass
		}

		liveBytes := usable - m.Fragments - m.FreeSpace
		if liveBytes <= 0 {
			s.reclaim(m)
			continue
		}

		if m.Fragments >= threshold && s.dir.FreeCount() > 0 {
			for _, id := range pageToIDs[m.VirtNum] {
				if rewritten[id] {
					continue
				}
				if err := s.migrateRecord(id); err != nil {
					s.log.WithField("id", id).WithError(err).Warn("gc: rewrite failed, leaving record in place")
					continue
				}
				rewritten[id] = true
			}
			if cur, ok := s.dir.ByPhys(m.PhysNum); ok && cur == m {
				if usable-m.Fragments-m.FreeSpace <= 0 {
					s.reclaim(m)
				} else {
					s.log.WithField("virt_num", m.VirtNum).Debug("gc: page still holds live bytes after rewrite, retrying next pass")
				}
			}
		}
	}
}

// migrateRecord re-streams id's current payload through the normal
// write path: a fresh chain elsewhere, then the old chain tombstoned
// by Write's supersede logic. The erase itself happens back in gcPass
// once the page's live bytes reach zero.
func (s *Store) migrateRecord(id uint16) error {
	payload, err := s.Read(id)
	if err != nil {
		return err
	}
	return s.writeWithoutGC(id, payload)
}

// reclaim erases a fully-empty page and removes it from the directory.
func (s *Store) reclaim(m *pagedir.Meta) {
	s.dir.Free(m.VirtNum)
	if err := s.dev.ErasePage(m.PhysNum); err != nil {
		s.log.WithField("phys", m.PhysNum).WithError(err).Warn("gc: erase failed")
	}
}

// scanLiveRecords walks the entire page chain once, collecting every
// OK record's id and page span. FAILED records are not expected here
// (recovery's Phase C already tombstones them before any gcPass runs)
// but are skipped rather than treated as fatal if one is ever seen.
func (s *Store) scanLiveRecords() ([]liveRecord, error) {
	min, ok := s.dir.Min()
	if !ok {
		return nil, nil
	}
	pc, err := cursor.NewParseCursor(s.dev, s.dir, s.geo.ChunksPerPage(), s.geo.ChunkSize, min.VirtNum, 0, nil)
	if err != nil {
		return nil, err
	}
	var out []liveRecord
	for {
		rec, outcome, err := pc.Next()
		if err != nil {
			return nil, err
		}
		if outcome == cursor.OutcomeEndOfChain {
			return out, nil
		}
		if rec.Phase == cursor.PhaseOK {
			endVirt, _ := pc.Position()
			out = append(out, liveRecord{id: rec.ID, startVirt: rec.StartVirt, endVirt: endVirt})
		}
	}
}
