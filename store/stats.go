package store

import "github.com/anvoe/virtflash/internal/pagedir"

// PageStat is a read-only snapshot of one registered page's
// bookkeeping, mirroring what original_source/eeprom.c's
// veeprom_get_pages exposes to its own test harness.
type PageStat struct {
	VirtNum   uint16
	PhysNum   int
	Fragments int
	FreeSpace int
	LiveBytes int
}

// Stats is a read-only snapshot of the store's global bookkeeping,
// grounded on eeprom.c's veeprom_get_status/veeprom_get_pages/
// veeprom_get_ids. It never mutates state and has no bearing on any
// invariant; it exists so tests and tooling can inspect internals
// without reaching into private fields.
type Stats struct {
	BusyPages int
	FreePages int
	NextAlloc int
	Pages     []PageStat
	Ids       []uint16
}

// Stats reports a snapshot of the store's current bookkeeping.
func (s *Store) Stats() Stats {
	usable := s.geo.UsableBytes()
	st := Stats{
		BusyPages: s.dir.BusyPages(),
		FreePages: s.dir.FreeCount(),
		NextAlloc: s.dir.NextAlloc(),
		Ids:       s.ids.Ids(),
	}
	s.dir.Each(func(m *pagedir.Meta) bool {
		st.Pages = append(st.Pages, PageStat{
			VirtNum:   m.VirtNum,
			PhysNum:   m.PhysNum,
			Fragments: m.Fragments,
			FreeSpace: m.FreeSpace,
			LiveBytes: usable - m.Fragments - m.FreeSpace,
		})
		return true
	})
	return st
}
