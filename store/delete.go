package store

import (
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/idindex"
	"github.com/anvoe/virtflash/internal/pagedir"
)

// Delete removes id's record. Deleting an absent id succeeds: look up
// the id index, and if absent, there's nothing to do.
func (s *Store) Delete(id uint16) error {
	loc, ok := s.ids.Get(id)
	if !ok {
		return nil
	}
	if err := s.tombstoneAt(loc, id); err != nil {
		return err
	}
	s.ids.Delete(id)
	s.gcPass()
	return nil
}

// tombstoneAt zeroes every chunk id's record at loc occupies, walking
// backward from its last chunk to its first, continuation-page echo
// chunks included (see internal/cursor/backward.go). The record's end
// position is found by first
// re-parsing it forward with no accounting side effects.
func (s *Store) tombstoneAt(loc idindex.Location, id uint16) error {
	pc, err := cursor.NewParseCursor(s.dev, s.dir, s.geo.ChunksPerPage(), s.geo.ChunkSize, loc.VirtNum, loc.ChunkOffset, nil)
	if err != nil {
		return newError(CodeDataConsistency, err)
	}
	rec, outcome, err := pc.Next()
	if err != nil {
		return newError(CodeDataConsistency, err)
	}
	if outcome != cursor.OutcomeRecord || rec.Phase != cursor.PhaseOK || rec.ID != id {
		return newErrorf(CodeDataConsistency, "id index points at an unparseable or mismatched record for id %d", id)
	}
	endVirt, endOffset := pc.Position()
	onFragment := func(page *pagedir.Meta, bytes int) { page.Fragments += bytes }
	if err := cursor.TombstoneBackward(s.dev, s.dir, s.geo.ChunksPerPage(), s.geo.ChunkSize, endVirt, endOffset, loc.VirtNum, loc.ChunkOffset, onFragment); err != nil {
		return newError(CodeWrite, err)
	}
	return nil
}
