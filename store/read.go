package store

import (
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/idindex"
)

// Read returns id's payload bytes.
func (s *Store) Read(id uint16) ([]byte, error) {
	loc, ok := s.ids.Get(id)
	if !ok {
		return nil, newError(CodeIDNotFound, nil)
	}
	// The id index does not store length directly; re-reading the
	// length chunk is one extra chunk read and avoids a second index.
	length, err := s.readLength(loc)
	if err != nil {
		return nil, err
	}
	payload, err := cursor.ReadPayload(s.dev, s.dir, s.geo.ChunkSize, s.geo.ChunksPerPage(), loc.VirtNum, loc.ChunkOffset, length)
	if err != nil {
		return nil, newError(CodeDataConsistency, err)
	}
	return payload, nil
}

func (s *Store) readLength(loc idindex.Location) (uint16, error) {
	pc, err := cursor.NewParseCursor(s.dev, s.dir, s.geo.ChunksPerPage(), s.geo.ChunkSize, loc.VirtNum, loc.ChunkOffset, nil)
	if err != nil {
		return 0, newError(CodeDataConsistency, err)
	}
	rec, outcome, err := pc.Next()
	if err != nil {
		return 0, newError(CodeDataConsistency, err)
	}
	if outcome != cursor.OutcomeRecord || rec.Phase != cursor.PhaseOK {
		return 0, newError(CodeDataConsistency, nil)
	}
	return rec.Length, nil
}
