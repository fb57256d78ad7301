// Package store is the public key/value store: virtual pages chained
// over a flashdev.Device, indexed by id, garbage-collected in place.
// It is the single owning struct every other component is reached
// through, the same role a buffer manager plays for the tree built on
// top of it, but its pages hold id/payload records instead of b-tree
// nodes, and there is no pinning or latching since callers are
// assumed single threaded.
package store

import (
	"github.com/sirupsen/logrus"

	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/idindex"
	"github.com/anvoe/virtflash/internal/pagedir"
)

// Options configures a Store beyond its flash geometry.
type Options struct {
	// Logger receives Debug entries for routine GC/recovery steps and
	// Warn entries for resolved anomalies (duplicate virt_num,
	// collision resolution, partial-write discard). Defaults to
	// logrus.StandardLogger() when nil.
	Logger *logrus.Entry
}

// Store is the key/value store over one flash device. It is not safe
// for concurrent use; callers serialize externally.
type Store struct {
	dev flashdev.Device
	geo Geometry
	dir *pagedir.Directory
	ids *idindex.Index
	log *logrus.Entry
}

// Open runs recovery and returns a ready-to-use store.
func Open(dev flashdev.Device, geo Geometry, opts Options) (*Store, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, newError(CodeNullPtr, nil)
	}
	if dev.PageCount() != geo.PageCount || dev.ChunksPerPage() != geo.ChunksPerPage() {
		return nil, newErrorf(CodeBadParam, "device geometry (pages=%d chunks/page=%d) does not match store geometry (pages=%d chunks/page=%d)",
			dev.PageCount(), dev.ChunksPerPage(), geo.PageCount, geo.ChunksPerPage())
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Store{
		dev: dev,
		geo: geo,
		dir: pagedir.New(geo.PageCount),
		ids: idindex.New(),
		log: log,
	}

	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases in-memory structures. Flash is untouched.
func (s *Store) Close() error {
	s.dir = nil
	s.ids = nil
	return nil
}

// Clean erases every page, a factory reset.
func (s *Store) Clean() error {
	for phys := 0; phys < s.geo.PageCount; phys++ {
		if err := s.dev.ErasePage(phys); err != nil {
			return newError(CodeFlashErase, err)
		}
	}
	s.dir = pagedir.New(s.geo.PageCount)
	s.ids = idindex.New()
	return nil
}
