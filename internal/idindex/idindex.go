// Package idindex is the id index, a sibling of the page directory
// keyed by record id rather than virt_num: an ordered map from a live
// record's id to the flash location of its first chunk. Exactly one
// entry exists per live id.
package idindex

import "github.com/anvoe/virtflash/internal/ordmap"

// Location pinpoints the first chunk of a record: the page's virtual
// number plus the chunk offset of the id chunk within that page's
// record area (0-based, counted from the first chunk after the
// header). The "pointer to the first chunk" is really a (page,
// offset) pair.
type Location struct {
	VirtNum     uint16
	ChunkOffset int
}

// Index is the ordered id -> Location map.
type Index struct {
	tree *ordmap.Tree[uint16, Location]
}

// New creates an empty id index.
func New() *Index {
	return &Index{tree: ordmap.New[uint16, Location]()}
}

// Len reports the number of live ids.
func (idx *Index) Len() int { return idx.tree.Len() }

// Get looks up the location of id's record, if it is live.
func (idx *Index) Get(id uint16) (Location, bool) { return idx.tree.Get(id) }

// Put records id's (possibly updated) location.
func (idx *Index) Put(id uint16, loc Location) { idx.tree.Insert(id, loc) }

// Delete removes id's entry.
func (idx *Index) Delete(id uint16) { idx.tree.Delete(id) }

// Each walks ids in ascending order.
func (idx *Index) Each(fn func(id uint16, loc Location) bool) { idx.tree.Each(fn) }

// Ids returns every live id in ascending order.
func (idx *Index) Ids() []uint16 { return idx.tree.Keys() }
