package store

import "github.com/anvoe/virtflash/internal/pagefmt"

// MaxVirt is the highest virtual page number a page may hold before
// the device is considered expired.
const MaxVirt = 0xFFFE

// Geometry is the set of compile-time constants that describe the
// "flash geometry": page size, page count, and chunk size, plus a
// couple of knobs worth exposing rather than burying as magic numbers.
type Geometry struct {
	// PageSize is the byte size of one physical page.
	PageSize int
	// PageCount is the number of physical pages on the device.
	PageCount int
	// ChunkSize is the byte width of one program unit (2 on the
	// reference platform).
	ChunkSize int

	// GCFragmentNum/GCFragmentDenom express the fragmentation
	// threshold GC rewrites a page at, as a fraction of usable bytes.
	// The threshold itself is arbitrary, so it's a tunable rather than
	// a hardcoded half-page cutoff. Default 1/2.
	GCFragmentNum   int
	GCFragmentDenom int

	// DisableInPlaceAppend turns off write's in-place-append
	// optimization, where a new record appends into an already-open
	// page's trailing free space instead of always starting a fresh
	// page chain. DefaultGeometry sets this true: the simpler
	// always-allocate-fresh-pages version is easier to verify for
	// crash safety and should be preferred unless benchmarks demand
	// otherwise; set false to opt into the in-place optimization.
	DisableInPlaceAppend bool
}

// DefaultGeometry matches the reference platform's own constants
// (PAGE_SIZE=2048, CHUNK_SIZE=2, PAGE_COUNT=128).
func DefaultGeometry() Geometry {
	return Geometry{
		PageSize:             2048,
		PageCount:            128,
		ChunkSize:            2,
		GCFragmentNum:        1,
		GCFragmentDenom:      2,
		DisableInPlaceAppend: true,
	}
}

// ChunksPerPage reports PAGE_SIZE/CHUNK_SIZE.
func (g Geometry) ChunksPerPage() int { return g.PageSize / g.ChunkSize }

// UsableBytes reports PAGE_SIZE - HEADER_SIZE, the byte budget a
// page's fragments+free_space+live_bytes must always sum to.
func (g Geometry) UsableBytes() int {
	return g.PageSize - pagefmt.HeaderChunks*g.ChunkSize
}

// Validate rejects geometries the rest of the store cannot reason
// about: a non-chunk-aligned page size, a zero chunk size, or a page
// too small to hold its own header plus at least one empty record.
func (g Geometry) Validate() error {
	if g.ChunkSize <= 0 {
		return newErrorf(CodeBadParam, "chunk size must be positive, got %d", g.ChunkSize)
	}
	if g.PageSize%g.ChunkSize != 0 {
		return newErrorf(CodeBadParam, "page size %d is not a multiple of chunk size %d", g.PageSize, g.ChunkSize)
	}
	if g.ChunksPerPage() < pagefmt.HeaderChunks+3 {
		return newErrorf(CodeBadParam, "page too small: %d chunks leaves no room for a record after the header", g.ChunksPerPage())
	}
	if g.PageCount <= 0 {
		return newErrorf(CodeBadParam, "page count must be positive, got %d", g.PageCount)
	}
	if g.GCFragmentDenom <= 0 || g.GCFragmentNum < 0 || g.GCFragmentNum > g.GCFragmentDenom {
		return newErrorf(CodeBadParam, "invalid GC fragmentation threshold %d/%d", g.GCFragmentNum, g.GCFragmentDenom)
	}
	return nil
}
