package store

import (
	"testing"

	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/pagedir"
	"github.com/anvoe/virtflash/internal/pagefmt"
)

// smallGeometry returns a geometry small enough that a handful of
// records exercise multi-page chaining and GC without the literal
// PAGE_COUNT=128/PAGE_SIZE=2048 scenario constants making every test
// slow to reason about by hand.
func smallGeometry(pageCount int) Geometry {
	g := DefaultGeometry()
	g.PageSize = 16 // 8 chunks/page, 6 chunks of record area
	g.PageCount = pageCount
	return g
}

func mustOpen(t *testing.T, dev flashdev.Device, geo Geometry) *Store {
	t.Helper()
	s, err := Open(dev, geo, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// rawPage hand-places a VALID page at phys with the given virt_num and
// a sequence of already-packed chunks starting at the record area's
// first chunk, used to build scenarios that pre-date any call to
// Store.Open.
func rawPage(t *testing.T, dev flashdev.Device, phys int, virt uint16, status pagefmt.Status, chunks []flashdev.Chunk) {
	t.Helper()
	if err := pagefmt.WriteVirtNum(dev, phys, virt); err != nil {
		t.Fatalf("WriteVirtNum: %v", err)
	}
	for i, c := range chunks {
		if c == flashdev.ChunkErased {
			continue
		}
		if err := dev.WriteChunk(phys, pagefmt.HeaderChunks+i, c); err != nil {
			t.Fatalf("WriteChunk(%d,%d): %v", phys, i, err)
		}
	}
	if err := pagefmt.WriteStatus(dev, phys, status); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
}

// writeChainRaw streams id/payload across the given (phys, virt) pages
// in order using a scratch directory (used only for this helper's own
// page-chaining lookups, never by the real Store), then promotes every
// page straight to VALID. It models a pre-existing multi-page record
// found by recovery, independent of the real Write path.
func writeChainRaw(t *testing.T, dev flashdev.Device, chunksPerPage int, pages []struct {
	Phys int
	Virt uint16
}, id uint16, payload []byte) {
	t.Helper()
	dir := pagedir.New(dev.PageCount())
	for _, p := range pages {
		dir.MarkBusyFromScan(p.Virt, p.Phys)
		if err := pagefmt.WriteVirtNum(dev, p.Phys, p.Virt); err != nil {
			t.Fatalf("WriteVirtNum: %v", err)
		}
	}

	wc, err := cursor.NewWriteCursor(dev, dir, chunksPerPage, pages[0].Virt, 0, id)
	if err != nil {
		t.Fatalf("NewWriteCursor: %v", err)
	}
	if err := wc.WriteID(id); err != nil {
		t.Fatalf("WriteID: %v", err)
	}
	if err := wc.WriteLength(uint16(len(payload))); err != nil {
		t.Fatalf("WriteLength: %v", err)
	}
	for _, chunk := range cursor.PackPayload(payload, 2) {
		if err := wc.WritePayloadChunk(chunk); err != nil {
			t.Fatalf("WritePayloadChunk: %v", err)
		}
	}
	if err := wc.WriteChecksum(); err != nil {
		t.Fatalf("WriteChecksum: %v", err)
	}

	for _, p := range pages {
		if err := pagefmt.WriteStatus(dev, p.Phys, pagefmt.StatusValid); err != nil {
			t.Fatalf("WriteStatus: %v", err)
		}
	}
}
