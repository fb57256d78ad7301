package store

import (
	"bytes"
	"testing"

	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/internal/cursor"
	"github.com/anvoe/virtflash/internal/pagefmt"
)

// Round-trip through a snapshot and reboot.
func TestRecovery_RoundTripAfterReboot(t *testing.T) {
	// The three records take 1, 1 and 5 fresh pages (6-chunk record
	// area, one echo chunk lost per continuation page), so 8 pages.
	geo := smallGeometry(8)
	img := flashdev.NewMemImage(geo.PageCount, geo.ChunksPerPage())
	s := mustOpen(t, img, geo)

	want := map[uint16][]byte{
		1: []byte("hello"),
		2: {},
		3: []byte("a slightly longer payload than the others"),
	}
	for id, payload := range want {
		if err := s.Write(id, payload); err != nil {
			t.Fatalf("Write(%d): %v", id, err)
		}
	}
	if err := s.Delete(2); err != nil {
		t.Fatalf("Delete(2): %v", err)
	}
	delete(want, 2)

	raw := img.Snapshot()
	rebooted := flashdev.NewMemImageFromBytes(raw, geo.PageCount, geo.ChunksPerPage())
	s2 := mustOpen(t, rebooted, geo)

	if s2.Stats().BusyPages == 0 {
		t.Fatalf("rebooted store has no registered pages")
	}
	if len(s2.Stats().Ids) != len(want) {
		t.Errorf("id_index size = %d after reboot, want %d", len(s2.Stats().Ids), len(want))
	}
	for id, payload := range want {
		got, err := s2.Read(id)
		if err != nil {
			t.Fatalf("Read(%d) after reboot: %v", id, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Read(%d) after reboot = %q, want %q", id, got, payload)
		}
	}
	if _, err := s2.Read(2); CodeOf(err) != CodeIDNotFound {
		t.Errorf("Read(2) after reboot = %v, want ID_NOT_FOUND", err)
	}
}

// Interrupting a write at any flash-operation boundary leaves the
// store either as if the write never happened or as if it fully
// completed, never a mixed state, once recovery runs on the truncated
// image.
func TestRecovery_CrashDuringWriteNeverLeavesPartialState(t *testing.T) {
	geo := smallGeometry(8)

	// Establish a baseline with one already-committed record, then
	// attempt a second write under every possible interruption point.
	baseline := flashdev.NewMemImage(geo.PageCount, geo.ChunksPerPage())
	base := mustOpen(t, baseline, geo)
	if err := base.Write(1, []byte("existing")); err != nil {
		t.Fatalf("Write(1): %v", err)
	}
	baseRaw := baseline.Snapshot()

	for budget := 0; budget < 40; budget++ {
		img := flashdev.NewMemImageFromBytes(baseRaw, geo.PageCount, geo.ChunksPerPage())
		s := mustOpen(t, img, geo)
		img.InterruptAfter(budget)

		_ = s.Write(2, []byte("new record"))
		// Whether or not the write above succeeded or was interrupted,
		// take a fresh snapshot and reboot with no further interruption
		// budget: recovery must resolve it to one clean state.
		raw := img.Snapshot()
		rebooted := flashdev.NewMemImageFromBytes(raw, geo.PageCount, geo.ChunksPerPage())
		s2, err := Open(rebooted, geo, Options{})
		if err != nil {
			t.Fatalf("budget %d: Open after crash: %v", budget, err)
		}

		got, readErr := s2.Read(2)
		switch {
		case readErr == nil:
			if !bytes.Equal(got, []byte("new record")) {
				t.Errorf("budget %d: id 2 present but payload = %q, want full value", budget, got)
			}
		case CodeOf(readErr) == CodeIDNotFound:
			// Write never happened, as if it was never attempted: fine.
		default:
			t.Errorf("budget %d: Read(2) after crash = %v, want nil or ID_NOT_FOUND", budget, readErr)
		}

		// The pre-existing record must never be corrupted by a crash in
		// an unrelated write.
		existing, err := s2.Read(1)
		if err != nil {
			t.Fatalf("budget %d: Read(1) after crash: %v", budget, err)
		}
		if !bytes.Equal(existing, []byte("existing")) {
			t.Errorf("budget %d: Read(1) = %q, want %q", budget, existing, "existing")
		}
		checkPageAccounting(t, s2)
		checkByteAccounting(t, s2)
		checkVirtNumOrdering(t, s2)
	}
}

// A hand-built image with a corrupt record on an otherwise-VALID page
// (the shape a FAILED record takes outside of the orphaned-tail crash
// window — e.g. bit rot, or an interrupted in-place append) must still
// open cleanly, with the corrupt record's id absent and its chunks
// tombstoned rather than Open() aborting.
func TestRecovery_FailedRecordFoundDuringScanIsTombstoned(t *testing.T) {
	geo := smallGeometry(2)
	img := flashdev.NewMemImage(geo.PageCount, geo.ChunksPerPage())

	payload := []byte("ab")
	chunks := []flashdev.Chunk{
		flashdev.Chunk(5), // id
		flashdev.Chunk(2), // length
	}
	chunks = append(chunks, cursor.PackPayload(payload, geo.ChunkSize)...)
	chunks = append(chunks, flashdev.Chunk(0x1234)) // deliberately wrong checksum
	rawPage(t, img, 0, 0, pagefmt.StatusValid, chunks)

	s, err := Open(img, geo, Options{})
	if err != nil {
		t.Fatalf("Open with a corrupt record present: %v", err)
	}
	if _, err := s.Read(5); CodeOf(err) != CodeIDNotFound {
		t.Errorf("Read(5) = %v, want ID_NOT_FOUND (the corrupt record must not be published)", err)
	}

	checkPageAccounting(t, s)
	checkByteAccounting(t, s)
	checkVirtNumOrdering(t, s)

	// Every chunk the bogus record occupied must be tombstoned, not
	// merely ignored: a second boot must see the same clean outcome.
	raw := img.Snapshot()
	rebooted := flashdev.NewMemImageFromBytes(raw, geo.PageCount, geo.ChunksPerPage())
	s2 := mustOpen(t, rebooted, geo)
	if _, err := s2.Read(5); CodeOf(err) != CodeIDNotFound {
		t.Errorf("Read(5) after reboot = %v, want ID_NOT_FOUND", err)
	}
}
