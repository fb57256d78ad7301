package idindex

import "testing"

func TestIndex_PutGetDelete(t *testing.T) {
	idx := New()
	if _, ok := idx.Get(1); ok {
		t.Fatalf("Get on empty index found something")
	}
	idx.Put(1, Location{VirtNum: 0, ChunkOffset: 3})
	idx.Put(2, Location{VirtNum: 1, ChunkOffset: 0})
	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}
	loc, ok := idx.Get(1)
	if !ok || loc.VirtNum != 0 || loc.ChunkOffset != 3 {
		t.Fatalf("Get(1) = %+v, want {0 3}", loc)
	}

	idx.Put(1, Location{VirtNum: 5, ChunkOffset: 1}) // supersede
	loc, ok = idx.Get(1)
	if !ok || loc.VirtNum != 5 {
		t.Fatalf("Get(1) after supersede = %+v, want virt 5", loc)
	}

	idx.Delete(2)
	if _, ok := idx.Get(2); ok {
		t.Fatalf("Get(2) found entry after Delete")
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d after delete, want 1", idx.Len())
	}
}

func TestIndex_Ids_Ascending(t *testing.T) {
	idx := New()
	for _, id := range []uint16{30, 10, 20} {
		idx.Put(id, Location{})
	}
	got := idx.Ids()
	want := []uint16{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("Ids() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ids() = %v, want %v", got, want)
		}
	}
}
