package pagedir

import "testing"

func TestDirectory_AllocateAdvancesNextAlloc(t *testing.T) {
	d := New(4)
	if d.NextAlloc() != 0 {
		t.Fatalf("NextAlloc() = %d, want 0", d.NextAlloc())
	}
	m, err := d.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if m.PhysNum != 0 || m.VirtNum != 10 {
		t.Fatalf("Allocate = %+v, want phys=0 virt=10", m)
	}
	if d.NextAlloc() != 1 {
		t.Fatalf("NextAlloc() = %d, want 1", d.NextAlloc())
	}
}

func TestDirectory_AllocateWrapsAndExhausts(t *testing.T) {
	d := New(2)
	if _, err := d.Allocate(1); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := d.Allocate(2); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := d.Allocate(3); err != ErrNoMem {
		t.Fatalf("Allocate on full directory = %v, want ErrNoMem", err)
	}

	d.Free(1)
	m, err := d.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate after free: %v", err)
	}
	if m.PhysNum != 0 {
		t.Fatalf("Allocate after freeing phys 0 = phys %d, want 0", m.PhysNum)
	}
}

func TestDirectory_FreeMarksPhysFree(t *testing.T) {
	d := New(2)
	m, _ := d.Allocate(1)
	if d.IsFree(m.PhysNum) {
		t.Fatalf("phys %d reported free right after allocation", m.PhysNum)
	}
	if _, ok := d.Free(1); !ok {
		t.Fatalf("Free(1) reported not found")
	}
	if !d.IsFree(m.PhysNum) {
		t.Fatalf("phys %d not free after Free", m.PhysNum)
	}
	if _, ok := d.Free(1); ok {
		t.Fatalf("double Free(1) reported found")
	}
}

func TestDirectory_NavigationOrder(t *testing.T) {
	d := New(5)
	for _, v := range []uint16{30, 10, 20} {
		d.Allocate(v)
	}
	min, ok := d.Min()
	if !ok || min.VirtNum != 10 {
		t.Fatalf("Min() = %+v, want virt 10", min)
	}
	max, ok := d.Max()
	if !ok || max.VirtNum != 30 {
		t.Fatalf("Max() = %+v, want virt 30", max)
	}
	next, ok := d.Next(10)
	if !ok || next.VirtNum != 20 {
		t.Fatalf("Next(10) = %+v, want virt 20", next)
	}
	if _, ok := d.Next(30); ok {
		t.Fatalf("Next(30) should have no successor")
	}
	prev, ok := d.Prev(30)
	if !ok || prev.VirtNum != 20 {
		t.Fatalf("Prev(30) = %+v, want virt 20", prev)
	}
}

func TestDirectory_CheckOrder(t *testing.T) {
	d := New(3)
	if !d.CheckOrder() {
		t.Fatalf("CheckOrder on empty directory should hold")
	}
	d.Allocate(1)
	d.Allocate(2)
	d.Allocate(3)
	if !d.CheckOrder() {
		t.Fatalf("CheckOrder should hold for a freshly built directory")
	}
}

func TestDirectory_MarkBusyFromScanThenRecompute(t *testing.T) {
	d := New(3)
	d.MarkBusyFromScan(5, 1)
	d.MarkFreeFromScan(0)
	d.MarkFreeFromScan(2)
	d.RecomputeNextAlloc()
	if d.NextAlloc() != 0 {
		t.Fatalf("NextAlloc() = %d, want 0", d.NextAlloc())
	}
	if d.BusyPages() != 1 {
		t.Fatalf("BusyPages() = %d, want 1", d.BusyPages())
	}
	if m, ok := d.ByPhys(1); !ok || m.VirtNum != 5 {
		t.Fatalf("ByPhys(1) = %+v, want virt 5", m)
	}
}
