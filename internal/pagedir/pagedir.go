// Package pagedir implements the page directory: the in-memory map
// from physical page index to busy/free, and the ordered index from
// virtual page number to page metadata used to pick the next physical
// page to allocate and to walk pages in logical order.
//
// It is pure bookkeeping — it never touches flashdev.Device itself,
// mirroring the reference implementation's split between
// veeprom_order_pages (which classifies pages by reading flash) and
// the busy_map/m_veeprom_pages arrays it updates (eeprom.c).
package pagedir

import (
	"errors"

	"github.com/anvoe/virtflash/internal/ordmap"
)

// ErrNoMem is returned when no free physical page remains.
var ErrNoMem = errors.New("pagedir: no free physical page")

// Meta is the in-RAM metadata kept for every VALID or RECEIVING page.
type Meta struct {
	VirtNum   uint16
	PhysNum   int
	Fragments int // bytes tombstoned
	FreeSpace int // bytes of contiguous trailing 0xFFFF in the record area
}

// Directory is the global page-allocation and ordering state: the
// busy map, page order, busy-page count, and next-allocation cursor.
type Directory struct {
	pageCount int
	busy      []int // busy[i] == i: free; busy[i] == busySentinel: in use
	order     *ordmap.Tree[uint16, *Meta]
	byPhys    map[int]*Meta
	nextAlloc int // -1 when full
}

const busySentinel = -1

// New creates a directory with every physical page initially free.
func New(pageCount int) *Directory {
	d := &Directory{
		pageCount: pageCount,
		busy:      make([]int, pageCount),
		order:     ordmap.New[uint16, *Meta](),
		byPhys:    make(map[int]*Meta, pageCount),
	}
	for i := range d.busy {
		d.busy[i] = i
	}
	d.nextAlloc = 0
	if pageCount == 0 {
		d.nextAlloc = -1
	}
	return d
}

// PageCount reports the total physical page count.
func (d *Directory) PageCount() int { return d.pageCount }

// BusyPages reports the number of pages currently registered
// (VALID+RECEIVING), i.e. |page_order|.
func (d *Directory) BusyPages() int { return d.order.Len() }

// NextAlloc reports the physical index the next allocation will use,
// or -1 if the device is full.
func (d *Directory) NextAlloc() int { return d.nextAlloc }

// IsFree reports whether a physical page is currently free, i.e.
// busy_map[i] == i.
func (d *Directory) IsFree(phys int) bool {
	if phys < 0 || phys >= d.pageCount {
		return false
	}
	return d.busy[phys] == phys
}

// FreeCount reports how many physical pages are currently free.
func (d *Directory) FreeCount() int { return d.pageCount - d.order.Len() }

// MarkBusyFromScan registers a page discovered already VALID/RECEIVING
// during recovery's page classification (order_pages), without going
// through the normal allocate path. Callers must call RecomputeNextAlloc
// once scanning is complete.
func (d *Directory) MarkBusyFromScan(virt uint16, phys int) *Meta {
	d.busy[phys] = busySentinel
	m := &Meta{VirtNum: virt, PhysNum: phys}
	d.order.Insert(virt, m)
	d.byPhys[phys] = m
	return m
}

// MarkFreeFromScan records a physical page discovered ERASED (or a
// reclaimed RECEIVING page) during recovery's page classification.
func (d *Directory) MarkFreeFromScan(phys int) {
	d.busy[phys] = phys
}

// RecomputeNextAlloc rebuilds next_alloc from scratch, scanning from
// physical index 0, matching veeprom_set_next_alloc's wraparound scan
// but usable immediately after a from-zero classification pass.
func (d *Directory) RecomputeNextAlloc() {
	for i := 0; i < d.pageCount; i++ {
		if d.busy[i] == i {
			d.nextAlloc = i
			return
		}
	}
	d.nextAlloc = -1
}

// Allocate picks the next free physical page, registers it under virt
// in page_order, marks it busy, and advances next_alloc to the next
// free page by forward scan with wraparound (veeprom_set_next_alloc).
func (d *Directory) Allocate(virt uint16) (*Meta, error) {
	if d.nextAlloc == -1 {
		return nil, ErrNoMem
	}
	phys := d.nextAlloc
	d.busy[phys] = busySentinel

	m := &Meta{VirtNum: virt, PhysNum: phys}
	d.order.Insert(virt, m)
	d.byPhys[phys] = m

	d.advanceNextAlloc(phys)
	return m, nil
}

// advanceNextAlloc implements veeprom_set_next_alloc: scan forward
// from the just-used index, wrapping once, to find the next free page.
func (d *Directory) advanceNextAlloc(from int) {
	for i := from + 1; i < d.pageCount; i++ {
		if d.busy[i] == i {
			d.nextAlloc = i
			return
		}
	}
	for i := 0; i < from; i++ {
		if d.busy[i] == i {
			d.nextAlloc = i
			return
		}
	}
	d.nextAlloc = -1
}

// Free removes virt's page from page_order and marks its physical
// slot free again (veeprom_rm_dereg_page's busy_map half; the caller
// is responsible for actually erasing the flash page).
func (d *Directory) Free(virt uint16) (*Meta, bool) {
	m, ok := d.order.Get(virt)
	if !ok {
		return nil, false
	}
	d.order.Delete(virt)
	delete(d.byPhys, m.PhysNum)
	d.busy[m.PhysNum] = m.PhysNum
	if d.nextAlloc == -1 {
		d.nextAlloc = m.PhysNum
	}
	return m, true
}

// Get returns the metadata for a virtual page number.
func (d *Directory) Get(virt uint16) (*Meta, bool) { return d.order.Get(virt) }

// ByPhys returns the metadata for a physical page index, if it is
// currently registered.
func (d *Directory) ByPhys(phys int) (*Meta, bool) {
	m, ok := d.byPhys[phys]
	return m, ok
}

// Min returns the lowest-virt_num registered page.
func (d *Directory) Min() (*Meta, bool) {
	_, m, ok := d.order.Min()
	return m, ok
}

// Max returns the highest-virt_num registered page.
func (d *Directory) Max() (*Meta, bool) {
	_, m, ok := d.order.Max()
	return m, ok
}

// Next returns the page with the smallest virt_num strictly greater
// than virt, i.e. the next page in a chain. virt must itself be
// registered; for an unregistered virt Next reports false.
func (d *Directory) Next(virt uint16) (*Meta, bool) {
	_, m, ok := d.order.Next(virt)
	return m, ok
}

// Prev returns the page with the largest virt_num strictly less than
// virt, used when walking a delete backwards across page boundaries.
// virt must itself be registered; for an unregistered virt Prev
// reports false.
func (d *Directory) Prev(virt uint16) (*Meta, bool) {
	_, m, ok := d.order.Prev(virt)
	return m, ok
}

// Each walks registered pages in ascending virt_num order.
func (d *Directory) Each(fn func(m *Meta) bool) {
	d.order.Each(func(_ uint16, m *Meta) bool { return fn(m) })
}

// CheckOrder verifies invariant I1/I4: the ordered index holds exactly
// BusyPages() entries and virtual numbers strictly increase across it
// (veeprom_check_order).
func (d *Directory) CheckOrder() bool {
	prev, ok := d.Min()
	if !ok {
		return d.order.Len() == 0
	}
	count := 1
	cur := prev
	for {
		next, ok := d.Next(cur.VirtNum)
		if !ok {
			break
		}
		if next.VirtNum <= cur.VirtNum {
			return false
		}
		cur = next
		count++
	}
	return count == d.order.Len()
}
