package flashdev

import (
	"encoding/binary"

	"github.com/dsnet/golib/memfile"
)

// MemImage is an in-memory flash device backed by dsnet/golib/memfile,
// a "treat a byte slice like a file" building block well suited to
// golden-image-style tests. It is the device every unit test in this
// module runs against, and supports simulated power loss for
// crash-resilience tests.
type MemImage struct {
	file          *memfile.File
	pageCount     int
	chunksPerPage int

	opBudget int // -1 means unlimited
	opsDone  int
}

// NewMemImage creates a fully-erased image of pageCount pages, each
// holding chunksPerPage chunks of 2 bytes.
func NewMemImage(pageCount, chunksPerPage int) *MemImage {
	buf := make([]byte, pageCount*chunksPerPage*2)
	for i := range buf {
		buf[i] = 0xFF
	}
	return &MemImage{
		file:          memfile.New(buf),
		pageCount:     pageCount,
		chunksPerPage: chunksPerPage,
		opBudget:      -1,
	}
}

// NewMemImageFromBytes wraps an existing raw image, e.g. one captured
// mid-test to simulate a reboot from a truncated write.
func NewMemImageFromBytes(raw []byte, pageCount, chunksPerPage int) *MemImage {
	cp := append([]byte(nil), raw...)
	return &MemImage{
		file:          memfile.New(cp),
		pageCount:     pageCount,
		chunksPerPage: chunksPerPage,
		opBudget:      -1,
	}
}

// InterruptAfter arms the image to fail every chunk-program/page-erase
// operation with ErrPowerLoss once n more of them have completed,
// modeling a power loss mid-write. n == 0 fails the very next program
// or erase. Reads are not counted and keep working.
func (m *MemImage) InterruptAfter(n int) {
	m.opBudget = n
	m.opsDone = 0
}

// Snapshot returns a copy of the raw bytes, suitable for feeding to
// NewMemImageFromBytes to simulate a reboot.
func (m *MemImage) Snapshot() []byte {
	return append([]byte(nil), m.file.Bytes()...)
}

func (m *MemImage) PageCount() int      { return m.pageCount }
func (m *MemImage) ChunksPerPage() int  { return m.chunksPerPage }

func (m *MemImage) offset(page, chunkIdx int) int64 {
	return int64((page*m.chunksPerPage + chunkIdx) * 2)
}

func (m *MemImage) ReadChunk(page, chunkIdx int) (Chunk, error) {
	if err := checkBounds(page, chunkIdx, m.pageCount, m.chunksPerPage); err != nil {
		return 0, err
	}
	var b [2]byte
	if _, err := m.file.ReadAt(b[:], m.offset(page, chunkIdx)); err != nil {
		return 0, err
	}
	return Chunk(binary.LittleEndian.Uint16(b[:])), nil
}

func (m *MemImage) ReadPage(page int) ([]Chunk, error) {
	if page < 0 || page >= m.pageCount {
		return nil, ErrOutOfBounds
	}
	out := make([]Chunk, m.chunksPerPage)
	for i := range out {
		c, err := m.ReadChunk(page, i)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (m *MemImage) consumeBudget() error {
	if m.opBudget < 0 {
		return nil
	}
	if m.opsDone >= m.opBudget {
		return ErrPowerLoss
	}
	m.opsDone++
	return nil
}

func (m *MemImage) WriteChunk(page, chunkIdx int, value Chunk) error {
	if err := checkBounds(page, chunkIdx, m.pageCount, m.chunksPerPage); err != nil {
		return err
	}
	if err := m.consumeBudget(); err != nil {
		return err
	}
	old, err := m.ReadChunk(page, chunkIdx)
	if err != nil {
		return err
	}
	if !CanProgram(old, value) {
		return ErrNotProgrammable
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(value))
	_, err = m.file.WriteAt(b[:], m.offset(page, chunkIdx))
	return err
}

func (m *MemImage) ZeroChunk(page, chunkIdx int) error {
	return m.WriteChunk(page, chunkIdx, ChunkTombstone)
}

func (m *MemImage) ErasePage(page int) error {
	if page < 0 || page >= m.pageCount {
		return ErrOutOfBounds
	}
	if err := m.consumeBudget(); err != nil {
		return err
	}
	blank := make([]byte, m.chunksPerPage*2)
	for i := range blank {
		blank[i] = 0xFF
	}
	_, err := m.file.WriteAt(blank, m.offset(page, 0))
	return err
}
