package flashdev

import (
	"encoding/binary"
	"os"

	"github.com/ncw/directio"
)

// DirectFile is a flash device backed by a real file opened with
// O_DIRECT via github.com/ncw/directio, so that what the store
// believes is durable actually bypasses the kernel page cache — the
// same concern any WAL/page-store pager in the wider example pack
// (e.g. a minisql- or pebble-style pager) solves the same way.
//
// O_DIRECT requires block-aligned, block-sized I/O, so DirectFile
// reads and writes whole pages through directio.AlignedBlock buffers;
// a single-chunk write reads the page, splices the chunk in, and
// writes the whole page back.
type DirectFile struct {
	f             *os.File
	pageCount     int
	chunksPerPage int
	pageBytes     int
}

// OpenDirectFile opens (creating if necessary) a file of exactly
// pageCount*chunksPerPage*2 bytes for O_DIRECT access. The file is
// zero-extended and then erased (set to 0xFFFF) on first creation.
func OpenDirectFile(path string, pageCount, chunksPerPage int) (*DirectFile, error) {
	pageBytes := chunksPerPage * 2
	totalBytes := pageCount * pageBytes

	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	df := &DirectFile{f: f, pageCount: pageCount, chunksPerPage: chunksPerPage, pageBytes: pageBytes}

	if !existed {
		if err := f.Truncate(int64(totalBytes)); err != nil {
			f.Close()
			return nil, err
		}
		for p := 0; p < pageCount; p++ {
			if err := df.ErasePage(p); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	return df, nil
}

func (d *DirectFile) Close() error { return d.f.Close() }

func (d *DirectFile) PageCount() int     { return d.pageCount }
func (d *DirectFile) ChunksPerPage() int { return d.chunksPerPage }

func (d *DirectFile) readPageBlock(page int) ([]byte, error) {
	block := directio.AlignedBlock(alignUp(d.pageBytes, directio.BlockSize))
	if _, err := d.f.ReadAt(block, int64(page*d.pageBytes)); err != nil {
		return nil, err
	}
	return block[:d.pageBytes], nil
}

func (d *DirectFile) writePageBlock(page int, data []byte) error {
	block := directio.AlignedBlock(alignUp(d.pageBytes, directio.BlockSize))
	copy(block, data)
	_, err := d.f.WriteAt(block, int64(page*d.pageBytes))
	return err
}

func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

func (d *DirectFile) ReadChunk(page, chunkIdx int) (Chunk, error) {
	if err := checkBounds(page, chunkIdx, d.pageCount, d.chunksPerPage); err != nil {
		return 0, err
	}
	buf, err := d.readPageBlock(page)
	if err != nil {
		return 0, err
	}
	return Chunk(binary.LittleEndian.Uint16(buf[chunkIdx*2:])), nil
}

func (d *DirectFile) ReadPage(page int) ([]Chunk, error) {
	if page < 0 || page >= d.pageCount {
		return nil, ErrOutOfBounds
	}
	buf, err := d.readPageBlock(page)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, d.chunksPerPage)
	for i := range out {
		out[i] = Chunk(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out, nil
}

func (d *DirectFile) WriteChunk(page, chunkIdx int, value Chunk) error {
	if err := checkBounds(page, chunkIdx, d.pageCount, d.chunksPerPage); err != nil {
		return err
	}
	buf, err := d.readPageBlock(page)
	if err != nil {
		return err
	}
	old := Chunk(binary.LittleEndian.Uint16(buf[chunkIdx*2:]))
	if !CanProgram(old, value) {
		return ErrNotProgrammable
	}
	binary.LittleEndian.PutUint16(buf[chunkIdx*2:], uint16(value))
	return d.writePageBlock(page, buf)
}

func (d *DirectFile) ZeroChunk(page, chunkIdx int) error {
	return d.WriteChunk(page, chunkIdx, ChunkTombstone)
}

func (d *DirectFile) ErasePage(page int) error {
	if page < 0 || page >= d.pageCount {
		return ErrOutOfBounds
	}
	blank := make([]byte, d.pageBytes)
	for i := range blank {
		blank[i] = 0xFF
	}
	return d.writePageBlock(page, blank)
}
