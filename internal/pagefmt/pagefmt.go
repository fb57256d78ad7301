// Package pagefmt is the page codec: it knows what the first two
// chunks of every page mean and nothing else. The record stream
// within a page is the job of internal/cursor; pagefmt only
// reads/writes the header.
package pagefmt

import "github.com/anvoe/virtflash/flashdev"

// Status is a page's header status word. The three values are chosen
// so ERASED -> RECEIVING -> VALID only ever clears bits, legal on NOR
// flash without an erase.
type Status uint16

const (
	StatusErased    Status = 0xFFFF
	StatusReceiving Status = 0xAAAA
	StatusValid     Status = 0x0000
)

func (s Status) String() string {
	switch s {
	case StatusErased:
		return "ERASED"
	case StatusReceiving:
		return "RECEIVING"
	case StatusValid:
		return "VALID"
	default:
		return "UNKNOWN"
	}
}

// HeaderChunks is the number of chunks occupied by a page header
// (status + virt_num).
const HeaderChunks = 2

// Header is the parsed first two chunks of a page.
type Header struct {
	Status  Status
	VirtNum uint16
}

// ReadHeader reads and classifies a page's header.
func ReadHeader(dev flashdev.Device, page int) (Header, error) {
	statusChunk, err := dev.ReadChunk(page, 0)
	if err != nil {
		return Header{}, err
	}
	virtChunk, err := dev.ReadChunk(page, 1)
	if err != nil {
		return Header{}, err
	}
	return Header{Status: Status(statusChunk), VirtNum: uint16(virtChunk)}, nil
}

// WriteStatus programs the status chunk. Callers must only move
// forward along ERASED -> RECEIVING -> VALID; the flash device itself
// enforces the 1->0 legality of the transition.
func WriteStatus(dev flashdev.Device, page int, status Status) error {
	return dev.WriteChunk(page, 0, flashdev.Chunk(status))
}

// WriteVirtNum programs the virtual page number chunk. It must be
// written once, when the page is set to RECEIVING, before any record
// bytes are streamed into it.
func WriteVirtNum(dev flashdev.Device, page int, virtNum uint16) error {
	return dev.WriteChunk(page, 1, flashdev.Chunk(virtNum))
}
