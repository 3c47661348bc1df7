// Package objects decodes the CIM repository's objects data file
// (Objects.data): pages of 16-byte object descriptors pointing at record
// bytes that may continue across subsequent pages.
package objects

import (
	"github.com/cimrepo/cimrepo/internal/cim/binutil"
	"github.com/cimrepo/cimrepo/internal/cim/cimerrors"
)

// PageSize is the fixed size of every objects data page.
const PageSize = 8192

const descriptorSize = 16

// Descriptor is one 16-byte object descriptor: {identifier, data_offset,
// data_size, data_checksum}. The checksum is read but never verified, per
// the design notes (no algorithm specified upstream).
type Descriptor struct {
	Identifier   uint32
	DataOffset   uint32
	DataSize     uint32
	DataChecksum uint32
}

// Page is one decoded objects data page. When DataPage is true, the page
// was read in "data page" mode: the descriptor table was skipped and the
// whole page is a raw continuation of a record that started on an
// earlier page.
type Page struct {
	Offset      int64
	DataPage    bool
	Descriptors []Descriptor
	raw         []byte
}

// Decode parses one objects data page out of buf (must be PageSize
// bytes). When dataPage is true, descriptor parsing is skipped: the page
// is treated purely as a byte-addressable continuation block.
func Decode(buf []byte, pageOffset int64, dataPage bool) (*Page, error) {
	page := &Page{Offset: pageOffset, DataPage: dataPage, raw: buf}
	if dataPage {
		return page, nil
	}

	cur := 0
	for {
		if cur+descriptorSize > len(buf) {
			return nil, cimerrors.NewFormatError(pageOffset, "object descriptor", shortDescriptorTable{})
		}
		chunk := buf[cur : cur+descriptorSize]
		if allZero(chunk) {
			break
		}

		identifier, _ := binutil.Uint32(chunk, 0)
		dataOffset, _ := binutil.Uint32(chunk, 4)
		dataSize, _ := binutil.Uint32(chunk, 8)
		dataChecksum, _ := binutil.Uint32(chunk, 12)

		page.Descriptors = append(page.Descriptors, Descriptor{
			Identifier:   identifier,
			DataOffset:   dataOffset,
			DataSize:     dataSize,
			DataChecksum: dataChecksum,
		})
		cur += descriptorSize
	}

	return page, nil
}

// FindDescriptor returns the descriptor matching identifier whose
// DataSize equals expectedSize, or ok=false if none matches.
func (p *Page) FindDescriptor(identifier, expectedSize uint32) (Descriptor, bool) {
	for _, d := range p.Descriptors {
		if d.Identifier == identifier {
			if d.DataSize != expectedSize {
				return Descriptor{}, false
			}
			return d, true
		}
	}
	return Descriptor{}, false
}

// ReadBytes returns up to min(dataSize, PageSize-dataOffset) bytes
// starting at dataOffset within the page. Callers continue reading from
// subsequent pages for any remainder.
func (p *Page) ReadBytes(dataOffset, dataSize uint32) []byte {
	if int(dataOffset) >= len(p.raw) {
		return nil
	}
	available := PageSize - int(dataOffset)
	readSize := int(dataSize)
	if readSize > available {
		readSize = available
	}
	end := int(dataOffset) + readSize
	if end > len(p.raw) {
		end = len(p.raw)
	}
	return p.raw[dataOffset:end]
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

type shortDescriptorTable struct{}

func (shortDescriptorTable) Error() string { return "object descriptor table runs past page boundary" }
