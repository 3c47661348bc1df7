// Package index decodes and traverses the CIM repository's index B-tree
// (Index.btr), a paged file of fixed 8192-byte pages whose keys are
// reconstructed from per-page string tables.
package index

import (
	"github.com/cimrepo/cimrepo/internal/cim/binutil"
	"github.com/cimrepo/cimrepo/internal/cim/cimerrors"
)

// PageSize is the fixed size of every index B-tree page.
const PageSize = 8192

// PageType tags the kind of content an index page carries.
type PageType uint32

const (
	Active         PageType = 0xACCC
	Administrative PageType = 0xADDD
	Deleted        PageType = 0xBADD
)

// String renders known page types by name and falls back to "unknown"
// for anything else.
func (t PageType) String() string {
	switch t {
	case Active:
		return "active"
	case Administrative:
		return "administrative"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Page is one decoded index B-tree page.
type Page struct {
	Type             PageType
	MappedPageNumber uint32
	RootPageNumber   uint32
	NumberOfKeys     uint32

	// Children holds all N+1 raw logical child page numbers in array
	// order, including 0/0xFFFFFFFF "no child" entries.
	Children []uint32
	// SubPages is Children filtered to the resolvable entries only, in
	// the same order, ready for depth-first recursion.
	SubPages []uint32

	// Keys holds the reconstructed, backslash-prefixed key strings in
	// the order they appear on the page.
	Keys []string
}

const headerSize = 20 // 5 x u32

// Decode parses one index B-tree page out of buf, which must be exactly
// PageSize bytes (the caller is expected to have read a full page; a
// short final page is a FormatError at the read-call site, not here).
func Decode(buf []byte, pageOffset int64) (*Page, error) {
	if len(buf) < headerSize {
		return nil, cimerrors.NewFormatError(pageOffset, "page header", shortPage{})
	}

	pageType, _ := binutil.Uint32(buf, 0)
	mappedPageNumber, _ := binutil.Uint32(buf, 4)
	rootPageNumber, _ := binutil.Uint32(buf, 12)
	numberOfKeys, _ := binutil.Uint32(buf, 16)

	cur := headerSize

	// Step 2: unknown array, consumed only for offset arithmetic.
	if numberOfKeys > 0 {
		cur += int(numberOfKeys) * 4
	}

	// Step 3: child pointer array, N+1 entries.
	numChildren := int(numberOfKeys) + 1
	children, err := binutil.Uint32Array(buf, cur, numChildren)
	if err != nil {
		return nil, cimerrors.NewFormatError(pageOffset, "child pointer array", err)
	}
	cur += numChildren * 4

	// Step 4: key offsets array (units of 16-bit words), skipped when
	// there are no keys.
	var keyOffsets []uint16
	if numberOfKeys > 0 {
		keyOffsets, err = binutil.Uint16Array(buf, cur, int(numberOfKeys))
		if err != nil {
			return nil, cimerrors.NewFormatError(pageOffset, "key offsets array", err)
		}
		cur += int(numberOfKeys) * 2
	}

	// Step 5: key blob.
	keyBlobWords, err := binutil.Uint16(buf, cur)
	if err != nil {
		return nil, cimerrors.NewFormatError(pageOffset, "key blob size", err)
	}
	cur += 2
	keyBlobSize := int(keyBlobWords) * 2
	keyBlob := sliceOrEmpty(buf, cur, keyBlobSize)
	cur += keyBlobSize

	keySegments := make([][]uint16, len(keyOffsets))
	for i, off := range keyOffsets {
		byteOffset := int(off) * 2
		numSegments, err := binutil.Uint16(keyBlob, byteOffset)
		if err != nil {
			return nil, cimerrors.NewFormatError(pageOffset, "page key", err)
		}
		segments, err := binutil.Uint16Array(keyBlob, byteOffset+2, int(numSegments))
		if err != nil {
			return nil, cimerrors.NewFormatError(pageOffset, "page key segments", err)
		}
		keySegments[i] = segments
	}

	// Step 6: value offsets table.
	numValueOffsets, err := binutil.Uint16(buf, cur)
	if err != nil {
		return nil, cimerrors.NewFormatError(pageOffset, "value offsets count", err)
	}
	cur += 2
	valueOffsets, err := binutil.Uint16Array(buf, cur, int(numValueOffsets))
	if err != nil {
		return nil, cimerrors.NewFormatError(pageOffset, "value offsets array", err)
	}
	cur += int(numValueOffsets) * 2

	// Step 7: value blob, each value a NUL-terminated ASCII string.
	valueBlobSize, err := binutil.Uint16(buf, cur)
	if err != nil {
		return nil, cimerrors.NewFormatError(pageOffset, "value blob size", err)
	}
	cur += 2
	valueBlob := sliceOrEmpty(buf, cur, int(valueBlobSize))

	values := make([]string, len(valueOffsets))
	for i, off := range valueOffsets {
		values[i] = binutil.NULString(valueBlob, int(off))
	}

	keys := make([]string, len(keySegments))
	for i, segments := range keySegments {
		key := "\\"
		for j, seg := range segments {
			if j > 0 {
				key += "\\"
			}
			if int(seg) < len(values) {
				key += values[seg]
			}
		}
		keys[i] = key
	}

	subPages := make([]uint32, 0, len(children))
	for _, c := range children {
		if c != 0 && c != 0xFFFFFFFF {
			subPages = append(subPages, c)
		}
	}

	return &Page{
		Type:             PageType(pageType),
		MappedPageNumber: mappedPageNumber,
		RootPageNumber:   rootPageNumber,
		NumberOfKeys:     numberOfKeys,
		Children:         children,
		SubPages:         subPages,
		Keys:             keys,
	}, nil
}

// sliceOrEmpty returns buf[off:off+n], clamped to buf's bounds rather
// than erroring: a blob whose declared size runs past the end of buf
// yields only the bytes that are present.
func sliceOrEmpty(buf []byte, off, n int) []byte {
	if off < 0 || off > len(buf) {
		return nil
	}
	end := off + n
	if end > len(buf) {
		end = len(buf)
	}
	return buf[off:end]
}

type shortPage struct{}

func (shortPage) Error() string { return "page shorter than header size" }
