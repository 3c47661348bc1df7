// Package mapping parses the CIM repository's *.map files: the
// logical-to-physical page indirection tables that the index B-tree and
// objects data files are both built on top of.
//
// Layout:
//
//	header:   u32 signature=0x0000ABCD | u32 format_version | u32 number_of_pages
//	mappings: u32 count | count x u32 physical_page
//	unknowns: u32 count | count x u32
//	footer:   u32 signature=0x0000DCBA
package mapping

import (
	"fmt"
	"os"

	"github.com/cimrepo/cimrepo/internal/cim/binutil"
	"github.com/cimrepo/cimrepo/internal/cim/cimerrors"
	"github.com/cimrepo/cimrepo/internal/cim/cursor"
	"github.com/cimrepo/cimrepo/internal/cim/fsutil"
)

const (
	headerSignature = 0x0000ABCD
	footerSignature = 0x0000DCBA

	// Unallocated is the sentinel physical page number meaning "no page".
	Unallocated = 0xFFFFFFFF
)

// File is a parsed mappings (*.map) file: an ordered logical->physical
// page number table, plus an auxiliary "unknown" table of undocumented
// semantics whose size must still be consumed to keep the cursor aligned
// when a second mapping record follows in the same physical file.
type File struct {
	FormatVersion  uint32
	NumberOfPages  uint32
	Mappings       []uint32
	UnknownEntries []uint32
	// DataSize is the number of bytes consumed by this mapping record,
	// usable as the file_offset of a second back-to-back record in the
	// same file (objects mapping followed by index mapping).
	DataSize int64

	file   *os.File
	opened bool
}

// Open parses a mappings file starting at fileOffset within path.
func Open(path string, fileOffset int64) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	mf, err := ReadAt(f, fileOffset)
	if err != nil {
		f.Close()
		return nil, err
	}
	mf.file = f
	mf.opened = true
	return mf, nil
}

// ReadAt parses a mappings record out of src starting at fileOffset,
// without taking ownership of src. Used to parse a second back-to-back
// mapping record in an already-open file.
func ReadAt(src cursor.Source, fileOffset int64) (*File, error) {
	cur := fileOffset

	header, err := cursor.ReadAt(src, cur, 12)
	if err != nil {
		return nil, cimerrors.NewFormatError(cur, "file header", err)
	}
	signature, _ := binutil.Uint32(header, 0)
	if signature != headerSignature {
		return nil, cimerrors.NewFormatError(cur, "file header",
			unsupportedSignature("header", signature))
	}
	formatVersion, _ := binutil.Uint32(header, 4)
	numberOfPages, _ := binutil.Uint32(header, 8)
	cur += 12

	mappings, n, err := readPageNumberTable(src, cur)
	if err != nil {
		return nil, err
	}
	cur += n

	unknowns, n, err := readPageNumberTable(src, cur)
	if err != nil {
		return nil, err
	}
	cur += n

	footer, err := cursor.ReadAt(src, cur, 4)
	if err != nil {
		return nil, cimerrors.NewFormatError(cur, "file footer", err)
	}
	footerSig, _ := binutil.Uint32(footer, 0)
	if footerSig != footerSignature {
		return nil, cimerrors.NewFormatError(cur, "file footer",
			unsupportedSignature("footer", footerSig))
	}
	cur += 4

	return &File{
		FormatVersion:  formatVersion,
		NumberOfPages:  numberOfPages,
		Mappings:       mappings,
		UnknownEntries: unknowns,
		DataSize:       cur - fileOffset,
	}, nil
}

// readPageNumberTable reads {count:u32, count x u32} and returns the
// values plus the number of bytes consumed.
func readPageNumberTable(src cursor.Source, offset int64) ([]uint32, int64, error) {
	countBuf, err := cursor.ReadAt(src, offset, 4)
	if err != nil {
		return nil, 0, cimerrors.NewFormatError(offset, "page number table count", err)
	}
	count, _ := binutil.Uint32(countBuf, 0)
	if count == 0 {
		return nil, 4, nil
	}

	size := int(count) * 4
	entriesBuf, err := cursor.ReadAt(src, offset+4, size)
	if err != nil {
		return nil, 0, cimerrors.NewFormatError(offset+4, "page number table entries", err)
	}
	entries, err := binutil.Uint32Array(entriesBuf, 0, int(count))
	if err != nil {
		return nil, 0, cimerrors.NewFormatError(offset+4, "page number table entries", err)
	}
	return entries, int64(4 + size), nil
}

// ResolveLogical returns the physical page number for logical page n, or
// ok=false if n is out of range or unallocated.
func (f *File) ResolveLogical(n uint32) (physical uint32, ok bool) {
	if int(n) >= len(f.Mappings) {
		return 0, false
	}
	p := f.Mappings[n]
	if p == Unallocated {
		return 0, false
	}
	return p, true
}

// Close releases the underlying file handle, if this File owns one.
func (f *File) Close() error {
	if f.opened && f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}

func unsupportedSignature(which string, got uint32) error {
	return &signatureError{which: which, got: got}
}

type signatureError struct {
	which string
	got   uint32
}

func (e *signatureError) Error() string {
	return fmt.Sprintf("unsupported %s signature: 0x%08x", e.which, e.got)
}

// GenerationSelector chooses which of several mapping-file generations is
// active, following Mapping.ver / Mapping<N>.map when present and falling
// back to scanning Mapping1.map..Mapping3.map otherwise. The repository
// façade uses this when the bare Index.map/Objects.map names are absent
// from the repository directory, or first when configured to prefer it.
type GenerationSelector struct {
	Dir string
}

// Active returns the path to the active mapping file, or "" if none of
// the candidate layouts could be resolved.
func (s *GenerationSelector) Active() (string, error) {
	verPath, err := fsutil.FindCaseInsensitive(s.Dir, "mapping.ver")
	if err == nil && verPath != "" {
		buf, err := os.ReadFile(verPath)
		if err == nil && len(buf) >= 4 {
			gen, _ := binutil.Uint32(buf, 0)
			name := "Mapping" + itoa(gen) + ".map"
			if p, err := fsutil.FindCaseInsensitive(s.Dir, name); err == nil && p != "" {
				return p, nil
			}
		}
	}

	for gen := 1; gen <= 3; gen++ {
		name := "Mapping" + itoa(gen) + ".map"
		p, err := fsutil.FindCaseInsensitive(s.Dir, name)
		if err == nil && p != "" {
			if _, parseErr := Open(p, 0); parseErr == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
