package objects

import (
	"strconv"
	"strings"

	"github.com/cimrepo/cimrepo/internal/cim/cimerrors"
)

// Locator is the parsed trailing `NAME.PAGE.ID.SIZE` segment of a CIM
// index key, naming the object record it points at.
type Locator struct {
	DataType   string
	Page       uint32
	Identifier uint32
	Size       uint32
}

// ParseLocator extracts the locator from the final `\`-delimited segment
// of key. It returns a *cimerrors.LocatorError when the final segment is
// not of the form NAME.PAGE.ID.SIZE with decimal integers.
func ParseLocator(key string) (Locator, error) {
	segment := key
	if idx := strings.LastIndex(key, `\`); idx >= 0 {
		segment = key[idx+1:]
	}

	if !strings.Contains(segment, ".") {
		return Locator{}, &cimerrors.LocatorError{Key: key, Reason: "final segment has no '.'"}
	}

	fields := strings.Split(segment, ".")
	if len(fields) != 4 {
		return Locator{}, &cimerrors.LocatorError{Key: key, Reason: "expected exactly 4 dot-separated values"}
	}

	page, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Locator{}, &cimerrors.LocatorError{Key: key, Reason: "page number is not decimal"}
	}
	id, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return Locator{}, &cimerrors.LocatorError{Key: key, Reason: "record identifier is not decimal"}
	}
	size, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Locator{}, &cimerrors.LocatorError{Key: key, Reason: "record size is not decimal"}
	}

	dataType := fields[0]
	if idx := strings.IndexByte(dataType, '_'); idx >= 0 {
		dataType = dataType[:idx]
	}

	return Locator{
		DataType:   dataType,
		Page:       uint32(page),
		Identifier: uint32(id),
		Size:       uint32(size),
	}, nil
}
