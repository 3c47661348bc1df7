package objects

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cimrepo/cimrepo/internal/cim/cimerrors"
	"github.com/cimrepo/cimrepo/internal/cim/cursor"
	"github.com/cimrepo/cimrepo/internal/cim/mapping"
	"github.com/cimrepo/cimrepo/internal/cim/pagecache"
)

// Record is the raw bytes of a single indexed object record, tagged with
// its short data-type code (CD, I, IL, R, ...). Its internal structure
// (class definition, interface, registration) is not decoded here.
type Record struct {
	DataType string
	Data     []byte
}

// DataFile is the objects data (Objects.data) file: pages resolved
// through an objects mapping, reassembling variable-sized records that
// may span multiple pages.
type DataFile struct {
	src      cursor.Source
	file     *os.File
	fileSize int64
	mapping  *mapping.File
	cache    *pagecache.Cache
	log      logrus.FieldLogger
}

// Open opens path as an objects data file indirected through objMapping.
func Open(path string, objMapping *mapping.File, cache *pagecache.Cache, log logrus.FieldLogger) (*DataFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &DataFile{
		src:      f,
		file:     f,
		fileSize: info.Size(),
		mapping:  objMapping,
		cache:    cache,
		log:      log,
	}, nil
}

// Close releases the underlying file handle.
func (d *DataFile) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// getMappedPage resolves logical page logicalN through the objects
// mapping, reading descriptors unless dataPage is true.
func (d *DataFile) getMappedPage(logicalN uint32, dataPage bool) (*Page, error) {
	physical, ok := d.mapping.ResolveLogical(logicalN)
	if !ok {
		d.log.Warn(&cimerrors.MissingPage{LogicalPage: logicalN})
		return nil, nil
	}

	offset := int64(physical) * PageSize
	if offset >= d.fileSize {
		d.log.Warn(&cimerrors.MissingPage{LogicalPage: logicalN})
		return nil, nil
	}

	if !dataPage {
		if data, ok := d.cache.Get(pagecache.ObjectsFile, physical); ok {
			return Decode(data, offset, false)
		}
	}

	buf, err := cursor.ReadAt(d.src, offset, PageSize)
	if err != nil {
		return nil, err
	}
	page, err := Decode(buf, offset, dataPage)
	if err != nil {
		return nil, err
	}
	if !dataPage {
		d.cache.Add(pagecache.ObjectsFile, physical, buf)
	}
	return page, nil
}

// GetObjectRecordByKey parses key's locator and reassembles the object
// record's bytes, walking one or more logical pages as required. It
// returns (nil, nil) for any non-fatal failure (missing page, missing
// descriptor, malformed locator); each is logged as a warning.
func (d *DataFile) GetObjectRecordByKey(key string) (*Record, error) {
	loc, err := ParseLocator(key)
	if err != nil {
		d.log.Warn(err)
		return nil, nil
	}

	var segments [][]byte
	remaining := loc.Size
	page := loc.Page
	dataPageMode := false
	segmentIndex := 0

	for remaining > 0 {
		objPage, err := d.getMappedPage(page, dataPageMode)
		if err != nil {
			return nil, err
		}
		if objPage == nil {
			d.log.WithFields(logrus.Fields{"identifier": loc.Identifier, "segment": segmentIndex}).
				Warn(&cimerrors.MissingPage{LogicalPage: page})
			return nil, nil
		}

		var dataOffset uint32
		if !dataPageMode {
			desc, ok := objPage.FindDescriptor(loc.Identifier, loc.Size)
			if !ok {
				d.log.Warn(&cimerrors.RecordNotFound{Identifier: loc.Identifier, Size: loc.Size})
				return nil, nil
			}
			dataOffset = desc.DataOffset
			dataPageMode = true
		}

		segment := objPage.ReadBytes(dataOffset, remaining)
		if len(segment) == 0 {
			d.log.WithFields(logrus.Fields{"identifier": loc.Identifier, "segment": segmentIndex}).
				Warn(&cimerrors.MissingPage{LogicalPage: page})
			return nil, nil
		}

		segments = append(segments, segment)
		remaining -= uint32(len(segment))
		page++
		segmentIndex++
	}

	total := 0
	for _, s := range segments {
		total += len(s)
	}
	data := make([]byte, 0, total)
	for _, s := range segments {
		data = append(data, s...)
	}

	return &Record{DataType: loc.DataType, Data: data}, nil
}
