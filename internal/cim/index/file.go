package index

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cimrepo/cimrepo/internal/cim/cimerrors"
	"github.com/cimrepo/cimrepo/internal/cim/cursor"
	"github.com/cimrepo/cimrepo/internal/cim/mapping"
	"github.com/cimrepo/cimrepo/internal/cim/pagecache"
)

// TreeFile is the index B-tree (Index.btr) file: physical pages resolved
// through an index mapping, rooted at the administrative page's
// root_page_number.
type TreeFile struct {
	src      cursor.Source
	file     *os.File
	fileSize int64
	mapping  *mapping.File
	cache    *pagecache.Cache
	log      logrus.FieldLogger

	firstMappedPage *Page
	rootPage        *Page
}

// Open opens path as an index B-tree file indirected through idxMapping.
func Open(path string, idxMapping *mapping.File, cache *pagecache.Cache, log logrus.FieldLogger) (*TreeFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &TreeFile{
		src:      f,
		file:     f,
		fileSize: info.Size(),
		mapping:  idxMapping,
		cache:    cache,
		log:      log,
	}, nil
}

// Close releases the underlying file handle.
func (t *TreeFile) Close() error {
	if t.file != nil {
		err := t.file.Close()
		t.file = nil
		return err
	}
	return nil
}

// getPhysicalPage reads and decodes the page at physical page number p,
// going through the page cache when one is configured.
func (t *TreeFile) getPhysicalPage(p uint32) (*Page, error) {
	if data, ok := t.cache.Get(pagecache.IndexFile, p); ok {
		return Decode(data, int64(p)*PageSize)
	}

	offset := int64(p) * PageSize
	if offset >= t.fileSize {
		return nil, nil
	}

	buf, err := cursor.ReadAt(t.src, offset, PageSize)
	if err != nil {
		return nil, cimerrors.NewFormatError(offset, "page read", err)
	}
	page, err := Decode(buf, offset)
	if err != nil {
		return nil, err
	}
	t.cache.Add(pagecache.IndexFile, p, buf)
	return page, nil
}

// GetFirstMappedPage returns logical page 0 of the index mapping, which
// must be the administrative page. The result is cached.
func (t *TreeFile) GetFirstMappedPage() (*Page, error) {
	if t.firstMappedPage != nil {
		return t.firstMappedPage, nil
	}

	physical, ok := t.mapping.ResolveLogical(0)
	if !ok {
		t.log.Warn(&cimerrors.MissingPage{LogicalPage: 0})
		return nil, nil
	}

	page, err := t.getPhysicalPage(physical)
	if err != nil {
		return nil, err
	}
	if page == nil {
		t.log.Warn(&cimerrors.MissingPage{LogicalPage: 0})
		return nil, nil
	}
	if page.Type != Administrative {
		t.log.Warn("first mapped index page type mismatch")
		return nil, nil
	}

	t.firstMappedPage = page
	return page, nil
}

// GetRootPage returns the B-tree's root page, resolved through the
// administrative page's root_page_number. The result is cached.
func (t *TreeFile) GetRootPage() (*Page, error) {
	if t.rootPage != nil {
		return t.rootPage, nil
	}

	first, err := t.GetFirstMappedPage()
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, nil
	}

	physical, ok := t.mapping.ResolveLogical(first.RootPageNumber)
	if !ok {
		t.log.Warn(&cimerrors.MissingPage{LogicalPage: first.RootPageNumber})
		return nil, nil
	}

	page, err := t.getPhysicalPage(physical)
	if err != nil {
		return nil, err
	}
	if page == nil {
		t.log.Warn(&cimerrors.MissingPage{LogicalPage: first.RootPageNumber})
		return nil, nil
	}

	t.rootPage = page
	return page, nil
}

// GetMappedPage resolves logical page number logicalN through the index
// mapping and returns the decoded page.
func (t *TreeFile) GetMappedPage(logicalN uint32) (*Page, error) {
	physical, ok := t.mapping.ResolveLogical(logicalN)
	if !ok {
		t.log.Warn(&cimerrors.MissingPage{LogicalPage: logicalN})
		return nil, nil
	}

	page, err := t.getPhysicalPage(physical)
	if err != nil {
		return nil, err
	}
	if page == nil {
		t.log.Warn(&cimerrors.MissingPage{LogicalPage: logicalN})
		return nil, nil
	}
	return page, nil
}

// Keys returns every key in the tree, document order within a page then
// depth-first into children in array order, skipping 0/0xFFFFFFFF
// children. A visited-page guard prevents runaway recursion on
// malformed, cyclic input; a well-formed repository never exercises it.
func (t *TreeFile) Keys() ([]string, error) {
	root, err := t.GetRootPage()
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	var keys []string
	visited := make(map[uint32]bool)
	var walk func(page *Page) error
	walk = func(page *Page) error {
		keys = append(keys, page.Keys...)
		for _, sub := range page.SubPages {
			if visited[sub] {
				continue
			}
			visited[sub] = true
			subPage, err := t.GetMappedPage(sub)
			if err != nil {
				return err
			}
			if subPage == nil {
				continue
			}
			if err := walk(subPage); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return keys, nil
}
