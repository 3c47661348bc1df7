// Package repository exposes the CIM repository façade: discovering the
// four on-disk files, binding mapping files to their paged files, and
// providing key enumeration and keyed object record retrieval.
package repository

import (
	"github.com/sirupsen/logrus"

	"github.com/cimrepo/cimrepo/internal/cim/fsutil"
	"github.com/cimrepo/cimrepo/internal/cim/index"
	"github.com/cimrepo/cimrepo/internal/cim/mapping"
	"github.com/cimrepo/cimrepo/internal/cim/objects"
	"github.com/cimrepo/cimrepo/internal/cim/pagecache"
)

// Options configures a Repository at Open time.
type Options struct {
	// CacheSize bounds the number of decoded pages held in memory across
	// both paged files combined. 0 disables the cache.
	CacheSize int
	// Log receives all non-fatal warnings. A discard logger is used if nil.
	Log logrus.FieldLogger
	// PreferGenerationSelector forces the Mapping.ver/Mapping<N>.map
	// discovery path even when bare Index.map/Objects.map are present.
	PreferGenerationSelector bool
}

// Repository is an open CIM repository: two mapping files and two paged
// files, bound together and ready for key enumeration and record
// retrieval.
type Repository struct {
	indexMapping   *mapping.File
	objectsMapping *mapping.File
	tree           *index.TreeFile
	data           *objects.DataFile
	cache          *pagecache.Cache
	log            logrus.FieldLogger
}

// Open discovers Index.map, Index.btr, Objects.map and Objects.data
// (case-insensitively) inside dir, parses the mapping files, and opens
// the two paged files against them.
func Open(dir string, opts Options) (*Repository, error) {
	log := opts.Log
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(nullWriter{})
		log = discard
	}

	cache := pagecache.New(opts.CacheSize)

	objMappingPath, idxMappingPath, combined, err := locateMappingFiles(dir, opts.PreferGenerationSelector)
	if err != nil {
		return nil, err
	}

	objMapping, err := mapping.Open(objMappingPath, 0)
	if err != nil {
		return nil, err
	}
	// A combined generation file holds two back-to-back records: objects
	// first, then index starting at the objects record's DataSize.
	idxOffset := int64(0)
	if combined {
		idxOffset = objMapping.DataSize
	}
	idxMapping, err := mapping.Open(idxMappingPath, idxOffset)
	if err != nil {
		objMapping.Close()
		return nil, err
	}

	treePath, err := fsutil.FindCaseInsensitive(dir, "Index.btr")
	if err != nil {
		objMapping.Close()
		idxMapping.Close()
		return nil, err
	}
	dataPath, err := fsutil.FindCaseInsensitive(dir, "Objects.data")
	if err != nil {
		objMapping.Close()
		idxMapping.Close()
		return nil, err
	}

	tree, err := index.Open(treePath, idxMapping, cache, log.WithField("file", "Index.btr"))
	if err != nil {
		objMapping.Close()
		idxMapping.Close()
		return nil, err
	}
	data, err := objects.Open(dataPath, objMapping, cache, log.WithField("file", "Objects.data"))
	if err != nil {
		tree.Close()
		objMapping.Close()
		idxMapping.Close()
		return nil, err
	}

	return &Repository{
		indexMapping:   idxMapping,
		objectsMapping: objMapping,
		tree:           tree,
		data:           data,
		cache:          cache,
		log:            log,
	}, nil
}

// locateMappingFiles finds the objects and index mapping file paths. Bare
// Objects.map/Index.map are tried first unless preferGeneration is set;
// the Mapping.ver/Mapping<N>.map generation scheme is the fallback (or the
// preferred path when requested), per the repository's resolved choice
// for which layout to support when both are possible. combined reports
// whether objPath and idxPath name the same physical file, in which case
// the index record immediately follows the objects record rather than
// starting at offset 0.
func locateMappingFiles(dir string, preferGeneration bool) (objPath, idxPath string, combined bool, err error) {
	bareObj, bareIdx := "", ""
	if !preferGeneration {
		bareObj, err = fsutil.FindCaseInsensitive(dir, "Objects.map")
		if err != nil {
			return "", "", false, err
		}
		bareIdx, err = fsutil.FindCaseInsensitive(dir, "Index.map")
		if err != nil {
			return "", "", false, err
		}
		if bareObj != "" && bareIdx != "" {
			return bareObj, bareIdx, false, nil
		}
	}

	sel := &mapping.GenerationSelector{Dir: dir}
	active, err := sel.Active()
	if err != nil {
		return "", "", false, err
	}
	if active != "" {
		// The selector resolves one generation file that serves as both
		// mapping sources in the original layout's back-to-back record
		// convention: objects record first, index record immediately
		// following at the objects record's DataSize offset.
		return active, active, true, nil
	}

	if bareObj == "" {
		bareObj, err = fsutil.FindCaseInsensitive(dir, "Objects.map")
		if err != nil {
			return "", "", false, err
		}
	}
	if bareIdx == "" {
		bareIdx, err = fsutil.FindCaseInsensitive(dir, "Index.map")
		if err != nil {
			return "", "", false, err
		}
	}
	return bareObj, bareIdx, false, nil
}

// Close releases all four underlying file handles and purges the page
// cache.
func (r *Repository) Close() error {
	var firstErr error
	if err := r.tree.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.data.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.indexMapping.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.objectsMapping.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.cache.Purge()
	return firstErr
}

// GetKeys returns every key string in the index B-tree, document order
// within a page then depth-first into children in array order.
func (r *Repository) GetKeys() (*KeyIterator, error) {
	keys, err := r.tree.Keys()
	if err != nil {
		return nil, err
	}
	return &KeyIterator{keys: keys}, nil
}

// GetObjectRecordByKey parses key's locator and reassembles the object
// record it names, or returns (nil, nil) if the key does not resolve to
// a record.
func (r *Repository) GetObjectRecordByKey(key string) (*objects.Record, error) {
	return r.data.GetObjectRecordByKey(key)
}

// KeyIterator is a finite, non-restartable pull sequence over the keys
// of one GetKeys() call: callers wishing to stop mid-enumeration simply
// stop calling Next.
type KeyIterator struct {
	keys []string
	pos  int
}

// Next returns the next key and ok=true, or ok=false once exhausted.
func (it *KeyIterator) Next() (string, bool) {
	if it == nil || it.pos >= len(it.keys) {
		return "", false
	}
	k := it.keys[it.pos]
	it.pos++
	return k, true
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
