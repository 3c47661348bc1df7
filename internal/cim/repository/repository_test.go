package repository

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cimrepo/cimrepo/internal/cim/index"
	"github.com/cimrepo/cimrepo/internal/cim/objects"
)

func u16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func buildMappingBytes(mappings []uint32) []byte {
	var buf bytes.Buffer
	buf.Write(u32le(0x0000ABCD))
	buf.Write(u32le(1))
	buf.Write(u32le(uint32(len(mappings))))
	buf.Write(u32le(uint32(len(mappings))))
	for _, m := range mappings {
		buf.Write(u32le(m))
	}
	buf.Write(u32le(0))
	buf.Write(u32le(0x0000DCBA))
	return buf.Bytes()
}

func buildIndexPage(t *testing.T, pageType index.PageType, rootPageNumber uint32, children []uint32, keys [][]uint16, values []string) []byte {
	t.Helper()
	n := len(keys)
	require.Len(t, children, n+1)

	var buf bytes.Buffer
	buf.Write(u32le(uint32(pageType)))
	buf.Write(u32le(0))
	buf.Write(u32le(0))
	buf.Write(u32le(rootPageNumber))
	buf.Write(u32le(uint32(n)))
	for i := 0; i < n; i++ {
		buf.Write(u32le(0))
	}
	for _, c := range children {
		buf.Write(u32le(c))
	}

	var keyBlob bytes.Buffer
	keyOffsets := make([]uint16, n)
	for i, segs := range keys {
		keyOffsets[i] = uint16(keyBlob.Len() / 2)
		keyBlob.Write(u16le(uint16(len(segs))))
		for _, s := range segs {
			keyBlob.Write(u16le(s))
		}
	}
	for _, off := range keyOffsets {
		buf.Write(u16le(off))
	}
	buf.Write(u16le(uint16(keyBlob.Len() / 2)))
	buf.Write(keyBlob.Bytes())

	var valueBlob bytes.Buffer
	valueOffsets := make([]uint16, len(values))
	for i, v := range values {
		valueOffsets[i] = uint16(valueBlob.Len())
		valueBlob.WriteString(v)
		valueBlob.WriteByte(0)
	}
	buf.Write(u16le(uint16(len(valueOffsets))))
	for _, off := range valueOffsets {
		buf.Write(u16le(off))
	}
	buf.Write(u16le(uint16(valueBlob.Len())))
	buf.Write(valueBlob.Bytes())

	out := buf.Bytes()
	if len(out) < index.PageSize {
		out = append(out, make([]byte, index.PageSize-len(out))...)
	}
	return out
}

func buildObjectsPage(t *testing.T, descs []objects.Descriptor, tail []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, d := range descs {
		buf.Write(u32le(d.Identifier))
		buf.Write(u32le(d.DataOffset))
		buf.Write(u32le(d.DataSize))
		buf.Write(u32le(d.DataChecksum))
	}
	buf.Write(make([]byte, 16))
	buf.Write(tail)
	out := buf.Bytes()
	if len(out) < objects.PageSize {
		out = append(out, make([]byte, objects.PageSize-len(out))...)
	}
	return out
}

// setupRepository builds a minimal single-key, single-page repository on
// disk: one index administrative+root page carrying one leaf key whose
// locator names one object record, plus a matching objects data page.
func setupRepository(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	recordSize := uint32(objects.PageSize - 32)
	key := `\NS\root\CD_hash.0.1.` + itoa(recordSize)

	admin := buildIndexPage(t, index.Administrative, 1, []uint32{0}, nil, nil)
	root := buildIndexPage(t, index.Active, 0, []uint32{0, 0}, [][]uint16{{0}}, []string{key})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Index.btr"), append(admin, root...), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Index.map"), buildMappingBytes([]uint32{0, 1}), 0644))

	objPage := buildObjectsPage(t, []objects.Descriptor{
		{Identifier: 1, DataOffset: 32, DataSize: recordSize},
	}, bytes.Repeat([]byte{0x42}, int(recordSize)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Objects.data"), objPage, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Objects.map"), buildMappingBytes([]uint32{0}), 0644))

	return dir
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

func TestRepositoryOpenGetKeysAndRecord(t *testing.T) {
	dir := setupRepository(t)

	repo, err := Open(dir, Options{})
	require.NoError(t, err)
	defer repo.Close()

	it, err := repo.GetKeys()
	require.NoError(t, err)
	key, ok := it.Next()
	require.True(t, ok)
	require.Contains(t, key, `\NS\root\CD_hash.0.1.`)
	_, ok = it.Next()
	require.False(t, ok)

	record, err := repo.GetObjectRecordByKey(key)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "CD", record.DataType)
	require.Equal(t, int(objects.PageSize-32), len(record.Data))
}

// TestRepositoryOpenWithCombinedGenerationFile exercises the
// Mapping.ver/Mapping<N>.map discovery path, where a single file holds
// the objects mapping record immediately followed by the index mapping
// record. It guards against the index mapping accidentally being parsed
// a second time as the objects record.
func TestRepositoryOpenWithCombinedGenerationFile(t *testing.T) {
	dir := t.TempDir()

	recordSize := uint32(objects.PageSize - 32)
	key := `\NS\root\CD_hash.0.1.` + itoa(recordSize)

	admin := buildIndexPage(t, index.Administrative, 1, []uint32{0}, nil, nil)
	root := buildIndexPage(t, index.Active, 0, []uint32{0, 0}, [][]uint16{{0}}, []string{key})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Index.btr"), append(admin, root...), 0644))

	objPage := buildObjectsPage(t, []objects.Descriptor{
		{Identifier: 1, DataOffset: 32, DataSize: recordSize},
	}, bytes.Repeat([]byte{0x77}, int(recordSize)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Objects.data"), objPage, 0644))

	// A combined mapping file: objects mapping (logical page 0 -> physical
	// 0) followed immediately by the index mapping (logical pages 0,1 ->
	// physical 0,1), with no separator.
	objMappingBytes := buildMappingBytes([]uint32{0})
	idxMappingBytes := buildMappingBytes([]uint32{0, 1})
	combined := append(append([]byte{}, objMappingBytes...), idxMappingBytes...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Mapping1.map"), combined, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Mapping.ver"), u32le(1), 0644))

	repo, err := Open(dir, Options{PreferGenerationSelector: true})
	require.NoError(t, err)
	defer repo.Close()

	it, err := repo.GetKeys()
	require.NoError(t, err)
	gotKey, ok := it.Next()
	require.True(t, ok)
	require.Contains(t, gotKey, `\NS\root\CD_hash.0.1.`)

	record, err := repo.GetObjectRecordByKey(gotKey)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, int(recordSize), len(record.Data))
	for _, b := range record.Data {
		require.Equal(t, byte(0x77), b)
	}
}

func TestRepositoryOpenWithCache(t *testing.T) {
	dir := setupRepository(t)

	repo, err := Open(dir, Options{CacheSize: 16})
	require.NoError(t, err)
	defer repo.Close()

	it, err := repo.GetKeys()
	require.NoError(t, err)
	_, ok := it.Next()
	require.True(t, ok)
}

func TestRepositoryOpenMissingFilesErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, Options{})
	require.Error(t, err)
}

func TestKeyIteratorOnNilIsExhausted(t *testing.T) {
	var it *KeyIterator
	_, ok := it.Next()
	require.False(t, ok)
}
