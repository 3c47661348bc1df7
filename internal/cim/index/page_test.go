package index

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
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

// buildPage assembles one index page. keys is a list of segment-index
// lists (into values); children must have len(keys)+1 entries.
func buildPage(t *testing.T, pageType PageType, mappedPageNumber, rootPageNumber uint32, children []uint32, keys [][]uint16, values []string) []byte {
	t.Helper()
	n := len(keys)
	require.Len(t, children, n+1)

	var buf bytes.Buffer
	buf.Write(u32le(uint32(pageType)))
	buf.Write(u32le(mappedPageNumber))
	buf.Write(u32le(0)) // unknown1
	buf.Write(u32le(rootPageNumber))
	buf.Write(u32le(uint32(n)))

	for i := 0; i < n; i++ {
		buf.Write(u32le(0)) // unknown array entry
	}

	for _, c := range children {
		buf.Write(u32le(c))
	}

	// Build the key blob first so we know each key's word offset.
	var keyBlob bytes.Buffer
	keyOffsetsWords := make([]uint16, n)
	for i, segs := range keys {
		keyOffsetsWords[i] = uint16(keyBlob.Len() / 2)
		keyBlob.Write(u16le(uint16(len(segs))))
		for _, s := range segs {
			keyBlob.Write(u16le(s))
		}
	}
	for _, off := range keyOffsetsWords {
		buf.Write(u16le(off))
	}

	blobWords := keyBlob.Len() / 2
	require.Equal(t, 0, keyBlob.Len()%2)
	buf.Write(u16le(uint16(blobWords)))
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
	if len(out) < PageSize {
		out = append(out, make([]byte, PageSize-len(out))...)
	}
	return out
}

func TestDecodeAdministrativePageNoKeys(t *testing.T) {
	raw := buildPage(t, Administrative, 0, 3, []uint32{0}, nil, nil)
	page, err := Decode(raw, 0)
	require.NoError(t, err)
	require.Equal(t, Administrative, page.Type)
	require.Equal(t, uint32(3), page.RootPageNumber)
	require.Empty(t, page.Keys)
	require.Empty(t, page.SubPages)
}

func TestDecodeReconstructsKeys(t *testing.T) {
	values := []string{"NS", "root", "cimv2", "CD_abc.1.2.4096"}
	keys := [][]uint16{
		{0, 1, 2, 3},
	}
	raw := buildPage(t, Active, 1, 0, []uint32{0, 0}, keys, values)

	page, err := Decode(raw, 0)
	require.NoError(t, err)
	require.Equal(t, []string{`\NS\root\cimv2\CD_abc.1.2.4096`}, page.Keys)
}

func TestDecodeChildrenFilterSentinels(t *testing.T) {
	values := []string{"a"}
	keys := [][]uint16{{0}}
	raw := buildPage(t, Active, 0, 0, []uint32{0, Unallocated32}, keys, values)

	page, err := Decode(raw, 0)
	require.NoError(t, err)
	require.Empty(t, page.SubPages)
}

func TestDecodeKeepsResolvableChildren(t *testing.T) {
	values := []string{"a"}
	keys := [][]uint16{{0}}
	raw := buildPage(t, Active, 0, 0, []uint32{7, 9}, keys, values)

	page, err := Decode(raw, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{7, 9}, page.SubPages)
}

func TestDecodeShortPageIsFormatError(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, 0)
	require.Error(t, err)
}

func TestPageTypeString(t *testing.T) {
	require.Equal(t, "active", Active.String())
	require.Equal(t, "administrative", Administrative.String())
	require.Equal(t, "deleted", Deleted.String())
	require.Equal(t, "unknown", PageType(0x1234).String())
}

const Unallocated32 = 0xFFFFFFFF
