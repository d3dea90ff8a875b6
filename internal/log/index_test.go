package log

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenIndex(dir, 0, 50)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Write(Entry{Offset: 0, Size: 10})
	require.NoError(t, err)
	_, err = idx.Write(Entry{Offset: 10, Size: 20})
	require.NoError(t, err)
	require.NoError(t, idx.Flush())

	raw, err := os.ReadFile(indexFileName(dir, 0))
	require.NoError(t, err)
	require.Equal(t,
		"00000000000000000010"+"00000000100000000020",
		string(raw[:40]),
	)
	require.Equal(t, "\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", string(raw[40:50]))

	e0, err := idx.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, Entry{Offset: 0, Size: 10}, e0)

	e1, err := idx.ReadAt(1)
	require.NoError(t, err)
	require.Equal(t, Entry{Offset: 10, Size: 20}, e1)
}

func TestIndex_FitBoundary(t *testing.T) {
	dir := t.TempDir()

	// a 25-byte index holds exactly one 20-byte entry, not zero.
	idx, err := OpenIndex(dir, 0, 25)
	require.NoError(t, err)
	defer idx.Close()

	require.True(t, idx.Fit(1))
	_, err = idx.Write(Entry{Offset: 0, Size: 1})
	require.NoError(t, err)

	require.False(t, idx.Fit(1))
	_, err = idx.Write(Entry{Offset: 1, Size: 1})
	require.Error(t, err)
	var coreErr *CoreError
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, KindNoSpaceLeft, coreErr.Kind)
}

func TestIndex_ReadPastLiveYieldsZero(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenIndex(dir, 0, 100)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Write(Entry{Offset: 0, Size: 4})
	require.NoError(t, err)

	e, err := idx.ReadAt(2)
	require.NoError(t, err)
	require.Equal(t, Entry{Offset: 0, Size: 0}, e)
}

func TestIndex_ReadAtOutOfRange(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenIndex(dir, 0, 40)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.ReadAt(2)
	require.Error(t, err)
	var coreErr *CoreError
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, KindInvalidIndex, coreErr.Kind)
}

func TestIndex_Tail(t *testing.T) {
	dir := t.TempDir()

	idx, err := OpenIndex(dir, 0, 1000)
	require.NoError(t, err)
	defer idx.Close()

	for i := 0; i < 5; i++ {
		_, err := idx.Write(Entry{Offset: uint64(i * 10), Size: 10})
		require.NoError(t, err)
	}

	raw, err := os.ReadFile(indexFileName(dir, 0))
	require.NoError(t, err)
	liveEnd := idx.Offset()
	for _, b := range raw[liveEnd:] {
		require.Equal(t, byte(0), b)
	}
}
