package log

import (
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// P1: round-trip — every write reads back exactly what was written.
func TestProperty_RoundTrip(t *testing.T) {
	cl, err := Open(t.TempDir(), cfg(64, 10000))
	require.NoError(t, err)
	defer cl.Close()

	r := rand.New(rand.NewSource(1))
	type addr struct {
		seg, rec uint64
		payload  []byte
	}
	var written []addr

	for i := 0; i < 200; i++ {
		n := r.Intn(32)
		buf := make([]byte, n)
		r.Read(buf)

		_, err := cl.Write(buf)
		require.NoError(t, err)

		seg := cl.activeIndex
		rec := cl.segments[seg].RecordCount() - 1
		written = append(written, addr{seg: uint64(seg), rec: rec, payload: buf})
	}

	for _, w := range written {
		got, err := cl.ReadAt(w.seg, w.rec)
		require.NoError(t, err)
		require.Equal(t, w.payload, got)
	}
}

// P2/S6: a running checksum over writes equals a running checksum
// over a sequential scan of the same records.
func TestProperty_ChecksumEndToEnd(t *testing.T) {
	cl, err := Open(t.TempDir(), cfg(64, 10000))
	require.NoError(t, err)
	defer cl.Close()

	r := rand.New(rand.NewSource(42))
	writeChecksum := crc32.NewIEEE()

	for i := 0; i < 150; i++ {
		n := r.Intn(30)
		buf := make([]byte, n)
		r.Read(buf)

		_, err := cl.Write(buf)
		require.NoError(t, err)
		writeChecksum.Write(buf)
	}

	readChecksum := crc32.NewIEEE()
	err = cl.Scan(func(_ Address, buf []byte) error {
		readChecksum.Write(buf)
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, writeChecksum.Sum32(), readChecksum.Sum32())
}

// P3: rotation boundary — a write that doesn't fit rotates exactly
// once and lands at (new_segment, 0).
func TestProperty_RotationBoundary(t *testing.T) {
	cl, err := Open(t.TempDir(), cfg(40, 10000))
	require.NoError(t, err)
	defer cl.Close()

	_, err = cl.Write([]byte("0123456789012345678901234567890")) // 31 bytes, fits in 40
	require.NoError(t, err)

	before := cl.SegmentCount()
	_, err = cl.Write([]byte("needs-more-room-than-is-left")) // won't fit in remaining 9 bytes
	require.NoError(t, err)

	require.Equal(t, before+1, cl.SegmentCount())
	v, err := cl.ReadAt(uint64(cl.SegmentCount()-1), 0)
	require.NoError(t, err)
	require.Equal(t, "needs-more-room-than-is-left", string(v))
}

// P4: index fixed width — the live prefix is a whole number of
// entryWidth-byte blocks. The zero tail is checked by TestIndex_Tail.
func TestProperty_IndexFixedWidth(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(dir, 0, 1000)
	require.NoError(t, err)
	defer idx.Close()

	for i := uint64(0); i < 7; i++ {
		_, err := idx.Write(Entry{Offset: i * 3, Size: 3})
		require.NoError(t, err)
	}

	require.Equal(t, uint64(7*entryWidth), idx.Offset())
	require.Equal(t, uint64(0), idx.Offset()%entryWidth)
}

// P5: fit boundary — a Log of capacity 100 with cursor 17 fits 83,
// not 84.
func TestProperty_FitBoundary(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLog(dir, 0, 100)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Write(make([]byte, 17))
	require.NoError(t, err)

	require.True(t, l.Fit(83))
	require.False(t, l.Fit(84))
}

// P6: reject oversize — a too-large write fails without perturbing
// state.
func TestProperty_RejectOversizeLeavesStateUnchanged(t *testing.T) {
	cl, err := Open(t.TempDir(), cfg(10, 10000))
	require.NoError(t, err)
	defer cl.Close()

	segCountBefore := cl.SegmentCount()
	cursorBefore := cl.segments[0].log.Offset()

	_, err = cl.Write([]byte("way-too-big-for-ten-bytes"))
	require.Error(t, err)

	require.Equal(t, segCountBefore, cl.SegmentCount())
	require.Equal(t, cursorBefore, cl.segments[0].log.Offset())
}

// P7: ordering — sequential reads via Scan return writes in the
// order they were made, across rotations.
func TestProperty_OrderingAcrossRotations(t *testing.T) {
	cl, err := Open(t.TempDir(), cfg(20, 10000))
	require.NoError(t, err)
	defer cl.Close()

	var writes []string
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		n := r.Intn(15)
		buf := make([]byte, n)
		r.Read(buf)
		_, err := cl.Write(buf)
		require.NoError(t, err)
		writes = append(writes, string(buf))
	}

	var seen []string
	err = cl.Scan(func(_ Address, buf []byte) error {
		seen = append(seen, string(buf))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, writes, seen)
}
