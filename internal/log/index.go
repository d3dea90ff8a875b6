package log

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tysonmote/gommap"
)

// fieldWidth is the width, in ASCII decimal digits, of each of an
// Entry's two fields. entryWidth is the total fixed width of one
// on-disk Index entry: two fieldWidth-digit fields concatenated with
// no separator.
const (
	fieldWidth = 10
	entryWidth = 2 * fieldWidth
	// maxFieldValue is the largest value representable in fieldWidth
	// decimal digits: 9_999_999_999.
	maxFieldValue = 9_999_999_999
)

// zeroEntry is the content of an Index slot that was never written.
var zeroEntry [entryWidth]byte

// Entry is one Index entry: the byte offset of a record inside its
// Log, and the record's byte length.
type Entry struct {
	Offset uint64
	Size   uint64
}

func (e Entry) marshal() []byte {
	return []byte(fmt.Sprintf("%0*d%0*d", fieldWidth, e.Offset, fieldWidth, e.Size))
}

// Index is a fixed-capacity, memory-mapped file of fixed-width,
// ASCII-decimal (offset, size) entries. Entry i locates record i
// inside the companion Log. The encoding is deliberately
// human-inspectable (a hex/text dump shows the entries directly) at
// the cost of range (9_999_999_999 max per field) and density
// relative to a binary encoding.
type Index struct {
	file        *os.File
	mmap        gommap.MMap
	maxSize     uint64
	baseOffset  uint64
	writeCursor uint64
}

func indexFileName(dir string, baseOffset uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.idx", baseOffset))
}

// OpenIndex opens or creates the Index file for baseOffset under dir,
// truncates it to exactly maxSize bytes, and maps it read-write. The
// write cursor always starts at 0 (see the Log type for why).
func OpenIndex(dir string, baseOffset uint64, maxSize uint64) (*Index, error) {
	const op = "Index.Open"

	f, err := os.OpenFile(indexFileName(dir, baseOffset), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, newErr(op, KindIo, err)
	}

	if err := f.Truncate(int64(maxSize)); err != nil {
		f.Close()
		return nil, newErr(op, KindIo, err)
	}

	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, newErr(op, KindIo, err)
	}

	return &Index{
		file:       f,
		mmap:       m,
		maxSize:    maxSize,
		baseOffset: baseOffset,
	}, nil
}

// Fit reports whether n more entries fit before maxSize. The
// boundary is inclusive (>=, not >): a 25-byte Index holds exactly
// one 20-byte entry, never zero.
func (idx *Index) Fit(n uint64) bool {
	return idx.maxSize-idx.writeCursor >= entryWidth*n
}

// Write formats entry as entryWidth ASCII bytes and writes it at the
// current cursor. Requires Fit(1); otherwise returns ErrNoSpaceLeft
// and the Index is unchanged.
func (idx *Index) Write(entry Entry) (int, error) {
	const op = "Index.Write"
	if !idx.Fit(1) {
		return 0, newErr(op, KindNoSpaceLeft, nil)
	}
	if entry.Offset > maxFieldValue || entry.Size > maxFieldValue {
		return 0, newErr(op, KindInvalidIndex, fmt.Errorf("entry %+v exceeds %d-digit field range", entry, fieldWidth))
	}
	copy(idx.mmap[idx.writeCursor:idx.writeCursor+entryWidth], entry.marshal())
	idx.writeCursor += entryWidth
	return entryWidth, nil
}

// ReadAt parses the k-th entry. Requires (k+1)*entryWidth <= the
// mapping's full capacity; otherwise returns ErrInvalidIndex. Reading
// past the live prefix into the zero-padded tail yields a valid parse
// of (0, 0) — callers must bound k by the number of records actually
// appended.
func (idx *Index) ReadAt(k uint64) (Entry, error) {
	const op = "Index.ReadAt"
	pos := k * entryWidth
	if pos+entryWidth > uint64(len(idx.mmap)) {
		return Entry{}, newErr(op, KindInvalidIndex, nil)
	}

	buf := idx.mmap[pos : pos+entryWidth]
	if bytes.Equal(buf, zeroEntry[:]) {
		// Untouched, zero-filled slot.
		return Entry{}, nil
	}
	offset, err := strconv.ParseUint(string(buf[:fieldWidth]), 10, 64)
	if err != nil {
		return Entry{}, newErr(op, KindParseError, err)
	}
	size, err := strconv.ParseUint(string(buf[fieldWidth:entryWidth]), 10, 64)
	if err != nil {
		return Entry{}, newErr(op, KindParseError, err)
	}
	return Entry{Offset: offset, Size: size}, nil
}

// Flush requests an asynchronous msync of dirty pages.
func (idx *Index) Flush() error {
	const op = "Index.Flush"
	if err := idx.mmap.Sync(gommap.MS_ASYNC); err != nil {
		return newErr(op, KindIo, err)
	}
	return nil
}

// Offset returns the current write cursor, in bytes.
func (idx *Index) Offset() uint64 { return idx.writeCursor }

// EntryCount returns the number of live entries (writeCursor/entryWidth).
func (idx *Index) EntryCount() uint64 { return idx.writeCursor / entryWidth }

// setCursor restores the write cursor. Used only by the recovery path.
func (idx *Index) setCursor(c uint64) { idx.writeCursor = c }

// Close unmaps and closes the underlying file.
func (idx *Index) Close() error {
	const op = "Index.Close"
	if err := idx.mmap.UnsafeUnmap(); err != nil {
		return newErr(op, KindIo, err)
	}
	if err := idx.file.Close(); err != nil {
		return newErr(op, KindIo, err)
	}
	return nil
}

// Name returns the backing file's path.
func (idx *Index) Name() string { return idx.file.Name() }
