package log

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tysonmote/gommap"
)

// Log is a fixed-capacity, memory-mapped file holding raw record
// payloads concatenated in write order. The live portion is
// [0, writeCursor); the tail is zero-filled, reserved space left by
// truncating the file to maxSize before mapping it.
//
// The write cursor is process-local: the file carries no header that
// would let a reopen recover it, so Open always starts a fresh Log at
// cursor 0 unless the caller restores it explicitly (see
// CommitLog's Config.Recover).
type Log struct {
	file        *os.File
	mmap        gommap.MMap
	maxSize     uint64
	baseOffset  uint64
	writeCursor uint64
}

func logFileName(dir string, baseOffset uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.log", baseOffset))
}

// OpenLog opens or creates the Log file for baseOffset under dir,
// truncates it to exactly maxSize bytes, and maps it read-write. The
// write cursor always starts at 0.
func OpenLog(dir string, baseOffset uint64, maxSize uint64) (*Log, error) {
	const op = "Log.Open"

	f, err := os.OpenFile(logFileName(dir, baseOffset), os.O_RDWR|os.O_CREATE, 0644)
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

	return &Log{
		file:       f,
		mmap:       m,
		maxSize:    maxSize,
		baseOffset: baseOffset,
	}, nil
}

// Fit reports whether n more bytes fit before maxSize.
func (l *Log) Fit(n uint64) bool {
	return l.maxSize-l.writeCursor >= n
}

// Write copies buf into the mapping at the current cursor and
// advances it. Requires Fit(len(buf)); otherwise returns
// ErrNoSpaceLeft and leaves the Log unchanged.
func (l *Log) Write(buf []byte) (int, error) {
	const op = "Log.Write"
	n := uint64(len(buf))
	if !l.Fit(n) {
		return 0, newErr(op, KindNoSpaceLeft, nil)
	}
	copy(l.mmap[l.writeCursor:l.writeCursor+n], buf)
	l.writeCursor += n
	return len(buf), nil
}

// ReadAt returns a borrowed view of size bytes starting at offset.
// The view is only valid for as long as the Log's mapping is alive;
// callers must not retain it past a Close.
func (l *Log) ReadAt(offset, size uint64) ([]byte, error) {
	const op = "Log.ReadAt"
	if offset+size > l.maxSize {
		return nil, newErr(op, KindInvalidIndex, nil)
	}
	return l.mmap[offset : offset+size], nil
}

// Flush requests an asynchronous msync of dirty pages. It does not
// block for disk completion.
func (l *Log) Flush() error {
	const op = "Log.Flush"
	if err := l.mmap.Sync(gommap.MS_ASYNC); err != nil {
		return newErr(op, KindIo, err)
	}
	return nil
}

// Offset returns the current write cursor.
func (l *Log) Offset() uint64 { return l.writeCursor }

// setCursor restores the write cursor. Used only by the recovery path
// (SPEC_FULL.md §4.6); the mapping itself is untouched.
func (l *Log) setCursor(c uint64) { l.writeCursor = c }

// Close unmaps and closes the underlying file. The Log must not be
// used afterward.
func (l *Log) Close() error {
	const op = "Log.Close"
	if err := l.mmap.UnsafeUnmap(); err != nil {
		return newErr(op, KindIo, err)
	}
	if err := l.file.Close(); err != nil {
		return newErr(op, KindIo, err)
	}
	return nil
}

// Name returns the backing file's path.
func (l *Log) Name() string { return l.file.Name() }
