// File: reactor/file.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// File endpoint: lazy open, sequential read/write and cached size.

package reactor

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/momentics/hioload-stream/api"
)

// File is a file endpoint. The OS handle is opened lazily by Load and
// shares one cursor for reads and writes.
type File struct {
	counters

	id   string
	path string
	mode api.Mode

	mu        sync.Mutex
	handle    *os.File
	size      uint64
	sizeKnown bool
}

var _ api.Endpoint = (*File)(nil)

// NewFile creates an unloaded file endpoint.
func NewFile(path string, mode api.Mode) *File {
	return &File{id: uuid.New().String(), path: path, mode: mode}
}

// ID returns the unique endpoint id.
func (f *File) ID() string { return f.id }

// Path returns the path given at creation.
func (f *File) Path() string { return f.path }

// Name returns the last element of the path.
func (f *File) Name() string { return filepath.Base(f.path) }

// Mode returns the open mode.
func (f *File) Mode() api.Mode { return f.mode }

// Loaded reports whether the OS handle is open.
func (f *File) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle != nil
}

// Load opens the handle. Calling it on a loaded file is a no-op.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handle != nil {
		return nil
	}
	flags := os.O_RDONLY
	switch f.mode {
	case api.ModeWrite:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case api.ModeAppend:
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	h, err := os.OpenFile(f.path, flags, 0o644)
	if err != nil {
		return fileError(err, "open %s", f.path)
	}
	info, err := h.Stat()
	if err != nil {
		_ = h.Close()
		return fileError(err, "stat %s", f.path)
	}
	advise(h, f.mode)
	f.handle = h
	f.size = uint64(info.Size())
	f.sizeKnown = true
	f.counters.reset()
	return nil
}

func fileError(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return api.Wrap(api.ErrCodePermission, err, format, args...)
	case errors.Is(err, fs.ErrNotExist):
		return api.Wrap(api.ErrCodeNotFound, err, format, args...)
	default:
		return api.Wrap(api.ErrCodeInternal, err, format, args...)
	}
}

func (f *File) current() *os.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle
}

// Read reads up to len(p) bytes at the cursor. It returns 0, io.EOF at end
// of file.
func (f *File) Read(p []byte) (int, error) {
	h := f.current()
	if h == nil {
		return 0, api.ErrClosed
	}
	n, err := h.Read(p)
	f.addReaden(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, api.Wrap(api.ErrCodeSystemIO, err, "read %s", f.path)
	}
	return n, nil
}

// Write writes all of p at the cursor.
func (f *File) Write(p []byte) error {
	h := f.current()
	if h == nil {
		return api.ErrClosed
	}
	n, err := h.Write(p)
	f.addWritten(n)
	if err != nil {
		return api.Wrap(api.ErrCodeSystemIO, err, "write %s", f.path)
	}
	return nil
}

// Size returns the file size. The cached value is used unless refresh is
// set or nothing is cached yet.
func (f *File) Size(refresh bool) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sizeKnown && !refresh {
		return f.size, nil
	}
	var (
		info os.FileInfo
		err  error
	)
	if f.handle != nil {
		info, err = f.handle.Stat()
	} else {
		info, err = os.Stat(f.path)
	}
	if err != nil {
		return 0, fileError(err, "stat %s", f.path)
	}
	f.size = uint64(info.Size())
	f.sizeKnown = true
	return f.size, nil
}

// Close releases the handle. Counters are kept until Reset.
func (f *File) Close() error {
	f.mu.Lock()
	h := f.handle
	f.handle = nil
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		return api.Wrap(api.ErrCodeSystemIO, err, "close %s", f.path)
	}
	return nil
}

// Reset closes the handle, zeroes the counters and drops the cached size.
func (f *File) Reset() {
	_ = f.Close()
	f.mu.Lock()
	f.sizeKnown = false
	f.size = 0
	f.mu.Unlock()
	f.counters.reset()
}

// Stats returns an accounting snapshot.
func (f *File) Stats() api.Stats {
	return api.Stats{
		ID:       f.id,
		Kind:     kindFile,
		Readen:   f.Readen(),
		Written:  f.Written(),
		Queueing: f.Queueing(),
		Open:     f.Loaded(),
	}
}

func (f *File) acct() *counters { return &f.counters }
func (f *File) kind() string    { return kindFile }
func (f *File) shutdown() error { return f.Close() }
