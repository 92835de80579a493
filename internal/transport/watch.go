package transport

import (
	"io"
	"io/fs"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"

	"fleet-browser-inventory/internal/browsers"
)

// connectionLost reports whether err means the link to the host is gone,
// as opposed to a single file being missing or unreadable.
func connectionLost(err error) bool {
	var opErr *net.OpError
	switch {
	case err == nil:
		return false
	case errors.Is(err, sftp.ErrSSHFxConnectionLost),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &opErr):
		return true
	}
	return false
}

// watchedFS wraps the filesystem of one host and remembers the first
// connection level error. The normalizers absorb per-file errors, so the
// transport consults Err after collection to tell a lost host from a
// complete one. Once the connection is lost every further call fails fast.
type watchedFS struct {
	fsys fs.FS

	mu  sync.Mutex
	err error
}

func watchFS(fsys fs.FS) *watchedFS {
	return &watchedFS{fsys: fsys}
}

// Err returns the first connection level error seen, if any
func (w *watchedFS) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *watchedFS) check(err error) error {
	if !connectionLost(err) {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
	return err
}

func (w *watchedFS) Open(name string) (fs.File, error) {
	if err := w.Err(); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	file, err := w.fsys.Open(name)
	if err != nil {
		return nil, w.check(err)
	}
	return &watchedFile{File: file, w: w}, nil
}

func (w *watchedFS) Stat(name string) (fs.FileInfo, error) {
	if err := w.Err(); err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	info, err := fs.Stat(w.fsys, name)
	return info, w.check(err)
}

func (w *watchedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := w.Err(); err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	entries, err := fs.ReadDir(w.fsys, name)
	return entries, w.check(err)
}

type watchedFile struct {
	fs.File
	w *watchedFS
}

// Read passes io.EOF through untouched, it only marks the end of a file.
func (f *watchedFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	if err == io.EOF {
		return n, err
	}
	return n, f.w.check(err)
}

// collectRows runs the Host Collector over fsys and encodes the records.
// A connection lost on the way makes the whole host unreachable.
func collectRows(inventory *browsers.BrowserInventory, fsys fs.FS,
	host string, selector browsers.Selector) ([]string, error) {
	watched := watchFS(fsys)
	records, err := inventory.Collect(watched, host, selector)
	if lost := watched.Err(); lost != nil {
		return nil, Unreachable(host, lost)
	}
	if err != nil {
		return nil, err
	}
	return browsers.EncodeRows(records)
}
