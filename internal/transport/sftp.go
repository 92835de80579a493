package transport

import (
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/sftp"

	"fleet-browser-inventory/internal/browsers"
)

// SFTP surveys a host without installing anything on it: the Host
// Collector runs locally and reads the remote users directory over sftp.
type SFTP struct {
	dialer    *Dialer
	inventory *browsers.BrowserInventory
	usersRoot string
}

func NewSFTP(dialer *Dialer, inventory *browsers.BrowserInventory, usersRoot string) *SFTP {
	return &SFTP{
		dialer:    dialer,
		inventory: inventory,
		usersRoot: SFTPPath(usersRoot),
	}
}

func (s *SFTP) Execute(ctx context.Context, host string, selector browsers.Selector) ([]string, error) {
	client, err := s.dialer.Dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go closeOnCancel(ctx, client, done)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, Unreachable(host, err)
	}
	defer sftpClient.Close()

	return collectRows(s.inventory, NewSFTPFS(sftpClient, s.usersRoot), host, selector)
}

// SFTPPath converts an OS path to the form sftp servers expect, so
// C:\Users becomes /C:/Users.
func SFTPPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if len(p) >= 2 && p[1] == ':' {
		p = "/" + p
	}
	return p
}

// sftpFS exposes a directory of an sftp server as an fs.FS
type sftpFS struct {
	client *sftp.Client
	root   string
}

func NewSFTPFS(client *sftp.Client, root string) fs.FS {
	return &sftpFS{client: client, root: root}
}

func (f *sftpFS) fullPath(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return path.Join(f.root, name), nil
}

func (f *sftpFS) Open(name string) (fs.File, error) {
	full, err := f.fullPath("open", name)
	if err != nil {
		return nil, err
	}

	info, err := f.client.Stat(full)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if info.IsDir() {
		return &sftpDir{info: info}, nil
	}

	file, err := f.client.Open(full)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return file, nil
}

func (f *sftpFS) Stat(name string) (fs.FileInfo, error) {
	full, err := f.fullPath("stat", name)
	if err != nil {
		return nil, err
	}
	info, err := f.client.Stat(full)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

func (f *sftpFS) ReadDir(name string) ([]fs.DirEntry, error) {
	full, err := f.fullPath("readdir", name)
	if err != nil {
		return nil, err
	}
	infos, err := f.client.ReadDir(full)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	entries := make([]fs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

// sftpDir is returned by Open for directories. Listing goes through
// sftpFS.ReadDir.
type sftpDir struct {
	info os.FileInfo
}

func (d *sftpDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *sftpDir) Close() error               { return nil }

func (d *sftpDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fs.ErrInvalid}
}
