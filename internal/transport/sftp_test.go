package transport

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-browser-inventory/internal/browsers"
)

// sftpPair connects a client to an in-process sftp server over pipes. The
// returned function drops the link; it also runs at cleanup.
func sftpPair(t *testing.T) (*sftp.Client, func()) {
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{toServerR, toClientW})
	require.NoError(t, err)
	go server.Serve()

	client, err := sftp.NewClientPipe(toClientR, toServerW)
	require.NoError(t, err)

	drop := func() {
		toClientW.Close()
		toServerR.Close()
	}
	t.Cleanup(func() {
		drop()
		client.Close()
	})
	return client, drop
}

func writeTree(t *testing.T, root string, files map[string]string) {
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

const chromeLinux = ".config/google-chrome/Default/Extensions"

func fleetTree(t *testing.T) string {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"alice/.mozilla/firefox/abc.default/extensions.json": `{"addons":[
			{"defaultLocale":{"name":"Pocket"}},
			{"defaultLocale":{"name":"CustomAddon"}}]}`,
		"alice/" + chromeLinux + "/cjpalhdlnbpafiamejdnhcphjbkeiagm/1.52.0_0/manifest.json": `{"name":"uBlock Origin","version":"1.52.0"}`,
		"bob/" + chromeLinux + "/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa/2.0_0/manifest.json":      `{`,
	})
	return root
}

func TestSFTPFSCollect(t *testing.T) {
	root := fleetTree(t)
	client, _ := sftpPair(t)

	records, err := newInventory().Collect(NewSFTPFS(client, root), "ws01", browsers.SelectAll)
	require.NoError(t, err)

	assert.Equal(t, []browsers.Record{
		{Host: "ws01", User: "alice", Browser: browsers.Firefox, Name: "CustomAddon", ID: browsers.NoExtensionID},
		{Host: "ws01", User: "alice", Browser: browsers.Chrome, Name: "uBlock Origin", ID: "cjpalhdlnbpafiamejdnhcphjbkeiagm"},
		{Host: "ws01", User: "bob", Browser: browsers.Chrome, Name: browsers.NameResolutionError, ID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}, records)
}

func TestSFTPFSOperations(t *testing.T) {
	root := fleetTree(t)
	client, _ := sftpPair(t)
	fsys := NewSFTPFS(client, root)

	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Name())
	assert.Equal(t, "bob", entries[1].Name())
	assert.True(t, entries[0].IsDir())

	info, err := fs.Stat(fsys, "alice/.mozilla/firefox/abc.default/extensions.json")
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	data, err := fs.ReadFile(fsys, "bob/"+chromeLinux+"/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa/2.0_0/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "{", string(data))

	dir, err := fsys.Open("alice")
	require.NoError(t, err)
	_, err = dir.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrInvalid)
	dirInfo, err := dir.Stat()
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())
	assert.NoError(t, dir.Close())

	_, err = fs.Stat(fsys, "carol")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = fsys.Open("../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestSFTPDroppedLinkIsUnreachable(t *testing.T) {
	root := fleetTree(t)
	client, drop := sftpPair(t)
	drop()

	local := NewLocal(newInventory(), func(host string) (fs.FS, error) {
		return NewSFTPFS(client, root), nil
	})
	rows, err := local.Execute(context.Background(), "ws01", browsers.SelectAll)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Empty(t, rows)
}

// lostFS lists the users root, then loses its connection for every
// other path.
type lostFS struct {
	users fstest.MapFS
}

func (l lostFS) Open(name string) (fs.File, error) {
	if name == "." {
		return l.users.Open(name)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: sftp.ErrSSHFxConnectionLost}
}

func TestConnectionLostMidCollectionIsUnreachable(t *testing.T) {
	fsys := lostFS{users: fstest.MapFS{
		"alice/Desktop/notes.txt": &fstest.MapFile{Data: []byte("x")},
	}}
	local := NewLocal(newInventory(), func(host string) (fs.FS, error) {
		return fsys, nil
	})

	rows, err := local.Execute(context.Background(), "ws01", browsers.SelectAll)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, sftp.ErrSSHFxConnectionLost)
	assert.Empty(t, rows)
}

func TestWatchedFSIgnoresFileErrors(t *testing.T) {
	watched := watchFS(fstest.MapFS{
		"alice/notes.txt": &fstest.MapFile{Data: []byte("hello")},
	})

	_, err := fs.Stat(watched, "alice/missing.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	data, err := fs.ReadFile(watched, "alice/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.NoError(t, watched.Err())
}

func TestConnectionLost(t *testing.T) {
	assert.True(t, connectionLost(&fs.PathError{Op: "stat", Path: "x", Err: sftp.ErrSSHFxConnectionLost}))
	assert.True(t, connectionLost(io.ErrClosedPipe))
	assert.False(t, connectionLost(fs.ErrNotExist))
	assert.False(t, connectionLost(fs.ErrPermission))
	assert.False(t, connectionLost(nil))
}
