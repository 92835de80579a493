package transport

import (
	"context"
	"io"
	"io/fs"
	"net"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-browser-inventory/internal/browsers"
)

func newInventory() *browsers.BrowserInventory {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return browsers.NewBrowserInventory(browsers.Options{
		Layout: browsers.Layouts["linux"],
	}, logger)
}

func TestLocalExecute(t *testing.T) {
	fleet := map[string]fs.FS{
		"ws01": fstest.MapFS{
			"alice/.mozilla/firefox/abc.default/extensions.json": &fstest.MapFile{
				Data: []byte(`{"addons":[{"defaultLocale":{"name":"CustomAddon"}}]}`),
			},
		},
	}
	local := NewLocal(newInventory(), func(host string) (fs.FS, error) {
		fsys, ok := fleet[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		return fsys, nil
	})

	rows, err := local.Execute(context.Background(), "ws01", browsers.SelectAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws01,alice,Firefox,CustomAddon,---"}, rows)

	_, err = local.Execute(context.Background(), "ws02", browsers.SelectAll)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestDirFSMissingRoot(t *testing.T) {
	_, err := DirFS("/does/not/exist")("ws01")
	assert.Error(t, err)

	fsys, err := DirFS(t.TempDir())("ws01")
	require.NoError(t, err)
	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnreachableWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unreachable("ws01", cause)

	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ws01")
	assert.NoError(t, Unreachable("ws01", nil))

	assert.False(t, errors.Is(errors.New("exit status 1"), ErrUnreachable))
}

func TestSFTPPath(t *testing.T) {
	assert.Equal(t, "/C:/Users", SFTPPath(`C:\Users`))
	assert.Equal(t, "/home", SFTPPath("/home"))
}

func TestNewDialerValidation(t *testing.T) {
	_, err := NewDialer(SSHConfig{})
	assert.Error(t, err)

	_, err = NewDialer(SSHConfig{User: "audit"})
	assert.Error(t, err)

	_, err = NewDialer(SSHConfig{User: "audit", KeyFile: "/does/not/exist"})
	assert.Error(t, err)

	dialer, err := NewDialer(SSHConfig{User: "audit", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 22, dialer.port)
}

func TestDialClosedPortIsUnreachable(t *testing.T) {
	// Grab a free port and close it again so nothing listens there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	dialer, err := NewDialer(SSHConfig{
		User: "audit", Password: "secret", Timeout: 2 * time.Second,
	})
	require.NoError(t, err)

	_, err = dialer.Dial(context.Background(), addr)
	assert.ErrorIs(t, err, ErrUnreachable)

	for _, tr := range []Transport{
		NewSFTP(dialer, newInventory(), "/home"),
		NewSSHExec(dialer, ""),
	} {
		rows, err := tr.Execute(context.Background(), addr, browsers.SelectAll)
		assert.ErrorIs(t, err, ErrUnreachable)
		assert.Empty(t, rows)
	}
}

func TestSSHExecRejectsUnsafeHost(t *testing.T) {
	dialer, err := NewDialer(SSHConfig{User: "audit", Password: "secret"})
	require.NoError(t, err)

	_, err = NewSSHExec(dialer, "").Execute(context.Background(),
		"ws01; rm -rf /", browsers.SelectAll)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestSplitRows(t *testing.T) {
	assert.Equal(t, []string{"a,b", "c,d"}, splitRows("a,b\r\n\nc,d\n"))
	assert.Empty(t, splitRows(""))
}
