package transport

import (
	"context"
	"io/fs"
	"os"

	"fleet-browser-inventory/internal/browsers"
)

// FSResolver returns the filesystem rooted at a host's users directory
type FSResolver func(host string) (fs.FS, error)

// DirFS resolves every host to the same local directory
func DirFS(root string) FSResolver {
	return func(host string) (fs.FS, error) {
		if _, err := os.Stat(root); err != nil {
			return nil, err
		}
		return os.DirFS(root), nil
	}
}

// Local runs the Host Collector in-process
type Local struct {
	inventory *browsers.BrowserInventory
	resolve   FSResolver
}

func NewLocal(inventory *browsers.BrowserInventory, resolve FSResolver) *Local {
	return &Local{inventory: inventory, resolve: resolve}
}

func (l *Local) Execute(ctx context.Context, host string, selector browsers.Selector) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, Unreachable(host, err)
	}

	fsys, err := l.resolve(host)
	if err != nil {
		return nil, Unreachable(host, err)
	}

	return collectRows(l.inventory, fsys, host, selector)
}
