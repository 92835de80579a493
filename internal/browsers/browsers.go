package browsers

import (
	"io/fs"
	"path"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Layouts holds the known per-OS directory layouts
var Layouts = map[string]Layout{
	"windows": {
		OS:            "windows",
		UsersRoot:     `C:\Users`,
		ExcludedUsers: []string{"Public", "Default"},
		FirefoxProfiles: []string{
			"AppData", "Roaming", "Mozilla", "Firefox", "Profiles",
		},
		ChromeExtensions: []string{
			"AppData", "Local", "Google", "Chrome", "User Data", "Default", "Extensions",
		},
	},
	"darwin": {
		OS:            "darwin",
		UsersRoot:     "/Users",
		ExcludedUsers: []string{"Shared", "Guest"},
		FirefoxProfiles: []string{
			"Library", "Application Support", "Firefox", "Profiles",
		},
		ChromeExtensions: []string{
			"Library", "Application Support", "Google", "Chrome", "Default", "Extensions",
		},
	},
	"linux": {
		OS:            "linux",
		UsersRoot:     "/home",
		ExcludedUsers: []string{"lost+found"},
		FirefoxProfiles: []string{
			".mozilla", "firefox",
		},
		ChromeExtensions: []string{
			".config", "google-chrome", "Default", "Extensions",
		},
	},
}

// LayoutFor returns the layout for goos. An empty goos means the OS this
// binary runs on.
func LayoutFor(goos string) (Layout, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	layout, ok := Layouts[strings.ToLower(goos)]
	if !ok {
		return Layout{}, errors.Errorf("unsupported target OS %q", goos)
	}
	return layout, nil
}

// BrowserInventory is the Host Collector: it runs the browser normalizers
// over one host's user directories.
type BrowserInventory struct {
	opts Options
	log  logrus.FieldLogger
}

// NewBrowserInventory creates a new inventory instance
func NewBrowserInventory(opts Options, logger logrus.FieldLogger) *BrowserInventory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Layout.OS == "" {
		opts.Layout, _ = LayoutFor("")
	}
	return &BrowserInventory{opts: opts, log: logger}
}

// Collect runs the selected normalizers against fsys, which must be rooted
// at the host's users directory. Normalizers run one after the other,
// Firefox first.
func (bi *BrowserInventory) Collect(fsys fs.FS, host string, selector Selector) ([]Record, error) {
	if host == "" {
		return nil, errors.New("collect: empty host name")
	}

	users, err := bi.users(fsys)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, user := range users {
		if selector.Includes(Firefox) {
			records = append(records, bi.getFirefoxExtensions(fsys, host, user)...)
		}
	}
	for _, user := range users {
		if selector.Includes(Chrome) {
			records = append(records, bi.getChromiumExtensions(fsys, host, user)...)
		}
	}

	bi.log.WithFields(logrus.Fields{
		"host":     host,
		"users":    len(users),
		"selector": selector,
		"records":  len(records),
	}).Debug("Collected browser extensions")

	return records, nil
}

// users lists user directories below the users root, skipping the
// well-known non-user folders.
func (bi *BrowserInventory) users(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read users directory")
	}

	var users []string
	for _, entry := range entries {
		if !entry.IsDir() || bi.excluded(entry.Name()) {
			continue
		}
		users = append(users, entry.Name())
	}
	sort.Strings(users)
	return users, nil
}

func (bi *BrowserInventory) excluded(user string) bool {
	for _, name := range bi.opts.Layout.ExcludedUsers {
		if strings.EqualFold(name, user) {
			return true
		}
	}
	return false
}

func userPath(user string, components []string) string {
	return path.Join(append([]string{user}, components...)...)
}
