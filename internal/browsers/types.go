package browsers

import (
	"strings"

	"github.com/pkg/errors"
)

// Browser names the browser family a record was collected from
type Browser string

const (
	Firefox Browser = "Firefox"
	Chrome  Browser = "Chrome"
)

// Selector picks which normalizers run on a host
type Selector string

const (
	SelectFirefox Selector = "Firefox"
	SelectChrome  Selector = "Chrome"
	SelectAll     Selector = "All"
)

// Sentinel values used in place of data that could not be read.
const (
	NameResolutionError = "NAME_RESOLUTION_ERROR"
	NoExtensionID       = "---"
)

// Columns is the fixed column order of the persisted inventory.
var Columns = []string{"computer", "user", "browser", "extension", "extstring"}

// Record is one extension found in one user's browser profile on one host
type Record struct {
	Host    string  `json:"computer"`
	User    string  `json:"user"`
	Browser Browser `json:"browser"`
	Name    string  `json:"extension"`
	ID      string  `json:"extstring"`
}

// Row returns the record fields in Columns order
func (r Record) Row() []string {
	return []string{r.Host, r.User, string(r.Browser), r.Name, r.ID}
}

// IsFraming reports whether the record is a header or type line that was
// reintroduced by a serialization round trip rather than real data.
func (r Record) IsFraming() bool {
	if strings.HasPrefix(r.Host, "#TYPE") {
		return true
	}
	for i, field := range r.Row() {
		if !strings.EqualFold(strings.TrimSpace(field), Columns[i]) {
			return false
		}
	}
	return true
}

// ParseSelector accepts Firefox, Chrome or All in any case. An empty
// string selects all browsers.
func ParseSelector(s string) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return SelectAll, nil
	case "firefox":
		return SelectFirefox, nil
	case "chrome":
		return SelectChrome, nil
	}
	return "", errors.Errorf("invalid browser %q, use Firefox, Chrome or All", s)
}

// Includes reports whether the selector asks for the given browser
func (s Selector) Includes(b Browser) bool {
	switch s {
	case SelectAll:
		return true
	case SelectFirefox:
		return b == Firefox
	case SelectChrome:
		return b == Chrome
	}
	return false
}

// Layout describes where a target OS keeps user directories and where each
// browser keeps its extension data below a single user directory.
type Layout struct {
	OS               string
	UsersRoot        string
	ExcludedUsers    []string
	FirefoxProfiles  []string
	ChromeExtensions []string
}

// Options tune the Host Collector
type Options struct {
	Layout Layout

	// FirefoxParseSentinel emits a NAME_RESOLUTION_ERROR row for an
	// unparsable extensions.json instead of dropping it.
	FirefoxParseSentinel bool

	// ResolveLocalizedNames looks up __MSG_ placeholders in the
	// extension's _locales instead of skipping the extension.
	ResolveLocalizedNames bool
}
