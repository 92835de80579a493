package browsers

import (
	"encoding/json"
	"io/fs"

	"github.com/sirupsen/logrus"
)

const firefoxSettingsFile = "extensions.json"

// getFirefoxExtensions walks one user's Firefox profiles and reads every
// extensions.json found below them.
func (bi *BrowserInventory) getFirefoxExtensions(fsys fs.FS, host, user string) []Record {
	basePath := userPath(user, bi.opts.Layout.FirefoxProfiles)
	log := bi.log.WithFields(logrus.Fields{"host": host, "user": user, "browser": Firefox})

	if _, err := fs.Stat(fsys, basePath); err != nil {
		log.WithField("path", basePath).Debug("No Firefox profiles directory")
		return nil
	}

	var names []string
	_ = fs.WalkDir(fsys, basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithField("path", p).WithError(err).Debug("Skipping unreadable path")
			return nil
		}
		if d.IsDir() || d.Name() != firefoxSettingsFile {
			return nil
		}
		names = append(names, bi.parseFirefoxSettings(fsys, p, log)...)
		return nil
	})

	records := make([]Record, 0, len(names))
	for _, name := range names {
		records = append(records, Record{
			Host:    host,
			User:    user,
			Browser: Firefox,
			Name:    name,
			ID:      NoExtensionID,
		})
	}
	return records
}

// parseFirefoxSettings extracts add-on names from one extensions.json.
// Unreadable files yield nothing unless FirefoxParseSentinel is set.
func (bi *BrowserInventory) parseFirefoxSettings(fsys fs.FS, p string, log logrus.FieldLogger) []string {
	var extData struct {
		Addons []struct {
			DefaultLocale struct {
				Name string `json:"name"`
			} `json:"defaultLocale"`
		} `json:"addons"`
	}

	data, err := fs.ReadFile(fsys, p)
	if err == nil {
		err = json.Unmarshal(data, &extData)
	}
	if err != nil {
		log.WithField("path", p).WithError(err).Warn("Unable to parse Firefox extension settings")
		if bi.opts.FirefoxParseSentinel {
			return []string{NameResolutionError}
		}
		return nil
	}

	var extensions []string
	for _, addon := range extData.Addons {
		name := addon.DefaultLocale.Name
		if name == "" {
			log.WithField("path", p).Debug("Skipping add-on without a name")
			continue
		}
		if firefoxDenied(name) {
			continue
		}
		extensions = append(extensions, name)
	}
	return extensions
}
