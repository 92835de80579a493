package browsers

import (
	"encoding/json"
	"io/fs"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	chromeManifestFile = "manifest.json"
	msgPlaceholder     = "__MSG_"
)

// ErrMalformedExtensionPath is returned for a manifest that does not sit at
// <Extensions>/<id>/<version>/manifest.json.
var ErrMalformedExtensionPath = errors.New("malformed extension path")

// getChromiumExtensions walks one user's default Chrome profile and reads
// every versioned extension manifest below it.
func (bi *BrowserInventory) getChromiumExtensions(fsys fs.FS, host, user string) []Record {
	extensionsPath := userPath(user, bi.opts.Layout.ChromeExtensions)
	log := bi.log.WithFields(logrus.Fields{"host": host, "user": user, "browser": Chrome})

	if _, err := fs.Stat(fsys, extensionsPath); err != nil {
		log.WithField("path", extensionsPath).Debug("No Chrome extensions directory")
		return nil
	}

	var allExtensions []Record
	_ = fs.WalkDir(fsys, extensionsPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithField("path", p).WithError(err).Debug("Skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			if p != extensionsPath && chromeDenied(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() != chromeManifestFile {
			return nil
		}

		extensionID, err := extensionIDFromPath(extensionsPath, p)
		if err != nil {
			log.WithField("path", p).Debug("Skipping manifest outside a versioned extension directory")
			return nil
		}

		name, ok := bi.parseChromeManifest(fsys, p, log)
		if !ok || chromeDenied(extensionID) {
			return nil
		}

		allExtensions = append(allExtensions, Record{
			Host:    host,
			User:    user,
			Browser: Chrome,
			Name:    name,
			ID:      extensionID,
		})
		return nil
	})

	return allExtensions
}

// extensionIDFromPath returns the identifier segment that sits between the
// Extensions root and the version directory holding the manifest.
func extensionIDFromPath(extensionsPath, manifestPath string) (string, error) {
	rel := strings.TrimPrefix(manifestPath, extensionsPath+"/")
	if rel == manifestPath {
		return "", errors.Wrapf(ErrMalformedExtensionPath, "%s is not below %s",
			manifestPath, extensionsPath)
	}

	segments := strings.Split(rel, "/")
	if len(segments) != 3 || segments[2] != chromeManifestFile {
		return "", errors.Wrapf(ErrMalformedExtensionPath, "%s", manifestPath)
	}

	extensionID, version := segments[0], segments[1]
	if extensionID == "" || version == "" {
		return "", errors.Wrapf(ErrMalformedExtensionPath, "%s", manifestPath)
	}
	return extensionID, nil
}

// parseChromeManifest returns the display name of the extension. A manifest
// that cannot be read or parsed yields the NAME_RESOLUTION_ERROR sentinel;
// ok is false when the extension should be skipped.
func (bi *BrowserInventory) parseChromeManifest(fsys fs.FS, manifestPath string, log logrus.FieldLogger) (string, bool) {
	var manifest struct {
		Name          string `json:"name"`
		Version       string `json:"version"`
		DefaultLocale string `json:"default_locale"`
	}

	data, err := fs.ReadFile(fsys, manifestPath)
	if err == nil {
		err = json.Unmarshal(data, &manifest)
	}
	if err == nil && manifest.Name == "" {
		err = errors.New("manifest has no name")
	}
	if err != nil {
		log.WithField("path", manifestPath).WithError(err).Warn("Unable to parse Chrome manifest")
		return NameResolutionError, true
	}

	if !strings.HasPrefix(manifest.Name, msgPlaceholder) {
		return manifest.Name, true
	}

	if !bi.opts.ResolveLocalizedNames {
		return "", false
	}

	resolvedName, ok := resolveMessage(fsys, path.Dir(manifestPath), manifest.Name, manifest.DefaultLocale)
	if !ok {
		log.WithFields(logrus.Fields{
			"path":    manifestPath,
			"message": manifest.Name,
		}).Debug("No localized name found")
		return "", false
	}
	return resolvedName, true
}
