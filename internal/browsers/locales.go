package browsers

import (
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// resolveMessage handles __MSG_ placeholders in Chromium manifest names.
// Locales are tried in order: default_locale, en, en_US, then the rest
// sorted by name. Message keys are matched case-insensitively, as Chrome
// does.
func resolveMessage(fsys fs.FS, extPath, msg, defaultLocale string) (string, bool) {
	msgKey := strings.TrimPrefix(msg, msgPlaceholder)
	msgKey = strings.TrimSuffix(msgKey, "__")
	if msgKey == "" {
		return "", false
	}

	localesPath := path.Join(extPath, "_locales")
	localeDirs, err := fs.ReadDir(fsys, localesPath)
	if err != nil {
		return "", false
	}

	for _, locale := range localeOrder(localeDirs, defaultLocale) {
		messagesPath := path.Join(localesPath, locale, "messages.json")
		data, err := fs.ReadFile(fsys, messagesPath)
		if err != nil {
			continue
		}

		var messages map[string]struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &messages); err != nil {
			continue
		}

		if val, ok := messages[msgKey]; ok && val.Message != "" {
			return val.Message, true
		}
		for key, val := range messages {
			if strings.EqualFold(key, msgKey) && val.Message != "" {
				return val.Message, true
			}
		}
	}
	return "", false
}

func localeOrder(localeDirs []fs.DirEntry, defaultLocale string) []string {
	var order []string
	seen := make(map[string]bool)
	add := func(locale string) {
		if locale != "" && !seen[locale] {
			seen[locale] = true
			order = append(order, locale)
		}
	}

	add(defaultLocale)
	add("en")
	add("en_US")

	var rest []string
	for _, dir := range localeDirs {
		if dir.IsDir() {
			rest = append(rest, dir.Name())
		}
	}
	sort.Strings(rest)
	for _, locale := range rest {
		add(locale)
	}
	return order
}
