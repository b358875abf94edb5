package verify

import (
	"path"
	"regexp"
	"strings"
)

// Baselines are named `<component>-<theme>.png`; current captures get a
// trailing `-<timestamp>` in 20060102150405 form so repeated runs never
// overwrite each other. Timestamps sort lexicographically, which keeps
// "latest capture" a plain string comparison.
var currentNamePattern = regexp.MustCompile(`^(.+)-(\d{14})$`)

func isImageKey(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// stripKey reduces a storage key to its bare name: prefix and image
// extension removed.
func stripKey(key string, prefix string) string {
	name := strings.TrimPrefix(key, prefix)
	name = strings.TrimPrefix(name, "/")
	return strings.TrimSuffix(name, path.Ext(name))
}

// splitCurrentName separates `<component>-<theme>-<timestamp>` into the
// baseline name and the timestamp. Keys without a trailing timestamp
// are not current captures.
func splitCurrentName(name string) (string, string, bool) {
	m := currentNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
