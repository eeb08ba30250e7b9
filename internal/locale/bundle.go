package locale

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"site-service/pkg/xerrors"
)

const (
	// Default is served when detection finds nothing usable.
	Default = "en"

	// CookieName carries an explicit locale choice made on the site.
	CookieName = "site_locale"
)

// Supported locale codes, default first. Order must match supportedTags
// in detect.go.
var Supported = []string{"en", "zh"}

func IsSupported(code string) bool {
	for _, s := range Supported {
		if s == code {
			return true
		}
	}
	return false
}

// Bundle holds the parsed message tree for one locale.
type Bundle struct {
	Locale   string
	Messages map[string]any
}

// Lookup resolves a dotted key ("contact.form.title") against the nested
// message tree. The second return is false when a segment is missing or the
// key addresses a non-string node.
func (b *Bundle) Lookup(key string) (string, bool) {
	var node any = b.Messages
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", false
		}
		node, ok = m[part]
		if !ok {
			return "", false
		}
	}
	s, ok := node.(string)
	return s, ok
}

// Loader reads message bundles from a directory of <locale>.json files.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func (l *Loader) Load(code string) (*Bundle, error) {
	if !IsSupported(code) {
		return nil, fmt.Errorf("locale %q: %w", code, xerrors.ErrUnsupportedLocale)
	}

	path := filepath.Join(l.dir, code+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locale file %s: %w", path, err)
	}

	var messages map[string]any
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("parse locale file %s: %w", path, err)
	}

	return &Bundle{Locale: code, Messages: messages}, nil
}
