package locale

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// Detection sources reported alongside the negotiated locale.
const (
	SourceCookie  = "cookie"
	SourceHeader  = "accept-language"
	SourceDefault = "default"
)

// Order must match Supported in bundle.go.
var supportedTags = []language.Tag{
	language.Make("en"),
	language.Make("zh"),
}

var matcher = language.NewMatcher(supportedTags)

// Detect picks the locale for a request. An explicit cookie wins, then
// Accept-Language negotiation, then the default.
func Detect(r *http.Request) (code, source string) {
	if c, err := r.Cookie(CookieName); err == nil {
		if v := normalizeCode(c.Value); IsSupported(v) {
			return v, SourceCookie
		}
	}

	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			if _, idx, conf := matcher.Match(tags...); conf > language.No {
				return Supported[idx], SourceHeader
			}
		}
	}

	return Default, SourceDefault
}

// normalizeCode lowercases and strips region subtags ("zh-CN" -> "zh").
func normalizeCode(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if i := strings.IndexAny(v, "-_"); i >= 0 {
		v = v[:i]
	}
	return v
}
