package extract

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// keyPattern is one of the ways the embed page hides its client key. The
// page rotates between them per request.
type keyPattern struct {
	match *regexp.Regexp
	value func(match string) string
}

var (
	quotedValue = regexp.MustCompile(`"[a-zA-Z0-9]+"`)
	commentKey  = regexp.MustCompile(`:([a-zA-Z0-9]+)\s`)
	lkDbParts   = []*regexp.Regexp{
		regexp.MustCompile(`x:\s+"([a-zA-Z0-9]+)"`),
		regexp.MustCompile(`y:\s+"([a-zA-Z0-9]+)"`),
		regexp.MustCompile(`z:\s+"([a-zA-Z0-9]+)"`),
	}
)

func quoted(match string) string {
	return strings.Trim(quotedValue.FindString(match), `"`)
}

// keyPatterns are tried in order; the first match wins.
var keyPatterns = []keyPattern{
	// <meta name="_gg_fb" content="KEY">
	{regexp.MustCompile(`<meta name="_gg_fb" content="[a-zA-Z0-9]+">`), quoted},
	// <!-- _is_th:KEY -->
	{regexp.MustCompile(`<!--\s+_is_th:[0-9a-zA-Z]+\s+-->`), func(m string) string {
		if sub := commentKey.FindStringSubmatch(m); sub != nil {
			return sub[1]
		}
		return ""
	}},
	// window._lk_db = {x: "P1", y: "P2", z: "P3"}, joined in x, y, z order
	{regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["']\};</script>`), func(m string) string {
		var b strings.Builder
		for _, re := range lkDbParts {
			sub := re.FindStringSubmatch(m)
			if sub == nil {
				return ""
			}
			b.WriteString(sub[1])
		}
		return b.String()
	}},
	// <div data-dpi="KEY" ...></div>
	{regexp.MustCompile(`<div\s+data-dpi="[0-9a-zA-Z]+"\s+[^>]*></div>`), quoted},
	// <script nonce="KEY">
	{regexp.MustCompile(`<script nonce="[0-9a-zA-Z]+">`), quoted},
	// window._xy_ws = "KEY"
	{regexp.MustCompile(`<script>window\._xy_ws = ['"\x60][0-9a-zA-Z]+['"\x60];</script>`), func(m string) string {
		start := strings.IndexAny(m, "'\"`")
		end := strings.LastIndexAny(m, "'\"`")
		if start == -1 || end <= start {
			return ""
		}
		return m[start+1 : end]
	}},
}

// extractClientKey returns the client key hidden in an embed page.
func extractClientKey(html string) (string, error) {
	for _, p := range keyPatterns {
		m := p.match.FindString(html)
		if m == "" {
			continue
		}
		if key := p.value(m); key != "" {
			return key, nil
		}
		return "", errors.New("failed to extract client key value")
	}
	return "", errors.New("failed to extract client key: no obfuscation pattern matched")
}
