// Package markup turns chat text into HTML fragments for display.
package markup

import (
	"strings"
	"unicode"
)

const fence = "```"

// entities is applied to every non-fence line. Ampersand comes first and no
// replacement text contains a character matched by a later rule.
var entities = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	" ", "&nbsp;",
	`"`, "&quot;",
	"`", "\\`",
	"*", "&ast;",
	"_", "&lowbar;",
	"-", "&#45;",
	".", "&#46;",
	"!", "&#33;",
	"(", "&#40;",
	")", "&#41;",
	"$", "&#36;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Escape converts free text into an HTML fragment. Lines containing a
// triple-backtick fence open or close a <pre><code> block; every other line is
// right-trimmed and entity-escaped, and all lines but the last end in <br/>.
//
// Escape is not idempotent: escaping its own output escapes the ampersands of
// the entities again. An odd number of fences leaves the last block open.
func Escape(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var b strings.Builder
	b.Grow(len(text) * 2)

	inCode := false
	for i, line := range lines {
		if strings.Contains(line, fence) {
			inCode = !inCode
			parts := strings.Split(strings.TrimRightFunc(line, unicode.IsSpace), "`")
			if inCode {
				lang := strings.TrimSpace(parts[len(parts)-1])
				b.WriteString(`<pre><code class="language-`)
				b.WriteString(entities.Replace(lang))
				b.WriteString(`">`)
			} else {
				b.WriteString(entities.Replace(strings.TrimSpace(parts[0])))
				b.WriteString("</code></pre>")
			}
		} else {
			b.WriteString(entities.Replace(strings.TrimRightFunc(line, unicode.IsSpace)))
		}

		if i+1 != len(lines) {
			b.WriteString("<br/>")
		}
	}
	return b.String()
}

// OpenFence reports whether text leaves a fenced code block open.
func OpenFence(text string) bool {
	open := false
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, fence) {
			open = !open
		}
	}
	return open
}
