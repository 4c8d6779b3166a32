// Package rewrite implements the textual rewrite engine that scrubs origin
// references out of proxied response bodies, and the streaming transformer
// that applies it to chunked bodies in bounded memory.
package rewrite

import (
	"regexp"
	"strings"

	"mirror-proxy-go/internal/rebase"
)

// urlTail matches the path/query/fragment portion of an inline URL: the
// longest run that stays inside the surrounding markup. Stops at whitespace,
// quotes, angle brackets, parentheses and backticks so a match never
// swallows an adjacent delimiter.
const urlTail = `[^\s"'<>()` + "`" + `]*`

// Rule is one matcher+replacer unit. Rules are stateless and side-effect
// free over a fragment; the engine applies them in a fixed total order
// because later, broader patterns must not re-match text already rewritten
// by earlier, narrower ones.
type Rule struct {
	Name string

	re   *regexp.Regexp
	repl func(match string) string
}

// Apply rewrites every occurrence of the rule's pattern in s.
func (r Rule) Apply(s string) string {
	return r.re.ReplaceAllStringFunc(s, r.repl)
}

// Rules builds the ordered rule set for one domain mapping.
func Rules(m *rebase.Mapping) []Rule {
	host := regexp.QuoteMeta(m.Host)
	base := regexp.QuoteMeta(m.BasePath)

	return []Rule{
		absoluteURL(m, "absolute-under-base", `(?i)\bhttps?://`+host+base+urlTail),
		absoluteURL(m, "absolute-other", `(?i)\bhttps?://`+host+urlTail),
		absoluteURL(m, "protocol-relative-under-base", `(?i)//`+host+base+urlTail),
		absoluteURL(m, "protocol-relative-other", `(?i)//`+host+urlTail),
		metaRefresh(m),
		cssURL(m, host),
		locationAssign(m),
		fetchCall(m),
		xhrOpen(m),
	}
}

// absoluteURL rewrites a whole matched URL through the re-basing function.
// The under-base variants run before the catch-all variants so that by the
// time the broader pattern is tried, every base-path URL has already been
// moved into public space and no longer contains the origin host.
func absoluteURL(m *rebase.Mapping, name, pattern string) Rule {
	return Rule{
		Name: name,
		re:   regexp.MustCompile(pattern),
		repl: m.Rebase,
	}
}

// metaRefresh rewrites the URL value of an HTML meta refresh directive:
// <meta http-equiv="refresh" content="0;url=...">. Only the URL operand is
// touched; the delay and surrounding markup pass through untouched.
func metaRefresh(m *rebase.Mapping) Rule {
	re := regexp.MustCompile(`(?i)(http-equiv\s*=\s*["']refresh["'][^>]*content\s*=\s*["']\s*\d+\s*;\s*url=)([^"'>]+)`)
	return Rule{
		Name: "meta-refresh",
		re:   re,
		repl: func(match string) string {
			sub := re.FindStringSubmatch(match)
			return sub[1] + m.Rebase(sub[2])
		},
	}
}

// cssURL rewrites origin references inside CSS url(...) notation, with the
// original quoting (double, single, or none) preserved. RE2 has no
// backreferences, so the three quoting forms are spelled out as alternates.
func cssURL(m *rebase.Mapping, host string) Rule {
	ref := `(?:https?:)?//` + host
	re := regexp.MustCompile(`(?i)\burl\(\s*(?:"(` + ref + `[^"]*)"|'(` + ref + `[^']*)'|(` + ref + `[^)\s"']*))\s*\)`)
	return Rule{
		Name: "css-url",
		re:   re,
		repl: func(match string) string {
			sub := re.FindStringSubmatch(match)
			switch {
			case sub[1] != "":
				return `url("` + m.Rebase(sub[1]) + `")`
			case sub[2] != "":
				return `url('` + m.Rebase(sub[2]) + `')`
			default:
				return `url(` + m.Rebase(sub[3]) + `)`
			}
		},
	}
}

// locationAssign rewrites inline navigation assignments. All matched forms
// (location, window.location, document.location.href, ...) are normalized
// to a canonical location.href="..." assignment.
func locationAssign(m *rebase.Mapping) Rule {
	re := regexp.MustCompile(`(?i)\b(?:window\.|document\.)?location(?:\.href)?\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	return Rule{
		Name: "location-assign",
		re:   re,
		repl: func(match string) string {
			sub := re.FindStringSubmatch(match)
			target := sub[1]
			if target == "" {
				target = sub[2]
			}
			if target == "" {
				return match
			}
			return `location.href="` + m.Rebase(target) + `"`
		},
	}
}

// fetchCall rewrites the URL literal passed as the first argument of a
// fetch(...) call, preserving the original quote style.
func fetchCall(m *rebase.Mapping) Rule {
	re := regexp.MustCompile(`(?i)\bfetch\(\s*(?:"([^"]*)"|'([^']*)')`)
	return Rule{
		Name: "fetch-call",
		re:   re,
		repl: func(match string) string {
			sub := re.FindStringSubmatch(match)
			switch {
			case sub[1] != "":
				return `fetch("` + m.Rebase(sub[1]) + `"`
			case sub[2] != "":
				return `fetch('` + m.Rebase(sub[2]) + `'`
			default:
				return match
			}
		},
	}
}

// xhrOpen rewrites the URL in an XHR-style open(method, url) call when the
// method is a recognized HTTP verb. Quote styles of both arguments are
// preserved; argument spacing is normalized.
func xhrOpen(m *rebase.Mapping) Rule {
	const verb = `GET|POST|PUT|DELETE|HEAD`
	re := regexp.MustCompile(`(?i)\bopen\(\s*(?:"(` + verb + `)"|'(` + verb + `)')\s*,\s*(?:"([^"]*)"|'([^']*)')`)
	return Rule{
		Name: "xhr-open",
		re:   re,
		repl: func(match string) string {
			sub := re.FindStringSubmatch(match)
			method, mq := sub[1], `"`
			if method == "" {
				method, mq = sub[2], `'`
			}
			target, tq := sub[3], `"`
			if target == "" {
				target, tq = sub[4], `'`
			}
			if target == "" {
				return match
			}
			var b strings.Builder
			b.WriteString(`open(`)
			b.WriteString(mq)
			b.WriteString(method)
			b.WriteString(mq)
			b.WriteString(`, `)
			b.WriteString(tq)
			b.WriteString(m.Rebase(target))
			b.WriteString(tq)
			return b.String()
		},
	}
}
