package emoji

import (
	"regexp"
	"strings"
)

// tokenPattern matches any candidate emoji token: a full or half-form
// bracketed token (optionally animated, with an optional numeric id), or
// a bare :name:. Matching the bracketed form first means its colons are
// consumed as one token and never re-matched by the bare alternative.
var tokenPattern = regexp.MustCompile(`<a?:\w+:\d*>|:\w+:`)

// Repair rewrites malformed emoji tokens into valid ones (spec §4.8):
// bare :name: becomes a full token when name resolves uniquely; half-form
// <:name:> / <a:name:> becomes <:name:id> / <a:name:id>. Already-valid
// tokens and unresolvable names are left untouched, which makes the pass
// idempotent: repair(repair(x)) == repair(x).
func (c *Context) Repair(text string) string {
	if c == nil || len(c.reg) == 0 {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, c.repairToken)
}

func (c *Context) repairToken(tok string) string {
	switch {
	case strings.HasPrefix(tok, "<a:"):
		name, id, ok := splitBracketed(tok, "<a:")
		if !ok || id != "" {
			return tok // already valid, or malformed beyond repair
		}
		e, found := c.reg[name]
		if !found {
			return tok
		}
		return token(Emoji{ID: e.ID, Name: name, Animated: true})

	case strings.HasPrefix(tok, "<:"):
		name, id, ok := splitBracketed(tok, "<:")
		if !ok || id != "" {
			return tok
		}
		e, found := c.reg[name]
		if !found {
			return tok
		}
		return token(e)

	default:
		name := strings.Trim(tok, ":")
		e, found := c.reg[name]
		if !found {
			return tok
		}
		return token(e)
	}
}

// splitBracketed pulls name and id out of "<prefix" + "name:id" + ">".
func splitBracketed(tok, prefix string) (name, id string, ok bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(tok, prefix), ">")
	parts := strings.SplitN(inner, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
