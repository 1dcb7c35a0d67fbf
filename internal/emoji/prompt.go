package emoji

import (
	"fmt"
	"strings"
)

// PromptContext renders the merged emoji registry as a block of text the
// Plan/Finalize prompts can append, naming each emoji's exact display
// token so the model reproduces valid tokens directly instead of
// guessing. Returns "" when no emoji are available.
func (c *Context) PromptContext() string {
	if c == nil || len(c.reg) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Available custom emoji (use the exact token shown to render one):\n")
	for _, name := range c.reg.sortedNames() {
		sb.WriteString(token(c.reg[name]))
		sb.WriteString(" ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// token renders e in Discord's native emoji token format.
func token(e Emoji) string {
	if e.Animated {
		return fmt.Sprintf("<a:%s:%s>", e.Name, e.ID)
	}
	return fmt.Sprintf("<:%s:%s>", e.Name, e.ID)
}
