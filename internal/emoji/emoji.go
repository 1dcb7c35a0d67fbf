// Package emoji implements the Emoji/Media Context: a prompt-context
// block listing a guild's available custom emoji, and an idempotent
// repair pass that rewrites malformed emoji tokens a model might produce
// back into valid ones (spec §4.8).
package emoji

import "sort"

// Emoji is one custom emoji available to the bot, in the transport's
// native shape (a discordgo.Emoji has the same ID/Name/Animated fields;
// callers wire a Source backed by discordgo.Session.State without this
// package importing discordgo directly).
type Emoji struct {
	ID       string
	Name     string
	Animated bool
}

// Source supplies the raw emoji inventory. GuildEmojis may return nil for
// a guild with none, or when guildID is empty (e.g. a DM).
type Source interface {
	GlobalEmojis() []Emoji
	GuildEmojis(guildID string) []Emoji
}

// registry is the name -> Emoji lookup shared by PromptContext and
// Repair, built once per Context so both surfaces agree on resolution.
type registry map[string]Emoji

// buildRegistry merges global and guild emoji by name, guild entries
// overriding global ones on collision (spec §4.8).
func buildRegistry(source Source, guildID string) registry {
	reg := make(registry)
	if source == nil {
		return reg
	}
	for _, e := range source.GlobalEmojis() {
		reg[e.Name] = e
	}
	for _, e := range source.GuildEmojis(guildID) {
		reg[e.Name] = e
	}
	return reg
}

func (r registry) sortedNames() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StickerRef would identify a guild sticker the way Emoji identifies a
// custom emoji. The source system declares a sticker registry but never
// implements it; this spec keeps the same placeholder reserved rather than
// inventing sticker-resolution behavior with nothing to model it on.
// TODO: wire a sticker Source once a lookup API is specified.
type StickerRef struct {
	ID   string
	Name string
}

// Context is a per-request emoji/media context, scoped to one guild (or
// none, for a DM). It satisfies the orchestrator package's EmojiContext
// interface.
type Context struct {
	reg registry
}

// NewContext resolves the merged emoji registry for guildID up front;
// Context is then immutable and safe for concurrent use across a single
// graph run.
func NewContext(source Source, guildID string) *Context {
	return &Context{reg: buildRegistry(source, guildID)}
}
