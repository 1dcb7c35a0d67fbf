package emoji

import "testing"

type fakeSource struct {
	global []Emoji
	guild  []Emoji
}

func (f fakeSource) GlobalEmojis() []Emoji               { return f.global }
func (f fakeSource) GuildEmojis(guildID string) []Emoji { return f.guild }

func TestRepair_BareNameResolvesToFullToken(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{{ID: "1", Name: "pog", Animated: false}}}, "")

	got := c.Repair("nice :pog: move")
	want := "nice <:pog:1> move"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRepair_HalfFormStaticResolved(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{{ID: "1", Name: "pog", Animated: false}}}, "")

	got := c.Repair("nice <:pog:> move")
	want := "nice <:pog:1> move"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRepair_HalfFormCorrectsToAnimatedWhenRegistryIsAnimated(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{{ID: "9", Name: "dance", Animated: true}}}, "")

	got := c.Repair("party <:dance:> time")
	want := "party <a:dance:9> time"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got2 := c.Repair("party <a:dance:> time")
	if got2 != want {
		t.Errorf("got %q, want %q", got2, want)
	}
}

func TestRepair_AlreadyValidTokenIsIdempotent(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{{ID: "1", Name: "pog", Animated: false}}}, "")

	text := "already <:pog:1> valid"
	once := c.Repair(text)
	twice := c.Repair(once)
	if once != text {
		t.Errorf("valid token should be left untouched, got %q", once)
	}
	if once != twice {
		t.Errorf("repair is not idempotent: %q != %q", once, twice)
	}
}

func TestRepair_FullRepairPassIsIdempotent(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{
		{ID: "1", Name: "pog", Animated: false},
		{ID: "9", Name: "dance", Animated: true},
	}}, "")

	text := "a :pog: and <a:dance:> and :unknown: and <:pog:1>"
	once := c.Repair(text)
	twice := c.Repair(once)
	if once != twice {
		t.Errorf("repair is not idempotent: %q != %q", once, twice)
	}
}

func TestRepair_UnresolvableNameLeftUnchanged(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{{ID: "1", Name: "pog", Animated: false}}}, "")

	text := "mystery :noSuchEmoji: here"
	if got := c.Repair(text); got != text {
		t.Errorf("got %q, want unchanged %q", got, text)
	}
}

func TestRepair_NoRegistryReturnsTextUnchanged(t *testing.T) {
	c := NewContext(nil, "")
	text := "hello :pog: world"
	if got := c.Repair(text); got != text {
		t.Errorf("got %q, want unchanged %q", got, text)
	}
}

func TestRepair_GuildOverridesGlobalOnNameCollision(t *testing.T) {
	c := NewContext(fakeSource{
		global: []Emoji{{ID: "1", Name: "pog", Animated: false}},
		guild:  []Emoji{{ID: "2", Name: "pog", Animated: true}},
	}, "g1")

	got := c.Repair(":pog:")
	want := "<a:pog:2>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPromptContext_EmptyRegistryReturnsEmptyString(t *testing.T) {
	c := NewContext(nil, "")
	if got := c.PromptContext(); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestPromptContext_ListsTokensSortedByName(t *testing.T) {
	c := NewContext(fakeSource{global: []Emoji{
		{ID: "2", Name: "zeta", Animated: false},
		{ID: "1", Name: "alpha", Animated: true},
	}}, "")

	got := c.PromptContext()
	want := "Available custom emoji (use the exact token shown to render one):\n" +
		"<a:alpha:1> alpha\n" +
		"<:zeta:2> zeta"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
