package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"token", "chat"} {
		if !names[want] {
			t.Fatalf("expected %q subcommand to be registered", want)
		}
	}
}

func TestResolveConfigPath_DefaultsWhenEmpty(t *testing.T) {
	profileName = ""
	if got := resolveConfigPath(""); got == "" {
		t.Fatal("expected a non-empty default config path")
	}
}
