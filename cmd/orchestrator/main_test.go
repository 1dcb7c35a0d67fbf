package main

import "testing"

func TestBuildRootCmdIncludesServe(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["serve"] {
		t.Fatal("expected serve subcommand to be registered")
	}
}

func TestResolveConfigPath_DefaultsWhenEmpty(t *testing.T) {
	profileName = ""
	got := resolveConfigPath("")
	if got == "" {
		t.Fatal("expected a non-empty default config path")
	}
}

func TestResolveConfigPath_ProfileOverridesPath(t *testing.T) {
	profileName = "staging"
	defer func() { profileName = "" }()

	got := resolveConfigPath("some/other/path.yaml")
	if got == "some/other/path.yaml" {
		t.Fatal("expected profile to override the explicit path")
	}
}
