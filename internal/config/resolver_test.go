package config

import (
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestResolve_LoadOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http":       {},
		"history.sqlite":     {},
		"provider.openai":    {},
		"provider.anthropic": {},
		"extra.thing":        {},
	}}
	want := []string{"provider.anthropic", "provider.openai", "history.sqlite", "gateway.http", "extra.thing"}
	if got := Resolve(cfg); !slices.Equal(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveNamespace(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http":    {},
		"history.file":    {},
		"provider.openai": {},
	}}
	if got := ResolveNamespace(cfg, "history"); !slices.Equal(got, []string{"history.file"}) {
		t.Errorf("history = %v", got)
	}
	if got := ResolveNamespace(cfg, "missing"); len(got) != 0 {
		t.Errorf("missing = %v, want empty", got)
	}
}
