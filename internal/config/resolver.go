package config

import (
	"cmp"
	"maps"
	"slices"

	"github.com/flemzord/chatgate/internal/core"
)

// loadOrder ranks namespaces: providers and the history backend publish
// the services the gateway resolves. Unlisted namespaces load last.
var loadOrder = []string{"provider", "history", "gateway"}

func rank(id string) int {
	if i := slices.Index(loadOrder, core.ModuleID(id).Namespace()); i >= 0 {
		return i
	}
	return len(loadOrder)
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then alphabetically.
func Resolve(cfg *Config) []string {
	ids := slices.Collect(maps.Keys(cfg.Modules))
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(a, b))
	})
	return ids
}

// ResolveNamespace returns the configured module IDs of one namespace.
func ResolveNamespace(cfg *Config, namespace string) []string {
	return slices.DeleteFunc(Resolve(cfg), func(id string) bool {
		return core.ModuleID(id).Namespace() != namespace
	})
}
