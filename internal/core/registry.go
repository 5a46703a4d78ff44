package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// catalog holds every compiled-in module. Modules add themselves from
// init functions; it is read-only once main runs.
type catalog struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &catalog{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the catalog. It panics on an empty ID, a
// missing constructor or a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, dup := modules.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	modules.byID[info.ID] = info
}

// GetModule looks a module up by ID.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return modules.list(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules of one namespace ("provider"
// matches "provider.openai" and "provider.anthropic") sorted by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return modules.list(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func (c *catalog) list(keep func(ModuleID) bool) []ModuleInfo {
	c.mu.RLock()
	out := make([]ModuleInfo, 0, len(c.byID))
	for id, info := range c.byID {
		if keep(id) {
			out = append(out, info)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry empties the catalog between tests.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	clear(modules.byID)
}
