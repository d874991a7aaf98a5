package config

import (
	"reflect"
	"slices"
)

// Sections applied at runtime by the reload subscriber. Everything else needs
// a restart (provider endpoints and limits in particular are static).
var hotSections = []string{"logging", "notify"}

// ChangedSections lists top-level sections that differ. Secrets are compared
// but never returned.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	pairs := []struct {
		name     string
		old, new any
	}{
		{"providers", oldCfg.Providers, newCfg.Providers},
		{"registry", oldCfg.Registry, newCfg.Registry},
		{"publisher", oldCfg.Publisher, newCfg.Publisher},
		{"orchestrator", oldCfg.Orchestrator, newCfg.Orchestrator},
		{"scheduler", oldCfg.Scheduler, newCfg.Scheduler},
		{"telegram", oldCfg.Telegram, newCfg.Telegram},
		{"notify", oldCfg.Notify, newCfg.Notify},
		{"logging", oldCfg.Logging, newCfg.Logging},
		{"cache", oldCfg.Cache, newCfg.Cache},
		{"http", oldCfg.HTTP, newCfg.HTTP},
	}
	var out []string
	for _, p := range pairs {
		if !reflect.DeepEqual(p.old, p.new) {
			out = append(out, p.name)
		}
	}
	return out
}

// RequiresRestart reports whether any changed section cannot be hot-applied.
func RequiresRestart(changed []string) bool {
	for _, s := range changed {
		if !slices.Contains(hotSections, s) {
			return true
		}
	}
	return false
}
