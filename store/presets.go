package store

import "fmt"

// PresetConfig bundles the LevelDB tuning knobs into named profiles (lite,
// default, full, archive) so operators can pick one with a single query
// parameter, e.g. leveldb:///var/lib/planet?preset=full.
//
// Each field can still be overridden individually, see ApplyPreset.
type PresetConfig struct {
	Name    string // human-readable identifier (e.g., "lite", "full")
	CacheMB int    // memory handed to LevelDB's block cache and write buffer
	Handles int    // open file handles LevelDB may keep
}

// DefaultPreset is a balanced profile for a typical node.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:    "default",
		CacheMB: 256,
		Handles: 512,
	}
}

// LitePreset keeps memory and file handles low for laptops and CI runs.
//
// Trade-offs:
//   - Smaller caches slow down syncing long chains
//   - Fewer handles mean more table reopening under load
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.CacheMB = 32
	cfg.Handles = 64
	return cfg
}

// FullPreset is sized for long-running validators and public nodes.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.CacheMB = 1024
	cfg.Handles = 2048
	return cfg
}

// ArchivePreset maximizes caching for nodes serving historical queries.
func ArchivePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "archive"
	cfg.CacheMB = 4096
	cfg.Handles = 4096
	return cfg
}

// GetPresetByName looks up a preset by its identifier.
//
// Example:
//
//	preset, err := store.GetPresetByName("lite")
//	if err != nil {
//	    return err
//	}
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "archive":
		return ArchivePreset(), nil
	case "default", "":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, archive, default)", name)
	}
}

// ApplyPreset overrides target with the non-zero fields of preset.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.CacheMB > 0 {
		target.CacheMB = preset.CacheMB
	}
	if preset.Handles > 0 {
		target.Handles = preset.Handles
	}
	if preset.Name != "" {
		target.Name = preset.Name
	}
}
