// Package config provides user configuration management for psddp.
//
// This package manages a YAML configuration file holding the credentials used
// for WAKEUP and LAUNCH requests, the consoles seen on the network, game
// titles learned from status responses, and application preferences.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/psddp/config.yaml or $HOME/.config/psddp/config.yaml
//   - macOS: $HOME/.config/psddp/config.yaml
//   - Windows: %LOCALAPPDATA%\psddp\config.yaml
//
// SetConfigPath overrides the location, which the CLI exposes as --config.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetDeviceCredential("192.168.1.20", credential)
//	registry.RecordStatus(status, time.Now())
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Games
//
// Older files map a title id straight to its name. Such entries are read as
// unlocked Game records and written back in the record form on the next save.
// ApplyStoreRecord adds the PS Store type, SKU and cover art; a locked entry
// keeps its name.
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes. The
// Registry value itself is not locked; callers sharing it serialize access.
package config
