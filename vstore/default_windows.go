//go:build windows

package vstore

// Default storage locations on Windows. The registry backend uses
// HKEY_CURRENT_USER since the session belongs to the interactive user.
const (
	DefaultStorePath    = `$APPDATA\vsession\session`
	DefaultConfigPath   = `$APPDATA\vsession\session.conf`
	DefaultBoltPath     = `$APPDATA\vsession\session.db`
	DefaultRedisPrefix  = "vsession:"
	DefaultRegistryPath = `CU\SOFTWARE\vsession`
)

func openRegistry(location string) (DataStore, error) {
	if location == "" {
		location = DefaultRegistryPath
	}
	return NewRegistryDataStore(location)
}
