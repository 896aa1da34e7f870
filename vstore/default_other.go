//go:build !windows

package vstore

// Default storage locations on non-Windows systems.
const (
	DefaultStorePath   = "$HOME/.config/vsession/session"
	DefaultConfigPath  = "~/.config/vsession/session.conf"
	DefaultBoltPath    = "~/.config/vsession/session.db"
	DefaultRedisPrefix = "vsession:"
)

func openRegistry(string) (DataStore, error) {
	return nil, errRegistryUnsupported
}
