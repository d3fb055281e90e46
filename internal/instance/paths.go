package instance

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgfilter.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgfilter")
}

// Dir returns the instance-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// SocketPath returns the UDS socket path for an instance.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for an instance.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the tgfilter.db path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "tgfilter.db")
}

// LogDir returns the log directory for an instance.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file of one component (tgfd, tgflisten, tgfbot).
func LogPath(name, component string) string {
	return filepath.Join(LogDir(name), component+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
