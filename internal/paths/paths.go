// Package paths locates ember's config, state and cache directories.
//
// Each root honours its absolute XDG variable first, then the OS default,
// then a directory under $HOME. Relative XDG values are ignored.
package paths

import (
	"errors"
	"os"
	"path/filepath"
)

const appName = "ember"

// root describes one per-user base directory.
type root struct {
	xdgEnv  string
	osDir   func() (string, error)
	homeRel string
}

var (
	configBase = root{xdgEnv: "XDG_CONFIG_HOME", osDir: os.UserConfigDir, homeRel: ".config"}
	// There is no portable OS state directory; fall through to $HOME.
	stateBase = root{xdgEnv: "XDG_STATE_HOME", homeRel: filepath.Join(".local", "state")}
	cacheBase = root{xdgEnv: "XDG_CACHE_HOME", osDir: os.UserCacheDir, homeRel: ".cache"}
)

func (r root) dir() (string, error) {
	if xdg := os.Getenv(r.xdgEnv); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName), nil
	}

	var osErr error

	if r.osDir != nil {
		base, err := r.osDir()
		if err == nil && base != "" {
			return filepath.Join(base, appName), nil
		}

		osErr = err
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, r.homeRel, appName), nil
	}

	if osErr != nil {
		return "", osErr
	}

	return "", errors.New("resolve user home directory")
}

// join resolves r and appends elem.
func (r root) join(elem ...string) (string, error) {
	dir, err := r.dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(append([]string{dir}, elem...)...), nil
}

// ConfigRoot returns the user config directory for ember.
func ConfigRoot() (string, error) { return configBase.dir() }

// StateRoot returns the user state directory for ember.
func StateRoot() (string, error) { return stateBase.dir() }

// CacheRoot returns the user cache directory for ember.
func CacheRoot() (string, error) { return cacheBase.dir() }

// LogsDir returns the default log directory.
func LogsDir() (string, error) { return stateBase.join("logs") }

// DefaultLogFile returns the default log file path.
func DefaultLogFile() (string, error) { return stateBase.join("logs", "ember.log") }

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) { return configBase.join("config.yaml") }

// StartupFile returns the default startup script path. It is only run when
// it exists.
func StartupFile() (string, error) { return configBase.join("startup.star") }

// HistoryDir returns the default submission history directory.
func HistoryDir() (string, error) { return stateBase.join("history") }
