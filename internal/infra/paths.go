package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// Paths holds the on-disk locations used by the application.
type Paths struct {
	DataDir    string // Encrypted state database and key
	ConfigFile string // Default config file location
	LogFile    string // Daemon log file
	SocketFile string // Daemon control socket
	IsRoot     bool   // Whether running as root
}

// DetectPaths determines the default locations for the current user.
// dataDir overrides the default data directory when non-empty.
func DetectPaths(dataDir string) Paths {
	home := GetRealUserHome()
	if dataDir == "" {
		dataDir = filepath.Join(home, ".smart-replays")
	} else {
		dataDir = expandHome(home, dataDir)
	}

	configDir := filepath.Join(home, ".config", "smart-replays")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "smart-replays")
	}

	return Paths{
		DataDir:    dataDir,
		ConfigFile: filepath.Join(configDir, "config.yaml"),
		LogFile:    filepath.Join(dataDir, "smart-replays.log"),
		SocketFile: filepath.Join(dataDir, "smart-replays.sock"),
		IsRoot:     os.Geteuid() == 0,
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	// Check if running under sudo
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	// Fall back to default
	home, _ := os.UserHomeDir()
	return home
}

func expandHome(home, path string) string {
	return (&FileSystemManagerImpl{homeDir: home}).ExpandHome(path)
}
