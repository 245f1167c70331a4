package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode is whether the daemon runs for one user or system-wide.
type ExecMode string

const (
	// ExecModeUser keeps everything under the invoking user's home.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with system directories.
	ExecModeSystem ExecMode = "system"
)

// Paths holds every file location the daemon and CLI share.
type Paths struct {
	Mode       ExecMode
	DataDir    string // Encrypted store, key and status file
	ConfigPath string // YAML configuration
	StatePath  string // Host state file written by the game client
	LogPath    string
}

// DetectPaths picks paths from the effective UID.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 {
		return &Paths{
			Mode:       ExecModeSystem,
			DataDir:    "/var/lib/presenced",
			ConfigPath: "/etc/presenced/config.yaml",
			StatePath:  "/var/lib/presenced/state.yaml",
			LogPath:    "/var/log/presenced.log",
		}
	}
	return UserPaths(RealUserHome())
}

// UserPaths returns the user-mode layout rooted at home.
func UserPaths(home string) *Paths {
	dir := filepath.Join(home, ".presenced")
	return &Paths{
		Mode:       ExecModeUser,
		DataDir:    dir,
		ConfigPath: filepath.Join(dir, "config.yaml"),
		StatePath:  filepath.Join(dir, "state.yaml"),
		LogPath:    filepath.Join(dir, "presenced.log"),
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// RealUserHome returns the invoking user's home directory, even under sudo.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
