// Package paths centralizes the on-disk layout under the user's home
// directory. Stores are global; only log directories are namespaced per
// workspace.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// GetGlobalDir returns the root switchboard directory in the user's home (~/.switchboard).
func GetGlobalDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".switchboard")
}

// GetStoreDir returns ${HOME}/.switchboard/store, where RouterConfig,
// SchedulerConfig, PolicyConfig and telemetry are persisted.
func GetStoreDir() string {
	return filepath.Join(GetGlobalDir(), "store")
}

// GetWorkspaceHash returns a short SHA256 hash of the absolute workspace path.
func GetWorkspaceHash(workspaceRoot string) string {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		abs = workspaceRoot
	}
	hash := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(hash[:8])
}

// GetLogDir returns the global log directory for a specific workspace.
func GetLogDir(workspaceRoot string) string {
	hash := GetWorkspaceHash(workspaceRoot)
	return filepath.Join(GetGlobalDir(), "logs", hash)
}

// GetTmpDir returns the global temporary directory.
func GetTmpDir() string {
	return filepath.Join(GetGlobalDir(), "tmp")
}

// GetChatMemoryDir returns the per-messenger chat-memory directory,
// e.g. ${HOME}/.switchboard/store/telegram-chat-memory.
func GetChatMemoryDir(messenger string) string {
	return filepath.Join(GetStoreDir(), messenger+"-chat-memory")
}

// EnsureDir creates the directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// WriteFileAtomic writes data to path by writing to a temp file in the same
// directory and renaming over the destination, so readers never observe a
// truncated file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
