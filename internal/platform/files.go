package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDirPermissions applies to directories the service creates.
const DefaultDirPermissions = 0755

// maxFileNameLength keeps generated names inside common filesystem limits.
const maxFileNameLength = 180

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Downloads"), nil
}

// SafeFileName strips path separators and control characters from a title
// so it can be used as a filename, trimming to a sane length. Empty input
// falls back to "download".
func SafeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r < 0x20:
			// drop control characters
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "download"
	}
	if len(cleaned) > maxFileNameLength {
		cleaned = cleaned[:maxFileNameLength]
	}
	return cleaned
}
