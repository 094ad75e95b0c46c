// conf/utils.go config file path helpers
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gifttrack/gifttrack-go/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns a list of directories that are searched for
// the configuration file, in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "gifttrack-go"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "gifttrack-go"),
			"/etc/gifttrack-go",
			exeDir,
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the active configuration file on disk.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configPath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", errors.Newf("config file not found in any of the default paths").
		Category(errors.CategoryConfiguration).
		Build()
}

// GetBasePath expands and normalizes a directory path, creating it if needed.
func GetBasePath(path string) string {
	expandedPath := os.ExpandEnv(path)
	basePath := filepath.Clean(expandedPath)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}
