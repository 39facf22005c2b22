package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/boxlabel/internal/errors"
)

const (
	appDirName = "boxlabel"
	osWindows  = "windows"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml, in
// priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case osWindows:
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("configuration").
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		return []string{
			filepath.Join(homeDir, "AppData", "Roaming", appDirName),
			filepath.Dir(exePath),
		}, nil
	default:
		return []string{
			filepath.Join(homeDir, ".config", appDirName),
			"/etc/" + appDirName,
		}, nil
	}
}

// FindConfigFile returns the first existing config.yaml on the default paths.
func FindConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, dir := range paths {
		candidate := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Newf("config file not found").
		Component("configuration").
		Category(errors.CategoryNotFound).
		Context("search_paths", paths).
		Build()
}
