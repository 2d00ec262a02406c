package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/fragring/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case osWindows:
		return []string{".", filepath.Join(homeDir, "AppData", "Roaming", "fragring")}, nil
	default:
		return []string{".", filepath.Join(homeDir, ".config", "fragring"), "/etc/fragring"}, nil
	}
}

// DefaultYAML renders the default configuration as YAML.
func DefaultYAML() ([]byte, error) {
	v := viper.New()
	setDefaultConfig(v)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal-default-config").
			Build()
	}
	return data, nil
}

// WriteDefault writes the default configuration to path, creating parent directories.
func WriteDefault(path string) error {
	data, err := DefaultYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create-config-directory").
			Build()
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write-default-config").
			Build()
	}

	GetLogger().Info("wrote default configuration")
	return nil
}
