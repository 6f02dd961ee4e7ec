package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/patternkit/patternkit/pkg/logger"
)

const (
	// EnvConfig names an explicit config file. It takes precedence over the
	// user and project files.
	EnvConfig = "PATTERNKIT_CONFIG"
	// ProjectConfigFile is looked up in the working directory.
	ProjectConfigFile = "patternkit.yaml"
	UserConfigDir     = "patternkit"
	UserConfigFile    = "config.yaml"
)

// Loader layers configuration: defaults, then the user file, then the
// project file, then the file named by PATTERNKIT_CONFIG.
type Loader struct {
	logger logger.Logger
	getenv func(string) string
	wd     func() (string, error)
	home   func() (string, error)
}

func NewLoader(l logger.Logger) *Loader {
	return &Loader{
		logger: logger.OrDiscard(l),
		getenv: os.Getenv,
		wd:     os.Getwd,
		home:   os.UserConfigDir,
	}
}

// Load returns the layered, validated configuration. explicit, when set,
// is read last and must exist.
func (l *Loader) Load(explicit string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range []string{l.userConfigPath(), l.projectConfigPath()} {
		if path == "" {
			continue
		}
		layer, err := loadLayer(path)
		switch {
		case err == nil:
			l.logger.Debug("loaded config", "path", path)
			config.Merge(layer)
		case errors.Is(err, fs.ErrNotExist):
		default:
			l.logger.Warn("failed to load config", "path", path, "error", err)
		}
	}

	if explicit == "" {
		explicit = l.getenv(EnvConfig)
	}
	if explicit != "" {
		layer, err := loadLayer(explicit)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded config", "path", explicit)
		config.Merge(layer)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) userConfigPath() string {
	dir, err := l.home()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, UserConfigDir, UserConfigFile)
}

func (l *Loader) projectConfigPath() string {
	wd, err := l.wd()
	if err != nil {
		return ""
	}
	return filepath.Join(wd, ProjectConfigFile)
}
