package internal

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Trove/internal/api"
	"github.com/hbomb79/Trove/internal/database"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/hbomb79/Trove/internal/index"
	"github.com/hbomb79/Trove/internal/media"
	"github.com/hbomb79/Trove/internal/process"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/hbomb79/Trove/internal/scan"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

type (
	StorageDriver string

	// TroveConfig is the struct used to contain the
	// various user config supplied by file, or
	// manually inside the code.
	TroveConfig struct {
		Database   database.DatabaseConfig `yaml:"database"`
		Storage    StorageConfig           `yaml:"storage"`
		Download   download.Config         `yaml:"download"`
		Processing process.Config          `yaml:"processing"`
		Media      media.Config            `yaml:"media"`
		Scan       scan.Config             `yaml:"scan"`
		Progress   progress.Config         `yaml:"progress"`
		Index      index.Config            `yaml:"index"`
		RestConfig api.RestConfig          `yaml:"rest"`
		LogLevel   string                  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info warning warn error"`
	}

	// StorageConfig selects where transfers, files and session progress are
	// kept. The memory driver keeps nothing across restarts and so cannot
	// resume interrupted transfers.
	StorageConfig struct {
		Driver StorageDriver `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres" validate:"oneof=postgres memory"`
	}
)

const (
	PostgresStorage StorageDriver = "postgres"
	MemoryStorage   StorageDriver = "memory"
)

// LoadFromFile loads a configuration file formatted in YAML, applying
// environment overrides and defaults, expanding any home-relative paths and
// finally validating the result. An empty path loads from the environment alone.
func (config *TroveConfig) LoadFromFile(configPath string) error {
	var err error
	if configPath == "" {
		err = cleanenv.ReadEnv(config)
	} else {
		err = cleanenv.ReadConfig(configPath, config)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration - %w", err)
	}

	for _, path := range []*string{
		&config.Download.DownloadDir,
		&config.Download.PartsDir,
		&config.Processing.ThumbnailDir,
		&config.Scan.WatchPath,
	} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %s - %w", *path, err)
		}
		*path = expanded
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is invalid - %w", err)
	}

	return nil
}

// reservedDirs returns the directories which Trove writes to, and which
// must never be treated as sources by a filesystem scan.
func (config *TroveConfig) reservedDirs() []string {
	return []string{config.Download.DownloadDir, config.Download.PartsDir, config.Processing.ThumbnailDir}
}

func (config *TroveConfig) ensureDirs() error {
	for _, dir := range config.reservedDirs() {
		if err := os.MkdirAll(dir, os.ModeDir|os.ModePerm); err != nil {
			return fmt.Errorf("failed to create directory %s - %w", dir, err)
		}
	}

	return nil
}
