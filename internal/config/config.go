package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr    string `env:"AAL_API_ADDR,default=:8080"`
	DataDir string `env:"AAL_DATA_DIR,default=local-data"`

	DBDriver string `env:"AAL_DB_DRIVER,default=sqlite"`
	// DBDSN defaults to <DataDir>/aal.db for sqlite.
	DBDSN string `env:"AAL_DB_DSN"`

	LogLevel  string `env:"AAL_LOG_LEVEL,default=info"`
	LogFormat string `env:"AAL_LOG_FORMAT,default=text"`

	AllocationMaxAttempts  int  `env:"AAL_ALLOCATION_MAX_ATTEMPTS,default=5"`
	SerializableAllocation bool `env:"AAL_SERIALIZABLE_ALLOCATION,default=false"`

	MigrationMappingFile    string `env:"AAL_MIGRATION_MAPPING_FILE"`
	MigrationByCreationYear bool   `env:"AAL_MIGRATION_BY_CREATION_YEAR,default=false"`
	MigrationMaxAttempts    int    `env:"AAL_MIGRATION_MAX_ATTEMPTS,default=3"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() (Config, error) {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "sqlite":
		if c.DBDSN == "" {
			c.DBDSN = filepath.Join(c.DataDir, "aal.db")
		}
	case "postgres":
		if c.DBDSN == "" {
			return Config{}, fmt.Errorf("config: AAL_DB_DSN is required for postgres")
		}
	default:
		return Config{}, fmt.Errorf("config: unsupported AAL_DB_DRIVER %q", c.DBDriver)
	}
	if c.AllocationMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("config: AAL_ALLOCATION_MAX_ATTEMPTS must be positive")
	}
	if c.MigrationMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("config: AAL_MIGRATION_MAX_ATTEMPTS must be positive")
	}
	return c, nil
}

// LoadDotEnv loads the nearest .env file, looking up to five directories
// above the working directory. Variables already set win.
func LoadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
