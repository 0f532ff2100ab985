package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docstudio/internal/globalconst"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by LoadConfig when present.
const DefaultEnvFile = ".env"

// Config holds application-wide configuration.
type Config struct {
	DataDir     string
	LogLevel    slog.Level
	PrettyJSON  bool
	HistoryFile string
	InMemory    bool
	BackupKeep  int
}

// NewDefaultConfig creates a Config struct with sensible default values.
func NewDefaultConfig() Config {
	return Config{
		DataDir:     "data",
		LogLevel:    slog.LevelInfo,
		PrettyJSON:  true,
		HistoryFile: filepath.Join(os.TempDir(), "docstudio_history.tmp"),
		InMemory:    false,
		BackupKeep:  globalconst.DefaultBackupKeep,
	}
}

// LoadConfig loads configuration with a clear precedence:
// Environment > .env file > Defaults.
func LoadConfig(envFiles ...string) Config {
	cfg := NewDefaultConfig()
	slog.Info("Loading configuration...")
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	loadEnvFiles(envFiles)
	applyEnvConfig(&cfg)
	return cfg
}

// loadEnvFiles copies variables from the given files into the environment.
// godotenv never overrides a variable that is already set.
func loadEnvFiles(paths []string) {
	for _, path := range paths {
		err := godotenv.Load(path)
		switch {
		case err == nil:
			slog.Info("Loaded environment file", "path", path)
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("No environment file found", "path", path)
		default:
			slog.Warn("Could not load environment file", "path", path, "error", err)
		}
	}
}

// applyEnvConfig overrides config values from environment variables.
func applyEnvConfig(cfg *Config) {
	if dataDirEnv := os.Getenv("DOCSTUDIO_DATA_DIR"); dataDirEnv != "" {
		cfg.DataDir = dataDirEnv
		slog.Info("Overriding DataDir from environment", "value", dataDirEnv)
	}

	if levelEnv := os.Getenv("DOCSTUDIO_LOG_LEVEL"); levelEnv != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.TrimSpace(levelEnv))); err == nil {
			cfg.LogLevel = level
			slog.Info("Overriding LogLevel from environment", "value", level.String())
		} else {
			slog.Warn("Invalid DOCSTUDIO_LOG_LEVEL env var, using default", "value", levelEnv)
		}
	}

	if historyEnv := os.Getenv("DOCSTUDIO_HISTORY_FILE"); historyEnv != "" {
		cfg.HistoryFile = historyEnv
		slog.Info("Overriding HistoryFile from environment", "value", historyEnv)
	}

	if keepEnv := os.Getenv("DOCSTUDIO_BACKUP_KEEP"); keepEnv != "" {
		if i, err := strconv.Atoi(keepEnv); err == nil && i >= 0 {
			cfg.BackupKeep = i
			slog.Info("Overriding BackupKeep from environment", "value", i)
		} else {
			slog.Warn("Invalid DOCSTUDIO_BACKUP_KEEP env var, using default", "value", keepEnv)
		}
	}

	overrideBool("DOCSTUDIO_PRETTY_JSON", &cfg.PrettyJSON)
	overrideBool("DOCSTUDIO_IN_MEMORY", &cfg.InMemory)
}

func overrideBool(envKey string, target *bool) {
	envVal := os.Getenv(envKey)
	if envVal != "" {
		if b, err := strconv.ParseBool(envVal); err == nil {
			*target = b
			slog.Info("Overriding flag from environment", "key", envKey, "value", b)
		} else {
			slog.Warn("Invalid boolean in env var, using default", "key", envKey, "value", envVal)
		}
	}
}
