// Package config loads cadcore settings from an optional TOML file followed
// by CADCORE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable of a cadcore process.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Blob    BlobConfig    `toml:"blob"`
	History HistoryConfig `toml:"history"`
	Assets  AssetsConfig  `toml:"assets"`
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
}

// StorageConfig selects the document persistence backend.
type StorageConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	Autosave    bool   `toml:"autosave"`
}

// BlobConfig selects the asset blob backend.
type BlobConfig struct {
	Driver string   `toml:"driver"`
	FSRoot string   `toml:"fs_root"`
	S3     S3Config `toml:"s3"`
}

// S3Config configures the S3 asset backend.
type S3Config struct {
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
}

// HistoryConfig bounds the undo stack. Zero means unbounded.
type HistoryConfig struct {
	MaxDepth int `toml:"max_depth"`
}

// AssetsConfig sizes the decoded asset cache.
type AssetsConfig struct {
	CacheSize int `toml:"cache_size"`
}

// LogConfig selects level and handler format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig configures the renderer feed listener.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "cadcore.db"},
		Blob:    BlobConfig{Driver: "fs", FSRoot: "./assets"},
		History: HistoryConfig{MaxDepth: 0},
		Assets:  AssetsConfig{CacheSize: 64},
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{ListenAddr: "127.0.0.1:8080"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides from getenv (os.Getenv when nil).
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overlays the environment.
//
//	CADCORE_STORAGE_DRIVER: memory|sqlite|postgres
//	CADCORE_SQLITE_PATH, CADCORE_POSTGRES_DSN, CADCORE_AUTOSAVE
//	CADCORE_BLOB_DRIVER: fs|s3|memory
//	CADCORE_BLOB_FS_ROOT, CADCORE_BLOB_S3_BUCKET, CADCORE_BLOB_S3_REGION,
//	CADCORE_BLOB_S3_ENDPOINT, CADCORE_BLOB_S3_USE_PATH_STYLE,
//	CADCORE_BLOB_S3_ACCESS_KEY, CADCORE_BLOB_S3_SECRET_KEY
//	CADCORE_HISTORY_MAX_DEPTH, CADCORE_ASSET_CACHE_SIZE
//	CADCORE_LOG_LEVEL, CADCORE_LOG_FORMAT, CADCORE_LISTEN_ADDR
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"CADCORE_STORAGE_DRIVER":     &c.Storage.Driver,
		"CADCORE_SQLITE_PATH":        &c.Storage.SQLitePath,
		"CADCORE_POSTGRES_DSN":       &c.Storage.PostgresDSN,
		"CADCORE_BLOB_DRIVER":        &c.Blob.Driver,
		"CADCORE_BLOB_FS_ROOT":       &c.Blob.FSRoot,
		"CADCORE_BLOB_S3_BUCKET":     &c.Blob.S3.Bucket,
		"CADCORE_BLOB_S3_REGION":     &c.Blob.S3.Region,
		"CADCORE_BLOB_S3_ENDPOINT":   &c.Blob.S3.Endpoint,
		"CADCORE_BLOB_S3_ACCESS_KEY": &c.Blob.S3.AccessKey,
		"CADCORE_BLOB_S3_SECRET_KEY": &c.Blob.S3.SecretKey,
		"CADCORE_LOG_LEVEL":          &c.Log.Level,
		"CADCORE_LOG_FORMAT":         &c.Log.Format,
		"CADCORE_LISTEN_ADDR":        &c.Server.ListenAddr,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"CADCORE_HISTORY_MAX_DEPTH": &c.History.MaxDepth,
		"CADCORE_ASSET_CACHE_SIZE":  &c.Assets.CacheSize,
	}
	for key, dst := range ints {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	bools := map[string]*bool{
		"CADCORE_AUTOSAVE":               &c.Storage.Autosave,
		"CADCORE_BLOB_S3_USE_PATH_STYLE": &c.Blob.S3.UsePathStyle,
	}
	for key, dst := range bools {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate rejects unknown drivers and negative sizes.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %s", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("unknown blob driver %s", c.Blob.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres driver requires a DSN")
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("s3 blob driver requires a bucket")
	}
	if c.History.MaxDepth < 0 {
		return fmt.Errorf("history max depth must be >= 0, got %d", c.History.MaxDepth)
	}
	if c.Assets.CacheSize < 0 {
		return fmt.Errorf("asset cache size must be >= 0, got %d", c.Assets.CacheSize)
	}
	return nil
}
