package config

import (
	"errors"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rpattn/colmap/internal/db"
	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/session"
	"github.com/rpattn/colmap/internal/transformations"
)

// Session store kinds.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Database  db.Config
	Export    ExportConfig
	Transform TransformConfig
	Ingestion IngestionConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type SessionConfig struct {
	Store  string
	Path   string
	Key    string
	Schema string
}

type ExportConfig struct {
	Dir       string
	Delimiter string
	Retention time.Duration
	TokenTTL  time.Duration
}

type TransformConfig struct {
	CacheSize int
}

type IngestionConfig struct {
	MaxUploadMB int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
		},
		Session: SessionConfig{
			Store:  StoreFile,
			Path:   filepath.Join(".colmap", "sessions"),
			Key:    session.DefaultKey,
			Schema: domain.SchemaArtikelen,
		},
		Database: db.DefaultConfig(),
		Export: ExportConfig{
			Dir:       filepath.Join(".colmap", "exports"),
			Delimiter: ";",
			Retention: time.Hour,
			TokenTTL:  5 * time.Minute,
		},
		Transform: TransformConfig{CacheSize: transformations.DefaultCacheSize},
		Ingestion: IngestionConfig{MaxUploadMB: 32},
	}
}

var boundKeys = []string{
	"server.addr", "server.allowed_origins", "server.read_timeout", "server.write_timeout",
	"session.store", "session.path", "session.key", "session.schema",
	"database.host", "database.port", "database.user", "database.password", "database.dbname",
	"database.sslmode", "database.max_conns",
	"export.dir", "export.delimiter", "export.retention", "export.token_ttl",
	"transform.cache_size",
	"ingestion.max_upload_mb",
}

// Load reads config.yaml from configPath (optional) and COLMAP_* environment variables,
// after loading an optional .env file, on top of DefaultConfig.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("COLMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
		log.Println("No config.yaml found, using defaults and env vars")
	} else {
		log.Printf("Loaded %s", v.ConfigFileUsed())
	}

	setString(v, "server.addr", &cfg.Server.Addr)
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	}
	setDuration(v, "server.read_timeout", &cfg.Server.ReadTimeout)
	setDuration(v, "server.write_timeout", &cfg.Server.WriteTimeout)

	setString(v, "session.store", &cfg.Session.Store)
	setString(v, "session.path", &cfg.Session.Path)
	setString(v, "session.key", &cfg.Session.Key)
	setString(v, "session.schema", &cfg.Session.Schema)

	setString(v, "database.host", &cfg.Database.Host)
	setInt(v, "database.port", &cfg.Database.Port)
	setString(v, "database.user", &cfg.Database.User)
	setString(v, "database.password", &cfg.Database.Password)
	setString(v, "database.dbname", &cfg.Database.DBName)
	setString(v, "database.sslmode", &cfg.Database.SSLMode)
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	setString(v, "export.dir", &cfg.Export.Dir)
	setString(v, "export.delimiter", &cfg.Export.Delimiter)
	setDuration(v, "export.retention", &cfg.Export.Retention)
	setDuration(v, "export.token_ttl", &cfg.Export.TokenTTL)

	setInt(v, "transform.cache_size", &cfg.Transform.CacheSize)
	setInt(v, "ingestion.max_upload_mb", &cfg.Ingestion.MaxUploadMB)

	return cfg, nil
}

// DelimiterRune returns the first rune of the configured delimiter, or ';'.
func (c ExportConfig) DelimiterRune() rune {
	if c.Delimiter == `\t` {
		return '\t'
	}
	for _, r := range c.Delimiter {
		return r
	}
	return ';'
}

// MaxUploadBytes converts the upload limit to bytes.
func (c IngestionConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
