// Package config loads blogql settings from flags, BLOGQL_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	auth "github.com/hanpama/blogql/internal/auth"
	blogrt "github.com/hanpama/blogql/internal/blogrt"
	logging "github.com/hanpama/blogql/internal/logging"
	store "github.com/hanpama/blogql/internal/store"
)

// EnvPrefix prefixes environment variables; server.addr is BLOGQL_SERVER_ADDR.
const EnvPrefix = "BLOGQL"

type Config struct {
	Server   Server              `mapstructure:"server"`
	GRPC     GRPC                `mapstructure:"grpc"`
	Metrics  Metrics             `mapstructure:"metrics"`
	Database store.Config        `mapstructure:"database"`
	Auth     auth.Config         `mapstructure:"auth"`
	Loader   blogrt.LoaderConfig `mapstructure:"loader"`
	Filter   Filter              `mapstructure:"filter"`
	Runtime  Runtime             `mapstructure:"runtime"`
	Log      logging.Config      `mapstructure:"log"`
	OTel     OTel                `mapstructure:"otel"`
}

type Server struct {
	Addr          string        `mapstructure:"addr" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes" validate:"gte=0"`
	Pretty        bool          `mapstructure:"pretty"`
	GraphiQL      bool          `mapstructure:"graphiql"`
	Introspection bool          `mapstructure:"introspection"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
}

type GRPC struct {
	// Addr of the gRPC health service. Empty disables it.
	Addr string `mapstructure:"addr"`
}

type Metrics struct {
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

type Filter struct {
	MaxDepth int `mapstructure:"max_depth" validate:"gte=0"`
}

type Runtime struct {
	Concurrency int `mapstructure:"concurrency"`
}

type OTel struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.timeout":          10 * time.Second,
	"server.max_body_bytes":   int64(1 << 20),
	"server.pretty":           false,
	"server.graphiql":         true,
	"server.introspection":    true,
	"server.cors_origins":     []string{},
	"grpc.addr":               "",
	"metrics.path":            "/metrics",
	"database.path":           "blog.db",
	"database.max_open_conns": 4,
	"auth.access_secret":      "",
	"auth.refresh_secret":     "",
	"auth.access_ttl":         15 * time.Minute,
	"auth.refresh_ttl":        7 * 24 * time.Hour,
	"auth.bcrypt_cost":        10,
	"loader.max_batch":        100,
	"loader.wait":             time.Duration(0),
	"filter.max_depth":        32,
	"runtime.concurrency":     8,
	"log.level":               "info",
	"log.format":              "json",
	"otel.endpoint":           "",
	"otel.service":            "blogql",
}

// flags maps command line flags to configuration keys.
var flags = map[string]string{
	"addr":       "server.addr",
	"grpc-addr":  "grpc.addr",
	"db":         "database.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags adds the flags that override configuration keys to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("addr", defaults["server.addr"].(string), "HTTP listen address")
	fs.String("grpc-addr", "", "gRPC health listen address, empty to disable")
	fs.String("db", defaults["database.path"].(string), "SQLite database path, :memory: for a private in-memory database")
	fs.String("log-level", defaults["log.level"].(string), "log level (debug, info, warn, error)")
	fs.String("log-format", defaults["log.format"].(string), "log format (json, console)")
}

// BindFlags binds the flags registered by RegisterFlags found in fs to v.
// Only flags the user set take precedence over the environment.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flags {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
	}
	return nil
}

// Load reads the config file, if one was set, and decodes v.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges. Secrets are checked by RequireSecrets since
// only serving needs them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// RequireSecrets reports missing token secrets.
func (c *Config) RequireSecrets() error {
	var missing []string
	if c.Auth.AccessSecret == "" {
		missing = append(missing, "auth.access_secret")
	}
	if c.Auth.RefreshSecret == "" {
		missing = append(missing, "auth.refresh_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s (set %s_AUTH_ACCESS_SECRET and %s_AUTH_REFRESH_SECRET)",
			strings.Join(missing, ", "), EnvPrefix, EnvPrefix)
	}
	return nil
}
