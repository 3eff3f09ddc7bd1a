package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-tabletop/globals"
)

const (
	defaultTokenTTL    = 120 * time.Second
	defaultCleanupSpec = "@every 1m"
	defaultHistorySize = 50
)

// Config is the global configuration object which is filled via the configuration file.
type Config struct {
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	AuthConfig        AuthConfig        `mapstructure:"auth"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	CleanupConfig     CleanupConfig     `mapstructure:"cleanup"`
	LogLevel          string            `mapstructure:"log_level"`
}

// HistoryConfig configures how many chat messages of the main channel are
// included in the session:state snapshot sent to newly connected clients.
type HistoryConfig struct {
	SnapshotHistorySize int `mapstructure:"snapshot_history_size"`
}

// AuthConfig configures the short-lived session-scoped websocket tokens.
// TokenTTLSeconds bounds the time between fetching a token via REST and
// opening the websocket connection with it.
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLSeconds int    `mapstructure:"token_ttl_seconds"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used to
// establish the caller's identity when a websocket token is requested. Users
// provide an ID token and the name of the provider, the identity is then
// taken from the verified token claims.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com"
}

// PersistenceConfig configures the persistence backend. Type is one of
// "sqlite", "postgres" (both via gorm) or "buntdb".
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// CleanupConfig configures the periodic cleanup job (ended-session hubs and
// their session-scoped fog state).
type CleanupConfig struct {
	CronSpec string `mapstructure:"cron_spec"`
}

func (c *Config) TokenTTL() time.Duration {
	if c.AuthConfig.TokenTTLSeconds <= 0 {
		return defaultTokenTTL
	}
	return time.Duration(c.AuthConfig.TokenTTLSeconds) * time.Second
}

func (c *Config) CleanupSpec() string {
	if c.CleanupConfig.CronSpec == "" {
		return defaultCleanupSpec
	}
	return c.CleanupConfig.CronSpec
}

func (c *Config) SnapshotHistorySize() int {
	if c.HistoryConfig.SnapshotHistorySize <= 0 {
		return defaultHistorySize
	}
	return c.HistoryConfig.SnapshotHistorySize
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("jwt-secret", "", "HMAC secret for websocket tokens")
	flagSet.String("log-level", "", "log level (TRACE/DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	if err := viper.BindPFlag("auth.jwt_secret", flagSet.Lookup("jwt-secret")); err != nil {
		globals.AppLogger.Error("could not bind flag (ignored)", "error", err)
	}
	if err := viper.BindPFlag("log_level", flagSet.Lookup("log-level")); err != nil {
		globals.AppLogger.Error("could not bind flag (ignored)", "error", err)
	}
	viper.SetEnvPrefix("LSTABLETOP")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	return &cfg, nil
}
