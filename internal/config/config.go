package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AuthAnonymous     = "anonymous"
	AuthAuthenticated = "authenticated"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	LogLevel   string `mapstructure:"log_level"`

	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`

	Secret          string        `mapstructure:"secret"`
	AuthMode        string        `mapstructure:"auth_mode"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`

	DataDir          string `mapstructure:"data_dir"`
	HistoryLimit     int    `mapstructure:"history_limit"`
	MaxMessageLength int    `mapstructure:"max_message_length"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c *Config) Authenticated() bool { return c.AuthMode == AuthAuthenticated }

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults below.
// Any key can be overridden with RELAY_<KEY>, e.g. RELAY_AUTH_MODE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("relay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("auth", cfg.AuthMode).
		Str("data", cfg.DataDir).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")

	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("secret", "")
	v.SetDefault("auth_mode", AuthAnonymous)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("login_rate_limit", 5)
	v.SetDefault("login_rate_window", "1m")

	v.SetDefault("data_dir", "./data")
	v.SetDefault("history_limit", 100)
	v.SetDefault("max_message_length", 2000)

	v.SetDefault("shutdown_timeout", "10s")
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Mode == "release" || c.Mode == "debug" || c.Mode == "test", "mode %q must be release, debug or test", c.Mode)
	check(c.Port > 0 && c.Port < 65536, "port %d out of range", c.Port)
	check(c.AuthMode == AuthAnonymous || c.AuthMode == AuthAuthenticated, "auth_mode %q must be %s or %s", c.AuthMode, AuthAnonymous, AuthAuthenticated)
	check(c.ReadLimit > 0, "read_limit must be positive")
	check(c.SendBuffer > 0, "send_buffer must be positive")
	check(c.PingPeriod > 0 && c.PongWait > c.PingPeriod, "pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	check(c.WriteTimeout > 0, "write_timeout must be positive")
	check(c.HistoryLimit > 0 && c.HistoryLimit <= 100, "history_limit %d must be within 1..100", c.HistoryLimit)
	check(c.MaxMessageLength > 0, "max_message_length must be positive")
	check(c.ShutdownTimeout > 0, "shutdown_timeout must be positive")
	if c.Authenticated() {
		check(len(c.Secret) >= 32, "secret must be at least 32 bytes in %s mode", AuthAuthenticated)
		check(c.TokenTTL > 0, "token_ttl must be positive")
		check(c.LoginRateLimit > 0 && c.LoginRateWindow > 0, "login_rate_limit and login_rate_window must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
