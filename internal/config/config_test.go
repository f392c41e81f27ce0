package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func Test_Load_Should_Use_Defaults_Without_File(t *testing.T) {
	req := require.New(t)
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()

	req.NoError(err)
	req.Equal("release", cfg.Mode)
	req.Equal(8080, cfg.Port)
	req.Equal(AuthAnonymous, cfg.AuthMode)
	req.Equal(54*time.Second, cfg.PingPeriod)
	req.Equal(60*time.Second, cfg.PongWait)
	req.Equal(100, cfg.HistoryLimit)
	req.Equal(2000, cfg.MaxMessageLength)
	req.Equal(64, cfg.SendBuffer)
}

func Test_Load_Should_Read_File_And_Env(t *testing.T) {
	req := require.New(t)
	dir := inTempDir(t)
	req.NoError(os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := strings.Join([]string{
		"mode: debug",
		"port: 9000",
		"history_limit: 50",
		"allowed_origins: [\"https://chat.example.com\"]",
	}, "\n")
	req.NoError(os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("RELAY_PORT", "9100")

	cfg, err := Load()

	req.NoError(err)
	req.Equal("debug", cfg.Mode)
	req.Equal(9100, cfg.Port)
	req.Equal(50, cfg.HistoryLimit)
	req.Equal([]string{"https://chat.example.com"}, cfg.AllowedOrigins)
}

func Test_Validate_Should_Reject_Inconsistent_Values(t *testing.T) {
	valid := func() Config {
		return Config{
			Mode: "release", Port: 8080, AuthMode: AuthAnonymous,
			ReadLimit: 1024, SendBuffer: 8, PingPeriod: time.Second, PongWait: 2 * time.Second,
			WriteTimeout: time.Second, HistoryLimit: 100, MaxMessageLength: 2000, ShutdownTimeout: time.Second,
			TokenTTL: time.Hour, LoginRateLimit: 5, LoginRateWindow: time.Minute,
		}
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	cases := map[string]func(*Config){
		"bad mode":          func(c *Config) { c.Mode = "prod" },
		"bad port":          func(c *Config) { c.Port = 0 },
		"bad auth mode":     func(c *Config) { c.AuthMode = "oauth" },
		"pong before ping":  func(c *Config) { c.PongWait = c.PingPeriod },
		"history too long":  func(c *Config) { c.HistoryLimit = 101 },
		"no send buffer":    func(c *Config) { c.SendBuffer = 0 },
		"short secret auth": func(c *Config) { c.AuthMode = AuthAuthenticated; c.Secret = "short" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			require.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
