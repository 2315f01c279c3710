package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	APIBaseURL      string        `toml:"api_base_url"`
	Origin          string        `toml:"origin"`
	HTTPTimeout     time.Duration `toml:"http_timeout"`
	PrivilegedRoles []string      `toml:"privileged_roles"`
	HTTPAddr        string        `toml:"http_addr"`
	LogLevel        string        `toml:"log_level"`
	Storage         Storage       `toml:"storage"`
	DevAPI          DevAPI        `toml:"devapi"`
}

type Storage struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	BoltPath      string `toml:"bolt_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	DatabaseURL   string `toml:"database_url"`
}

type DevAPI struct {
	Addr              string        `toml:"addr"`
	JWTSecret         string        `toml:"jwt_secret"`
	JWTIssuer         string        `toml:"jwt_issuer"`
	AccessTokenTTL    time.Duration `toml:"access_token_ttl"`
	LoginShape        string        `toml:"login_shape"`
	ExpiryJobInterval time.Duration `toml:"expiry_job_interval"`
	DefaultDuration   time.Duration `toml:"default_duration"`
	DefaultLateAfter  time.Duration `toml:"default_late_after"`
}

// Load returns the built-in defaults, overlaid with the TOML file named by
// ABSEN_CONFIG (or the user config dir's absen/config.toml) and then with
// environment variables.
func Load() (Config, error) {
	cfg := Default()

	path, explicit := filePath()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func Default() Config {
	return Config{
		APIBaseURL:      "/api/v1",
		Origin:          "http://127.0.0.1:8080",
		PrivilegedRoles: []string{"staff", "admin"},
		HTTPAddr:        "127.0.0.1:8090",
		LogLevel:        "info",
		Storage: Storage{
			Backend:  "file",
			Dir:      defaultDir(),
			BoltPath: filepath.Join(defaultDir(), "absen.db"),
		},
		DevAPI: DevAPI{
			Addr:              ":8080",
			JWTSecret:         "dev-secret",
			JWTIssuer:         "absen-devapi",
			AccessTokenTTL:    12 * time.Hour,
			LoginShape:        "access_token",
			ExpiryJobInterval: time.Minute,
			DefaultDuration:   time.Hour,
			DefaultLateAfter:  15 * time.Minute,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.APIBaseURL = getenv("ABSEN_API_URL", cfg.APIBaseURL)
	cfg.Origin = getenv("ABSEN_ORIGIN", cfg.Origin)
	cfg.HTTPTimeout = getenvDuration("ABSEN_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.PrivilegedRoles = getenvList("ABSEN_PRIVILEGED_ROLES", cfg.PrivilegedRoles)
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)

	cfg.Storage.Backend = getenv("ABSEN_STORAGE", cfg.Storage.Backend)
	cfg.Storage.Dir = getenv("ABSEN_STORAGE_DIR", cfg.Storage.Dir)
	cfg.Storage.BoltPath = getenv("ABSEN_BOLT_PATH", cfg.Storage.BoltPath)
	cfg.Storage.RedisAddr = getenv("REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getenv("REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getenvInt("REDIS_DB", cfg.Storage.RedisDB)
	cfg.Storage.DatabaseURL = getenv("DATABASE_URL", cfg.Storage.DatabaseURL)

	cfg.DevAPI.Addr = getenv("DEVAPI_ADDR", cfg.DevAPI.Addr)
	cfg.DevAPI.JWTSecret = getenv("JWT_SECRET", cfg.DevAPI.JWTSecret)
	cfg.DevAPI.JWTIssuer = getenv("JWT_ISSUER", cfg.DevAPI.JWTIssuer)
	cfg.DevAPI.AccessTokenTTL = getenvDuration("ACCESS_TOKEN_TTL", cfg.DevAPI.AccessTokenTTL)
	cfg.DevAPI.LoginShape = getenv("DEVAPI_LOGIN_SHAPE", cfg.DevAPI.LoginShape)
	cfg.DevAPI.ExpiryJobInterval = getenvDuration("TOKEN_EXPIRY_JOB_INTERVAL", cfg.DevAPI.ExpiryJobInterval)
	cfg.DevAPI.DefaultDuration = getenvDuration("TOKEN_DEFAULT_DURATION", cfg.DevAPI.DefaultDuration)
	cfg.DevAPI.DefaultLateAfter = getenvDuration("TOKEN_DEFAULT_LATE_AFTER", cfg.DevAPI.DefaultLateAfter)
}

func filePath() (string, bool) {
	if path := os.Getenv("ABSEN_CONFIG"); path != "" {
		return path, true
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, "absen", "config.toml"), false
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "absen")
	}
	return filepath.Join(dir, "absen")
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
