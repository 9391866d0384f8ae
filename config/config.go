package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

func NewLoader(prefix string) *Loader {
	v := validator.New()
	v.RegisterStructValidation(validateRedis, Config{})
	return &Loader{Prefix: prefix, Validate: v}
}

// validateRedis requires a redis location when redis holds the sessions.
func validateRedis(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.SessionBackend == SessionBackendRedis && c.RedisURL == "" && c.RedisAddr == "" {
		sl.ReportError(c.RedisURL, "RedisURL", "RedisURL", "required_for_redis_backend", "")
	}
}

func (l *Loader) Load() (Config, error) {
	var cfg Config

	if err := loadDotEnv(); err != nil {
		logrus.Debugf("dotenv: %v", err)
	}
	if err := envconfig.Process(l.Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env load: %w", err)
	}

	if err := l.Validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"env":            cfg.Env,
		"logLevel":       cfg.LogLevel,
		"port":           cfg.Port,
		"frontendURL":    cfg.FrontendURL,
		"sessionBackend": cfg.SessionBackend,
		"redisURL_set":   cfg.RedisURL != "",
		"redisAddr":      cfg.RedisAddr,
	}).Info("config loaded")

	return cfg, nil
}

// BackendURL is the externally reachable base URL of this service.
func (c Config) BackendURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return "http://localhost:" + strconv.Itoa(c.Port)
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// loadDotEnv overlays .env, .env.<APP_ENV> and .env.local, in that order,
// onto the process environment. Missing files are skipped.
func loadDotEnv() error {
	candidates := []string{".env"}
	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		candidates = append(candidates, ".env."+appEnv)
	}
	candidates = append(candidates, ".env.local")

	var present []string
	for _, f := range candidates {
		if fileExists(f) {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return fmt.Errorf("no .env files found (looked for: %s)", strings.Join(candidates, ", "))
	}
	if err := godotenv.Overload(present...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(present, ", "), err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
