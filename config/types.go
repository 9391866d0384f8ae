package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type SessionBackend string

const (
	SessionBackendMemory SessionBackend = "memory"
	SessionBackendRedis  SessionBackend = "redis"
)

type Config struct {
	// App
	Env           string        `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	LogLevel      string        `split_words:"true" default:"info" validate:"oneof=debug info warn error"`
	Port          int           `default:"3000" validate:"gt=0,lte=65535"`
	PublicURL     string        `split_words:"true" validate:"omitempty,url"`
	FrontendURL   string        `split_words:"true" default:"http://localhost:5173" validate:"required,url"`
	ShutdownGrace time.Duration `split_words:"true" default:"15s" validate:"gt=0"`

	// GitHub OAuth app
	GithubClientID     string   `split_words:"true" validate:"required"`
	GithubClientSecret string   `split_words:"true" validate:"required"`
	GithubRedirectURI  string   `split_words:"true" validate:"required,url"`
	GithubScopes       []string `split_words:"true" default:"repo,read:user,user:email" validate:"min=1"`

	// GitHub endpoints
	GithubAPIURL   string `envconfig:"GITHUB_API_URL" default:"https://api.github.com/" validate:"required,url"`
	GithubWebURL   string `envconfig:"GITHUB_WEB_URL" default:"https://github.com" validate:"required,url"`
	GithubAuthURL  string `envconfig:"GITHUB_AUTH_URL" default:"https://github.com/login/oauth/authorize" validate:"required,url"`
	GithubTokenURL string `envconfig:"GITHUB_TOKEN_URL" default:"https://github.com/login/oauth/access_token" validate:"required,url"`

	// Performance tuning
	GithubRateLimit   int           `split_words:"true" default:"80" validate:"gt=0"`
	HTTPClientTimeout time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s" validate:"gt=0"`
	EventsPerPage     int           `split_words:"true" default:"30" validate:"gt=0,lte=100"`
	ReposPerPage      int           `split_words:"true" default:"50" validate:"gt=0,lte=100"`
	CacheSize         int           `split_words:"true" default:"1000" validate:"gt=0"`
	OAuthStateTTL     time.Duration `envconfig:"OAUTH_STATE_TTL" default:"10m" validate:"gt=0"`

	// Sessions
	SessionBackend   SessionBackend `split_words:"true" default:"memory" validate:"oneof=memory redis"`
	SessionKeyPrefix string         `split_words:"true" default:"session:"`

	// Redis: REDIS_URL wins over REDIS_ADDR when both are set.
	RedisURL         string        `split_words:"true" validate:"omitempty,url"`
	RedisAddr        string        `split_words:"true" validate:"omitempty,hostname_port"`
	RedisPassword    string        `split_words:"true"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	RedisConnTimeout time.Duration `split_words:"true" default:"3s" validate:"gt=0"`
}

type Loader struct {
	Prefix   string
	Validate *validator.Validate
}
