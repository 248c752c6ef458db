package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/maheshrc27/crosspost/internal/models"
)

type Server struct {
	Port         string        `env:"PORT" env-default:"3000"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
	BodyLimitMB  int           `env:"SERVER_BODY_LIMIT_MB" env-default:"100"`
	CookieName   string        `env:"COOKIE_NAME" env-default:"crosspost_token"`
}

type R2 struct {
	AccountID  string `env:"R2_ACCOUNT_ID"`
	AccessKey  string `env:"R2_ACCESS_KEY"`
	SecretKey  string `env:"R2_SECRET_KEY"`
	BucketName string `env:"R2_BUCKET_NAME"`
	PublicURL  string `env:"R2_PUBLIC_URL"`
}

type Scheduler struct {
	Interval           time.Duration `env:"SCHEDULER_INTERVAL" env-default:"30s"`
	MaxConcurrentPosts int           `env:"SCHEDULER_MAX_CONCURRENT_POSTS" env-default:"1"`
	PlatformDeadline   time.Duration `env:"SCHEDULER_PLATFORM_DEADLINE" env-default:"3m"`
	FailurePolicy      string        `env:"SCHEDULER_FAILURE_POLICY" env-default:"abort_on_first_failure"`
	StrategyOrder      []string      `env:"SCHEDULER_STRATEGY_ORDER" env-separator:"," env-default:"api_token,cookie_snapshot,persistent_session"`
}

type Analytics struct {
	InitialDelay time.Duration `env:"ANALYTICS_INITIAL_DELAY" env-default:"15m"`
	SweepSpec    string        `env:"ANALYTICS_SWEEP_SPEC" env-default:"@every 6h"`
	Lookback     time.Duration `env:"ANALYTICS_LOOKBACK" env-default:"720h"`
}

type Browser struct {
	SessionsRoot      string        `env:"BROWSER_SESSIONS_ROOT" env-default:"./user_sessions"`
	Bin               string        `env:"BROWSER_BIN"`
	NoSandbox         bool          `env:"BROWSER_NO_SANDBOX" env-default:"true"`
	SessionTimeout    time.Duration `env:"BROWSER_SESSION_TIMEOUT" env-default:"168h"`
	OnboardingTimeout time.Duration `env:"BROWSER_ONBOARDING_TIMEOUT" env-default:"15m"`
	MarkerTimeout     time.Duration `env:"BROWSER_MARKER_TIMEOUT" env-default:"10s"`
}

type Platforms struct {
	XBaseURL           string  `env:"X_API_BASE_URL" env-default:"https://api.twitter.com"`
	LinkedInBaseURL    string  `env:"LINKEDIN_API_BASE_URL" env-default:"https://api.linkedin.com"`
	LinkedInVersion    string  `env:"LINKEDIN_API_VERSION" env-default:"202409"`
	InstagramBaseURL   string  `env:"INSTAGRAM_API_BASE_URL" env-default:"https://graph.instagram.com"`
	InstagramVersion   string  `env:"INSTAGRAM_API_VERSION" env-default:"v21.0"`
	GoogleClientID     string  `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string  `env:"GOOGLE_CLIENT_SECRET"`
	RequestsPerSecond  float64 `env:"PLATFORM_REQUESTS_PER_SECOND" env-default:"5"`
}

type Config struct {
	Server          Server
	PostgresURI     string `env:"POSTGRES_URI" env-required:"true"`
	RedisURI        string `env:"REDIS_URI" env-default:"localhost:6379"`
	SecretKey       string `env:"SECRET_KEY" env-required:"true"`
	JWTSecret       string `env:"JWT_SECRET" env-required:"true"`
	CredentialCheck string `env:"CREDENTIAL_CHECK_SPEC" env-default:"@every 00h30m00s"`
	R2              R2
	Scheduler       Scheduler
	Analytics       Analytics
	Browser         Browser
	Platforms       Platforms
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded:", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if _, err := cfg.Scheduler.Strategies(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Strategies parses the configured strategy preference order.
func (s Scheduler) Strategies() ([]models.AuthStrategy, error) {
	if len(s.StrategyOrder) == 0 {
		return models.DefaultStrategyOrder, nil
	}
	out := make([]models.AuthStrategy, 0, len(s.StrategyOrder))
	for _, raw := range s.StrategyOrder {
		st, ok := models.ParseStrategy(strings.TrimSpace(raw))
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q in SCHEDULER_STRATEGY_ORDER", raw)
		}
		out = append(out, st)
	}
	return out, nil
}
