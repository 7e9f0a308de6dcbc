package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/yungbote/lineflow-backend/internal/clients/line"
	"github.com/yungbote/lineflow-backend/internal/clients/redis"
	"github.com/yungbote/lineflow-backend/internal/data/db"
	"github.com/yungbote/lineflow-backend/internal/platform/envutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
	"github.com/yungbote/lineflow-backend/internal/temporalx"
)

const (
	SchedulerTicker   = "ticker"
	SchedulerTemporal = "temporal"
	SchedulerOff      = "off"
)

type Config struct {
	Env         string `validate:"required"`
	ServiceName string `validate:"required"`
	Port        string `validate:"required,numeric"`

	ProfileStoryTitle string `validate:"required"`
	FollowUpDelayDays int    `validate:"min=1,max=60"`

	LINE     line.Config
	Postgres db.PostgresConfig
	Redis    redis.Config

	EventDedupeTTL      time.Duration
	DispatchConcurrency int64 `validate:"min=1,max=64"`
	WebhookTimeout      time.Duration

	SchedulerMode  string `validate:"oneof=ticker temporal off"`
	SweepInterval  time.Duration
	EventRetention time.Duration
	Temporal       temporalx.Config

	SurveyRulesPath   string `validate:"omitempty,file"`
	InternalAPISecret string
	AllowedOrigins    []string `validate:"dive,url"`
	ReportingEnabled  bool
}

// LoadConfig reads .env (when present) and then the process environment.
func LoadConfig(log *logger.Logger) Config {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) && log != nil {
			log.Warn("could not read .env", "error", err)
		}
	} else if log != nil {
		log.Debug("loaded .env")
	}

	return Config{
		Env:         envutil.String("APP_ENV", "development"),
		ServiceName: envutil.String("SERVICE_NAME", "lineflow"),
		Port:        envutil.String("PORT", "8080"),

		ProfileStoryTitle: envutil.String("PROFILE_STORY_TITLE", services.DefaultProfileStoryTitle),
		FollowUpDelayDays: envutil.Int("FOLLOW_UP_DELAY_DAYS", 4),

		LINE: line.ConfigFromEnv(),
		Postgres: db.PostgresConfig{
			DSN:          envutil.String("POSTGRES_DSN", ""),
			Host:         envutil.String("POSTGRES_HOST", "localhost"),
			Port:         envutil.String("POSTGRES_PORT", "5432"),
			User:         envutil.String("POSTGRES_USER", "postgres"),
			Password:     envutil.String("POSTGRES_PASSWORD", ""),
			Name:         envutil.String("POSTGRES_NAME", "lineflow"),
			SSLMode:      envutil.String("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns: envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envutil.Int("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: redis.ConfigFromEnv(),

		EventDedupeTTL:      envutil.Duration("EVENT_DEDUPE_TTL", 24*time.Hour),
		DispatchConcurrency: int64(envutil.Int("DISPATCH_CONCURRENCY", 8)),
		WebhookTimeout:      envutil.Duration("WEBHOOK_TIMEOUT", 25*time.Second),

		SchedulerMode:  strings.ToLower(envutil.String("SCHEDULER_MODE", SchedulerTicker)),
		SweepInterval:  envutil.Duration("SWEEP_INTERVAL", 5*time.Minute),
		EventRetention: envutil.Duration("EVENT_RETENTION", 7*24*time.Hour),
		Temporal:       temporalx.LoadConfig(),

		SurveyRulesPath:   envutil.String("SURVEY_RULES_PATH", ""),
		InternalAPISecret: envutil.String("INTERNAL_API_SECRET", ""),
		AllowedOrigins:    splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		ReportingEnabled:  envutil.Bool("REPORTING_ENABLED", true),
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.SchedulerMode == SchedulerTemporal && !c.Temporal.Enabled() {
		return fmt.Errorf("invalid config: SCHEDULER_MODE=temporal needs TEMPORAL_ADDRESS")
	}
	if c.SchedulerMode == SchedulerTicker && c.SweepInterval < time.Second {
		return fmt.Errorf("invalid config: SWEEP_INTERVAL must be at least 1s")
	}
	return nil
}

func (c Config) engineConfig() services.EngineConfig {
	return services.EngineConfig{
		ProfileStoryTitle: c.ProfileStoryTitle,
		FollowUpDays:      c.FollowUpDelayDays,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
