package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/services"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SCHEDULER_MODE", "FOLLOW_UP_DELAY_DAYS", "PROFILE_STORY_TITLE", "CORS_ALLOWED_ORIGINS", "SURVEY_RULES_PATH", "TEMPORAL_ADDRESS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(nil)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, SchedulerTicker, cfg.SchedulerMode)
	assert.Equal(t, services.DefaultProfileStoryTitle, cfg.ProfileStoryTitle)
	assert.Equal(t, 4, cfg.FollowUpDelayDays)
	assert.Equal(t, 24*time.Hour, cfg.EventDedupeTTL)
	assert.Nil(t, cfg.AllowedOrigins)

	ec := cfg.engineConfig()
	assert.Equal(t, 4, ec.FollowUpDays)
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		t.Setenv("TEMPORAL_ADDRESS", "")
		t.Setenv("SURVEY_RULES_PATH", "")
		t.Setenv("CORS_ALLOWED_ORIGINS", "")
		return LoadConfig(nil)
	}
	cases := map[string]func(*Config){
		"bad scheduler":           func(c *Config) { c.SchedulerMode = "cron" },
		"temporal without server": func(c *Config) { c.SchedulerMode = SchedulerTemporal },
		"zero delay":              func(c *Config) { c.FollowUpDelayDays = 0 },
		"non numeric port":        func(c *Config) { c.Port = "http" },
		"missing title":           func(c *Config) { c.ProfileStoryTitle = "" },
		"missing rules file":      func(c *Config) { c.SurveyRulesPath = "/nonexistent/rules.yaml" },
		"bad origin":              func(c *Config) { c.AllowedOrigins = []string{"not a url"} },
		"tiny interval":           func(c *Config) { c.SweepInterval = time.Millisecond },
		"no concurrency":          func(c *Config) { c.DispatchConcurrency = 0 },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	ok := base()
	ok.SchedulerMode = SchedulerTemporal
	ok.Temporal.Address = "temporal:7233"
	assert.NoError(t, ok.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}
