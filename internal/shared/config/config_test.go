package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	ctopics "github.com/radieske/race-odds-monitor/pkg/contracts/topics"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "race-monitor")

	cfg := Load()

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, "9095", cfg.MetricsPort)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.OrchestratorInterval)
	assert.Equal(t, 10*time.Minute, cfg.AutoSwitchAfter)
	assert.Equal(t, ctopics.SteamAlerts, cfg.TopicSteamAlerts)
	assert.Equal(t, "https://www.zeturf.com", cfg.SourceBaseURL)
	assert.False(t, cfg.DiscoverOnStartup)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "steam-alert-worker")
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("AUTO_SWITCH_AFTER", "not-a-duration")
	t.Setenv("DISCOVER_ON_STARTUP", "true")
	t.Setenv("DASHBOARD_API_URL", "http://api.local:9000/")
	t.Setenv("RACE_SOURCE_BASE_URL", "http://localhost:8090/")

	cfg := Load()

	assert.Equal(t, "", cfg.HTTPPort)
	assert.Equal(t, "9097", cfg.MetricsPort)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.AutoSwitchAfter, "invalid duration falls back to default")
	assert.True(t, cfg.DiscoverOnStartup)
	assert.Equal(t, "http://api.local:9000", cfg.DashboardAPIURL)
	assert.Equal(t, "http://localhost:8090", cfg.SourceBaseURL)
}

func TestBrokers(t *testing.T) {
	assert.Empty(t, Config{KafkaBrokers: ""}.Brokers())
	assert.Equal(t, []string{"a:9092", "b:9092"}, Config{KafkaBrokers: "a:9092, b:9092,"}.Brokers())
}
