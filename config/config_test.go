package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "feedback-router", cfg.AppName)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerPollInterval)
	assert.Equal(t, 100, cfg.SchedulerBatchSize)
	assert.InDelta(t, 0.30, cfg.ConsiderationThreshold, 1e-9)
	assert.InDelta(t, 0.80, cfg.AutoMatchThreshold, 1e-9)
	assert.Equal(t, 5, cfg.MaxReviewCandidates)
	assert.False(t, cfg.FilterCandidatesByCategory)
	assert.Equal(t, 2*time.Minute, cfg.ClaimTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.UsesDatabase())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCHEDULER_POLL_INTERVAL", "30s")
	t.Setenv("AUTO_MATCH_THRESHOLD", "0.9")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DB_HOST", "postgres")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SchedulerPollInterval)
	assert.InDelta(t, 0.9, cfg.AutoMatchThreshold, 1e-9)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.UsesDatabase())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SEED_FILE=seed.json\nMAX_REVIEW_CANDIDATES=3\n"), 0o600))
	t.Setenv("MAX_REVIEW_CANDIDATES", "7")
	t.Cleanup(func() { _ = os.Unsetenv("SEED_FILE") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "seed.json", cfg.SeedFile)
	assert.Equal(t, 7, cfg.MaxReviewCandidates)
}
