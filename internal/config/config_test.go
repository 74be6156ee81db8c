package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var envVars = []string{
	"HTTP_ADDR", "OUTPUT_DIR", "PLAYLIST", "CONTAINER", "SAMPLE_RATE", "CHANNELS",
	"SILENT_RUN_THRESHOLD", "TRACK_END_CHECK_THRESHOLD", "MIN_VALID_TRACK_BYTES",
	"ENCODE_ENABLED", "MP3_BITRATE", "ENCODE_TIMEOUT", "LOOPBACK_DEVICES",
}

func TestLoad(t *testing.T) {
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "wav", cfg.Container)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 64, cfg.SilentRunThreshold)
	assert.Equal(t, int64(100000), cfg.TrackEndCheckThreshold)
	assert.Equal(t, int64(100000), cfg.MinimumValidTrackBytes)
	assert.True(t, cfg.EncodeEnabled)
	assert.Equal(t, 5*time.Minute, cfg.EncodeTimeout)
	assert.NotEmpty(t, cfg.LoopbackTokens)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("CONTAINER", "raw")
	t.Setenv("SAMPLE_RATE", "48000")
	t.Setenv("SILENT_RUN_THRESHOLD", "128")
	t.Setenv("MIN_VALID_TRACK_BYTES", "5000")
	t.Setenv("ENCODE_ENABLED", "false")
	t.Setenv("ENCODE_TIMEOUT", "30s")
	t.Setenv("LOOPBACK_DEVICES", "blackhole, , monitor")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "raw", cfg.Container)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 128, cfg.SilentRunThreshold)
	assert.Equal(t, int64(5000), cfg.MinimumValidTrackBytes)
	assert.False(t, cfg.EncodeEnabled)
	assert.Equal(t, 30*time.Second, cfg.EncodeTimeout)
	assert.Equal(t, []string{"blackhole", "monitor"}, cfg.LoopbackTokens)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	assert.Equal(t, "hello", getEnv("TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT", "default"))

	t.Setenv("TEST_INT64", "4200000000")
	assert.Equal(t, int64(4200000000), getEnvInt64("TEST_INT64", 0))
	t.Setenv("TEST_INT_INVALID", "not-a-number")
	assert.Equal(t, 100, getEnvInt("TEST_INT_INVALID", 100))

	t.Setenv("TEST_DURATION_INVALID", "soon")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION_INVALID", time.Second))

	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_FALSE", "false")
	assert.True(t, getEnvBool("TEST_BOOL_ONE", false))
	assert.False(t, getEnvBool("TEST_BOOL_FALSE", true))
	assert.True(t, getEnvBool("NONEXISTENT", true))
}
