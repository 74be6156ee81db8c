// Package config handles capture session configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	HealthAddr  string // gRPC health service
	OutputDir   string
	Playlist    string
	LogFile     string
	LogLevel    string
	Container   string // "wav" or "raw"
	QueueFrames int

	// Capture backend
	SampleRate     int
	Channels       int
	FramesPerBuf   int
	CaptureDevice  string
	LoopbackTokens []string

	// Segmentation
	SilentRunThreshold     int
	TrackEndCheckThreshold int64
	MinimumValidTrackBytes int64

	// Post-processing
	EncodeEnabled bool
	FFmpegPath    string
	MP3Bitrate    string
	EncodeTimeout time.Duration
	KeepRaw       bool

	// Optional archive upload
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// Load reads configuration from the environment, after merging an optional
// .env file (existing variables win).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		HealthAddr:  getEnv("HEALTH_ADDR", ":50061"),
		OutputDir:   getEnv("OUTPUT_DIR", "."),
		Playlist:    getEnv("PLAYLIST", "playlist.m3u"),
		LogFile:     getEnv("LOG_FILE", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Container:   getEnv("CONTAINER", "wav"),
		QueueFrames: getEnvInt("QUEUE_FRAMES", 256),

		SampleRate:     getEnvInt("SAMPLE_RATE", 44100),
		Channels:       getEnvInt("CHANNELS", 2),
		FramesPerBuf:   getEnvInt("FRAMES_PER_BUFFER", 1024),
		CaptureDevice:  getEnv("CAPTURE_DEVICE", ""),
		LoopbackTokens: getEnvList("LOOPBACK_DEVICES", []string{"blackhole", "loopback", "monitor", "stereo mix", "soundflower", "vb-cable"}),

		SilentRunThreshold:     getEnvInt("SILENT_RUN_THRESHOLD", 64),
		TrackEndCheckThreshold: getEnvInt64("TRACK_END_CHECK_THRESHOLD", 100000),
		MinimumValidTrackBytes: getEnvInt64("MIN_VALID_TRACK_BYTES", 100000),

		EncodeEnabled: getEnvBool("ENCODE_ENABLED", true),
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		MP3Bitrate:    getEnv("MP3_BITRATE", "320k"),
		EncodeTimeout: getEnvDuration("ENCODE_TIMEOUT", 5*time.Minute),
		KeepRaw:       getEnvBool("KEEP_RAW", false),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "tapedeck"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
