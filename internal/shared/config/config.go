package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAnalysisTimeout = 120 * time.Second
	defaultMaxUploadBytes  = 64 << 20
	defaultSessionTTL      = 2 * time.Hour
	defaultSubmitRate      = 0.5
	defaultSubmitBurst     = 5
)

// Config holds application configuration.
type Config struct {
	Port             string
	Env              string
	CORSAllowOrigin  []string
	AnalysisEndpoint string
	AnalysisTimeout  time.Duration
	MaxUploadBytes   int64
	ObjectStoreType  string
	LocalStoreDir    string
	AWSRegion        string
	S3Bucket         string
	S3Prefix         string
	SSEKMSKeyID      string
	DatabaseURL      string
	SessionTTL       time.Duration
	SubmitRate       float64
	SubmitBurst      int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	endpoint := strings.TrimSpace(os.Getenv("ANALYSIS_ENDPOINT"))
	if env == "production" && endpoint == "" {
		log.Printf("ANALYSIS_ENDPOINT is not set; submissions will be refused")
	}

	return Config{
		Port:             getEnv("PORT", "8080"),
		Env:              env,
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:8080")),
		AnalysisEndpoint: endpoint,
		AnalysisTimeout:  getDuration("ANALYSIS_TIMEOUT", defaultAnalysisTimeout),
		MaxUploadBytes:   getInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		ObjectStoreType:  normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:    getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:        getEnv("AWS_REGION", ""),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Prefix:         getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:      getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SessionTTL:       getDuration("SESSION_TTL", defaultSessionTTL),
		SubmitRate:       getFloat("SUBMIT_RATE", defaultSubmitRate),
		SubmitBurst:      int(getInt64("SUBMIT_BURST", defaultSubmitBurst)),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getDuration accepts Go durations ("90s") or a bare number of seconds ("90").
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration %q: %v", key, raw, err)
		return def
	}
	return d
}

func getInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid size %q", key, raw)
		return def
	}
	return val
}

// getFloat allows zero, which disables whatever the value rates.
func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		log.Printf("config %s invalid number %q", key, raw)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
