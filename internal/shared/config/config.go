package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"annotation-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL string
	RunStore    string
	SQLitePath  string
	SQSQueueURL string

	Engine             string
	EngineURL          string
	EngineTimeout      time.Duration
	EngineTokenURL     string
	EngineClientID     string
	EngineClientSecret string
	EngineScopes       []string
	EngineDictionary   string
	EngineLockTimeout  time.Duration
	EngineWarmup       bool

	MaxUploadBytes int64
	AnnotateRate   float64
	AnnotateBurst  int
}

// Engine kinds.
const (
	EngineDictionary = "dictionary"
	EngineRemote     = "remote"
)

// Run store kinds.
const (
	RunStoreMemory   = "memory"
	RunStorePostgres = "postgres"
	RunStoreSQLite   = "sqlite"
)

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience. Variables
	// already present in the environment win.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				telemetry.Warn("config.dotenv_invalid", map[string]any{"path": path, "error": err.Error()})
			}
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	runStore := normalizeRunStore(getEnv("RUN_STORE", ""), dbURL)

	if env == "production" && runStore == RunStoreMemory {
		telemetry.Warn("config.memory_run_store", map[string]any{"env": env})
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		DatabaseURL: dbURL,
		RunStore:    runStore,
		SQLitePath:  getEnv("SQLITE_PATH", "./data/annotations.db"),
		SQSQueueURL: getEnv("SQS_QUEUE_URL", ""),

		Engine:             normalizeEngine(getEnv("ENGINE", EngineDictionary)),
		EngineURL:          getEnv("ENGINE_URL", ""),
		EngineTimeout:      time.Duration(getEnvInt("ENGINE_TIMEOUT_SECONDS", 60)) * time.Second,
		EngineTokenURL:     getEnv("ENGINE_TOKEN_URL", ""),
		EngineClientID:     getEnv("ENGINE_CLIENT_ID", ""),
		EngineClientSecret: getEnv("ENGINE_CLIENT_SECRET", ""),
		EngineScopes:       splitAndTrim(getEnv("ENGINE_SCOPES", "")),
		EngineDictionary:   getEnv("ENGINE_DICTIONARY", ""),
		EngineLockTimeout:  getEnvDuration("ENGINE_LOCK_TIMEOUT", 0),
		EngineWarmup:       getEnvBool("ENGINE_WARMUP", false),

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		AnnotateRate:   getEnvFloat("ANNOTATE_RATE", 2),
		AnnotateBurst:  getEnvInt("ANNOTATE_BURST", 5),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		telemetry.Warn("config.env_invalid", map[string]any{"key": key, "error": err.Error()})
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		telemetry.Warn("config.env_invalid", map[string]any{"key": key, "error": err.Error()})
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		telemetry.Warn("config.env_invalid", map[string]any{"key": key, "error": err.Error()})
		return def
	}
	return val
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30").
func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		telemetry.Warn("config.env_invalid", map[string]any{"key": key, "error": err.Error()})
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

func normalizeEngine(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "remote", "http":
		return EngineRemote
	default:
		return EngineDictionary
	}
}

// normalizeRunStore defaults to postgres when DATABASE_URL is set, matching
// the previous DATABASE_URL-only behavior.
func normalizeRunStore(raw, databaseURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return RunStorePostgres
	case "sqlite", "sqlite3":
		return RunStoreSQLite
	case "memory":
		return RunStoreMemory
	}
	if strings.TrimSpace(databaseURL) != "" {
		return RunStorePostgres
	}
	return RunStoreMemory
}
