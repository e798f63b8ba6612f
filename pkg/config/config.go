package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Store     StoreConfig
	Session   SessionConfig
	Geofence  GeofenceConfig
	Face      FaceConfig
	Templates TemplatesConfig
	Campus    CampusConfig
	Override  OverrideConfig
	Sweep     SweepConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
	Cache     CacheConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects where sessions, records and verification attempts live.
type StoreConfig struct {
	Backend        string
	AttemptBackend string
}

// SessionConfig controls attendance session lifetime and the signed QR payload.
type SessionConfig struct {
	TTL           time.Duration
	QRSecret      string
	ClassroomID   string
	RosterDefault int
}

// GeofenceConfig is the fallback classroom fence used when the campus file has none.
type GeofenceConfig struct {
	Latitude  float64
	Longitude float64
	RadiusM   float64
}

// FaceConfig configures similarity scoring.
type FaceConfig struct {
	Engine         string
	Threshold      float64
	ServiceURL     string
	ServiceSkip    bool
	MaxConcurrency int
	Timeout        time.Duration
}

type TemplatesConfig struct {
	Dir string
}

// CampusConfig points at the externally managed teacher/subject/classroom file.
type CampusConfig struct {
	File string
}

type OverrideConfig struct {
	Grace time.Duration
}

// SweepConfig schedules the background expiry sweep.
type SweepConfig struct {
	Enabled  bool
	Schedule string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// EventsConfig sizes the attendance event worker pool.
type EventsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

type CacheConfig struct {
	Enabled       bool
	AttendanceTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       v.GetString("DB_DRIVER"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Store = StoreConfig{
		Backend:        strings.ToLower(v.GetString("STORE_BACKEND")),
		AttemptBackend: strings.ToLower(v.GetString("ATTEMPT_BACKEND")),
	}

	cfg.Session = SessionConfig{
		TTL:           parseDuration(v.GetString("SESSION_TTL"), 10*time.Minute),
		QRSecret:      v.GetString("QR_SIGNING_SECRET"),
		ClassroomID:   v.GetString("DEFAULT_CLASSROOM_ID"),
		RosterDefault: v.GetInt("ROSTER_SIZE_DEFAULT"),
	}

	cfg.Geofence = GeofenceConfig{
		Latitude:  v.GetFloat64("GEOFENCE_LAT"),
		Longitude: v.GetFloat64("GEOFENCE_LON"),
		RadiusM:   v.GetFloat64("GEOFENCE_RADIUS_M"),
	}

	cfg.Face = FaceConfig{
		Engine:         strings.ToLower(v.GetString("FACE_ENGINE")),
		Threshold:      v.GetFloat64("FACE_THRESHOLD"),
		ServiceURL:     strings.TrimRight(v.GetString("FACE_SERVICE_URL"), "/"),
		ServiceSkip:    v.GetBool("FACE_SERVICE_SKIP"),
		MaxConcurrency: v.GetInt("FACE_MAX_CONCURRENCY"),
		Timeout:        parseDuration(v.GetString("FACE_TIMEOUT"), 10*time.Second),
	}

	cfg.Templates = TemplatesConfig{Dir: v.GetString("TEMPLATES_DIR")}
	cfg.Campus = CampusConfig{File: v.GetString("CAMPUS_FILE")}
	cfg.Override = OverrideConfig{Grace: parseDuration(v.GetString("OVERRIDE_GRACE"), 15*time.Minute)}

	cfg.Sweep = SweepConfig{
		Enabled:  v.GetBool("ENABLE_SWEEP"),
		Schedule: v.GetString("SWEEP_SCHEDULE"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled: v.GetBool("ENABLE_RATE_LIMIT"),
		RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:   v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENT_WORKERS"),
		BufferSize: v.GetInt("EVENT_BUFFER_SIZE"),
		MaxRetries: v.GetInt("EVENT_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("EVENT_RETRY_DELAY"), time.Second),
	}

	cfg.Cache = CacheConfig{
		Enabled:       v.GetBool("ENABLE_CACHE"),
		AttendanceTTL: parseDuration(v.GetString("ATTENDANCE_CACHE_TTL"), 5*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "smart_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("ATTEMPT_BACKEND", BackendMemory)

	v.SetDefault("SESSION_TTL", "10m")
	v.SetDefault("QR_SIGNING_SECRET", "dev_qr_secret")
	v.SetDefault("DEFAULT_CLASSROOM_ID", "main")
	v.SetDefault("ROSTER_SIZE_DEFAULT", 30)

	v.SetDefault("GEOFENCE_LAT", 12.934533)
	v.SetDefault("GEOFENCE_LON", 77.605000)
	v.SetDefault("GEOFENCE_RADIUS_M", 50)

	v.SetDefault("FACE_ENGINE", "local")
	v.SetDefault("FACE_THRESHOLD", 0.80)
	v.SetDefault("FACE_SERVICE_URL", "http://localhost:8001")
	v.SetDefault("FACE_SERVICE_SKIP", false)
	v.SetDefault("FACE_MAX_CONCURRENCY", 4)
	v.SetDefault("FACE_TIMEOUT", "10s")

	v.SetDefault("TEMPLATES_DIR", "./face_templates")
	v.SetDefault("CAMPUS_FILE", "./configs/campus.yaml")
	v.SetDefault("OVERRIDE_GRACE", "15m")

	v.SetDefault("ENABLE_SWEEP", true)
	v.SetDefault("SWEEP_SCHEDULE", "@every 1m")

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.SetDefault("EVENT_WORKERS", 2)
	v.SetDefault("EVENT_BUFFER_SIZE", 256)
	v.SetDefault("EVENT_MAX_RETRIES", 3)
	v.SetDefault("EVENT_RETRY_DELAY", "1s")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("ATTENDANCE_CACHE_TTL", "5s")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
