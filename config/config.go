package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds file and environment driven configuration values.
// Secrets have no defaults and must come from the environment or the config file.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	AdminUsernames     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// MySQL
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis backs the progress cache and the replay queue
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Award reconciliation
	ReconcileMaxAttempts    int
	ReconcileRetryBackoffMs int
	BroadcastConcurrency    int
	ProgressCacheTTLSeconds int
	// Replay queue for reconciliations that kept failing
	ReplayEnabled     bool
	ReplayQueue       string
	ReplayMaxRetry    int
	ReplayConcurrency int
	MetricsEnabled    bool
}

// IsAdmin reports whether username is configured as an administrator.
func (c AppConfig) IsAdmin(username string) bool {
	if username == "" {
		return false
	}
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), username) {
			return true
		}
	}
	return false
}

var cfg AppConfig
var loaded bool

// Load reads configuration once during boot.
// Precedence: .env -> config file -> defaults -> environment overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	path := getEnv("CONFIG_FILE", "config/config.json")
	if err := loadJSONConfig(path, &cfg); err != nil {
		log.Fatalf("invalid config file %s: %v", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

type fileConfig struct {
	App struct {
		AppPort            string   `json:"AppPort"`
		JWTSecret          string   `json:"JWTSecret"`
		RateLimitPerMinute int      `json:"RateLimitPerMinute"`
		AllowedOrigins     []string `json:"AllowedOrigins"`
		AdminUsernames     []string `json:"AdminUsernames"`
		GinMode            string   `json:"GinMode"`
		GinPath            string   `json:"GinPath"`
	} `json:"app"`
	Database struct {
		URI      string `json:"URI"`
		Host     string `json:"Host"`
		Port     string `json:"Port"`
		User     string `json:"User"`
		Password string `json:"Password"`
		Name     string `json:"Name"`
	} `json:"database"`
	Redis struct {
		Host     string `json:"Host"`
		Port     int    `json:"Port"`
		DB       int    `json:"DB"`
		Password string `json:"Password"`
	} `json:"redis"`
	Log struct {
		Level      string `json:"Level"`
		Path       string `json:"Path"`
		MaxSizeMB  int    `json:"MaxSizeMB"`
		MaxBackups int    `json:"MaxBackups"`
		MaxAgeDays int    `json:"MaxAgeDays"`
		Compress   bool   `json:"Compress"`
	} `json:"log"`
	Awards struct {
		MaxAttempts          int    `json:"MaxAttempts"`
		RetryBackoffMs       int    `json:"RetryBackoffMs"`
		BroadcastConcurrency int    `json:"BroadcastConcurrency"`
		CacheTTLSeconds      int    `json:"CacheTTLSeconds"`
		ReplayEnabled        bool   `json:"ReplayEnabled"`
		ReplayQueue          string `json:"ReplayQueue"`
		ReplayMaxRetry       int    `json:"ReplayMaxRetry"`
		ReplayConcurrency    int    `json:"ReplayConcurrency"`
		MetricsEnabled       bool   `json:"MetricsEnabled"`
	} `json:"awards"`
}

// loadJSONConfig reads the grouped JSON file into out. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var fc fileConfig
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return err
	}

	out.AppPort = fc.App.AppPort
	out.JWTSecret = fc.App.JWTSecret
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.AdminUsernames = fc.App.AdminUsernames
	out.GinMode = fc.App.GinMode
	out.GinPath = fc.App.GinPath

	out.DatabaseURI = fc.Database.URI
	out.DBHost = fc.Database.Host
	out.DBPort = fc.Database.Port
	out.DBUser = fc.Database.User
	out.DBPassword = fc.Database.Password
	out.DBName = fc.Database.Name

	out.RedisHost = fc.Redis.Host
	out.RedisPort = fc.Redis.Port
	out.RedisDB = fc.Redis.DB
	out.RedisPassword = fc.Redis.Password

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.ReconcileMaxAttempts = fc.Awards.MaxAttempts
	out.ReconcileRetryBackoffMs = fc.Awards.RetryBackoffMs
	out.BroadcastConcurrency = fc.Awards.BroadcastConcurrency
	out.ProgressCacheTTLSeconds = fc.Awards.CacheTTLSeconds
	out.ReplayEnabled = fc.Awards.ReplayEnabled
	out.ReplayQueue = fc.Awards.ReplayQueue
	out.ReplayMaxRetry = fc.Awards.ReplayMaxRetry
	out.ReplayConcurrency = fc.Awards.ReplayConcurrency
	out.MetricsEnabled = fc.Awards.MetricsEnabled
	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "crewcenter"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.ReconcileMaxAttempts == 0 {
		c.ReconcileMaxAttempts = 3
	}
	if c.ReconcileRetryBackoffMs == 0 {
		c.ReconcileRetryBackoffMs = 50
	}
	if c.BroadcastConcurrency == 0 {
		c.BroadcastConcurrency = 8
	}
	if c.ProgressCacheTTLSeconds == 0 {
		c.ProgressCacheTTLSeconds = 600
	}
	if c.ReplayQueue == "" {
		c.ReplayQueue = "reconcile"
	}
	if c.ReplayMaxRetry == 0 {
		c.ReplayMaxRetry = 10
	}
	if c.ReplayConcurrency == 0 {
		c.ReplayConcurrency = 2
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	strs := map[string]*string{
		"APP_PORT":       &c.AppPort,
		"JWT_SECRET":     &c.JWTSecret,
		"GIN_MODE":       &c.GinMode,
		"GIN_PATH":       &c.GinPath,
		"DATABASE_URI":   &c.DatabaseURI,
		"DB_HOST":        &c.DBHost,
		"DB_PORT":        &c.DBPort,
		"DB_USER":        &c.DBUser,
		"DB_PASSWORD":    &c.DBPassword,
		"DB_NAME":        &c.DBName,
		"REDIS_HOST":     &c.RedisHost,
		"REDIS_PASSWORD": &c.RedisPassword,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_PATH":       &c.LogPath,
		"REPLAY_QUEUE":   &c.ReplayQueue,
	}
	for key, dst := range strs {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RATE_LIMIT_PER_MINUTE":      &c.RateLimitPerMinute,
		"REDIS_PORT":                 &c.RedisPort,
		"REDIS_DB":                   &c.RedisDB,
		"LOG_MAX_SIZE_MB":            &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":            &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":           &c.LogMaxAgeDays,
		"RECONCILE_MAX_ATTEMPTS":     &c.ReconcileMaxAttempts,
		"RECONCILE_RETRY_BACKOFF_MS": &c.ReconcileRetryBackoffMs,
		"BROADCAST_CONCURRENCY":      &c.BroadcastConcurrency,
		"PROGRESS_CACHE_TTL_SECONDS": &c.ProgressCacheTTLSeconds,
		"REPLAY_MAX_RETRY":           &c.ReplayMaxRetry,
		"REPLAY_CONCURRENCY":         &c.ReplayConcurrency,
	}
	for key, dst := range ints {
		if v := getEnv(key, ""); v != "" {
			*dst = mustParseInt(v)
		}
	}

	bools := map[string]*bool{
		"LOG_COMPRESS":    &c.LogCompress,
		"REPLAY_ENABLED":  &c.ReplayEnabled,
		"METRICS_ENABLED": &c.MetricsEnabled,
	}
	for key, dst := range bools {
		if v := getEnv(key, ""); v != "" {
			*dst = parseBool(v)
		}
	}

	c.AllowedOrigins = readListEnv("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.AdminUsernames = readListEnv("ADMIN_USERNAMES", c.AdminUsernames)
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func parseBool(val string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid boolean value %s: %v", val, err)
	}
	return b
}

func readListEnv(key string, defaults []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaults
	}
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
