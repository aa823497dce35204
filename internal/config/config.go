package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Portal   PortalConfig   `json:"portal"`
	Speech   SpeechConfig   `json:"speech"`
	Archive  ArchiveConfig  `json:"archive"`
	Worker   WorkerConfig   `json:"worker"`
	Browser  BrowserConfig  `json:"browser"`
	Log      LogConfig      `json:"log"`
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// DatabaseConfig holds database configuration. Driver is "mysql" or
// "sqlite"; Path only applies to the sqlite driver.
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

// PortalConfig holds eSIC portal access configuration
type PortalConfig struct {
	BaseURL       string `json:"base_url"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	CookiesPath   string `json:"cookies_path"`
	DefaultAuthor string `json:"default_author"`
	TextLimit     int    `json:"text_limit"`
}

// SpeechConfig holds speech recognition configuration
type SpeechConfig struct {
	Endpoint   string `json:"endpoint"`
	APIKey     string `json:"api_key"`
	Locale     string `json:"locale"`
	SampleRate int    `json:"sample_rate"`
}

// ArchiveConfig holds archival storage configuration
type ArchiveConfig struct {
	Endpoint     string `json:"endpoint"`
	DownloadBase string `json:"download_base"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	ItemPrefix   string `json:"item_prefix"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	AutoStart          bool          `json:"auto_start"`
	PollInterval       time.Duration `json:"poll_interval"`
	LoginMaxAttempts   int           `json:"login_max_attempts"`
	DownloadPoll       time.Duration `json:"download_poll"`
	DownloadMaxRetries int           `json:"download_max_retries"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless    bool          `json:"headless"`
	UserAgent   string        `json:"user_agent"`
	NavTimeout  time.Duration `json:"nav_timeout"`
	DownloadDir string        `json:"download_dir"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "esic"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "esic_api"),
			Path:     getEnv("DB_PATH", "esic.db"),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT", 5)) * time.Second,
			ReadTimeout:  time.Duration(getEnvAsInt("REDIS_READ_TIMEOUT", 3)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("REDIS_WRITE_TIMEOUT", 3)) * time.Second,
			CacheTTL:     time.Duration(getEnvAsInt("REDIS_CACHE_TTL", 600)) * time.Second,
		},
		Portal: PortalConfig{
			BaseURL:       getEnv("ESIC_BASE_URL", "http://esic.prefeitura.sp.gov.br"),
			Email:         getEnv("ESIC_EMAIL", ""),
			Password:      getEnv("ESIC_PASSWORD", ""),
			CookiesPath:   getEnv("ESIC_COOKIES_PATH", "cookies.json"),
			DefaultAuthor: getEnv("ESIC_DEFAULT_AUTHOR", "esiclivre"),
			TextLimit:     getEnvAsInt("ESIC_TEXT_LIMIT", 6000),
		},
		Speech: SpeechConfig{
			Endpoint:   getEnv("SPEECH_ENDPOINT", "http://www.google.com/speech-api/v2/recognize"),
			APIKey:     getEnv("SPEECH_API_KEY", ""),
			Locale:     getEnv("SPEECH_LOCALE", "pt-BR"),
			SampleRate: getEnvAsInt("SPEECH_SAMPLE_RATE", 8000),
		},
		Archive: ArchiveConfig{
			Endpoint:     getEnv("ARCHIVE_ENDPOINT", "https://s3.us.archive.org"),
			DownloadBase: getEnv("ARCHIVE_DOWNLOAD_BASE", "https://archive.org/download"),
			AccessKey:    getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey:    getEnv("ARCHIVE_SECRET_KEY", ""),
			ItemPrefix:   getEnv("ARCHIVE_ITEM_PREFIX", "esiclivre"),
		},
		Worker: WorkerConfig{
			AutoStart:          getEnvAsBool("WORKER_AUTO_START", false),
			PollInterval:       time.Duration(getEnvAsInt("WORKER_POLL_INTERVAL", 5)) * time.Second,
			LoginMaxAttempts:   getEnvAsInt("WORKER_LOGIN_MAX_ATTEMPTS", 10),
			DownloadPoll:       time.Duration(getEnvAsInt("WORKER_DOWNLOAD_POLL", 1)) * time.Second,
			DownloadMaxRetries: getEnvAsInt("WORKER_DOWNLOAD_MAX_RETRIES", 10),
		},
		Browser: BrowserConfig{
			Headless:    getEnvAsBool("BROWSER_HEADLESS", true),
			UserAgent:   getEnv("BROWSER_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			NavTimeout:  time.Duration(getEnvAsInt("BROWSER_NAV_TIMEOUT", 30)) * time.Second,
			DownloadDir: getEnv("BROWSER_DOWNLOAD_DIR", "/tmp/esic-downloads"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 100),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
				CleanupInterval:   time.Duration(getEnvAsInt("RATE_LIMIT_CLEANUP", 60)) * time.Second,
			},
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
		},
	}

	// Validate required fields
	if cfg.Portal.Email == "" || cfg.Portal.Password == "" {
		return nil, fmt.Errorf("ESIC_EMAIL and ESIC_PASSWORD are required")
	}

	return cfg, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
