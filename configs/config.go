package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Authority AuthorityConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Door      DoorConfig
	Hardware  HardwareConfig
	Reader    ReaderConfig
	Audit     AuditConfig
	Status    StatusConfig
	Log       LogConfig
}

type AuthorityConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

type CacheConfig struct {
	Backend        string // redis or memory
	TTL            time.Duration
	KeyPrefix      string
	MemoryCapacity int
	// LookupTimeout bounds each cache call so a hung store degrades to a miss.
	LookupTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int

	// MaxRetries follows go-redis: 0 means its default of 3, -1 disables retries.
	MaxRetries int

	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type DoorConfig struct {
	InitialState   string
	Settle         time.Duration
	StallThreshold time.Duration
}

type HardwareConfig struct {
	Driver        string // sysfs or simulator
	GPIORoot      string
	PWMRoot       string
	PWMChip       int
	PWMChannel    int
	GrantPin      int
	DenyPin       int
	ServoStep     time.Duration
	Pulse         time.Duration
	ResetAttempts int
}

type ReaderConfig struct {
	Source         string // file path, FIFO or "-" for stdin
	AttemptTimeout time.Duration
	Debounce       time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
}

type AuditConfig struct {
	Driver  string // sqlite, postgres or none
	DSN     string
	HashKey string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type StatusConfig struct {
	Addr         string
	JWTSecret    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

var ErrMissingAPIKey = errors.New("AUTHORITY_API_KEY (or API_KEY) is required")

// Load reads the .env files given (or ./.env when none) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Authority: AuthorityConfig{
			BaseURL:     getEnv("AUTHORITY_BASE_URL", "https://card.ueckoken.club"),
			APIKey:      getEnv("AUTHORITY_API_KEY", getEnv("API_KEY", "")),
			Timeout:     getDurationEnv("AUTHORITY_TIMEOUT", 5*time.Second),
			MaxAttempts: getIntEnv("AUTHORITY_MAX_ATTEMPTS", 2),
			BackoffMin:  getDurationEnv("AUTHORITY_BACKOFF_MIN", 100*time.Millisecond),
			BackoffMax:  getDurationEnv("AUTHORITY_BACKOFF_MAX", time.Second),
		},
		Cache: CacheConfig{
			Backend:        getEnv("CACHE_BACKEND", "redis"),
			TTL:            getDurationEnv("CACHE_TTL", 7*24*time.Hour),
			KeyPrefix:      getEnv("CACHE_KEY_PREFIX", ""),
			MemoryCapacity: getIntEnv("CACHE_MEMORY_CAPACITY", 10_000),
			LookupTimeout:  getDurationEnv("CACHE_LOOKUP_TIMEOUT", 300*time.Millisecond),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			MaxRetries:   getIntEnv("REDIS_MAX_RETRIES", -1),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 4),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 2*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Door: DoorConfig{
			InitialState:   getEnv("DOOR_INITIAL_STATE", "locked"),
			Settle:         getDurationEnv("DOOR_SETTLE", 1700*time.Millisecond),
			StallThreshold: getDurationEnv("DOOR_STALL_THRESHOLD", 30*time.Second),
		},
		Hardware: HardwareConfig{
			Driver:        getEnv("HARDWARE_DRIVER", "sysfs"),
			GPIORoot:      getEnv("HARDWARE_GPIO_ROOT", "/sys/class/gpio"),
			PWMRoot:       getEnv("HARDWARE_PWM_ROOT", "/sys/class/pwm"),
			PWMChip:       getIntEnv("HARDWARE_PWM_CHIP", 0),
			PWMChannel:    getIntEnv("HARDWARE_PWM_CHANNEL", 0),
			GrantPin:      getIntEnv("HARDWARE_GRANT_PIN", 19),
			DenyPin:       getIntEnv("HARDWARE_DENY_PIN", 26),
			ServoStep:     getDurationEnv("HARDWARE_SERVO_STEP", 400*time.Millisecond),
			Pulse:         getDurationEnv("HARDWARE_PULSE", 100*time.Millisecond),
			ResetAttempts: getIntEnv("ACTUATOR_RESET_ATTEMPTS", 5),
		},
		Reader: ReaderConfig{
			Source:         getEnv("READER_SOURCE", "-"),
			AttemptTimeout: getDurationEnv("READER_ATTEMPT_TIMEOUT", 0),
			Debounce:       getDurationEnv("READER_DEBOUNCE", 0),
			BackoffMin:     getDurationEnv("READER_BACKOFF_MIN", 500*time.Millisecond),
			BackoffMax:     getDurationEnv("READER_BACKOFF_MAX", 10*time.Second),
		},
		Audit: AuditConfig{
			Driver:          getEnv("AUDIT_DRIVER", "sqlite"),
			DSN:             getEnv("AUDIT_DSN", "kagi.db"),
			HashKey:         getEnv("AUDIT_HASH_KEY", ""),
			MaxOpenConns:    getIntEnv("AUDIT_MAX_OPEN_CONNS", 4),
			MaxIdleConns:    getIntEnv("AUDIT_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationEnv("AUDIT_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Status: StatusConfig{
			Addr:         getEnv("STATUS_ADDR", "127.0.0.1:9100"),
			JWTSecret:    getEnv("STATUS_JWT_SECRET", ""),
			ReadTimeout:  getDurationEnv("STATUS_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("STATUS_WRITE_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate reports configuration the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Authority.APIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	switch c.Hardware.Driver {
	case "sysfs", "simulator":
	default:
		return fmt.Errorf("unknown HARDWARE_DRIVER %q", c.Hardware.Driver)
	}
	switch c.Audit.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown AUDIT_DRIVER %q", c.Audit.Driver)
	}
	if c.Door.InitialState != "locked" && c.Door.InitialState != "unlocked" {
		return fmt.Errorf("unknown DOOR_INITIAL_STATE %q", c.Door.InitialState)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("168h") or plain seconds ("604800").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
