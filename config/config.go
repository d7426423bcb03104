package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportStomp = "stomp"
	TransportNats  = "nats"
	TransportRedis = "redis"
	TransportNone  = "none"
)

type Config struct {
	AppMode string `yaml:"app_mode"`
	LogMode string `yaml:"log_mode"`

	APIBaseURL string `yaml:"api_url"`
	WSURL      string `yaml:"ws_url"`
	AuthToken  string `yaml:"token"`
	UserID     int64  `yaml:"user_id"`
	Username   string `yaml:"username"`

	PushTransport  string        `yaml:"push_transport"`
	NatsURL        string        `yaml:"nats_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	HeartBeat      time.Duration `yaml:"heartbeat"`

	DedupWindow     time.Duration `yaml:"dedup_window"`
	ExactDedupOnly  bool          `yaml:"exact_dedup_only"`
	ReadReceipts    bool          `yaml:"read_receipts"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RefreshRPS      float64       `yaml:"refresh_rps"`
	RefreshBurst    int           `yaml:"refresh_burst"`
	ServerTimezone  string        `yaml:"server_timezone"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`

	RedisEnabled   bool          `yaml:"redis_enabled"`
	RedisHost      string        `yaml:"redis_host"`
	RedisPort      string        `yaml:"redis_port"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	ParticipantTTL time.Duration `yaml:"participant_ttl"`

	BridgePort    string        `yaml:"bridge_port"`
	BridgeToken   string        `yaml:"bridge_token"`
	AdminCooldown time.Duration `yaml:"admin_cooldown"`
}

func defaults() Config {
	return Config{
		AppMode:         "release",
		LogMode:         "development",
		APIBaseURL:      "https://it342-g5-collaboraid.onrender.com/api",
		WSURL:           "wss://it342-g5-collaboraid.onrender.com/ws/websocket",
		PushTransport:   TransportStomp,
		NatsURL:         "nats://127.0.0.1:4222",
		ReconnectDelay:  5 * time.Second,
		HeartBeat:       4 * time.Second,
		DedupWindow:     5 * time.Second,
		RefreshInterval: 30 * time.Second,
		RefreshRPS:      0.2,
		RefreshBurst:    1,
		ServerTimezone:  "UTC",
		HTTPTimeout:     15 * time.Second,
		RedisHost:       "localhost",
		RedisPort:       "6379",
		ParticipantTTL:  5 * time.Minute,
		BridgePort:      "8085",
		AdminCooldown:   5 * time.Minute,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and the environment, in that order of precedence.
func LoadConfig(path string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.AppMode = getEnv("APP_MODE", cfg.AppMode)
	cfg.LogMode = getEnv("LOG_MODE", cfg.LogMode)
	cfg.APIBaseURL = strings.TrimRight(getEnv("COLLAB_API_URL", cfg.APIBaseURL), "/")
	cfg.WSURL = getEnv("COLLAB_WS_URL", cfg.WSURL)
	cfg.AuthToken = getEnv("COLLAB_TOKEN", cfg.AuthToken)
	cfg.UserID = getEnvAsInt64("COLLAB_USER_ID", cfg.UserID)
	cfg.Username = getEnv("COLLAB_USERNAME", cfg.Username)
	cfg.PushTransport = strings.ToLower(getEnv("PUSH_TRANSPORT", cfg.PushTransport))
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.ReconnectDelay = getEnvAsDuration("RECONNECT_DELAY", cfg.ReconnectDelay)
	cfg.HeartBeat = getEnvAsDuration("HEARTBEAT", cfg.HeartBeat)
	cfg.DedupWindow = getEnvAsDuration("DEDUP_WINDOW", cfg.DedupWindow)
	cfg.ExactDedupOnly = getEnvAsBool("EXACT_DEDUP_ONLY", cfg.ExactDedupOnly)
	cfg.ReadReceipts = getEnvAsBool("READ_RECEIPTS", cfg.ReadReceipts)
	cfg.RefreshInterval = getEnvAsDuration("REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.RefreshRPS = getEnvAsFloat("REFRESH_RPS", cfg.RefreshRPS)
	cfg.RefreshBurst = getEnvAsInt("REFRESH_BURST", cfg.RefreshBurst)
	cfg.ServerTimezone = getEnv("SERVER_TIMEZONE", cfg.ServerTimezone)
	cfg.HTTPTimeout = getEnvAsDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.RedisEnabled = getEnvAsBool("REDIS_ENABLED", cfg.RedisEnabled)
	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvAsInt("REDIS_DB", cfg.RedisDB)
	cfg.ParticipantTTL = getEnvAsDuration("PARTICIPANT_TTL", cfg.ParticipantTTL)
	cfg.BridgePort = getEnv("BRIDGE_PORT", cfg.BridgePort)
	cfg.BridgeToken = getEnv("BRIDGE_TOKEN", cfg.BridgeToken)
	cfg.AdminCooldown = getEnvAsDuration("ADMIN_COOLDOWN", cfg.AdminCooldown)

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.UserID <= 0 {
		return fmt.Errorf("COLLAB_USER_ID is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("COLLAB_API_URL is required")
	}
	switch c.PushTransport {
	case TransportStomp, TransportNats, TransportNone:
	case TransportRedis:
		if !c.RedisEnabled {
			return fmt.Errorf("push transport %q requires REDIS_ENABLED", c.PushTransport)
		}
	default:
		return fmt.Errorf("unknown push transport %q", c.PushTransport)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the zone the backend's zone-less timestamps are written in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ServerTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_TIMEZONE %q: %w", c.ServerTimezone, err)
	}
	return loc, nil
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
