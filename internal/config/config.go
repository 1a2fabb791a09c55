package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Lark     LarkConfig     `yaml:"lark"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

// LogConfig controls the zerolog output and the rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`

	// OperationRetentionDays prunes stored operation logs; 0 keeps them forever.
	OperationRetentionDays int `yaml:"operation_retention_days"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LarkConfig holds the Lark (Feishu) open platform app credentials.
type LarkConfig struct {
	Domain            string `yaml:"domain"`
	AppID             string `yaml:"app_id"`
	AppSecret         string `yaml:"app_secret"`
	EncryptKey        string `yaml:"encrypt_key"`
	VerificationToken string `yaml:"verification_token"`
	// AssistantUserID is the approver account the service acts as.
	AssistantUserID string `yaml:"assistant_user_id"`
	// CallbackTimeoutSeconds bounds sync check/execute and field proxy calls.
	CallbackTimeoutSeconds int `yaml:"callback_timeout_seconds"`
	// ResubscribeCron schedules the subscription reconcile job; empty disables it.
	ResubscribeCron string `yaml:"resubscribe_cron"`
}

// AuthConfig guards the web API with HS256 bearer tokens when enabled.
type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "larkticket.log",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,

			OperationRetentionDays: 90,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "larkticket.db",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Lark: LarkConfig{
			Domain:                 "https://open.feishu.cn",
			CallbackTimeoutSeconds: 5,
		},
		Auth: AuthConfig{
			Enabled:    false,
			ExpireHour: 24,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if path := os.Getenv("LOG_PATH"); path != "" {
		c.Log.Path = path
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if domain := os.Getenv("LARK_DOMAIN"); domain != "" {
		c.Lark.Domain = domain
	}
	if appID := os.Getenv("LARK_APP_ID"); appID != "" {
		c.Lark.AppID = appID
	}
	if appSecret := os.Getenv("LARK_APP_SECRET"); appSecret != "" {
		c.Lark.AppSecret = appSecret
	}
	if key := os.Getenv("LARK_ENCRYPT_KEY"); key != "" {
		c.Lark.EncryptKey = key
	}
	if token := os.Getenv("LARK_VERIFICATION_TOKEN"); token != "" {
		c.Lark.VerificationToken = token
	}
	if userID := os.Getenv("LARK_ASSISTANT_USER_ID"); userID != "" {
		c.Lark.AssistantUserID = userID
	}
	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		c.Auth.Secret = secret
	}
	if enabled := os.Getenv("AUTH_ENABLED"); enabled != "" {
		c.Auth.Enabled, _ = strconv.ParseBool(enabled)
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
