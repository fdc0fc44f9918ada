package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

func (a AppConfig) Development() bool { return a.Env == "development" }

func (a AppConfig) Addr() string { return fmt.Sprintf(":%d", a.Port) }

type StoreConfig struct {
	Driver         string `mapstructure:"driver"` // mongo | memory
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MongoConfig struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	MessagesCollection string `mapstructure:"messages_collection"`
}

type BreakerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxFailures int  `mapstructure:"max_failures"`
	IntervalSec int  `mapstructure:"interval_seconds"`
	TimeoutSec  int  `mapstructure:"timeout_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	TopicMessageSent string   `mapstructure:"topic_message_sent"`
}

type WSConfig struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	MaxBodyBytes         int     `mapstructure:"max_body_bytes"`
	SendPerSecond        float64 `mapstructure:"send_per_second"`
	SendBurst            int     `mapstructure:"send_burst"`
}

type JWTConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Algorithm     string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Store     StoreConfig     `mapstructure:"store"`
	Mongo     MongoConfig     `mapstructure:"mongodb"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	WS        WSConfig        `mapstructure:"ws"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// derived
	StoreTimeout  time.Duration
	PingInterval  time.Duration
	WriteDeadline time.Duration
}

// Load reads the YAML file at path, applies APP_* environment overrides
// (APP_MONGODB_URI, APP_REDIS_ENABLED, ...) and fills defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.derive()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 8080)
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.timeout_seconds", 5)
	v.SetDefault("mongodb.database", "bookloop")
	v.SetDefault("mongodb.messages_collection", "messages")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_seconds", 60)
	v.SetDefault("breaker.timeout_seconds", 15)
	v.SetDefault("redis.prefix", "bookloop")
	v.SetDefault("kafka.topic_message_sent", "message.sent")
	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.max_body_bytes", 4096)
	v.SetDefault("ws.send_per_second", 5)
	v.SetDefault("ws.send_burst", 10)
	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("ratelimit.per_minute", 120)
}

func (c *Config) derive() {
	c.StoreTimeout = time.Duration(c.Store.TimeoutSeconds) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
}

func (c *Config) validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("mongodb.uri missing")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (use mongo or memory)", c.Store.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers required when kafka is enabled")
	}
	if c.JWT.Enabled {
		switch strings.ToUpper(c.JWT.Algorithm) {
		case "RS256":
			if c.JWT.PublicKeyPath == "" {
				return errors.New("jwt.public_key_path required for RS256")
			}
		case "HS256":
			if c.JWT.HSSecret == "" {
				return errors.New("jwt.hs_secret required for HS256")
			}
		default:
			return errors.New("invalid jwt.alg (use RS256 or HS256)")
		}
	}
	return nil
}
