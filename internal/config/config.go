package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marminbh/discourse-autoreply/internal/models"
)

type Config struct {
	Server   ServerConfig
	Forum    ForumConfig
	Webhook  WebhookConfig
	Cache    CacheConfig
	Queue    QueueConfig
	RabbitMQ RabbitMQConfig
	LogLevel string
}

type ServerConfig struct {
	Port string
	Host string
}

// ForumConfig describes the Discourse instance the service replies on.
type ForumConfig struct {
	BaseURL         string
	APIKey          string
	APIUsername     string
	CannedPostID    int
	DefaultResponse string
	ReplyMode       models.ReplyMode
	PMTitle         string
	Timeout         time.Duration
}

type WebhookConfig struct {
	Secret string
}

type CacheConfig struct {
	RedisURL string
	Key      string
	TTL      time.Duration
}

// QueueConfig is shared by both queue backends.
type QueueConfig struct {
	Backend       string
	Name          string
	BatchSize     int
	BatchWait     time.Duration
	ConsumerGroup string
}

type RabbitMQConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	VHost           string
	Exchange        string
	DeclareQueue    bool
	PrefetchCount   int
	ConnectAttempts int
}

const (
	BackendRabbitMQ = "rabbitmq"
	BackendRedis    = "redis"
)

// Load reads configuration from the optional env file and the process environment.
// Environment variables take precedence over the file. An empty envFile skips the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		}
	}

	var missing []string

	get := func(key string) string {
		val := strings.TrimSpace(v.GetString(key))
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	config := &Config{
		Server: ServerConfig{
			Port: v.GetString("SERVER_PORT"),
			Host: v.GetString("SERVER_HOST"),
		},
		Forum: ForumConfig{
			BaseURL:         strings.TrimRight(get("DISCOURSE_URL"), "/"),
			APIKey:          get("DISCOURSE_TOKEN"),
			APIUsername:     get("DISCOURSE_USER"),
			DefaultResponse: v.GetString("DEFAULT_RESPONSE"),
			PMTitle:         v.GetString("PM_TITLE"),
			Timeout:         time.Duration(v.GetInt("FORUM_TIMEOUT_SECONDS")) * time.Second,
		},
		Webhook: WebhookConfig{
			Secret: v.GetString("WEBHOOK_SECRET"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("REDIS_URL"),
			Key:      v.GetString("CACHE_KEY"),
			TTL:      time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		},
		Queue: QueueConfig{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("QUEUE_BACKEND"))),
			Name:          v.GetString("QUEUE_NAME"),
			BatchSize:     v.GetInt("BATCH_SIZE"),
			BatchWait:     time.Duration(v.GetInt("BATCH_WAIT_MS")) * time.Millisecond,
			ConsumerGroup: v.GetString("REDIS_CONSUMER_GROUP"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("RABBITMQ_URL"),
			Host:            v.GetString("RABBITMQ_HOST"),
			Port:            v.GetString("RABBITMQ_PORT"),
			User:            v.GetString("RABBITMQ_USER"),
			Password:        v.GetString("RABBITMQ_PASSWORD"),
			VHost:           v.GetString("RABBITMQ_VHOST"),
			Exchange:        v.GetString("RABBITMQ_EXCHANGE"),
			DeclareQueue:    v.GetBool("RABBITMQ_DECLARE_QUEUE"),
			PrefetchCount:   v.GetInt("RABBITMQ_PREFETCH"),
			ConnectAttempts: v.GetInt("RABBITMQ_CONNECT_ATTEMPTS"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if cannedID := get("CANNED_ID"); cannedID != "" {
		config.Forum.CannedPostID = v.GetInt("CANNED_ID")
		if config.Forum.CannedPostID <= 0 {
			return nil, fmt.Errorf("CANNED_ID must be a positive post id, got %q", cannedID)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	mode, err := models.ParseReplyMode(v.GetString("REPLY_MODE"))
	if err != nil {
		return nil, err
	}
	config.Forum.ReplyMode = mode

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REPLY_MODE", string(models.ReplyModePrivateMessage))
	v.SetDefault("PM_TITLE", "Someone has answered your topic")
	v.SetDefault("FORUM_TIMEOUT_SECONDS", 10)
	v.SetDefault("CACHE_KEY", "canned_response")
	v.SetDefault("CACHE_TTL_SECONDS", 3600)
	v.SetDefault("QUEUE_BACKEND", BackendRabbitMQ)
	v.SetDefault("QUEUE_NAME", "solved-events")
	v.SetDefault("BATCH_SIZE", 10)
	v.SetDefault("BATCH_WAIT_MS", 1000)
	v.SetDefault("REDIS_CONSUMER_GROUP", "autoreply")
	v.SetDefault("RABBITMQ_DECLARE_QUEUE", true)
	v.SetDefault("RABBITMQ_CONNECT_ATTEMPTS", 10)
	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", "5672")
	v.SetDefault("RABBITMQ_USER", "guest")
	v.SetDefault("RABBITMQ_PASSWORD", "guest")
	v.SetDefault("RABBITMQ_VHOST", "/")
}

func (c *Config) validate() error {
	switch c.Queue.Backend {
	case BackendRabbitMQ:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown queue backend: %s", c.Queue.Backend)
	}

	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Queue.BatchSize)
	}
	if c.Queue.BatchWait < 0 {
		return fmt.Errorf("BATCH_WAIT_MS must not be negative")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	// The consumer cannot assemble a batch larger than the prefetch window.
	if c.RabbitMQ.PrefetchCount < c.Queue.BatchSize {
		c.RabbitMQ.PrefetchCount = c.Queue.BatchSize
	}
	return nil
}

// ConnectionURL returns the AMQP URL, preferring an explicit RABBITMQ_URL.
func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	vhost := c.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, strings.TrimPrefix(vhost, "/"))
}
