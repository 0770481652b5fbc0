// Package config loads the distributor's configuration from environment
// variables using Viper, including the dynamically-named per-adapter
// settings that a struct-unmarshal cannot express.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ied/internal/models"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig controls the cache backend connection.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address viper/go-redis expects.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TimeoutsConfig controls per-call timeouts and retry behavior shared by
// every adapter client and the consumer-notification dispatcher.
type TimeoutsConfig struct {
	AdapterTimeout      time.Duration
	NotificationTimeout time.Duration
	MaxRetryAttempts    int
	RetryDelay          time.Duration
	ReplicationDelay    time.Duration
}

// InternalSubscriptionConfig holds the settings for the wildcard
// subscriptions the engine installs at startup. Bootstrap installs one on
// each adapter that passes its startup health check; adapters that fail it
// get none. EventTypes is sent with each subscription; Metadata is loaded
// from the environment but is not sent to the adapters.
type InternalSubscriptionConfig struct {
	EventTypes []string
	Metadata   []string
}

// Config is the complete, validated configuration for one engine instance.
type Config struct {
	Environment          string
	Server               ServerConfig
	Redis                RedisConfig
	IEDBaseURL           string
	Timeouts             TimeoutsConfig
	InternalSubscription InternalSubscriptionConfig
	Adapters             []models.AdapterDescriptor
	LogLevel             string
	LogFormat            string
}

// IsProduction reports whether the engine is running in production mode,
// which governs bootstrap's fail-fast behavior.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("server_read_timeout_ms", 5000)
	v.SetDefault("server_write_timeout_ms", 10000)
	v.SetDefault("server_idle_timeout_ms", 60000)
	v.SetDefault("server_shutdown_timeout_ms", 10000)
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("ied_base_url", "http://localhost:8080")
	v.SetDefault("adapter_timeout_ms", 5000)
	v.SetDefault("notification_timeout_ms", 5000)
	v.SetDefault("max_retry_attempts", 3)
	v.SetDefault("retry_delay_ms", 1000)
	v.SetDefault("replication_delay_ms", 15000)
	v.SetDefault("internal_subscription_event_types", "*")
	v.SetDefault("internal_subscription_metadata", "sbx")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("node_env", "development")
}

// Load reads configuration from the process environment. Adapter
// descriptors are parsed from ADAPTER_NAMES plus the per-adapter
// <NAME>_ADAPTER_* variables, since Viper's struct-unmarshal has no way to
// express a dynamically-named set of adapters.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	setDefaults(v)

	env := v.GetString("node_env")
	if e := v.GetString("env"); e != "" {
		env = e
	}

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:            v.GetInt("port"),
			ReadTimeout:     time.Duration(v.GetInt("server_read_timeout_ms")) * time.Millisecond,
			WriteTimeout:    time.Duration(v.GetInt("server_write_timeout_ms")) * time.Millisecond,
			IdleTimeout:     time.Duration(v.GetInt("server_idle_timeout_ms")) * time.Millisecond,
			ShutdownTimeout: time.Duration(v.GetInt("server_shutdown_timeout_ms")) * time.Millisecond,
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis_host"),
			Port:     v.GetInt("redis_port"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		IEDBaseURL: v.GetString("ied_base_url"),
		Timeouts: TimeoutsConfig{
			AdapterTimeout:      time.Duration(v.GetInt("adapter_timeout_ms")) * time.Millisecond,
			NotificationTimeout: time.Duration(v.GetInt("notification_timeout_ms")) * time.Millisecond,
			MaxRetryAttempts:    v.GetInt("max_retry_attempts"),
			RetryDelay:          time.Duration(v.GetInt("retry_delay_ms")) * time.Millisecond,
			ReplicationDelay:    time.Duration(v.GetInt("replication_delay_ms")) * time.Millisecond,
		},
		InternalSubscription: InternalSubscriptionConfig{
			EventTypes: splitCSV(v.GetString("internal_subscription_event_types")),
			Metadata:   splitCSV(v.GetString("internal_subscription_metadata")),
		},
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}

	adapters, err := loadAdapters(v)
	if err != nil {
		return nil, err
	}
	cfg.Adapters = adapters

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadAdapters parses ADAPTER_NAMES and the matching <NAME>_ADAPTER_* /
// <NAME>_CHAIN_ID variables into adapter descriptors.
func loadAdapters(v *viper.Viper) ([]models.AdapterDescriptor, error) {
	names := splitCSV(v.GetString("adapter_names"))

	descriptors := make([]models.AdapterDescriptor, 0, len(names))
	for _, name := range names {
		upper := strings.ToUpper(name)

		baseURL := v.GetString(upper + "_adapter_url")
		if baseURL == "" {
			return nil, fmt.Errorf("adapter %s: %s_ADAPTER_URL is not set", name, upper)
		}

		adapterName := v.GetString(upper + "_adapter_name")
		if adapterName == "" {
			adapterName = name
		}

		chainID := v.GetString(upper + "_chain_id")
		if chainID == "" {
			chainID = adapterName
		}

		descriptors = append(descriptors, models.AdapterDescriptor{
			Name:          adapterName,
			ChainID:       chainID,
			BaseURL:       strings.TrimRight(baseURL, "/"),
			PublishPath:   "/publish",
			SubscribePath: "/subscribe",
			HealthPath:    "/health",
		})
	}

	return descriptors, nil
}

// Validate checks that the loaded configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Timeouts.MaxRetryAttempts <= 0 {
		return fmt.Errorf("max retry attempts must be positive, got %d", c.Timeouts.MaxRetryAttempts)
	}

	seen := make(map[string]bool, len(c.Adapters))
	chains := make(map[string]bool, len(c.Adapters))
	for _, a := range c.Adapters {
		if seen[a.Name] {
			return fmt.Errorf("duplicate adapter name: %s", a.Name)
		}
		seen[a.Name] = true
		if chains[a.ChainID] {
			return fmt.Errorf("duplicate chain id: %s", a.ChainID)
		}
		chains[a.ChainID] = true
	}

	return nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
