// Package config loads eidolon's server configuration from environment
// variables and an optional YAML file, via viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the eidolon server needs to start.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Database DatabaseConfig `mapstructure:"database"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server and task-lifecycle configuration.
type ServerConfig struct {
	Port                 int `mapstructure:"port"`
	ReadTimeout          int `mapstructure:"read_timeout"`
	WriteTimeout         int `mapstructure:"write_timeout"`
	TaskRetentionSeconds int `mapstructure:"task_retention_seconds"`
	SubscriptionQueueCap int `mapstructure:"subscription_queue_cap"`
}

// TaskRetention returns the configured task retention as a Duration.
func (s ServerConfig) TaskRetention() time.Duration {
	return time.Duration(s.TaskRetentionSeconds) * time.Second
}

// ScannerConfig points at the external scanner binary eidolon shells out to.
type ScannerConfig struct {
	BinPath string `mapstructure:"bin_path"`
}

// GraphConfig holds the Neo4j connection the Graph Writer targets.
type GraphConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// DatabaseConfig holds the Postgres DSN backing the ScanConfig store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RabbitMQConfig holds the optional AMQP mirror sink for the Event Bus.
// URL == "" disables the sink entirely.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// AuditConfig holds the optional HTTP audit sink. URL == "" falls back to
// a no-op sink, since audit persistence is an external collaborator this
// module only defines the interface for.
type AuditConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig controls zap's construction.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional YAML file, then environment
// variables (which always win), then returns the merged Config.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("eidolon")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/eidolon/")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.task_retention_seconds", 5)
	v.SetDefault("server.subscription_queue_cap", 1024)

	v.SetDefault("scanner.bin_path", "nmap")

	v.SetDefault("graph.url", "bolt://localhost:7687")
	v.SetDefault("graph.user", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")

	v.SetDefault("database.url", "")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "eidolon.events")

	v.SetDefault("audit.url", "")
	v.SetDefault("audit.api_key", "")

	v.SetDefault("logging.level", "info")
}

// bindEnv maps the env-var names eidolon actually documents onto the
// dotted viper keys AutomaticEnv's SCANNER_BIN→scanner.bin_path-style
// replacer would not produce on its own.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("scanner.bin_path", "SCANNER_BIN")
	_ = v.BindEnv("graph.url", "GRAPH_URL")
	_ = v.BindEnv("graph.user", "GRAPH_USER")
	_ = v.BindEnv("graph.password", "GRAPH_PASSWORD")
	_ = v.BindEnv("server.task_retention_seconds", "TASK_RETENTION_SECONDS")
	_ = v.BindEnv("server.subscription_queue_cap", "SUBSCRIPTION_QUEUE_CAP")
	_ = v.BindEnv("server.port", "EIDOLON_SERVER_PORT")
	_ = v.BindEnv("database.url", "EIDOLON_CONFIG_DATABASE_URL")
	_ = v.BindEnv("rabbitmq.url", "EIDOLON_RABBITMQ_URL")
	_ = v.BindEnv("rabbitmq.exchange", "EIDOLON_RABBITMQ_EXCHANGE")
	_ = v.BindEnv("audit.url", "EIDOLON_AUDIT_URL")
	_ = v.BindEnv("audit.api_key", "EIDOLON_AUDIT_API_KEY")
	_ = v.BindEnv("logging.level", "EIDOLON_LOG_LEVEL")
}
