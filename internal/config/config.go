package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Matching MatchingConfig `yaml:"matching"`
	Observed ObservedConfig `yaml:"observed"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// AgentKey authenticates capture agents calling the resolve endpoint.
	AgentKey string `yaml:"agent_key"`
	// AdminKey authenticates dashboard/operator calls.
	AdminKey string `yaml:"admin_key"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". Memory is for local development only.
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	// Migrate applies embedded SQL migrations on startup.
	Migrate bool `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type MatchingConfig struct {
	EmbeddingDim int `yaml:"embedding_dim"`
	// RegisteredThreshold and ObservedThreshold are independent on purpose.
	RegisteredThreshold     float64       `yaml:"registered_threshold"`
	ObservedThreshold       float64       `yaml:"observed_threshold"`
	PotentialMatchThreshold float64       `yaml:"potential_match_threshold"`
	QueryTimeout            time.Duration `yaml:"query_timeout"`
	// EligibleStatuses lists registered status names that may be granted access.
	EligibleStatuses []string `yaml:"eligible_statuses"`
}

type ObservedConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	ExtendTTL time.Duration `yaml:"extend_ttl"`
	// AutoEnroll creates an observed identity on a full miss. When false a miss is denied.
	AutoEnroll             *bool `yaml:"auto_enroll"`
	CreationLockPartitions int   `yaml:"creation_lock_partitions"`
	HighRiskDenials        int   `yaml:"high_risk_denials"`
}

// AutoEnrollEnabled reports whether unknown faces are enrolled as observed identities.
func (o ObservedConfig) AutoEnrollEnabled() bool {
	return o.AutoEnroll == nil || *o.AutoEnroll
}

type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every default applied and no file or env input.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres or memory", c.Database.Driver))
	}
	if c.Matching.EmbeddingDim <= 0 {
		errs = append(errs, errors.New("matching.embedding_dim must be positive"))
	}
	for name, v := range map[string]float64{
		"matching.registered_threshold":      c.Matching.RegisteredThreshold,
		"matching.observed_threshold":        c.Matching.ObservedThreshold,
		"matching.potential_match_threshold": c.Matching.PotentialMatchThreshold,
	} {
		if v < 0 || v > 2 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 2], got %v", name, v))
		}
	}
	if c.Observed.TTL <= 0 || c.Observed.ExtendTTL <= 0 {
		errs = append(errs, errors.New("observed.ttl and observed.extend_ttl must be positive"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper.interval must be positive"))
	}
	return errors.Join(errs...)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facegate"
	}
	if cfg.Matching.EmbeddingDim == 0 {
		cfg.Matching.EmbeddingDim = 128
	}
	if cfg.Matching.RegisteredThreshold == 0 {
		cfg.Matching.RegisteredThreshold = 0.15
	}
	if cfg.Matching.ObservedThreshold == 0 {
		cfg.Matching.ObservedThreshold = 0.08
	}
	if cfg.Matching.PotentialMatchThreshold == 0 {
		cfg.Matching.PotentialMatchThreshold = 0.35
	}
	if cfg.Matching.QueryTimeout == 0 {
		cfg.Matching.QueryTimeout = 3 * time.Second
	}
	if len(cfg.Matching.EligibleStatuses) == 0 {
		cfg.Matching.EligibleStatuses = []string{"active"}
	}
	if cfg.Observed.TTL == 0 {
		cfg.Observed.TTL = 7 * 24 * time.Hour
	}
	if cfg.Observed.ExtendTTL == 0 {
		cfg.Observed.ExtendTTL = 7 * 24 * time.Hour
	}
	if cfg.Observed.CreationLockPartitions == 0 {
		cfg.Observed.CreationLockPartitions = 1
	}
	if cfg.Observed.HighRiskDenials == 0 {
		cfg.Observed.HighRiskDenials = 3
	}
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = 60 * time.Second
	}
	if cfg.Sweeper.LockTTL == 0 {
		cfg.Sweeper.LockTTL = 50 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_AGENT_KEY"); v != "" {
		cfg.Server.AgentKey = v
	}
	if v := os.Getenv("FACEGATE_ADMIN_KEY"); v != "" {
		cfg.Server.AdminKey = v
	}
	if v := os.Getenv("FACEGATE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FACEGATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEGATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEGATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FACEGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FACEGATE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEGATE_REGISTERED_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.RegisteredThreshold = f
		}
	}
	if v := os.Getenv("FACEGATE_OBSERVED_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.ObservedThreshold = f
		}
	}
	if v := os.Getenv("FACEGATE_SWEEPER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sweeper.Enabled = b
		}
	}
	if v := os.Getenv("FACEGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
