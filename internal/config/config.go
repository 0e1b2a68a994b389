package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend types understood by the registry
const (
	TypeVisionLabel     = "vision_label"
	TypeOpenAIJSON      = "openai_json"
	TypeGeminiVision    = "gemini_vision"
	TypeOpenAIAdvisory  = "openai_advisory"
	TypePlantClassifier = "plant_classifier"
)

// BackendConfig satu entry di bagian backends
type BackendConfig struct {
	Type       string        `yaml:"type"`
	APIKey     string        `yaml:"apiKey"`
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxResults int           `yaml:"maxResults"`
	Disabled   bool          `yaml:"disabled"`
}

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"` // memory | mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Cache struct {
		Size int `yaml:"size"` // 0 disables the result cache
	} `yaml:"cache"`

	Analysis struct {
		Timeout         time.Duration `yaml:"timeout"`
		BackendTimeout  time.Duration `yaml:"backendTimeout"`
		DefaultBackends []string      `yaml:"defaultBackends"`
	} `yaml:"analysis"`

	Backends map[string]BackendConfig `yaml:"backends"`

	// Weights override the built-in reliability table; fallback applies to unknown ids.
	Weights struct {
		Fallback float64            `yaml:"fallback"`
		Backends map[string]float64 `yaml:"backends"`
	} `yaml:"weights"`

	// Auth.APIKeys maps client name → key; empty disables auth.
	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		RequestsPerMinute int `yaml:"requestsPerMinute"`
		Burst             int `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Load baca file config.yaml. ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 90 * time.Second
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerMinute
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "memory", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio: endpoint and bucketName are required when enabled"))
	}
	for id, b := range c.Backends {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("backends: empty backend id"))
			continue
		}
		switch b.Type {
		case TypeVisionLabel, TypeOpenAIJSON, TypeGeminiVision, TypeOpenAIAdvisory, TypePlantClassifier:
		default:
			errs = append(errs, fmt.Errorf("backends.%s.type: unsupported %q", id, b.Type))
		}
		if b.Timeout < 0 {
			errs = append(errs, fmt.Errorf("backends.%s.timeout: must not be negative", id))
		}
	}
	for _, id := range c.Analysis.DefaultBackends {
		if _, ok := c.Backends[id]; !ok {
			errs = append(errs, fmt.Errorf("analysis.defaultBackends: %q is not a configured backend", id))
		}
	}
	for id, w := range c.Weights.Backends {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("weights.backends.%s: must be within [0,1]", id))
		}
	}
	if c.Weights.Fallback < 0 || c.Weights.Fallback > 1 {
		errs = append(errs, errors.New("weights.fallback: must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, ssl)
}
