package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Blob drivers
const (
	BlobS3    = "s3"
	BlobMinio = "minio"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Blob     BlobConfig     `yaml:"blob" envPrefix:"BLOB_"`
	JWT      JWTConfig      `yaml:"jwt" envPrefix:"JWT_"`
	APNs     APNsConfig     `yaml:"apns" envPrefix:"APNS_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port" env:"PORT"`
	Host string `yaml:"host" env:"HOST"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"NAME"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
}

// StoreConfig selects the document store backend
type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
}

// BlobConfig holds object storage configuration
type BlobConfig struct {
	Driver    string        `yaml:"driver" env:"DRIVER"`
	Region    string        `yaml:"region" env:"REGION"`
	Bucket    string        `yaml:"bucket" env:"BUCKET"`
	AccessKey string        `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string        `yaml:"secret_key" env:"SECRET_KEY"`
	Endpoint  string        `yaml:"endpoint" env:"ENDPOINT"`
	UseSSL    bool          `yaml:"use_ssl" env:"USE_SSL"`
	URLExpiry time.Duration `yaml:"url_expiry" env:"URL_EXPIRY"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret" env:"SECRET"`
}

// APNsConfig holds push notification configuration. An empty certificate
// disables pushing.
type APNsConfig struct {
	Certificate string `yaml:"certificate" env:"CERTIFICATE"`
	Password    string `yaml:"password" env:"PASSWORD"`
	Topic       string `yaml:"topic" env:"TOPIC"`
	Production  bool   `yaml:"production" env:"PRODUCTION"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

func defaults() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "messenger", DBName: "messenger", SSLMode: "disable"},
		Store:    StoreConfig{Driver: StoreMemory},
		Blob:     BlobConfig{Driver: BlobMinio, Endpoint: "localhost:9000", Bucket: "messenger-media", Region: "us-east-1"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and then applies environment
// overrides. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Blob.Driver {
	case BlobS3, BlobMinio:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
