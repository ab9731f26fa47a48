package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "teamsession"

type Config struct {
	ServerAddr        string        `envconfig:"SERVER_ADDR" default:"localhost:8000"`
	DatabaseDSN       string        `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningSecret     string        `envconfig:"SIGNING_KEY"`
	AllowedOrigins    []string      `envconfig:"ALLOWED_ORIGINS"`
	MigrationsEnabled bool          `envconfig:"MIGRATIONS_ENABLED" default:"true"`
	IdleRoomTimeout   time.Duration `envconfig:"IDLE_ROOM_TIMEOUT" default:"5s"`
	SigningKey        []byte        `ignored:"true"`
}

// LoadEnv reads TEAMSESSION_* variables after loading the given dotenv
// files. Missing dotenv files are skipped.
func LoadEnv(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	return cfg, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("signing key is empty")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:        serverAddr,
		DatabaseDSN:       databaseDSN,
		SigningSecret:     base64Secret,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		MigrationsEnabled: true,
		IdleRoomTimeout:   5 * time.Second,
	}, nil
}
