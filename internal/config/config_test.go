package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		err  bool
	}{
		{
			name: "valid config",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  false,
		},
		{
			name: "empty address",
			addr: "",
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty DSN",
			addr: addr,
			dsn:  "",
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty signing key",
			addr: addr,
			dsn:  dsn,
			key:  "",
			orig: orig,
			err:  true,
		},
		{
			name: "malformed signing key",
			addr: addr,
			dsn:  dsn,
			key:  "not base64!",
			orig: orig,
			err:  true,
		},
		{
			name: "no allowed origins",
			addr: addr,
			dsn:  dsn,
			key:  key,
			err:  false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.NotEmpty(t, config.SigningKey, "expected signing key to be decoded and not empty")
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err, "expected missing dotenv file to be skipped")
		assert.Equal(t, "localhost:8000", cfg.ServerAddr)
		assert.True(t, cfg.MigrationsEnabled)
		assert.Equal(t, 5*time.Second, cfg.IdleRoomTimeout)
		assert.Empty(t, cfg.AllowedOrigins)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TEAMSESSION_SERVER_ADDR", ":9000")
		t.Setenv("TEAMSESSION_ALLOWED_ORIGINS", "http://a.test,http://b.test")
		t.Setenv("TEAMSESSION_MIGRATIONS_ENABLED", "false")
		t.Setenv("TEAMSESSION_IDLE_ROOM_TIMEOUT", "30s")

		cfg, err := LoadEnv()
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.ServerAddr)
		assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
		assert.False(t, cfg.MigrationsEnabled)
		assert.Equal(t, 30*time.Second, cfg.IdleRoomTimeout)
	})

	t.Run("dotenv file", func(t *testing.T) {
		// godotenv never overrides variables that are already set
		t.Setenv("TEAMSESSION_SIGNING_KEY", "")
		os.Unsetenv("TEAMSESSION_SIGNING_KEY")

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("TEAMSESSION_SIGNING_KEY=c29tZV9zZWNyZXQ=\n"), 0o600))

		cfg, err := LoadEnv(path)
		require.NoError(t, err)
		assert.Equal(t, "c29tZV9zZWNyZXQ=", cfg.SigningSecret)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("TEAMSESSION_IDLE_ROOM_TIMEOUT", "soon")
		_, err := LoadEnv()
		assert.Error(t, err)
	})
}
