package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"villaops/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("VILLAOPS_TEST_DB", "villas.db")
	yamlContent := `
database:
  path: "${VILLAOPS_TEST_DB}"
api:
  enabled: true
properties:
  - id: 1
    name: "Villa Aurora"
    max_guests: 6
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "villas.db", cfg.Database.Path)
	require.Len(t, cfg.Properties, 1)
	assert.Equal(t, "Villa Aurora", cfg.Properties[0].Name)

	// defaults
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.InDelta(t, 0.8, cfg.Approvals.ConfidenceThreshold, 0.0001)
	assert.Equal(t, 11, cfg.Booking.CleaningStartHour)
	assert.Equal(t, "villaops:changes", cfg.Realtime.Channel)
	assert.Equal(t, "08:00", cfg.Telegram.DigestTime)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:  DatabaseConfig{Path: "path"},
			Approvals: ApprovalConfig{ConfidenceThreshold: 0.7},
			Booking:   BookingConfig{CleaningStartHour: 11},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Approvals.ConfidenceThreshold = 1.5 }, wantErr: true},
		{name: "bad cleaning hour", mutate: func(c *Config) { c.Booking.CleaningStartHour = 24 }, wantErr: true},
		{name: "tls without cert", mutate: func(c *Config) { c.API.GRPC.TLS.Enabled = true }, wantErr: true},
		{
			name: "duplicate property id",
			mutate: func(c *Config) {
				c.Properties = []models.Property{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}}
			},
			wantErr: true,
		},
		{
			name:    "zero property id",
			mutate:  func(c *Config) { c.Properties = []models.Property{{Name: "A"}} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "properties.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
properties:
  - id: 1
    name: "Villa Aurora"
    bedrooms: 3
    max_guests: 6
    is_active: true
  - id: 2
    name: "Casa Mar"
    max_guests: 4
`), 0o644))

	properties, err := LoadProperties(path)
	require.NoError(t, err)
	require.Len(t, properties, 2)
	assert.Equal(t, 3, properties[0].Bedrooms)
	assert.Equal(t, "Casa Mar", properties[1].Name)

	require.NoError(t, os.WriteFile(path, []byte("properties:\n  - id: 0\n    name: x\n"), 0o644))
	_, err = LoadProperties(path)
	assert.Error(t, err)
}

func TestWatchProperties(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "properties.yaml")
	require.NoError(t, os.WriteFile(path, []byte("properties:\n  - id: 1\n    name: A\n"), 0o644))

	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []models.Property, 1)
	go func() {
		_ = WatchProperties(ctx, path, &logger, func(p []models.Property) {
			select {
			case reloaded <- p:
			default:
			}
		})
	}()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("properties:\n  - id: 1\n    name: A\n  - id: 2\n    name: B\n"), 0o644))

	select {
	case p := <-reloaded:
		assert.Len(t, p, 2)
	case <-time.After(3 * time.Second):
		t.Fatal("expected catalog reload")
	}
}
