package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ".formsync", c.DataDir)
	assert.Equal(t, DriverSQLite, c.StoreDriver)
	assert.Equal(t, TransportHTTP, c.TransportKind)
	assert.Equal(t, ProbeHTTP, c.ProbeKind)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 10*time.Second, c.SendTimeout)
	assert.Equal(t, "form5-cache-v1", c.CacheGeneration)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080/api/complaints", cfg.SubmitEndpoint)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestEffectiveProbeTarget(t *testing.T) {
	c := Config{SubmitEndpoint: "http://h/api", ProbeKind: ProbeHTTP}
	assert.Equal(t, "http://h/api", c.EffectiveProbeTarget())

	c.ProbeTarget = "http://h/health"
	assert.Equal(t, "http://h/health", c.EffectiveProbeTarget())

	c = Config{SubmitEndpoint: "http://h/api", ProbeKind: ProbeGRPC}
	assert.Empty(t, c.EffectiveProbeTarget())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres }, false},
		{"postgres with dsn", func(c *Config) { c.StoreDriver = DriverPostgres; c.PostgresDSN = "postgres://x" }, true},
		{"unknown driver", func(c *Config) { c.StoreDriver = "bolt" }, false},
		{"s3 without bucket", func(c *Config) { c.TransportKind = TransportS3 }, false},
		{"s3 with bucket", func(c *Config) { c.TransportKind = TransportS3; c.S3Bucket = "forms" }, true},
		{"unknown transport", func(c *Config) { c.TransportKind = "ftp" }, false},
		{"grpc probe without target", func(c *Config) { c.ProbeKind = ProbeGRPC }, false},
		{"unknown probe", func(c *Config) { c.ProbeKind = "icmp" }, false},
		{"zero interval", func(c *Config) { c.OnlineCheckInterval = 0 }, false},
		{"negative rate", func(c *Config) { c.DrainRatePerSecond = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)

			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
