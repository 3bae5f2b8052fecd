package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	TransportHTTP = "http"
	TransportS3   = "s3"

	ProbeHTTP = "http"
	ProbeGRPC = "grpc"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds runtime settings for the formsync client.
//
// Units: SendTimeout and OnlineCheckInterval are time.Duration values.
// DrainRatePerSecond of zero means queued entries are sent without pacing.
type Config struct {
	DataDir           string
	StoreDriver       string
	PostgresDSN       string
	StoragePassphrase string
	EncryptStorage    bool

	SubmitEndpoint string
	TransportKind  string
	SendTimeout    time.Duration
	APISecret      string

	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	ProbeKind           string
	ProbeTarget         string
	OnlineCheckInterval time.Duration
	DrainRatePerSecond  float64

	ShellListenAddr string
	AssetOrigin     string
	CacheGeneration string
	AssetManifest   []string

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = ".formsync"
	c.StoreDriver = DriverSQLite
	c.SubmitEndpoint = "http://127.0.0.1:8080/api/complaints"
	c.TransportKind = TransportHTTP
	c.SendTimeout = 10 * time.Second
	c.S3Region = "us-east-1"
	c.ProbeKind = ProbeHTTP
	c.OnlineCheckInterval = 3 * time.Second
	c.ShellListenAddr = "127.0.0.1:8081"
	c.CacheGeneration = "form5-cache-v1"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// EffectiveProbeTarget is ProbeTarget, or the submit endpoint for HTTP probes
// when no target is set.
func (c *Config) EffectiveProbeTarget() string {
	if c.ProbeTarget == "" && c.ProbeKind == ProbeHTTP {
		return c.SubmitEndpoint
	}
	return c.ProbeTarget
}

// Validate reports settings that cannot be combined into a working client.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres store needs a DSN", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	switch c.TransportKind {
	case TransportHTTP:
		if c.SubmitEndpoint == "" {
			return fmt.Errorf("%w: submit endpoint is empty", ErrInvalidConfig)
		}
	case TransportS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3 transport needs a bucket", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.TransportKind)
	}

	switch c.ProbeKind {
	case ProbeHTTP:
	case ProbeGRPC:
		if c.ProbeTarget == "" {
			return fmt.Errorf("%w: grpc probe needs a target", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown probe %q", ErrInvalidConfig, c.ProbeKind)
	}

	if c.OnlineCheckInterval <= 0 {
		return fmt.Errorf("%w: online check interval must be positive", ErrInvalidConfig)
	}
	if c.DrainRatePerSecond < 0 {
		return fmt.Errorf("%w: drain rate must not be negative", ErrInvalidConfig)
	}
	return nil
}
