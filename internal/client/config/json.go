package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/formsync/internal/flagx"
	"github.com/dmitrijs2005/formsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals use
// timex.Duration so they can be written as "3s" or as integer nanoseconds.
type JsonConfig struct {
	DataDir           string `json:"data_dir"`
	StoreDriver       string `json:"store_driver"`
	PostgresDSN       string `json:"postgres_dsn"`
	StoragePassphrase string `json:"storage_passphrase"`
	EncryptStorage    *bool  `json:"encrypt_storage"`

	SubmitEndpoint string         `json:"submit_endpoint"`
	TransportKind  string         `json:"transport"`
	SendTimeout    timex.Duration `json:"send_timeout"`
	APISecret      string         `json:"api_secret"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	ProbeKind           string         `json:"probe"`
	ProbeTarget         string         `json:"probe_target"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DrainRatePerSecond  *float64       `json:"drain_rate_per_second"`

	ShellListenAddr string   `json:"shell_listen_addr"`
	AssetOrigin     string   `json:"asset_origin"`
	CacheGeneration string   `json:"cache_generation"`
	AssetManifest   []string `json:"asset_manifest"`

	LogLevel string `json:"log_level"`
}

// parseJson overlays cfg with values from the JSON file named by -c or
// -config. Keys missing from the file keep their current value. Read and
// decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.StoreDriver, jc.StoreDriver)
	setString(&cfg.PostgresDSN, jc.PostgresDSN)
	setString(&cfg.StoragePassphrase, jc.StoragePassphrase)
	if jc.EncryptStorage != nil {
		cfg.EncryptStorage = *jc.EncryptStorage
	}

	setString(&cfg.SubmitEndpoint, jc.SubmitEndpoint)
	setString(&cfg.TransportKind, jc.TransportKind)
	if jc.SendTimeout.Duration > 0 {
		cfg.SendTimeout = jc.SendTimeout.Duration
	}
	setString(&cfg.APISecret, jc.APISecret)

	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)

	setString(&cfg.ProbeKind, jc.ProbeKind)
	setString(&cfg.ProbeTarget, jc.ProbeTarget)
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.DrainRatePerSecond != nil {
		cfg.DrainRatePerSecond = *jc.DrainRatePerSecond
	}

	setString(&cfg.ShellListenAddr, jc.ShellListenAddr)
	setString(&cfg.AssetOrigin, jc.AssetOrigin)
	setString(&cfg.CacheGeneration, jc.CacheGeneration)
	if len(jc.AssetManifest) > 0 {
		cfg.AssetManifest = jc.AssetManifest
	}

	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
