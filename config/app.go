package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is node-local process configuration, distinct from the
// replicated RootConfig document. It is read from
// $DW_ROOT_PATH/displaywall.yaml when present; every field has a
// default and a DW_* environment override.
type AppConfig struct {
	RootPath     string        `yaml:"-"`
	ImageDir     string        `yaml:"image_dir"`
	ConfigPath   string        `yaml:"config_path"`
	IndexPath    string        `yaml:"index_path"`
	ListenAddr   string        `yaml:"listen_addr"`
	PeerPort     int           `yaml:"peer_port"`
	MPVBin       string        `yaml:"mpv_bin"`
	ScanInterval time.Duration `yaml:"scan_interval"`

	// Optional cloud mirror. Both profile and bucket must be set to
	// enable it.
	AWSProfile  string `yaml:"aws_profile"`
	S3Bucket    string `yaml:"s3_bucket"`
	CloudFolder string `yaml:"cloud_folder"`
}

const appConfigName = "displaywall.yaml"

func defaultAppConfig(rootPath string) AppConfig {
	return AppConfig{
		RootPath:     rootPath,
		ImageDir:     filepath.Join(rootPath, "uploads"),
		ConfigPath:   filepath.Join(rootPath, "displaywall.json"),
		IndexPath:    filepath.Join(rootPath, "library.db"),
		ListenAddr:   "0.0.0.0",
		PeerPort:     DefaultPeerPort,
		MPVBin:       "mpv",
		ScanInterval: time.Hour,
		CloudFolder:  "cloud",
	}
}

// LoadApp reads the yaml file if present and applies environment
// overrides. A missing file is not an error.
func LoadApp(rootPath string) (AppConfig, error) {
	cfg := defaultAppConfig(rootPath)

	data, err := os.ReadFile(filepath.Join(rootPath, appConfigName))
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("unable to parse %s, %w", appConfigName, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("unable to read %s, %w", appConfigName, err)
	}

	if v := os.Getenv("DW_IMAGE_DIR"); v != "" {
		cfg.ImageDir = v
	}
	if v := os.Getenv("DW_CONFIG_PATH"); v != "" {
		cfg.ConfigPath = v
	}
	if v := os.Getenv("DW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DW_PEER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return cfg, fmt.Errorf("invalid DW_PEER_PORT %q", v)
		}
		cfg.PeerPort = port
	}
	if v := os.Getenv("DW_MPV_BIN"); v != "" {
		cfg.MPVBin = v
	}
	if v := os.Getenv("DW_AWS_PROFILE"); v != "" {
		cfg.AWSProfile = v
	}
	if v := os.Getenv("DW_S3_BUCKET"); v != "" {
		cfg.S3Bucket = v
	}

	if cfg.PeerPort <= 0 {
		cfg.PeerPort = DefaultPeerPort
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	return cfg, nil
}

// CloudEnabled reports whether the S3 mirror is configured.
func (a AppConfig) CloudEnabled() bool {
	return a.AWSProfile != "" && a.S3Bucket != ""
}
