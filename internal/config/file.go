package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type agentFile struct {
	URL            *string           `json:"url" yaml:"url"`
	APIKey         *string           `json:"api_key" yaml:"api_key"`
	Agent          *string           `json:"agent" yaml:"agent"`
	Namespace      *string           `json:"namespace" yaml:"namespace"`
	ReportInterval *string           `json:"report_interval" yaml:"report_interval"` // "1m"
	PollInterval   *string           `json:"poll_interval" yaml:"poll_interval"`
	ClientTimeout  *string           `json:"client_timeout" yaml:"client_timeout"`
	Tags           map[string]string `json:"tags" yaml:"tags"`
	Latitude       *float64          `json:"latitude" yaml:"latitude"`
	Longitude      *float64          `json:"longitude" yaml:"longitude"`
	DiskPath       *string           `json:"disk_path" yaml:"disk_path"`
	Strict         *bool             `json:"strict" yaml:"strict"`
	LogLevel       *string           `json:"log_level" yaml:"log_level"`
}

type gatewayFile struct {
	Address    *string  `json:"address" yaml:"address"`
	APIKeys    []string `json:"api_keys" yaml:"api_keys"`
	MaxMetrics *int     `json:"max_metrics" yaml:"max_metrics"`
	RateLimit  *float64 `json:"rate_limit" yaml:"rate_limit"`
	Burst      *int     `json:"burst" yaml:"burst"`
	LogLevel   *string  `json:"log_level" yaml:"log_level"`
}

// loadFile decodes a JSON or YAML file into dst, chosen by extension.
func loadFile(path string, dst any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, dst)
	default:
		err = json.Unmarshal(b, dst)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func parseDurationSeconds(s string) (int, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int(d / time.Second), nil
}
