// Package config provides application configuration structures and helpers.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/Eotel/go-machinist/client"
)

// AgentConfig holds the configuration settings for the agent.
type AgentConfig struct {
	URL            string            // Ingestion endpoint
	APIKey         string            // Bearer token
	AgentName      string            // Agent reported in every payload
	Namespace      string            // Optional namespace override for all metrics
	ReportInterval int               // Interval for sending metrics (in seconds)
	PollInterval   int               // Interval for collecting metrics (in seconds)
	ClientTimeout  int               // HTTP client timeout (in seconds)
	Tags           map[string]string // Tags attached to every metric
	Latitude       *float64          // Location for map display
	Longitude      *float64
	DiskPath       string // Filesystem sampled for disk usage
	Strict         bool   // Reject out-of-range coordinates before sending
	Once           bool   // Send a single report and exit
	LogLevel       string
}

// LoadAgentConfig resolves the agent configuration.
// Priority: env > flags > config file > defaults.
func LoadAgentConfig(args []string, out io.Writer) (*AgentConfig, error) {
	if out == nil {
		out = io.Discard
	}
	host, _ := os.Hostname()

	cfg := &AgentConfig{
		URL:            client.DefaultURL,
		AgentName:      host,
		ReportInterval: 60,
		PollInterval:   10,
		ClientTimeout:  10,
		DiskPath:       "/",
		LogLevel:       "info",
	}

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(out)

	var fURL, fKey, fAgent, fNS, fTags, fDisk, fLevel, fConf strFlag
	var fRep, fPoll, fTO intFlag
	var fLat, fLon floatFlag
	var fStrict, fOnce boolFlag
	fs.Var(&fURL, "u", "ingestion endpoint URL")
	fs.Var(&fKey, "k", "API key")
	fs.Var(&fAgent, "n", "agent name (default: hostname)")
	fs.Var(&fNS, "ns", "namespace for all metrics")
	fs.Var(&fRep, "r", "report interval (seconds)")
	fs.Var(&fPoll, "p", "poll interval (seconds)")
	fs.Var(&fTO, "t", "client timeout (seconds)")
	fs.Var(&fTags, "tags", "tags as k=v,k2=v2")
	fs.Var(&fLat, "lat", "latitude")
	fs.Var(&fLon, "lon", "longitude")
	fs.Var(&fDisk, "disk", "filesystem path sampled for disk usage")
	fs.Var(&fStrict, "strict", "validate coordinates before sending")
	fs.Var(&fOnce, "once", "send one report and exit")
	fs.Var(&fLevel, "v", "log level (debug, info, warn, error)")
	fs.Var(&fConf, "c", "path to JSON or YAML config file")
	fs.Var(&fConf, "config", "path to JSON or YAML config file (alias)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fConf.v == "" {
		fConf.v = os.Getenv("CONFIG")
	}
	if fConf.v != "" {
		var f agentFile
		if err := loadFile(fConf.v, &f); err != nil {
			return nil, err
		}
		applyAgentFile(cfg, &f)
	}

	if fURL.set {
		cfg.URL = fURL.v
	}
	if fKey.set {
		cfg.APIKey = fKey.v
	}
	if fAgent.set {
		cfg.AgentName = fAgent.v
	}
	if fNS.set {
		cfg.Namespace = fNS.v
	}
	if fRep.set {
		cfg.ReportInterval = fRep.v
	}
	if fPoll.set {
		cfg.PollInterval = fPoll.v
	}
	if fTO.set {
		cfg.ClientTimeout = fTO.v
	}
	if fTags.set {
		tags, err := ParseTags(fTags.v)
		if err != nil {
			return nil, err
		}
		cfg.Tags = tags
	}
	if fLat.set {
		v := fLat.v
		cfg.Latitude = &v
	}
	if fLon.set {
		v := fLon.v
		cfg.Longitude = &v
	}
	if fDisk.set {
		cfg.DiskPath = fDisk.v
	}
	if fStrict.set {
		cfg.Strict = fStrict.v
	}
	if fOnce.set {
		cfg.Once = fOnce.v
	}
	if fLevel.set {
		cfg.LogLevel = fLevel.v
	}

	if err := readAgentEnvironment(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyAgentFile(cfg *AgentConfig, f *agentFile) {
	if f.URL != nil {
		cfg.URL = *f.URL
	}
	if f.APIKey != nil {
		cfg.APIKey = *f.APIKey
	}
	if f.Agent != nil {
		cfg.AgentName = *f.Agent
	}
	if f.Namespace != nil {
		cfg.Namespace = *f.Namespace
	}
	if f.ReportInterval != nil {
		if sec, err := parseDurationSeconds(*f.ReportInterval); err == nil {
			cfg.ReportInterval = sec
		} else {
			log.Printf("invalid report_interval in config file: %v", err)
		}
	}
	if f.PollInterval != nil {
		if sec, err := parseDurationSeconds(*f.PollInterval); err == nil {
			cfg.PollInterval = sec
		} else {
			log.Printf("invalid poll_interval in config file: %v", err)
		}
	}
	if f.ClientTimeout != nil {
		if sec, err := parseDurationSeconds(*f.ClientTimeout); err == nil {
			cfg.ClientTimeout = sec
		} else {
			log.Printf("invalid client_timeout in config file: %v", err)
		}
	}
	if len(f.Tags) > 0 {
		cfg.Tags = f.Tags
	}
	if f.Latitude != nil {
		cfg.Latitude = f.Latitude
	}
	if f.Longitude != nil {
		cfg.Longitude = f.Longitude
	}
	if f.DiskPath != nil {
		cfg.DiskPath = *f.DiskPath
	}
	if f.Strict != nil {
		cfg.Strict = *f.Strict
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
}

func readAgentEnvironment(cfg *AgentConfig) error {
	if v := os.Getenv("MACHINIST_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("MACHINIST_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("MACHINIST_AGENT"); v != "" {
		cfg.AgentName = v
	}
	if v := os.Getenv("MACHINIST_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"REPORT_INTERVAL", &cfg.ReportInterval},
		{"POLL_INTERVAL", &cfg.PollInterval},
		{"CLIENT_TIMEOUT", &cfg.ClientTimeout},
	}
	for _, e := range ints {
		if v := os.Getenv(e.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.Printf("invalid %s env var: %v", e.env, err)
				continue
			}
			*e.dst = n
		}
	}

	coords := []struct {
		env string
		dst **float64
	}{
		{"LATITUDE", &cfg.Latitude},
		{"LONGITUDE", &cfg.Longitude},
	}
	for _, e := range coords {
		if v := os.Getenv(e.env); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				log.Printf("invalid %s env var: %v", e.env, err)
				continue
			}
			*e.dst = &f
		}
	}

	if v := os.Getenv("TAGS"); v != "" {
		tags, err := ParseTags(v)
		if err != nil {
			return fmt.Errorf("TAGS env var: %w", err)
		}
		cfg.Tags = tags
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

var (
	ErrNoAPIKey       = errors.New("api key is required (-k or MACHINIST_API_KEY)")
	ErrNoAgentName    = errors.New("agent name is required (-n or MACHINIST_AGENT)")
	ErrBadInterval    = errors.New("intervals and timeout must be positive")
	ErrLocationPaired = errors.New("latitude and longitude must be set together")
)

func (cfg *AgentConfig) validate() error {
	var errs []error
	if cfg.APIKey == "" {
		errs = append(errs, ErrNoAPIKey)
	}
	if cfg.AgentName == "" {
		errs = append(errs, ErrNoAgentName)
	}
	if cfg.ReportInterval <= 0 || cfg.PollInterval <= 0 || cfg.ClientTimeout <= 0 {
		errs = append(errs, ErrBadInterval)
	}
	if (cfg.Latitude == nil) != (cfg.Longitude == nil) {
		errs = append(errs, ErrLocationPaired)
	}
	return errors.Join(errs...)
}

// ParseTags parses "k=v,k2=v2" into a map.
func ParseTags(s string) (map[string]string, error) {
	tags := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", pair)
		}
		tags[k] = strings.TrimSpace(v)
	}
	return tags, nil
}
