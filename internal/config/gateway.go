package config

import (
	"flag"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// GatewayConfig holds the configuration of the local ingestion gateway.
type GatewayConfig struct {
	Addr       string   // Listen address
	APIKeys    []string // Accepted bearer tokens
	MaxMetrics int      // Stored metrics allowed per agent before 409
	RateLimit  float64  // Requests per second allowed per agent before 429
	Burst      int      // Token bucket size
	LogLevel   string
}

// LoadGatewayConfig resolves the gateway configuration.
// Priority: env > flags > config file > defaults.
func LoadGatewayConfig(args []string, out io.Writer) (*GatewayConfig, error) {
	if out == nil {
		out = io.Discard
	}
	cfg := &GatewayConfig{
		Addr:       "localhost:8080",
		MaxMetrics: 1000,
		RateLimit:  1,
		Burst:      5,
		LogLevel:   "info",
	}

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.SetOutput(out)

	var fAddr, fKeys, fLevel, fConf strFlag
	var fMax, fBurst intFlag
	var fRate floatFlag
	fs.Var(&fAddr, "a", "HTTP listen address")
	fs.Var(&fKeys, "k", "comma separated accepted API keys")
	fs.Var(&fMax, "m", "max stored metrics per agent")
	fs.Var(&fRate, "l", "requests per second per agent")
	fs.Var(&fBurst, "b", "burst size per agent")
	fs.Var(&fLevel, "v", "log level")
	fs.Var(&fConf, "c", "path to JSON or YAML config file")
	fs.Var(&fConf, "config", "path to JSON or YAML config file (alias)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fConf.v == "" {
		fConf.v = os.Getenv("CONFIG")
	}
	if fConf.v != "" {
		var f gatewayFile
		if err := loadFile(fConf.v, &f); err != nil {
			return nil, err
		}
		if f.Address != nil {
			cfg.Addr = *f.Address
		}
		if len(f.APIKeys) > 0 {
			cfg.APIKeys = f.APIKeys
		}
		if f.MaxMetrics != nil {
			cfg.MaxMetrics = *f.MaxMetrics
		}
		if f.RateLimit != nil {
			cfg.RateLimit = *f.RateLimit
		}
		if f.Burst != nil {
			cfg.Burst = *f.Burst
		}
		if f.LogLevel != nil {
			cfg.LogLevel = *f.LogLevel
		}
	}

	if fAddr.set {
		cfg.Addr = fAddr.v
	}
	if fKeys.set {
		cfg.APIKeys = splitList(fKeys.v)
	}
	if fMax.set {
		cfg.MaxMetrics = fMax.v
	}
	if fRate.set {
		cfg.RateLimit = fRate.v
	}
	if fBurst.set {
		cfg.Burst = fBurst.v
	}
	if fLevel.set {
		cfg.LogLevel = fLevel.v
	}

	readGatewayEnvironment(cfg)
	return cfg, nil
}

func readGatewayEnvironment(cfg *GatewayConfig) {
	if addr := os.Getenv("ADDRESS"); addr != "" {
		cfg.Addr = addr
	}
	if keys := os.Getenv("API_KEY"); keys != "" {
		cfg.APIKeys = splitList(keys)
	}
	if v := os.Getenv("MAX_METRICS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxMetrics = n
		} else {
			log.Printf("invalid MAX_METRICS env var: %v", err)
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit = f
		} else {
			log.Printf("invalid RATE_LIMIT env var: %v", err)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
