package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	IP          string
	Port        int
	Storage     string
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	MetricsPort int
	PIDFile     string
	NATSURL     string
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func newFlagSet(cfg *CLIConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SortFlags = false

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.IP, "ip",
		getEnv("AETHALOMETER_IP", ""),
		"Instrument IP address or host name (env: AETHALOMETER_IP)")

	fs.IntVar(&cfg.Port, "port",
		getEnvInt("AETHALOMETER_PORT", 0),
		"Instrument TCP port (env: AETHALOMETER_PORT)")

	fs.StringVar(&cfg.Storage, "storage",
		getEnv("AETHALOMETER_STORAGE", ""),
		"Existing directory for the daily files (env: AETHALOMETER_STORAGE)")

	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("AETHALOMETER_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: AETHALOMETER_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("AETHALOMETER_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: AETHALOMETER_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("AETHALOMETER_LOG_FORMAT", ""),
		"Log format: json, text (env: AETHALOMETER_LOG_FORMAT)")

	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("AETHALOMETER_METRICS_PORT", 0),
		"Serve /metrics and /health on this port, 0 keeps the config value (env: AETHALOMETER_METRICS_PORT)")

	fs.StringVar(&cfg.PIDFile, "pid-file",
		getEnv("AETHALOMETER_PID_FILE", ""),
		"Write the process ID to this file (env: AETHALOMETER_PID_FILE)")

	fs.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("AETHALOMETER_NATS_URL", ""),
		"Mirror stored lines to this NATS server (env: AETHALOMETER_NATS_URL)")

	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	return fs
}

func parseFlags(args []string) (*CLIConfig, *pflag.FlagSet, error) {
	cfg := &CLIConfig{}
	fs := newFlagSet(cfg)
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if fs.NArg() > 0 {
		return nil, fs, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return cfg, fs, nil
}

// validateFlags enforces the two invocation forms: --config=<file>, or all of
// --ip, --port and --storage.
func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath == "" {
		var missing []string
		if cfg.IP == "" {
			missing = append(missing, "--ip")
		}
		if cfg.Port == 0 {
			missing = append(missing, "--port")
		}
		if cfg.Storage == "" {
			missing = append(missing, "--storage")
		}
		if len(missing) > 0 {
			return fmt.Errorf("either --config or all of --ip, --port and --storage are required (missing %v)", missing)
		}
	} else if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("configuration file %q does not exist", cfg.ConfigPath)
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp(w io.Writer, fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%[1]s - Aethalometer data collector

Usage:
  %[1]s --ip=<ip_or_domain> --port=<port> --storage=<directory> [options]
  %[1]s --config=<file> [options]
  %[1]s (-h | --help)

Options:
%[2]s
Examples:
  # Collect from an instrument into /data/bc
  %[1]s --ip=10.0.0.5 --port=8002 --storage=/data/bc --pid-file=/tmp/bc.pid

  # Run from a configuration file with debug logging
  %[1]s --config=/etc/aethalometer/collector.yaml --log-level=debug

  # Validate configuration only
  %[1]s --config=/etc/aethalometer/collector.yaml --validate

Version: %[3]s
Build: %[4]s
`, appName, fs.FlagUsages(), Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
