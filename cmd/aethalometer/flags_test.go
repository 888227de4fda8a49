package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	cfg, _, err := parseFlags([]string{
		"--ip=10.0.0.5", "--port", "8002", "--storage=/data/bc",
		"--log-level=debug", "--log-format=json", "--metrics-port=9200",
		"--pid-file=/tmp/bc.pid", "--nats-url=nats://localhost:4222", "--validate",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.IP)
	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "/data/bc", cfg.Storage)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 9200, cfg.MetricsPort)
	assert.Equal(t, "/tmp/bc.pid", cfg.PIDFile)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.True(t, cfg.Validate)
}

func TestParseFlags_Shorthands(t *testing.T) {
	cfg, _, err := parseFlags([]string{"-c", "collector.yaml", "-h", "-v"})
	require.NoError(t, err)

	assert.Equal(t, "collector.yaml", cfg.ConfigPath)
	assert.True(t, cfg.ShowHelp)
	assert.True(t, cfg.ShowVersion)
}

func TestParseFlags_EnvFallback(t *testing.T) {
	t.Setenv("AETHALOMETER_IP", "192.168.0.7")
	t.Setenv("AETHALOMETER_PORT", "9000")
	t.Setenv("AETHALOMETER_STORAGE", "/srv/bc")

	cfg, _, err := parseFlags([]string{"--port=9001"})
	require.NoError(t, err)

	assert.Equal(t, "192.168.0.7", cfg.IP)
	assert.Equal(t, 9001, cfg.Port, "flags win over the environment")
	assert.Equal(t, "/srv/bc", cfg.Storage)
}

func TestParseFlags_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"--port=eighty"},
		{"--unknown"},
		{"stray-argument"},
	} {
		_, _, err := parseFlags(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestValidateFlags(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "collector.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0o600))

	tests := []struct {
		name    string
		cfg     CLIConfig
		wantErr string
	}{
		{"address form", CLIConfig{IP: "10.0.0.5", Port: 8002, Storage: "/data"}, ""},
		{"config form", CLIConfig{ConfigPath: configPath}, ""},
		{"config with overrides", CLIConfig{ConfigPath: configPath, Port: 9000}, ""},
		{"help skips checks", CLIConfig{ShowHelp: true}, ""},
		{"version skips checks", CLIConfig{ShowVersion: true}, ""},
		{"nothing given", CLIConfig{}, "either --config or all of"},
		{"missing storage", CLIConfig{IP: "10.0.0.5", Port: 8002}, "--storage"},
		{"missing config file", CLIConfig{ConfigPath: "/does/not/exist.json"}, "does not exist"},
		{"bad log level", CLIConfig{ConfigPath: configPath, LogLevel: "trace"}, "invalid log level"},
		{"bad log format", CLIConfig{ConfigPath: configPath, LogFormat: "xml"}, "invalid log format"},
		{"bad metrics port", CLIConfig{ConfigPath: configPath, MetricsPort: 70000}, "invalid metrics port"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := validateFlags(&test.cfg)
			if test.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestPrintDetailedHelp(t *testing.T) {
	_, fs, err := parseFlags(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	printDetailedHelp(&buf, fs)

	out := buf.String()
	assert.Contains(t, out, "--ip=<ip_or_domain> --port=<port> --storage=<directory>")
	assert.Contains(t, out, "--config=<file>")
	assert.Contains(t, out, "--metrics-port")
	assert.Contains(t, out, Version)
}
