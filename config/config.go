package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/c360/aethalometer/errors"
)

// Config represents the complete collector configuration
type Config struct {
	Producer         ProducerConfig `json:"producer"`
	ReconnectPeriod  Seconds        `json:"reconnect_period"` // wait before redialing a lost instrument
	MessagePeriod    Seconds        `json:"message_period"`   // longest silence tolerated on an open connection
	StorageDirectory string         `json:"storage_directory"`
	PIDFile          string         `json:"pid_file"`
	Log              LogConfig      `json:"log"`
	Metrics          MetricsConfig  `json:"metrics"`
	NATS             NATSConfig     `json:"nats"`
}

// ProducerConfig identifies the instrument on the network
type ProducerConfig struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Address returns host:port of the instrument
func (p ProducerConfig) Address() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// LogConfig selects the log level and handler
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// MetricsConfig controls the Prometheus/health HTTP endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// NATSConfig enables mirroring stored lines onto a NATS subject.
// An empty URL disables the mirror.
type NATSConfig struct {
	URL           string  `json:"url"`
	Subject       string  `json:"subject"`
	ReconnectWait Seconds `json:"reconnect_wait"`
	Timeout       Seconds `json:"timeout"` // dial timeout per attempt
	ClientName    string  `json:"client_name"`

	// User and Password, or Token, authenticate with the server
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Seconds is a duration configured either as a number of seconds (5, 2.5)
// or as a Go duration string ("5s", "1m30s").
type Seconds time.Duration

// Duration returns s as a time.Duration
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

// String formats s as a Go duration
func (s Seconds) String() string {
	return time.Duration(s).String()
}

// MarshalJSON encodes s as fractional seconds
func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(s).Seconds())
}

// UnmarshalJSON accepts a number of seconds or a duration string
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*s = Seconds(v * float64(time.Second))
		return nil
	case string:
		parsed, err := ParseSeconds(v)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s: expected seconds or duration string", string(data))
	}
}

// ParseSeconds parses "2.5" as seconds and anything else as a Go duration
func ParseSeconds(value string) (Seconds, error) {
	value = strings.TrimSpace(value)
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return Seconds(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: expected seconds or duration string", value)
	}
	return Seconds(d), nil
}

// ValidatePort reports an error when port lies outside (0, 65536).
func ValidatePort(port int) error {
	if port <= 0 || port >= 65536 {
		return fmt.Errorf("%w: port must be an integer value between 0 and 65536 (exclusive), got %d",
			errors.ErrInvalidConfig, port)
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Producer.IP == "" {
		return errors.Wrap(fmt.Errorf("%w: producer.ip", errors.ErrMissingConfig),
			"Config", "Validate", "producer validation")
	}

	if err := ValidatePort(c.Producer.Port); err != nil {
		return errors.Wrap(err, "Config", "Validate", "producer port validation")
	}

	if c.ReconnectPeriod <= 0 {
		return errors.Wrap(fmt.Errorf("%w: reconnect_period must be positive, got %s",
			errors.ErrInvalidConfig, c.ReconnectPeriod), "Config", "Validate", "reconnect period validation")
	}

	if c.MessagePeriod <= 0 {
		return errors.Wrap(fmt.Errorf("%w: message_period must be positive, got %s",
			errors.ErrInvalidConfig, c.MessagePeriod), "Config", "Validate", "message period validation")
	}

	if c.StorageDirectory == "" {
		return errors.Wrap(fmt.Errorf("%w: storage_directory", errors.ErrMissingConfig),
			"Config", "Validate", "storage validation")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return errors.Wrap(fmt.Errorf("%w: log.level must be one of debug, info, warn, error, got %q",
			errors.ErrInvalidConfig, c.Log.Level), "Config", "Validate", "log validation")
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return errors.Wrap(fmt.Errorf("%w: log.format must be json or text, got %q",
			errors.ErrInvalidConfig, c.Log.Format), "Config", "Validate", "log validation")
	}

	if c.Metrics.Enabled {
		if err := ValidatePort(c.Metrics.Port); err != nil {
			return errors.Wrap(err, "Config", "Validate", "metrics port validation")
		}
	}

	if c.NATS.URL != "" {
		if c.NATS.Subject == "" {
			return errors.Wrap(fmt.Errorf("%w: nats.subject is required when nats.url is set",
				errors.ErrMissingConfig), "Config", "Validate", "nats validation")
		}
		if c.NATS.Timeout <= 0 {
			return errors.Wrap(fmt.Errorf("%w: nats.timeout must be positive, got %s",
				errors.ErrInvalidConfig, c.NATS.Timeout), "Config", "Validate", "nats validation")
		}
		if (c.NATS.User == "") != (c.NATS.Password == "") {
			return errors.Wrap(fmt.Errorf("%w: nats.user and nats.password must be set together",
				errors.ErrInvalidConfig), "Config", "Validate", "nats validation")
		}
		if c.NATS.Token != "" && c.NATS.User != "" {
			return errors.Wrap(fmt.Errorf("%w: nats.token cannot be combined with nats.user",
				errors.ErrInvalidConfig), "Config", "Validate", "nats validation")
		}
	}

	return nil
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: "AETHALOMETER",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Load loads and merges all configuration layers and applies environment
// overrides. The result is not validated; call Validate once every source,
// command line flags included, has been applied.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		rawConfig, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = l.mergeFromMap(cfg, rawConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the default configuration. Producer address and storage
// directory have no sensible default and must be supplied.
func Default() *Config {
	return &Config{
		ReconnectPeriod: Seconds(10 * time.Second),
		MessagePeriod:   Seconds(60 * time.Second),
		PIDFile:         "/var/run/aethalometer.pid",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			Subject:       "aethalometer.lines",
			ReconnectWait: Seconds(2 * time.Second),
			Timeout:       Seconds(5 * time.Second),
			ClientName:    "aethalometer",
		},
	}
}

// loadRaw loads a JSON, YAML or INI file as a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	format, err := configFormat(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any
	switch format {
	case formatINI:
		return loadINI(data)
	case formatYAML:
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	return rawConfig, nil
}

// iniKeys maps the sections and keys of INI configuration files to their
// place in Config
var iniKeys = []struct {
	section, key string
	path         []string
}{
	{"base", "reconnect_period", []string{"reconnect_period"}},
	{"base", "message_period", []string{"message_period"}},
	{"aethalometer", "producer_ip", []string{"producer", "ip"}},
	{"aethalometer", "producer_port", []string{"producer", "port"}},
	{"aethalometer", "storage_directory", []string{"storage_directory"}},
}

// loadINI reads the [base] and [aethalometer] sections of an INI file into
// the same shape a JSON or YAML layer produces. Other sections and keys are
// ignored.
func loadINI(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, data)
	if err != nil {
		return nil, fmt.Errorf("invalid INI: %w", err)
	}

	raw := make(map[string]any)
	for _, k := range iniKeys {
		section, err := file.GetSection(k.section)
		if err != nil || !section.HasKey(k.key) {
			continue
		}
		key := section.Key(k.key)

		var value any = strings.TrimSpace(key.String())
		if k.key == "producer_port" {
			port, err := key.Int()
			if err != nil {
				return nil, fmt.Errorf("[%s] %s: invalid port %q: %w", k.section, k.key, key.String(), errors.ErrInvalidConfig)
			}
			value = port
		}

		setPath(raw, k.path, value)
	}

	return raw, nil
}

// setPath stores value in m under the nested keys of path
func setPath(m map[string]any, path []string, value any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(l.deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}

	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(suffix string) (string, string, error) {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		return key, val, validateEnvVar(key, val)
	}

	if _, val, err := lookup("IP"); err != nil {
		return err
	} else if val != "" {
		cfg.Producer.IP = val
	}

	if key, val, err := lookup("PORT"); err != nil {
		return err
	} else if val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q: %w", key, val, errors.ErrInvalidConfig)
		}
		cfg.Producer.Port = port
	}

	if _, val, err := lookup("STORAGE"); err != nil {
		return err
	} else if val != "" {
		cfg.StorageDirectory = val
	}

	if _, val, err := lookup("PID_FILE"); err != nil {
		return err
	} else if val != "" {
		cfg.PIDFile = val
	}

	if key, val, err := lookup("RECONNECT_PERIOD"); err != nil {
		return err
	} else if val != "" {
		d, err := ParseSeconds(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		cfg.ReconnectPeriod = d
	}

	if key, val, err := lookup("MESSAGE_PERIOD"); err != nil {
		return err
	} else if val != "" {
		d, err := ParseSeconds(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		cfg.MessagePeriod = d
	}

	if _, val, err := lookup("NATS_URL"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.URL = val
	}

	if _, val, err := lookup("NATS_USER"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.User = val
	}

	if _, val, err := lookup("NATS_PASSWORD"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.Password = val
	}

	if _, val, err := lookup("NATS_TOKEN"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.Token = val
	}

	return nil
}
