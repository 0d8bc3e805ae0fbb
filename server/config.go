package main

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config represents server configuration
type Config struct {
	Port         int           `yaml:"port"`
	Storage      string        `yaml:"storage"`
	DataFile     string        `yaml:"data_file"`
	DBPath       string        `yaml:"db_path"`
	EnergyRate   float64       `yaml:"energy_rate"`
	Timezone     string        `yaml:"timezone"`
	CORSOrigin   string        `yaml:"cors_origin"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	LogFile      string        `yaml:"log_file"`
	LogLevel     string        `yaml:"log_level"`
	MQTTBroker   string        `yaml:"mqtt_broker"`
	MQTTClientID string        `yaml:"mqtt_client_id"`
	MQTTTopic    string        `yaml:"mqtt_topic"`
	MQTTInterval time.Duration `yaml:"mqtt_interval"`
	LLMBaseURL   string        `yaml:"llm_base_url"`
	LLMModel     string        `yaml:"llm_model"`
	LLMAPIKey    string        `yaml:"llm_api_key"`
	LLMRPS       float64       `yaml:"llm_rps"`
	LLMTimeout   time.Duration `yaml:"llm_timeout"`
}

// Storage backends selectable with -storage.
const (
	storageJSON   = "json"
	storageSQLite = "sqlite"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Port:         3001,
		Storage:      storageJSON,
		DataFile:     "store/db.json",
		DBPath:       "data/readings.db",
		EnergyRate:   0.12,
		Timezone:     "Local",
		CORSOrigin:   "http://localhost:5173",
		RateLimit:    10,
		RateBurst:    20,
		LogFile:      "dashboard-server.log",
		LogLevel:     "info",
		MQTTClientID: "thermostat-dashboard",
		MQTTTopic:    "thermostat/dashboard/health",
		MQTTInterval: 15 * time.Minute,
		LLMBaseURL:   "https://litellm.deriv.ai/v1",
		LLMModel:     "gpt-3.5-turbo",
		LLMRPS:       1,
		LLMTimeout:   30 * time.Second,
	}
}

// options are the command-line switches that are not configuration.
type options struct {
	configFile string
	migrate    bool
	verify     bool
}

// bindFlags registers the configuration flags on fs, defaulting to and
// writing into cfg.
func bindFlags(fs *flag.FlagSet, cfg *Config, opts *options) {
	fs.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	fs.BoolVar(&opts.migrate, "migrate", false, "import the JSON data file into the SQLite database and exit")
	fs.BoolVar(&opts.verify, "verify", true, "verify reading counts after -migrate")

	fs.IntVar(&cfg.Port, "port", cfg.Port, "server port")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend (json or sqlite)")
	fs.StringVar(&cfg.DataFile, "data", cfg.DataFile, "JSON readings file")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.Float64Var(&cfg.EnergyRate, "rate", cfg.EnergyRate, "energy price in $/kWh")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA time zone for weekday and hour grouping")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "allowed CORS origin")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per second allowed per client IP")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "request burst allowed per client IP")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file path (empty logs to stdout only)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "MQTT broker URL for health snapshots (empty disables)")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-client-id", cfg.MQTTClientID, "MQTT client id")
	fs.StringVar(&cfg.MQTTTopic, "mqtt-topic", cfg.MQTTTopic, "MQTT topic for health snapshots")
	fs.DurationVar(&cfg.MQTTInterval, "mqtt-interval", cfg.MQTTInterval, "interval between health snapshots")
	fs.StringVar(&cfg.LLMBaseURL, "llm-url", cfg.LLMBaseURL, "OpenAI-compatible API base URL")
	fs.StringVar(&cfg.LLMModel, "llm-model", cfg.LLMModel, "language model name")
	fs.Float64Var(&cfg.LLMRPS, "llm-rps", cfg.LLMRPS, "language model requests per second")
	fs.DurationVar(&cfg.LLMTimeout, "llm-timeout", cfg.LLMTimeout, "language model request timeout")
}

// parseConfig resolves the configuration from defaults, the optional YAML
// file and the command line, in increasing precedence. The arguments are
// parsed twice: once to find -config, then over the file's values so that
// only flags given explicitly override it.
func parseConfig(args []string, output io.Writer) (Config, options, error) {
	var opts options
	probe := DefaultConfig()
	fs := flag.NewFlagSet("dashboard-server", flag.ContinueOnError)
	fs.SetOutput(output)
	bindFlags(fs, &probe, &opts)
	if err := fs.Parse(args); err != nil {
		return Config{}, opts, err
	}

	cfg := DefaultConfig()
	if opts.configFile != "" {
		if err := loadConfigFile(opts.configFile, &cfg); err != nil {
			return Config{}, opts, err
		}
	}

	fs = flag.NewFlagSet("dashboard-server", flag.ContinueOnError)
	fs.SetOutput(output)
	bindFlags(fs, &cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return Config{}, opts, err
	}

	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	}
	return cfg, opts, cfg.Validate()
}

// loadConfigFile overlays the YAML file at path onto cfg. Unknown keys are
// rejected.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// Validate checks the values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.Storage != storageJSON && c.Storage != storageSQLite {
		return errors.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.EnergyRate < 0 {
		return errors.Errorf("energy rate must not be negative, got %v", c.EnergyRate)
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("rate limit and burst must be positive")
	}
	if c.MQTTBroker != "" && c.MQTTInterval <= 0 {
		return errors.New("mqtt interval must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "invalid timezone %q", c.Timezone)
	}
	return nil
}
