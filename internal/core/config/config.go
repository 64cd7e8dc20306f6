package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type DispatchCfg struct {
	Enabled bool   `yaml:"enabled"`
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
	// SchemaVersion empty means the newest registered version.
	SchemaVersion string `yaml:"schema_version"`
}

type JobUpdatesCfg struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group_id"`
}

type MetricsCfg struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Config struct {
	Addr           string        `yaml:"addr"`
	LogLevel       string        `yaml:"log_level"`
	LogConsole     bool          `yaml:"log_console"`
	LogSampleN     int           `yaml:"log_sample_n"`
	RedisAddr      string        `yaml:"redis_addr"`
	JobStore       string        `yaml:"job_store"`
	JobTTL         time.Duration `yaml:"job_ttl"`
	StoreOpTimeout time.Duration `yaml:"store_op_timeout"`
	Dispatch       DispatchCfg   `yaml:"dispatch"`
	JobUpdates     JobUpdatesCfg `yaml:"job_updates"`
	PublishBucket  string        `yaml:"publish_bucket_url"`
	STACCacheSize  int           `yaml:"stac_cache_size"`
	WorkItemsURL   string        `yaml:"work_items_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Metrics        MetricsCfg    `yaml:"metrics"`
}

func Defaults() Config {
	return Config{
		Addr:           ":8090",
		LogLevel:       "info",
		RedisAddr:      "localhost:6379",
		JobStore:       "redis",
		JobTTL:         168 * time.Hour,
		StoreOpTimeout: 250 * time.Millisecond,
		Dispatch: DispatchCfg{
			Brokers: "localhost:9092",
			Topic:   "harmony-work",
		},
		JobUpdates: JobUpdatesCfg{
			Topic:   "harmony-job-updates",
			GroupID: "harmony-core",
		},
		STACCacheSize: 1024,
		PollInterval:  5 * time.Second,
		Metrics: MetricsCfg{
			Addr: ":9090",
		},
	}
}

// FromEnv applies environment overrides to the defaults.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment overrides on top of it.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.JobStore {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("config: JOB_STORE must be redis or memory, got %q", c.JobStore))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("config: POLL_INTERVAL must be positive"))
	}
	if c.STACCacheSize <= 0 {
		errs = append(errs, errors.New("config: STAC_CACHE_SIZE must be positive"))
	}
	if c.LogSampleN < 0 {
		errs = append(errs, errors.New("config: LOG_SAMPLE_N must not be negative"))
	}
	if (c.Dispatch.Enabled || c.JobUpdates.Enabled) && strings.TrimSpace(c.Dispatch.Brokers) == "" {
		errs = append(errs, errors.New("config: KAFKA_BROKERS required when Kafka is enabled"))
	}
	return errors.Join(errs...)
}

// BrokerList splits the comma-separated broker list.
func (d DispatchCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(d.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func applyEnv(c *Config) {
	c.Addr = getenv("ADDR", c.Addr)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogConsole = getbool("LOG_CONSOLE", c.LogConsole)
	c.LogSampleN = getint("LOG_SAMPLE_N", c.LogSampleN)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.JobStore = strings.ToLower(getenv("JOB_STORE", c.JobStore))
	c.JobTTL = getduration("JOB_TTL", c.JobTTL)
	c.StoreOpTimeout = getduration("STORE_OP_TIMEOUT", c.StoreOpTimeout)

	c.Dispatch.Enabled = getbool("DISPATCH_ENABLED", c.Dispatch.Enabled)
	c.Dispatch.Brokers = getenv("KAFKA_BROKERS", c.Dispatch.Brokers)
	c.Dispatch.Topic = getenv("DISPATCH_TOPIC", c.Dispatch.Topic)
	c.Dispatch.SchemaVersion = getenv("SCHEMA_VERSION", c.Dispatch.SchemaVersion)

	c.JobUpdates.Enabled = getbool("JOB_UPDATES_ENABLED", c.JobUpdates.Enabled)
	c.JobUpdates.Topic = getenv("JOB_UPDATES_TOPIC", c.JobUpdates.Topic)
	c.JobUpdates.GroupID = getenv("JOB_UPDATES_GROUP", c.JobUpdates.GroupID)

	c.PublishBucket = getenv("PUBLISH_BUCKET_URL", c.PublishBucket)
	c.STACCacheSize = getint("STAC_CACHE_SIZE", c.STACCacheSize)
	c.WorkItemsURL = getenv("WORK_ITEMS_URL", c.WorkItemsURL)
	c.PollInterval = getduration("POLL_INTERVAL", c.PollInterval)

	c.Metrics.Enabled = getbool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getenv("METRICS_ADDR", c.Metrics.Addr)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
