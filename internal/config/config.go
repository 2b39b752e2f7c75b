// Package config loads loader settings from a YAML file and the environment.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	loader "github.com/coyt0001/hcrecalls-dynamodb-loader"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/recalls"
)

// DefaultFile is read when no --config flag is given. It may be absent.
const DefaultFile = "hcrecalls.yaml"

// AWS selects the region and, for DynamoDB Local, the endpoint.
type AWS struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Upload tunes the upload engine.
type Upload struct {
	Pacing    time.Duration `yaml:"pacing"`
	MaxWaves  int           `yaml:"max_waves"`
	TableWait time.Duration `yaml:"table_wait"`
}

// Fetch configures the recalls API client.
type Fetch struct {
	BaseURL     string        `yaml:"base_url"`
	Language    string        `yaml:"language"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// Log picks the log level and output format.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full set of settings.
type Config struct {
	AWS        AWS              `yaml:"aws"`
	Table      loader.TableSpec `yaml:"table"`
	Upload     Upload           `yaml:"upload"`
	Fetch      Fetch            `yaml:"fetch"`
	DataDir    string           `yaml:"data_dir"`
	Categories []int            `yaml:"categories"`
	Log        Log              `yaml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AWS:   AWS{Region: "ca-central-1"},
		Table: loader.TableSpec{Name: "HCRecalls", Key: loader.DefaultPartitionKey},
		Upload: Upload{
			Pacing:    loader.DefaultPacing,
			MaxWaves:  loader.DefaultMaxWaves,
			TableWait: loader.DefaultTableWait,
		},
		Fetch: Fetch{
			BaseURL:     recalls.DefaultBaseURL,
			Language:    recalls.DefaultLanguage,
			Timeout:     recalls.DefaultTimeout,
			Concurrency: recalls.DefaultConcurrency,
		},
		DataDir:    "data",
		Categories: []int{1, 2, 3, 4},
		Log:        Log{Level: "info", Format: "console"},
	}
}

// Load returns Default overlaid with the YAML file at path. A missing file is
// an error only when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the environment as seen through lookup.
func (c *Config) ApplyEnv(lookup Lookup) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("AWS_REGION", &c.AWS.Region)
	str("DYNAMO_ENDPOINT", &c.AWS.Endpoint)
	str("DYNAMO_TABLE", &c.Table.Name)
	str(EnvPrefix+"TABLE", &c.Table.Name)
	str(EnvPrefix+"TABLE_KEY", &c.Table.Key)
	str(EnvPrefix+"BASE_URL", &c.Fetch.BaseURL)
	str(EnvPrefix+"LANGUAGE", &c.Fetch.Language)
	str(EnvPrefix+"DATA_DIR", &c.DataDir)
	str(EnvPrefix+"LOG_LEVEL", &c.Log.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Log.Format)
	return errors.Join(
		dur(EnvPrefix+"PACING", &c.Upload.Pacing),
		dur(EnvPrefix+"TABLE_WAIT", &c.Upload.TableWait),
		dur(EnvPrefix+"FETCH_TIMEOUT", &c.Fetch.Timeout),
		num(EnvPrefix+"MAX_WAVES", &c.Upload.MaxWaves),
		num(EnvPrefix+"FETCH_CONCURRENCY", &c.Fetch.Concurrency),
	)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Table.Name == "" {
		errs = append(errs, errors.New("table.name is required"))
	}
	if c.Table.Key == "" {
		errs = append(errs, errors.New("table.key is required"))
	}
	for _, n := range c.Categories {
		if !recalls.Category(n).Valid() {
			errs = append(errs, fmt.Errorf("categories: %d is not between 1 and 4", n))
		}
	}
	for name, d := range map[string]time.Duration{
		"upload.pacing":     c.Upload.Pacing,
		"upload.table_wait": c.Upload.TableWait,
		"fetch.timeout":     c.Fetch.Timeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.Upload.MaxWaves < 1 {
		errs = append(errs, fmt.Errorf("upload.max_waves must be at least 1, got %d", c.Upload.MaxWaves))
	}
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be at least 1, got %d", c.Fetch.Concurrency))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// CategoryList converts Categories into recalls.Category values.
func (c Config) CategoryList() []recalls.Category {
	out := make([]recalls.Category, len(c.Categories))
	for i, n := range c.Categories {
		out[i] = recalls.Category(n)
	}
	return out
}
